package cart

import (
	"errors"

	"github.com/TheThief/CoroGB/internal/mem"
)

// ErrMBC1Layout marks the one MBC1 wiring this core does not support: large
// ROM and large RAM both banked through the 0x4000 register.
var ErrMBC1Layout = errors.New("unsupported cartridge: MBC1 with both rom and ram banked via register 4000")

// mbc1 has a 5-bit inner ROM bank, a 2-bit outer register shared between ROM
// high bits and RAM banking, and a mode bit deciding whether the outer
// register also applies to the 0x0000-0x3FFF window and RAM.
type mbc1 struct {
	mbcBase

	romBank     byte // combined bank for the switchable window
	outerBank   byte // two bits
	ramEnabled  bool
	bankingMode byte

	// 1 MB multicarts wire the outer register as ROM bits 4-5 over a 4-bit
	// inner bank, detected by the Nintendo logo sitting in banks 0x10 and 0x20
	multicart1MB bool
}

func newMBC1(rom []byte) (*mbc1, error) {
	b, err := newBase(rom)
	if err != nil {
		return nil, err
	}
	if len(rom) > 0x80000 && len(b.ram) > 0x2000 {
		return nil, ErrMBC1Layout
	}
	c := &mbc1{mbcBase: b, romBank: 1}
	if len(rom) == 0x100000 {
		c.multicart1MB = logoAt(rom, 0x10*0x4000+0x104) && logoAt(rom, 0x20*0x4000+0x104)
	}
	return c, nil
}

func (c *mbc1) mapTo(m *mem.Mapper) error {
	c.mapped = m
	m.SetMapping(mem.Mapping{Start: 0x0000, End: 0x3FFF, ReadBytes: c.rom[:0x4000], WriteFn: c.handleWrite})
	m.SetMapping(mem.Mapping{Start: 0x4000, End: 0x7FFF, ReadBytes: c.romWindow(int(c.romBank)), WriteFn: c.handleWrite})
	return nil
}

func (c *mbc1) unmap() {
	if c.mapped == nil {
		return
	}
	c.flushRAM()
	c.mapped.RemoveMapping(0x0000, 0x3FFF)
	c.mapped.RemoveMapping(0x4000, 0x7FFF)
	c.removeRAMWindow()
	c.mapped = nil
}

func (c *mbc1) mapSwitchableROM() {
	c.mapped.SetMapping(mem.Mapping{Start: 0x4000, End: 0x7FFF, ReadBytes: c.romWindow(int(c.romBank)), WriteFn: c.handleWrite})
}

func (c *mbc1) mapBank0ROM(bank int) {
	c.mapped.SetMapping(mem.Mapping{Start: 0x0000, End: 0x3FFF, ReadBytes: c.romWindow(bank), WriteFn: c.handleWrite})
}

func (c *mbc1) adjustedOuterBank() byte {
	if c.multicart1MB {
		return c.outerBank << 4
	}
	return c.outerBank << 5
}

func (c *mbc1) handleWrite(addr uint16, v byte) {
	switch {
	case addr <= 0x1FFF: // RAM enable
		// any value with 0xA in the low nibble enables, anything else disables
		wasEnabled := c.ramEnabled
		c.ramEnabled = v&0x0F == 0x0A
		if c.ramEnabled && !wasEnabled {
			if len(c.ram) > 0x2000 && c.bankingMode == 1 {
				c.mapRAMBank(int(c.outerBank))
			} else {
				c.mapRAMBank(0)
			}
		} else if !c.ramEnabled && wasEnabled {
			c.darkenRAM()
		}

	case addr <= 0x3FFF: // ROM bank number, low bits
		// 0 is coerced to 1 before the mask is applied
		if v == 0 {
			v = 1
		}
		if !c.multicart1MB {
			c.romBank = c.romBank&0xE0 | v&0x1F
		} else {
			c.romBank = c.romBank&0xF0 | v&0x0F
		}
		c.mapSwitchableROM()

	case addr <= 0x5FFF: // RAM bank number / upper ROM bank bits
		c.outerBank = v & 0x03
		outer := c.adjustedOuterBank()
		if !c.multicart1MB {
			c.romBank = c.romBank&0x1F | outer
		} else {
			c.romBank = c.romBank&0x0F | outer
		}
		c.mapSwitchableROM()

		if c.bankingMode == 1 {
			// in mode 1 the "rom 0" window follows the outer bank too
			c.mapBank0ROM(int(outer))
			if c.ramEnabled && len(c.ram) > 0x2000 {
				c.mapRAMBank(int(c.outerBank))
			}
		}

	default: // 0x6000-0x7FFF: banking mode select
		old := c.bankingMode
		c.bankingMode = 0
		if v != 0 {
			c.bankingMode = 1
		}
		if c.bankingMode == old {
			return
		}
		if c.bankingMode == 0 {
			// mode 0: the 0x0000-0x3FFF window and RAM are unbanked
			c.mapBank0ROM(0)
			if c.ramEnabled && len(c.ram) > 0x2000 && c.outerBank != 0 {
				c.mapRAMBank(0)
			}
		} else {
			c.mapBank0ROM(int(c.adjustedOuterBank()))
			if c.ramEnabled && len(c.ram) > 0x2000 {
				c.mapRAMBank(int(c.outerBank))
			}
		}
	}
}
