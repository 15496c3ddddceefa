package cart

import (
	"errors"

	"github.com/TheThief/CoroGB/internal/mem"
	"github.com/TheThief/CoroGB/internal/sched"
)

// ErrRTCUnsupported aborts the emulator when a ROM touches the MBC3 real-time
// clock, which this core does not model.
var ErrRTCUnsupported = errors.New("mbc3 rtc not supported")

// mbc3 has a 7-bit ROM bank and a register that selects either a RAM bank or
// an RTC register. 256 KiB multicarts repurpose that register as an outer ROM
// bank selecting a pair of consecutive banks.
type mbc3 struct {
	mbcBase

	romBank    byte
	ramBank    byte
	ramEnabled bool

	multicart bool
}

func newMBC3(rom []byte) (*mbc3, error) {
	b, err := newBase(rom)
	if err != nil {
		return nil, err
	}
	c := &mbc3{mbcBase: b, romBank: 1}
	if len(rom) == 0x40000 {
		c.multicart = logoAt(rom, 2*0x4000+0x104) && logoAt(rom, 4*0x4000+0x104)
	}
	return c, nil
}

func (c *mbc3) mapTo(m *mem.Mapper) error {
	c.mapped = m
	m.SetMapping(mem.Mapping{Start: 0x0000, End: 0x3FFF, ReadBytes: c.rom[:0x4000], WriteFn: c.handleWrite})
	m.SetMapping(mem.Mapping{Start: 0x4000, End: 0x7FFF, ReadBytes: c.romWindow(int(c.romBank)), WriteFn: c.handleWrite})
	return nil
}

func (c *mbc3) unmap() {
	if c.mapped == nil {
		return
	}
	c.flushRAM()
	c.mapped.RemoveMapping(0x0000, 0x3FFF)
	c.mapped.RemoveMapping(0x4000, 0x7FFF)
	c.removeRAMWindow()
	c.mapped = nil
}

func (c *mbc3) mapSwitchableROM() {
	c.mapped.SetMapping(mem.Mapping{Start: 0x4000, End: 0x7FFF, ReadBytes: c.romWindow(int(c.romBank)), WriteFn: c.handleWrite})
}

func (c *mbc3) handleWrite(addr uint16, v byte) {
	switch {
	case addr <= 0x1FFF: // RAM enable
		wasEnabled := c.ramEnabled
		c.ramEnabled = v&0x0F == 0x0A
		if c.ramEnabled && !wasEnabled {
			if len(c.ram) > 0x2000 {
				c.mapRAMBank(int(c.ramBank))
			} else {
				c.mapRAMBank(0)
			}
		} else if !c.ramEnabled && wasEnabled {
			c.darkenRAM()
		}

	case addr <= 0x3FFF: // ROM bank number, 7 bits, 0 coerced to 1
		v &= 0x7F
		if v == 0 {
			v = 1
		}
		c.romBank = v
		c.mapSwitchableROM()

	case addr <= 0x5FFF: // RAM bank number or RTC register select
		if c.multicart {
			// outer bank: a pair of consecutive banks fills 0x0000-0x7FFF
			outer := int(v&0x03) * 2
			c.mapped.SetMapping(mem.Mapping{Start: 0x0000, End: 0x3FFF, ReadBytes: c.romWindow(outer), WriteFn: c.handleWrite})
			c.mapped.SetMapping(mem.Mapping{Start: 0x4000, End: 0x7FFF, ReadBytes: c.romWindow(outer + 1), WriteFn: c.handleWrite})
			return
		}
		v &= 0x0F
		if v&0x08 != 0 {
			panic(sched.Fatal{Err: ErrRTCUnsupported})
		}
		c.ramBank = v
		if c.ramEnabled && len(c.ram) > 0x2000 {
			c.mapRAMBank(int(c.ramBank))
		}

	default: // 0x6000-0x7FFF: latch clock data, a no-op without an RTC
	}
}
