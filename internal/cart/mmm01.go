package cart

import "github.com/TheThief/CoroGB/internal/mem"

// mmm01 is the menu multicart controller. It powers up "unmapped" with the
// last 32 KiB (the menu program) forced into 0x0000-0x7FFF as banks
// 0x1FE/0x1FF. In that state every register bit is writable: the menu picks a
// game by programming the base bank bits, the write-enable masks and the
// multiplex layout, then sets the map-enable bit, which latches the
// configuration. From then on only the low, unmasked bits of each register
// respond, so the selected game sees an ordinary MBC1-like cart whose banks
// stay inside its slice of the image.
type mmm01 struct {
	mbcBase

	mapped01 bool // false = menu ("unmapped") state

	ramEnabled bool

	romBankLow  byte // 5 bits
	romBankMid  byte // 2 bits
	romBankHigh byte // 2 bits
	ramBankLow  byte // 2 bits
	ramBankHigh byte // 2 bits

	mode             byte
	modeWriteDisable bool
	multiplex        bool

	// write-enable masks latched at map time; a set bit locks the
	// corresponding bank-register bit
	romBankMask byte // over romBankLow bits 1-4
	ramBankMask byte // over ramBankLow bits 0-1
}

func newMMM01(rom []byte) (*mmm01, error) {
	b, err := newBase(rom)
	if err != nil {
		return nil, err
	}
	return &mmm01{mbcBase: b}, nil
}

const (
	menuBank0 = 0x1FE
	menuBank1 = 0x1FF
)

func (c *mmm01) mapTo(m *mem.Mapper) error {
	c.mapped = m
	c.mapROMWindows()
	return nil
}

func (c *mmm01) unmap() {
	if c.mapped == nil {
		return
	}
	c.flushRAM()
	c.mapped.RemoveMapping(0x0000, 0x3FFF)
	c.mapped.RemoveMapping(0x4000, 0x7FFF)
	c.removeRAMWindow()
	c.mapped = nil
}

// effectiveMid returns where the middle ROM bank bits come from: the ROM
// register normally, the RAM-bank-low register when multiplexed.
func (c *mmm01) effectiveMid() byte {
	if c.multiplex {
		return c.ramBankLow
	}
	return c.romBankMid
}

func (c *mmm01) effectiveRAMLow() byte {
	if c.multiplex {
		return c.romBankMid
	}
	return c.ramBankLow
}

// switchableROMBank composes the 9-bit bank for 0x4000-0x7FFF. When the
// unmasked low bits select zero, the low bit is forced to 1 so "rom 1" never
// aliases the base bank.
func (c *mmm01) switchableROMBank() int {
	low := c.romBankLow
	if low&^c.romBankMask&0x1F == 0 {
		low = low&c.romBankMask | 0x01
	}
	return int(c.romBankHigh)<<7 | int(c.effectiveMid())<<5 | int(low)
}

// baseROMBank composes the bank for 0x0000-0x3FFF from the high bits, the
// middle bits and the masked low bank bits. The mode bit does not change this
// window; it only affects RAM banking.
func (c *mmm01) baseROMBank() int {
	return int(c.romBankHigh)<<7 | int(c.effectiveMid())<<5 | int(c.romBankLow&c.romBankMask)
}

func (c *mmm01) currentRAMBank() int {
	low := c.effectiveRAMLow()
	if c.mode == 0 {
		// mode 0 pins the low bits at their latched value, like MBC1
		low &= c.ramBankMask
	}
	return int(c.ramBankHigh)<<2 | int(low)
}

func (c *mmm01) mapROMWindows() {
	if !c.mapped01 {
		c.mapped.SetMapping(mem.Mapping{Start: 0x0000, End: 0x3FFF, ReadBytes: c.romWindow(menuBank0), WriteFn: c.handleWrite})
		c.mapped.SetMapping(mem.Mapping{Start: 0x4000, End: 0x7FFF, ReadBytes: c.romWindow(menuBank1), WriteFn: c.handleWrite})
		return
	}
	c.mapped.SetMapping(mem.Mapping{Start: 0x0000, End: 0x3FFF, ReadBytes: c.romWindow(c.baseROMBank()), WriteFn: c.handleWrite})
	c.mapped.SetMapping(mem.Mapping{Start: 0x4000, End: 0x7FFF, ReadBytes: c.romWindow(c.switchableROMBank()), WriteFn: c.handleWrite})
}

func (c *mmm01) remapRAM() {
	if c.ramEnabled {
		c.mapRAMBank(c.currentRAMBank())
	}
}

func (c *mmm01) handleWrite(addr uint16, v byte) {
	switch {
	case addr <= 0x1FFF:
		wasEnabled := c.ramEnabled
		c.ramEnabled = v&0x0F == 0x0A
		if !c.mapped01 {
			c.ramBankMask = v >> 4 & 0x03
			if v&0x40 != 0 {
				// map enable: latch the configuration, leave the menu
				c.mapped01 = true
				c.mapROMWindows()
			}
		}
		if c.ramEnabled && !wasEnabled {
			c.mapRAMBank(c.currentRAMBank())
		} else if !c.ramEnabled && wasEnabled {
			c.darkenRAM()
		}

	case addr <= 0x3FFF:
		if !c.mapped01 {
			c.romBankLow = v & 0x1F
			c.romBankMid = v >> 5 & 0x03
		} else {
			writable := ^c.romBankMask & 0x1F
			c.romBankLow = c.romBankLow&c.romBankMask | v&writable
		}
		c.mapROMWindows()

	case addr <= 0x5FFF:
		if !c.mapped01 {
			c.ramBankLow = v & 0x03
			c.ramBankHigh = v >> 2 & 0x03
			c.romBankHigh = v >> 4 & 0x03
			c.modeWriteDisable = v&0x40 != 0
		} else {
			writable := ^c.ramBankMask & 0x03
			c.ramBankLow = c.ramBankLow&c.ramBankMask | v&writable
		}
		c.mapROMWindows()
		c.remapRAM()

	default: // 0x6000-0x7FFF
		if !c.mapped01 {
			c.mode = v & 0x01
			c.romBankMask = v >> 1 & 0x1E
			c.multiplex = v&0x40 != 0
		} else if !c.modeWriteDisable {
			c.mode = v & 0x01
		}
		c.mapROMWindows()
		c.remapRAM()
	}
}
