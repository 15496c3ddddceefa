package cart

import "github.com/TheThief/CoroGB/internal/mem"

// mbc5 has a 9-bit ROM bank split over two registers and a 4-bit RAM bank.
// Unlike the other MBCs, writing 0 really selects bank 0.
type mbc5 struct {
	mbcBase

	romBank    uint16
	ramBank    byte
	ramEnabled bool
}

func newMBC5(rom []byte) (*mbc5, error) {
	b, err := newBase(rom)
	if err != nil {
		return nil, err
	}
	return &mbc5{mbcBase: b, romBank: 1}, nil
}

func (c *mbc5) mapTo(m *mem.Mapper) error {
	c.mapped = m
	m.SetMapping(mem.Mapping{Start: 0x0000, End: 0x3FFF, ReadBytes: c.rom[:0x4000], WriteFn: c.handleWrite})
	m.SetMapping(mem.Mapping{Start: 0x4000, End: 0x7FFF, ReadBytes: c.romWindow(int(c.romBank)), WriteFn: c.handleWrite})
	return nil
}

func (c *mbc5) unmap() {
	if c.mapped == nil {
		return
	}
	c.flushRAM()
	c.mapped.RemoveMapping(0x0000, 0x3FFF)
	c.mapped.RemoveMapping(0x4000, 0x7FFF)
	c.removeRAMWindow()
	c.mapped = nil
}

func (c *mbc5) mapSwitchableROM() {
	c.mapped.SetMapping(mem.Mapping{Start: 0x4000, End: 0x7FFF, ReadBytes: c.romWindow(int(c.romBank)), WriteFn: c.handleWrite})
}

func (c *mbc5) handleWrite(addr uint16, v byte) {
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

	case addr <= 0x2FFF: // ROM bank, low 8 bits
		c.romBank = c.romBank&0x100 | uint16(v)
		c.mapSwitchableROM()

	case addr <= 0x3FFF: // ROM bank, 9th bit
		c.romBank = uint16(v&0x01)<<8 | c.romBank&0xFF
		c.mapSwitchableROM()

	case addr <= 0x5FFF: // RAM bank
		c.ramBank = v & 0x0F
		if c.ramEnabled && len(c.ram) > 0x2000 {
			c.mapRAMBank(int(c.ramBank))
		}
	}
}
