package cart

import "github.com/TheThief/CoroGB/internal/mem"

// mbc2 has a 4-bit ROM bank and 512 half-bytes of internal RAM. ROM-area
// writes are decoded by address bit 8: clear means RAM enable, set means ROM
// bank select.
type mbc2 struct {
	mbcBase

	romBank    byte
	ramEnabled bool
}

func newMBC2(rom []byte) (*mbc2, error) {
	b, err := newBase(rom)
	if err != nil {
		return nil, err
	}
	// internal 512x4-bit RAM regardless of the header's RAM size code
	b.ram = make([]byte, 512)
	return &mbc2{mbcBase: b, romBank: 1}, nil
}

func (c *mbc2) mapTo(m *mem.Mapper) error {
	c.mapped = m
	m.SetMapping(mem.Mapping{Start: 0x0000, End: 0x3FFF, ReadBytes: c.rom[:0x4000], WriteFn: c.handleWrite})
	m.SetMapping(mem.Mapping{Start: 0x4000, End: 0x7FFF, ReadBytes: c.romWindow(int(c.romBank))})
	return nil
}

func (c *mbc2) unmap() {
	if c.mapped == nil {
		return
	}
	c.flushRAM()
	c.mapped.RemoveMapping(0x0000, 0x3FFF)
	c.mapped.RemoveMapping(0x4000, 0x7FFF)
	if c.ramWindowUp {
		c.mapped.RemoveMapping(0xA000, 0xA1FF)
		c.ramWindowUp = false
	}
	c.mapped = nil
}

// readNibble exposes only the low nibble of each RAM cell; the upper bits
// float high.
func (c *mbc2) readNibble(addr uint16) byte {
	return 0xF0 | c.ram[(addr-0xA000)&0x1FF]&0x0F
}

func (c *mbc2) writeNibble(addr uint16, v byte) {
	c.ram[(addr-0xA000)&0x1FF] = v & 0x0F
}

func (c *mbc2) handleWrite(addr uint16, v byte) {
	if addr&0x0100 == 0 { // RAM enable
		wasEnabled := c.ramEnabled
		c.ramEnabled = v&0x0F == 0x0A
		if c.ramEnabled && !wasEnabled {
			c.mapped.SetMapping(mem.Mapping{Start: 0xA000, End: 0xA1FF, ReadFn: c.readNibble, WriteFn: c.writeNibble})
			c.ramWindowUp = true
		} else if !c.ramEnabled && wasEnabled {
			c.mapped.SetMapping(mem.Mapping{Start: 0xA000, End: 0xA1FF})
			c.ramWindowUp = true
		}
	} else { // ROM bank, low 4 bits, 0 coerced to 1
		v &= 0x0F
		if v == 0 {
			v = 1
		}
		c.romBank = v
		c.mapped.SetMapping(mem.Mapping{Start: 0x4000, End: 0x7FFF, ReadBytes: c.romWindow(int(c.romBank))})
	}
}
