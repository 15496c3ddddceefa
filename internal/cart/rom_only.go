package cart

import "github.com/TheThief/CoroGB/internal/mem"

// romOnly is a plain cart: up to 32 KiB of ROM plus optional unbanked RAM,
// no banking registers at all.
type romOnly struct {
	mbcBase
}

func newROMOnly(rom []byte) (*romOnly, error) {
	b, err := newBase(rom)
	if err != nil {
		return nil, err
	}
	return &romOnly{mbcBase: b}, nil
}

func (c *romOnly) mapTo(m *mem.Mapper) error {
	c.mapped = m
	end := uint16(0x7FFF)
	if len(c.rom) < 0x8000 {
		end = uint16(len(c.rom) - 1)
	}
	m.SetMapping(mem.Mapping{Start: 0x0000, End: end, ReadBytes: c.rom})
	if len(c.ram) > 0 {
		c.mapRAMBank(0)
	}
	return nil
}

func (c *romOnly) unmap() {
	if c.mapped == nil {
		return
	}
	c.flushRAM()
	end := uint16(0x7FFF)
	if len(c.rom) < 0x8000 {
		end = uint16(len(c.rom) - 1)
	}
	c.mapped.RemoveMapping(0x0000, end)
	c.removeRAMWindow()
	c.mapped = nil
}
