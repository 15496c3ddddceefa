package cart

import (
	"errors"
	"fmt"

	"github.com/TheThief/CoroGB/internal/mem"
)

// Configuration errors surfaced to the host at construction time.
var (
	ErrROMSize         = errors.New("bad rom size")
	ErrRAMFile         = errors.New("ram file too small")
	ErrUnsupportedCart = errors.New("unsupported cartridge type")
)

// controller is the capability set every bank controller implements. A
// controller intercepts writes into 0x0000-0x7FFF through mapper write
// callbacks and reconfigures which ROM/RAM banks appear in the address space.
type controller interface {
	mapTo(m *mem.Mapper) error
	unmap()
	loadRAM(data []byte) error
	dumpRAM() []byte
	setSaveSink(fn func([]byte))
}

// Cartridge owns a ROM image and the bank controller the header selects.
// Lifecycle: created once, mapped and unmapped repeatedly; unmapping flushes
// battery RAM to the save sink.
type Cartridge struct {
	header *Header
	ctrl   controller
}

// New validates the image and picks a controller from the header. MMM01 menu
// carts are recognized by their trailing header before the type code is
// consulted.
func New(rom []byte) (*Cartridge, error) {
	if len(rom) < 0x4000 || len(rom) > 8*1024*1024 || len(rom)%0x4000 != 0 {
		return nil, ErrROMSize
	}
	h, err := ParseHeader(rom, 0)
	if err != nil {
		return nil, err
	}

	var ctrl controller
	switch {
	case isMMM01(rom, h):
		ctrl, err = newMMM01(rom)
	default:
		switch h.CartType {
		case 0x00, 0x08, 0x09:
			ctrl, err = newROMOnly(rom)
		case 0x01, 0x02, 0x03:
			ctrl, err = newMBC1(rom)
		case 0x05, 0x06:
			ctrl, err = newMBC2(rom)
		case 0x0B, 0x0C, 0x0D:
			ctrl, err = newMMM01(rom)
		case 0x0F, 0x10, 0x11, 0x12, 0x13:
			ctrl, err = newMBC3(rom)
		case 0x19, 0x1A, 0x1B, 0x1C, 0x1D, 0x1E:
			ctrl, err = newMBC5(rom)
		default:
			return nil, fmt.Errorf("%w: %02X", ErrUnsupportedCart, h.CartType)
		}
	}
	if err != nil {
		return nil, err
	}
	return &Cartridge{header: h, ctrl: ctrl}, nil
}

// isMMM01 implements the menu-cart heuristic: a valid header at the start of
// the last 32 KiB whose size code agrees with the actual image, while the
// primary header's size code does not.
func isMMM01(rom []byte, primary *Header) bool {
	if len(rom) < 256*1024 {
		return false
	}
	base := len(rom) - 0x8000
	if !logoAt(rom, base+0x0104) {
		return false
	}
	trailing, err := ParseHeader(rom, base)
	if err != nil || trailing.ROMSizeBytes != len(rom) {
		return false
	}
	return primary.ROMSizeBytes != len(rom)
}

// Header returns the parsed primary header.
func (c *Cartridge) Header() *Header { return c.header }

// MapTo installs the cartridge's ROM and RAM windows.
func (c *Cartridge) MapTo(m *mem.Mapper) error { return c.ctrl.mapTo(m) }

// Unmap removes the cartridge's windows and flushes battery RAM to the save
// sink, if one is set.
func (c *Cartridge) Unmap() { c.ctrl.unmap() }

// LoadBatteryRAM seeds external RAM from a save image. The image must cover
// the cart's full RAM size; a nil slice is a fresh cart.
func (c *Cartridge) LoadBatteryRAM(data []byte) error { return c.ctrl.loadRAM(data) }

// DumpBatteryRAM returns a copy of external RAM sized to the cart's RAM.
func (c *Cartridge) DumpBatteryRAM() []byte { return c.ctrl.dumpRAM() }

// SetSaveSink registers the destination battery RAM is flushed to on unmap.
func (c *Cartridge) SetSaveSink(fn func([]byte)) { c.ctrl.setSaveSink(fn) }

// mbcBase carries what every controller shares: the ROM and RAM images, the
// mapper currently mapped to, and the save sink.
type mbcBase struct {
	rom    []byte
	ram    []byte
	mapped *mem.Mapper
	sink   func([]byte)

	ramWindowUp bool
}

func newBase(rom []byte) (mbcBase, error) {
	ramSize, err := decodeRAMSize(rom[0x0149])
	if err != nil {
		return mbcBase{}, err
	}
	b := mbcBase{rom: rom}
	if ramSize > 0 {
		b.ram = make([]byte, ramSize)
	}
	return b, nil
}

func (b *mbcBase) setSaveSink(fn func([]byte)) { b.sink = fn }

func (b *mbcBase) loadRAM(data []byte) error {
	if data == nil {
		return nil
	}
	if len(data) < len(b.ram) {
		return ErrRAMFile
	}
	copy(b.ram, data)
	return nil
}

func (b *mbcBase) dumpRAM() []byte {
	return append([]byte(nil), b.ram...)
}

func (b *mbcBase) flushRAM() {
	if b.sink != nil && len(b.ram) > 0 {
		b.sink(b.dumpRAM())
	}
}

// romWindow returns the 16 KiB slice for a bank, wrapping at the image size.
func (b *mbcBase) romWindow(bank int) []byte {
	off := (bank * 0x4000) % len(b.rom)
	return b.rom[off : off+0x4000]
}

// ramWindow returns the 8 KiB (or smaller) slice for a RAM bank.
func (b *mbcBase) ramWindow(bank int) []byte {
	if len(b.ram) > 0x2000 {
		off := (bank * 0x2000) % len(b.ram)
		return b.ram[off : off+0x2000]
	}
	return b.ram
}

// ramWindowEnd is the inclusive end address of the external RAM window;
// sub-8 KiB RAM maps a shorter window.
func (b *mbcBase) ramWindowEnd() uint16 {
	if len(b.ram) >= 0x2000 {
		return 0xBFFF
	}
	return uint16(0xA000 + len(b.ram) - 1)
}

// mapRAMBank installs the external RAM window for a bank.
func (b *mbcBase) mapRAMBank(bank int) {
	if len(b.ram) == 0 {
		return
	}
	data := b.ramWindow(bank)
	b.mapped.SetMapping(mem.Mapping{Start: 0xA000, End: b.ramWindowEnd(), ReadBytes: data, WriteBytes: data})
	b.ramWindowUp = true
}

// darkenRAM replaces the RAM window with a dark one: reads 0xFF, writes
// discarded. Disabled RAM clears the mapping rather than write-blocking it.
func (b *mbcBase) darkenRAM() {
	if len(b.ram) == 0 {
		return
	}
	b.mapped.SetMapping(mem.Mapping{Start: 0xA000, End: b.ramWindowEnd()})
	b.ramWindowUp = true
}

// removeRAMWindow drops the RAM window entirely (unmap path).
func (b *mbcBase) removeRAMWindow() {
	if b.ramWindowUp {
		b.mapped.RemoveMapping(0xA000, b.ramWindowEnd())
		b.ramWindowUp = false
	}
}
