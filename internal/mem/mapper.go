package mem

import (
	"errors"
	"fmt"
	"io"

	"github.com/TheThief/CoroGB/internal/sched"
)

// ReadFn serves a read inside a callback-backed window.
type ReadFn func(addr uint16) byte

// WriteFn serves a write inside a callback-backed window.
type WriteFn func(addr uint16, v byte)

// Mapping is one window of the 16-bit address space. A window is backed
// either by a byte slice or by callbacks, independently for reads and writes.
// A window with neither ReadFn nor ReadBytes reads as 0xFF; one with neither
// WriteFn nor WriteBytes silently discards writes. That is how locked
// resources (disabled cart RAM, OAM during DMA) are expressed: the window
// stays installed but goes dark.
type Mapping struct {
	Start uint16
	End   uint16 // inclusive

	ReadBytes []byte
	ReadFn    ReadFn

	WriteBytes []byte
	WriteFn    WriteFn
}

// ErrBootROMSize is returned when a boot ROM image is not exactly 256 bytes.
var ErrBootROMSize = errors.New("boot rom must be 256 bytes")

// Mapper serves 8-bit reads and writes on the 16-bit address space. Lookups
// resolve against the registered windows first (cart ROM/RAM, VRAM, OAM, boot
// ROM, PPU registers), then fall back to the fixed DMG layout: WRAM and its
// echo, HRAM, IF/IE and the IO registers. Anything else reads 0xFF.
type Mapper struct {
	sch *sched.Scheduler

	mappings []Mapping

	bootROM         []byte
	bootROMDisabled bool

	wram [0x2000]byte
	hram [127]byte

	joypadSelect byte // FF00 bits 4-5 as last written
	buttons      [8]ButtonState

	serialData    byte
	serialControl byte
	// SerialOut receives bytes written through SC bit 7; test ROMs report
	// results this way. Nil discards.
	SerialOut io.Writer

	divResetCycle uint32
	timer         timerState

	interruptFlag   byte // 0xE0 | five live bits
	interruptEnable byte

	audioRegisters [20]byte // FF10-FF23
	audioControl   [3]byte  // FF24-FF26
	audioWave      [16]byte // FF30-FF3F

	// CPUWake is the signal a halted CPU parks on. Raised interrupts and
	// button presses trigger it.
	CPUWake sched.Signal
}

func New(s *sched.Scheduler) *Mapper {
	m := &Mapper{
		sch:             s,
		bootROMDisabled: true,
		joypadSelect:    0x30,
		serialControl:   0x7E,
		interruptFlag:   0xE0,
		audioRegisters: [20]byte{
			0x80, 0x3F, 0x00, 0x00, 0xB8,
			0xFF, 0x3F, 0x00, 0x00, 0xB8,
			0x7F, 0xFF, 0x9F, 0x00, 0xB8,
			0xFF, 0xFF, 0x00, 0x00, 0xBF,
		},
		audioControl: [3]byte{0x00, 0x00, 0x70},
	}
	for i := range m.buttons {
		m.buttons[i] = Released
	}
	m.timer.control = 0xF8
	return m
}

// Read8 resolves addr to its byte, going through the innermost registered
// window or the default layout.
func (m *Mapper) Read8(addr uint16) byte {
	if mp := m.findMapping(addr); mp != nil {
		if mp.ReadFn != nil {
			return mp.ReadFn(addr)
		}
		if mp.ReadBytes != nil {
			return mp.ReadBytes[addr-mp.Start]
		}
		return 0xFF
	}
	if addr >= 0xC000 {
		switch {
		case addr <= 0xDFFF:
			return m.wram[addr-0xC000]
		case addr <= 0xFDFF:
			// echo of WRAM
			return m.wram[addr-0xE000]
		case addr < 0xFF00:
			// 0xFEA0-0xFEFF is unusable (OAM has its own window)
			return 0xFF
		case addr <= 0xFF7F:
			return m.readRegister(addr)
		case addr <= 0xFFFE:
			return m.hram[addr-0xFF80]
		default: // 0xFFFF
			return 0xE0 | m.interruptEnable
		}
	}
	return 0xFF
}

// Write8 stores v at addr. Windows with no write backing discard; register
// writes may have side effects (boot ROM removal, DIV reset, serial print).
func (m *Mapper) Write8(addr uint16, v byte) {
	if mp := m.findMapping(addr); mp != nil {
		if mp.WriteFn != nil {
			mp.WriteFn(addr, v)
		} else if mp.WriteBytes != nil {
			mp.WriteBytes[addr-mp.Start] = v
		}
		return
	}
	if addr >= 0xC000 {
		switch {
		case addr <= 0xDFFF:
			m.wram[addr-0xC000] = v
		case addr <= 0xFDFF:
			m.wram[addr-0xE000] = v
		case addr < 0xFF00:
			// unusable region, writes discarded
		case addr <= 0xFF7F:
			m.writeRegister(addr, v)
		case addr <= 0xFFFE:
			m.hram[addr-0xFF80] = v
		default: // 0xFFFF
			m.interruptEnable = v & 0x1F
			m.wakeIfPending()
		}
	}
}

// SetMapping installs a window. A window with the exact same (start, end) key
// is replaced in place; otherwise the new window is inserted in sorted order.
// Sorting by (start, end) puts a smaller window ahead of a larger one sharing
// its start, which is what makes the boot ROM shadow the cart's bank 0.
func (m *Mapper) SetMapping(nm Mapping) {
	i := m.lowerBound(nm.Start, nm.End)
	if i < len(m.mappings) && m.mappings[i].Start == nm.Start && m.mappings[i].End == nm.End {
		m.mappings[i] = nm
		return
	}
	m.mappings = append(m.mappings, Mapping{})
	copy(m.mappings[i+1:], m.mappings[i:])
	m.mappings[i] = nm
}

// RemoveMapping removes the window with the exact (start, end) key. Removing
// a window that was never installed is a bug in the caller.
func (m *Mapper) RemoveMapping(start, end uint16) {
	i := m.lowerBound(start, end)
	if i < len(m.mappings) && m.mappings[i].Start == start && m.mappings[i].End == end {
		m.mappings = append(m.mappings[:i], m.mappings[i+1:]...)
		return
	}
	panic(fmt.Sprintf("mem: no mapping %04X-%04X", start, end))
}

func (m *Mapper) lowerBound(start, end uint16) int {
	for i, mp := range m.mappings {
		if mp.Start > start || (mp.Start == start && mp.End >= end) {
			return i
		}
	}
	return len(m.mappings)
}

func (m *Mapper) findMapping(addr uint16) *Mapping {
	for i := range m.mappings {
		if addr >= m.mappings[i].Start && addr <= m.mappings[i].End {
			return &m.mappings[i]
		}
	}
	return nil
}

// LoadBootROM installs the 256-byte bootstrap over 0x0000-0x00FF. A write of
// 0x01 to register 0xFF50 removes it again, once.
func (m *Mapper) LoadBootROM(data []byte) error {
	if len(data) != 0x100 {
		return ErrBootROMSize
	}
	m.bootROM = make([]byte, 0x100)
	copy(m.bootROM, data)
	m.bootROMDisabled = false
	m.SetMapping(Mapping{Start: 0x0000, End: 0x00FF, ReadBytes: m.bootROM})
	return nil
}

// RaiseInterrupt sets bits in IF and wakes a halted CPU when the result has
// any enabled pending interrupt.
func (m *Mapper) RaiseInterrupt(mask byte) {
	m.interruptFlag |= mask & 0x1F
	m.wakeIfPending()
}

func (m *Mapper) wakeIfPending() {
	if m.interruptFlag&m.interruptEnable&0x1F != 0 {
		m.CPUWake.Trigger()
	}
}

// InterruptFlag returns the live IF bits (upper bits set).
func (m *Mapper) InterruptFlag() byte { return m.interruptFlag }

// InterruptEnable returns the live IE bits.
func (m *Mapper) InterruptEnable() byte { return m.interruptEnable }

// ClearInterrupt clears one IF bit; the CPU acknowledges a vector this way.
func (m *Mapper) ClearInterrupt(mask byte) {
	m.interruptFlag &^= mask & 0x1F
}

// VBlankRequested reports whether IF.vblank is already set; the PPU uses it
// to gate the rising edge.
func (m *Mapper) VBlankRequested() bool { return m.interruptFlag&IntVBlank != 0 }
