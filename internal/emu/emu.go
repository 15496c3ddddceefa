package emu

import (
	"errors"
	"io"

	"github.com/TheThief/CoroGB/internal/cart"
	"github.com/TheThief/CoroGB/internal/cpu"
	"github.com/TheThief/CoroGB/internal/mem"
	"github.com/TheThief/CoroGB/internal/ppu"
	"github.com/TheThief/CoroGB/internal/sched"
)

// ErrNoCart is returned by Start when no cartridge has been loaded.
var ErrNoCart = errors.New("no cart loaded")

// Button re-exports the joypad types so hosts only import this package.
type Button = mem.Button

const (
	ButtonRight  = mem.ButtonRight
	ButtonLeft   = mem.ButtonLeft
	ButtonUp     = mem.ButtonUp
	ButtonDown   = mem.ButtonDown
	ButtonA      = mem.ButtonA
	ButtonB      = mem.ButtonB
	ButtonSelect = mem.ButtonSelect
	ButtonStart  = mem.ButtonStart
)

type ButtonState = mem.ButtonState

const (
	Pressed  = mem.Pressed
	Released = mem.Released
)

// Emu wires the scheduler, memory mapper, CPU and PPU/DMA into the machine
// the host drives. The host's only advance primitive is Tick; pacing is the
// host's problem.
type Emu struct {
	cfg Config

	sch *sched.Scheduler
	mm  *mem.Mapper
	cpu *cpu.CPU
	ppu *ppu.PPU

	palette [3][4]uint32

	loadedCart *cart.Cartridge

	cpuTask *sched.Coro
	ppuTask *sched.Coro
	dmaTask *sched.Coro
}

func New(cfg Config) *Emu {
	s := sched.New()
	m := mem.New(s)
	e := &Emu{
		cfg: cfg,
		sch: s,
		mm:  m,
		cpu: cpu.New(s, m),
		ppu: ppu.New(s, m, cfg.StrictAccessBlocking),
	}
	e.SelectPalette(PaletteGreen)
	return e
}

// LoadBootROM installs the 256-byte bootstrap.
func (e *Emu) LoadBootROM(data []byte) error {
	return e.mm.LoadBootROM(data)
}

// LoadCart maps a cartridge into the address space.
func (e *Emu) LoadCart(c *cart.Cartridge) error {
	if err := c.MapTo(e.mm); err != nil {
		return err
	}
	e.loadedCart = c
	return nil
}

// UnloadCart unmaps the cartridge, flushing battery RAM to its sink.
func (e *Emu) UnloadCart() {
	if e.loadedCart != nil {
		e.loadedCart.Unmap()
		e.loadedCart = nil
	}
}

// SkipBootROM seeds CPU registers and IO with the DMG post-boot state so a
// cart starts directly at 0x0100. Call instead of LoadBootROM.
func (e *Emu) SkipBootROM() {
	e.cpu.ResetNoBoot()
	e.mm.Write8(0xFF00, 0xCF) // JOYP
	e.mm.Write8(0xFF05, 0x00) // TIMA
	e.mm.Write8(0xFF06, 0x00) // TMA
	e.mm.Write8(0xFF07, 0x00) // TAC
	e.mm.Write8(0xFF40, 0x91) // LCDC: LCD+BG on
	e.mm.Write8(0xFF42, 0x00) // SCY
	e.mm.Write8(0xFF43, 0x00) // SCX
	e.mm.Write8(0xFF45, 0x00) // LYC
	e.mm.Write8(0xFF47, 0xFC) // BGP
	e.mm.Write8(0xFF48, 0xFF) // OBP0
	e.mm.Write8(0xFF49, 0xFF) // OBP1
	e.mm.Write8(0xFF4A, 0x00) // WY
	e.mm.Write8(0xFF4B, 0x00) // WX
	e.mm.Write8(0xFF0F, 0x01) // IF: vblank pending after boot
}

// Start spawns the CPU, PPU and DMA tasks.
func (e *Emu) Start() error {
	if e.loadedCart == nil {
		return ErrNoCart
	}
	e.cpuTask = e.cpu.Start()
	e.ppuTask, e.dmaTask = e.ppu.Start()
	return nil
}

// Tick advances the core by n T-cycles and surfaces any fatal task error.
func (e *Emu) Tick(n uint32) error {
	e.sch.Tick(n)
	for _, task := range []*sched.Coro{e.cpuTask, e.ppuTask, e.dmaTask} {
		if task == nil {
			continue
		}
		if err, done := task.Err(); done && err != nil {
			return err
		}
	}
	return nil
}

// CycleCounter returns the current scheduler cycle.
func (e *Emu) CycleCounter() uint32 {
	return e.sch.CycleCounter()
}

// Input latches a button state and wakes a halted CPU.
func (e *Emu) Input(b Button, state ButtonState) {
	e.mm.Input(b, state)
	e.mm.CPUWake.Trigger()
}

// IsScreenEnabled reports whether the LCD is on.
func (e *Emu) IsScreenEnabled() bool {
	return e.ppu.IsScreenEnabled()
}

// ScreenBuffer returns the 160x144 palette-encoded frame: bits 0-1 colour,
// bits 2-3 palette selector (0 = BG, 1/2 = OBP0/1).
func (e *Emu) ScreenBuffer() *[160 * 144]byte {
	return e.ppu.ScreenBuffer()
}

// SetDisplayCallback registers a per-frame callback fired at V-blank entry.
func (e *Emu) SetDisplayCallback(fn func()) {
	e.ppu.SetDisplayCallback(fn)
}

// Palette returns the host RGBA palette, one row of four colours per
// selector (BG, OBP0, OBP1).
func (e *Emu) Palette() *[3][4]uint32 {
	return &e.palette
}

// SetSerialOut directs serial-port bytes (SC bit 7 transfers) to w.
func (e *Emu) SetSerialOut(w io.Writer) {
	e.mm.SerialOut = w
}

// Read8 peeks the address space the way the CPU would. Debug/host use only.
func (e *Emu) Read8(addr uint16) byte {
	return e.mm.Read8(addr)
}

// Write8 pokes the address space the way the CPU would. Debug/host use only.
func (e *Emu) Write8(addr uint16, v byte) {
	e.mm.Write8(addr, v)
}
