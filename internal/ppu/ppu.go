package ppu

import (
	"sort"

	"github.com/TheThief/CoroGB/internal/mem"
	"github.com/TheThief/CoroGB/internal/sched"
)

// LCDC bits.
const (
	lcdcBGEnable     = 1 << 0
	lcdcSpriteEnable = 1 << 1
	lcdcSpriteSize   = 1 << 2
	lcdcBGMap        = 1 << 3
	lcdcTileData     = 1 << 4
	lcdcWindowEnable = 1 << 5
	lcdcWindowMap    = 1 << 6
	lcdcLCDEnable    = 1 << 7
)

// Sprite attribute flag bits.
const (
	flagPalette  = 1 << 4
	flagFlipX    = 1 << 5
	flagFlipY    = 1 << 6
	flagBehindBG = 1 << 7
)

// LCD modes; the pseudo modes truncate to mode 0 in the low STAT bits.
const (
	modeHBlank      = 0x00
	modeVBlank      = 0x01
	modeOAMSearch   = 0x02
	modeTransfer    = 0x03
	modeInitPowerOn = 0x80
	modePowerOff    = 0xF0
)

const (
	bgFetchCycles      = 5
	spriteFetchCycles  = 6
	windowSwitchCycles = 6
)

type sprite struct {
	y, x  byte
	tile  byte
	flags byte
}

// PPU runs the scanline state machine as one cooperative task and OAM DMA as
// a second. It owns VRAM, OAM and the LCD register file, all exposed through
// mapper windows.
type PPU struct {
	sch *sched.Scheduler
	mm  *mem.Mapper

	vram [0x2000]byte
	oam  [0xA0]byte

	screen [160 * 144]byte

	displayCallback func()

	lcdEnable  sched.Signal
	dmaTrigger sched.Signal

	co    *sched.Coro
	dmaCo *sched.Coro

	// full (pseudo) mode; the STAT mode bits lag it by 4 cycles
	mode byte

	statLine   bool
	vblankLine bool

	// strictBlocking makes mode 2 take OAM and mode 3 take OAM+VRAM away
	// from the CPU; some games depend on the access windows being open
	strictBlocking bool
	dmaActive      bool

	// registers 0xFF40-0xFF4B
	lcdc     byte
	stat     byte // bit 7 always set, low 3 bits read-only
	scy, scx byte
	ly, lyc  byte
	dmaStart byte
	bgp      byte
	obp0     byte
	obp1     byte
	wy, wx   byte
}

func New(s *sched.Scheduler, m *mem.Mapper, strictBlocking bool) *PPU {
	p := &PPU{sch: s, mm: m, stat: 0x80, strictBlocking: strictBlocking}
	p.restoreVRAMAccess()
	p.restoreOAMAccess()
	m.SetMapping(mem.Mapping{Start: 0xFF40, End: 0xFF4B, ReadFn: p.readRegister, WriteFn: p.writeRegister})
	return p
}

// Start spawns the PPU and DMA tasks.
func (p *PPU) Start() (ppuTask, dmaTask *sched.Coro) {
	p.co = sched.Start(func(co *sched.Coro) error { p.co = co; return p.run() })
	p.dmaCo = sched.Start(func(co *sched.Coro) error { p.dmaCo = co; return p.runDMA() })
	return p.co, p.dmaCo
}

// SetDisplayCallback registers a function invoked at the end of each visible
// frame, before V-blank.
func (p *PPU) SetDisplayCallback(fn func()) {
	p.displayCallback = fn
}

// IsScreenEnabled reports LCDC bit 7.
func (p *PPU) IsScreenEnabled() bool {
	return p.lcdc&lcdcLCDEnable != 0
}

// ScreenBuffer exposes the 160x144 palette-encoded frame.
func (p *PPU) ScreenBuffer() *[160 * 144]byte {
	return &p.screen
}

func (p *PPU) restoreVRAMAccess() {
	p.mm.SetMapping(mem.Mapping{Start: 0x8000, End: 0x9FFF, ReadBytes: p.vram[:], WriteBytes: p.vram[:]})
}

func (p *PPU) restoreOAMAccess() {
	p.mm.SetMapping(mem.Mapping{Start: 0xFE00, End: 0xFE9F, ReadBytes: p.oam[:], WriteBytes: p.oam[:]})
}

func (p *PPU) blockVRAMAccess() {
	p.mm.SetMapping(mem.Mapping{Start: 0x8000, End: 0x9FFF})
}

func (p *PPU) blockOAMAccess() {
	p.mm.SetMapping(mem.Mapping{Start: 0xFE00, End: 0xFE9F})
}

func (p *PPU) readRegister(addr uint16) byte {
	switch addr {
	case 0xFF40:
		return p.lcdc
	case 0xFF41:
		return p.stat
	case 0xFF42:
		return p.scy
	case 0xFF43:
		return p.scx
	case 0xFF44:
		return p.ly
	case 0xFF45:
		return p.lyc
	case 0xFF46:
		return p.dmaStart
	case 0xFF47:
		return p.bgp
	case 0xFF48:
		return p.obp0
	case 0xFF49:
		return p.obp1
	case 0xFF4A:
		return p.wy
	default: // 0xFF4B
		return p.wx
	}
}

func (p *PPU) writeRegister(addr uint16, v byte) {
	switch addr {
	case 0xFF40:
		wasEnabled := p.lcdc&lcdcLCDEnable != 0
		p.lcdc = v
		if p.IsScreenEnabled() != wasEnabled {
			p.lcdEnable.Trigger()
		}
	case 0xFF41:
		// STAT write bug: every enable bit is briefly set before the written
		// value latches, and both states pass the rising-edge check
		p.stat = 0x80 | p.stat&0x07 | 0x78
		p.updateInterruptLine(p.mode)
		p.stat = 0x80 | p.stat&0x07 | v&0x78
		p.updateInterruptLine(p.mode)
	case 0xFF42:
		p.scy = v
	case 0xFF43:
		p.scx = v
	case 0xFF44:
		// LY is read-only
	case 0xFF45:
		p.lyc = v
	case 0xFF46:
		p.dmaStart = v
		p.dmaTrigger.Trigger()
	case 0xFF47:
		p.bgp = v
	case 0xFF48:
		p.obp0 = v
	case 0xFF49:
		p.obp1 = v
	case 0xFF4A:
		p.wy = v
	case 0xFF4B:
		p.wx = v
	}
}

// updateInterruptLine recomputes the level-sensitive STAT line (OR of the
// four enabled sources) and the V-blank line; only rising edges reach IF.
func (p *PPU) updateInterruptLine(mode byte) {
	wasStat := p.statLine
	line := false
	switch {
	case mode == modeHBlank && p.stat&0x08 != 0:
		line = true
	case mode == modeVBlank && p.stat&0x30 != 0:
		// the OAM enable also fires at V-blank entry; the OR is inclusive
		line = true
	case mode == modeOAMSearch && p.stat&0x20 != 0:
		line = true
	case p.stat&0x04 != 0 && p.stat&0x40 != 0:
		line = true
	}
	p.statLine = line

	wasVBlank := p.vblankLine
	p.vblankLine = mode == modeVBlank

	triggerStat := !wasStat && p.statLine
	triggerVBlank := !p.mm.VBlankRequested() && !wasVBlank && p.vblankLine
	if triggerStat {
		p.mm.RaiseInterrupt(mem.IntSTAT)
	}
	if triggerVBlank {
		p.mm.RaiseInterrupt(mem.IntVBlank)
	}
}

// updateStat moves the state machine to a new mode and line. The STAT mode
// bits and the coincidence bit latch 4 cycles later; the access arbitration
// switches immediately.
func (p *PPU) updateStat(mode, y byte) {
	if p.ly != y {
		p.ly = y
		p.stat &^= 0x04
	}
	p.mode = mode

	switch mode {
	case modePowerOff, modeInitPowerOn, modeHBlank:
		if !p.dmaActive {
			p.restoreOAMAccess()
		}
		p.restoreVRAMAccess()
	case modeVBlank:
	case modeOAMSearch:
		if p.strictBlocking && !p.dmaActive {
			p.blockOAMAccess()
		}
	case modeTransfer:
		if p.strictBlocking {
			if !p.dmaActive {
				p.blockOAMAccess()
			}
			p.blockVRAMAccess()
		}
	}
	p.updateInterruptLine(mode)

	p.sch.Queue(p.sch.CycleCounter()+4, sched.UnitPPU, sched.Write, func() {
		p.stat = p.stat&^0x03 | mode&0x03
		if mode == modeHBlank || mode == modeVBlank || mode == modeOAMSearch || mode == modeInitPowerOn {
			if p.lyc == p.ly {
				p.stat |= 0x04
			} else {
				p.stat &^= 0x04
			}
			p.updateInterruptLine(mode)
		}
	})
}

// wait suspends the PPU task; reports true if the LCD-enable signal fired
// before the cycles elapsed, which restarts the frame loop.
func (p *PPU) wait(priority sched.Priority, cycles uint32) bool {
	return p.sch.InterruptibleCycles(&p.lcdEnable, p.co, sched.UnitPPU, priority, cycles)
}

func (p *PPU) run() error {
	for {
		// any latched enable-toggle is stale here: LCDC is about to be
		// re-evaluated either way
		p.lcdEnable.Reset()

		lcdOnBug := false
		if !p.IsScreenEnabled() {
			p.statLine = false
			p.vblankLine = false
			p.ly = 0
			p.mode = modePowerOff
			p.stat &^= 0x07 // mode 0, no coincidence
			if !p.dmaActive {
				p.restoreOAMAccess()
			}
			p.restoreVRAMAccess()
			p.lcdEnable.Await(p.co)
			lcdOnBug = true
		}

		windowLine := byte(0)
		windowTriggered := false
		interrupted := false

		for y := byte(0); y < 144; y++ {
			if p.renderLine(y, lcdOnBug && y == 0, &windowLine, &windowTriggered) {
				interrupted = true
				break
			}
		}
		if interrupted {
			continue
		}

		if p.displayCallback != nil {
			p.displayCallback()
		}

		for y := byte(144); y < 153; y++ {
			p.updateStat(modeVBlank, y)
			if p.wait(sched.Write, 456) {
				interrupted = true
				break
			}
		}
		if interrupted {
			continue
		}

		// line 153 is weird: LY reads 153 for 4 cycles, then 0 for the rest
		p.updateStat(modeVBlank, 153)
		if p.wait(sched.Write, 4) {
			continue
		}
		p.ly = 0
		if p.wait(sched.Write, 4) {
			continue
		}
		p.stat &^= 0x04
		p.updateStat(modeVBlank, 0)
		if p.wait(sched.Write, 456-8) {
			continue
		}
	}
}

// lineRender is the per-line pixel-transfer state: the FIFO, the fetcher
// cursors, the sprite list and the window bookkeeping.
type lineRender struct {
	p *PPU
	y byte

	sprites    []sprite
	spriteSize byte
	cur        int
	spriteX    byte

	fifo fifo

	tiledataLow uint16
	bgMapBase   uint16
	winMapBase  uint16

	bgEnable     bool
	windowEnable bool
	inWindow     bool
	windowX      byte
	windowLine   *byte

	tileX, tileY byte
	subTileY     uint16

	fetchStart uint32
}

func (p *PPU) renderLine(y byte, lcdOnBug bool, windowLine *byte, windowTriggered *bool) bool {
	lineStart := p.sch.CycleCounter()

	var sprites []sprite
	if lcdOnBug {
		// the first line after power-on starts its pixel transfer early and
		// skips the OAM search
		lineStart -= 8
		p.updateStat(modeInitPowerOn, y)
		if p.wait(sched.Write, 74) {
			return true
		}
	} else {
		p.updateStat(modeOAMSearch, y)
		if p.lcdc&lcdcSpriteEnable != 0 {
			size := 8
			if p.lcdc&lcdcSpriteSize != 0 {
				size = 16
			}
			for i := 0; i < 40; i++ {
				sy := int(p.oam[i*4]) - 16
				if sy <= int(y) && int(y) < sy+size {
					tile := p.oam[i*4+2]
					if size == 16 {
						tile &= 0xFE
					}
					sprites = append(sprites, sprite{y: p.oam[i*4], x: p.oam[i*4+1], tile: tile, flags: p.oam[i*4+3]})
				}
			}
			if len(sprites) > 10 {
				sprites = sprites[:10]
			}
			sort.SliceStable(sprites, func(i, j int) bool { return sprites[i].x < sprites[j].x })
		}
		if p.wait(sched.Write, 80) {
			return true
		}
	}

	p.updateStat(modeTransfer, y)

	spriteSize := byte(8)
	if p.lcdc&lcdcSpriteSize != 0 {
		spriteSize = 16
	}

	*windowTriggered = *windowTriggered || y == p.wy

	ls := &lineRender{
		p:          p,
		y:          y,
		sprites:    sprites,
		spriteSize: spriteSize,
		bgEnable:   p.lcdc&lcdcBGEnable != 0,
		windowLine: windowLine,
		windowX:    0xFF, // x=0 is processed before the window can open
	}
	if p.lcdc&lcdcTileData == 0 {
		ls.tiledataLow = 0x1000
	}
	ls.bgMapBase = 0x1800
	if p.lcdc&lcdcBGMap != 0 {
		ls.bgMapBase = 0x1C00
	}
	ls.winMapBase = 0x1800
	if p.lcdc&lcdcWindowMap != 0 {
		ls.winMapBase = 0x1C00
	}
	ls.windowEnable = p.lcdc&lcdcWindowEnable != 0 && *windowTriggered && p.wx < 167

	ls.tileX = p.scx / 8
	ls.tileY = byte((uint16(y) + uint16(p.scy)) / 8 % 32)
	ls.subTileY = (uint16(y) + uint16(p.scy)) % 8

	// first background fetch
	ls.fetchStart = p.sch.CycleCounter()
	if p.wait(sched.Read, bgFetchCycles) {
		return true
	}
	if ls.bgEnable {
		low, high := ls.fetchTileData(ls.bgMapBase)
		ls.fifo.applyBG(low, high)
		ls.fetchStart = p.sch.CycleCounter()
	} else {
		ls.fifo.applyBG(0, 0)
	}

	// x = 0 is processed before the fine scroll
	if ls.advance(1, false) {
		return true
	}

	fineScroll := p.scx % 8
	if p.wait(sched.Read, uint32(fineScroll)) {
		return true
	}
	ls.fifo.discard(fineScroll)

	// the rest of the first 8 pixels never reach the frame buffer, letting
	// sprites scroll on from the left and the window sit at WX 0-6
	if ls.advance(7, false) {
		return true
	}

	if ls.advance(160, true) {
		return true
	}

	p.updateStat(modeHBlank, y)
	if p.wait(sched.Write, lineStart+456-p.sch.CycleCounter()) {
		return true
	}
	return false
}

func (ls *lineRender) fetchTileData(mapBase uint16) (low, high byte) {
	tileIndex := ls.p.vram[mapBase+uint16(ls.tileY)*32+uint16(ls.tileX)]
	base := uint16(0)
	if tileIndex < 0x80 {
		base = ls.tiledataLow
	}
	idx := base + (uint16(tileIndex)*8+ls.subTileY)*2
	return ls.p.vram[idx], ls.p.vram[idx+1]
}

// waitOutFetch pads to the end of the 5-cycle fetch window before a new
// fetch may begin.
func (ls *lineRender) waitOutFetch() bool {
	now := ls.p.sch.CycleCounter()
	if ls.fetchStart != now && int32(ls.fetchStart+bgFetchCycles-now) > 0 {
		return ls.p.wait(sched.Read, ls.fetchStart+bgFetchCycles-now)
	}
	return false
}

// refill loads the next 8 background or window pixels.
func (ls *lineRender) refill() bool {
	if ls.inWindow || ls.bgEnable {
		if ls.waitOutFetch() {
			return true
		}
		mapBase := ls.bgMapBase
		if ls.inWindow {
			mapBase = ls.winMapBase
		}
		low, high := ls.fetchTileData(mapBase)
		ls.fifo.applyBG(low, high)
		ls.tileX = (ls.tileX + 1) % 32
		ls.fetchStart = ls.p.sch.CycleCounter()
		return false
	}
	ls.fifo.applyBG(0, 0)
	return false
}

// switchToWindow resets the fetcher onto the window tilemap; the switch
// itself costs 6 cycles.
func (ls *lineRender) switchToWindow() bool {
	ls.inWindow = true
	ls.tileY = *ls.windowLine / 8 % 32
	ls.subTileY = uint16(*ls.windowLine % 8)
	*ls.windowLine++

	if ls.p.wait(sched.Read, windowSwitchCycles) {
		return true
	}
	ls.tileX = 0
	low, high := ls.fetchTileData(ls.winMapBase)
	ls.fifo.applyBG(low, high)
	ls.tileX = 1
	ls.fetchStart = ls.p.sch.CycleCounter()
	return false
}

// fetchSpritesAt overlays every sprite whose X matches the current cursor.
// Each fetch interrupts the background fetcher for 6 cycles.
func (ls *lineRender) fetchSpritesAt(restartFetch bool) bool {
	for ls.cur < len(ls.sprites) && ls.sprites[ls.cur].x == ls.spriteX {
		if ls.waitOutFetch() {
			return true
		}
		if ls.p.wait(sched.Read, spriteFetchCycles) {
			return true
		}
		sp := ls.sprites[ls.cur]
		subY := uint16(int(ls.y) - (int(sp.y) - 16))
		if sp.flags&flagFlipY != 0 {
			subY = uint16(ls.spriteSize) - 1 - subY
		}
		idx := (uint16(sp.tile)*8 + subY) * 2
		ls.fifo.applySprite(ls.p.vram[idx], ls.p.vram[idx+1], sp.flags)
		ls.cur++
		if restartFetch {
			ls.fetchStart = ls.p.sch.CycleCounter()
		}
	}
	return false
}

// advance pushes `total` pixels through the FIFO, emitting them to the frame
// buffer or discarding them, stopping for sprite fetches and the window
// trigger along the way.
func (ls *lineRender) advance(total int, emit bool) bool {
	done := 0
	for done < total {
		if ls.fetchSpritesAt(emit) {
			return true
		}

		complete := int(ls.fifo.bgCount)
		if complete > total-done {
			complete = total - done
		}
		if ls.windowEnable && !ls.inWindow {
			if gap := int(ls.p.wx - ls.windowX); complete > gap {
				complete = gap
			}
		}
		if ls.cur < len(ls.sprites) {
			if gap := int(ls.sprites[ls.cur].x - ls.spriteX); complete > gap {
				complete = gap
			}
		}

		if ls.p.wait(sched.Read, uint32(complete)) {
			return true
		}
		if emit {
			base := int(ls.y)*160 + done
			for i := 0; i < complete; i++ {
				ls.p.screen[base+i] = ls.fifo.pop(ls.p.bgp, ls.p.obp0, ls.p.obp1)
			}
		} else {
			ls.fifo.discard(byte(complete))
		}
		done += complete
		ls.windowX += byte(complete)
		ls.spriteX += byte(complete)

		if ls.windowEnable && !ls.inWindow && ls.windowX == ls.p.wx {
			if ls.switchToWindow() {
				return true
			}
		} else if ls.fifo.bgCount == 0 {
			if ls.refill() {
				return true
			}
		}
	}
	return false
}
