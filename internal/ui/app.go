package ui

import (
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"github.com/TheThief/CoroGB/internal/emu"
)

// cyclesPerFrame is one full LCD frame at 59.73 Hz.
const cyclesPerFrame = 70224

type Config struct {
	Title string
	Scale int
}

// App is the windowed host: it feeds the keyboard into the core, ticks one
// frame's worth of cycles per ebiten update (five while Tab is held; while
// paused, one per N press), and presents the screen buffer.
type App struct {
	cfg Config
	m   *emu.Emu

	tex    *ebiten.Image
	pixels [160 * 144 * 4]byte

	paused bool
	fast   bool

	err error
}

var keymap = [...]struct {
	key ebiten.Key
	btn emu.Button
}{
	{ebiten.KeyRight, emu.ButtonRight},
	{ebiten.KeyLeft, emu.ButtonLeft},
	{ebiten.KeyUp, emu.ButtonUp},
	{ebiten.KeyDown, emu.ButtonDown},
	{ebiten.KeyZ, emu.ButtonA},
	{ebiten.KeyX, emu.ButtonB},
	{ebiten.KeyShiftRight, emu.ButtonSelect},
	{ebiten.KeyEnter, emu.ButtonStart},
}

func NewApp(cfg Config, m *emu.Emu) *App {
	if cfg.Scale <= 0 {
		cfg.Scale = 3
	}
	ebiten.SetWindowTitle(cfg.Title)
	ebiten.SetWindowSize(160*cfg.Scale, 144*cfg.Scale)
	return &App{cfg: cfg, m: m}
}

func (a *App) Run() error {
	if err := ebiten.RunGame(a); err != nil {
		return err
	}
	return a.err
}

func (a *App) Update() error {
	for _, km := range keymap {
		if inpututil.IsKeyJustPressed(km.key) {
			a.m.Input(km.btn, emu.Pressed)
		}
		if inpututil.IsKeyJustReleased(km.key) {
			a.m.Input(km.btn, emu.Released)
		}
	}

	if inpututil.IsKeyJustPressed(ebiten.KeyP) {
		a.paused = !a.paused
	}
	a.fast = ebiten.IsKeyPressed(ebiten.KeyTab)

	if a.paused {
		if inpututil.IsKeyJustPressed(ebiten.KeyN) {
			if err := a.m.Tick(cyclesPerFrame); err != nil {
				a.err = err
				return ebiten.Termination
			}
		}
		return nil
	}

	frames := 1
	if a.fast {
		frames = 5
	}
	for i := 0; i < frames; i++ {
		if err := a.m.Tick(cyclesPerFrame); err != nil {
			a.err = err
			return ebiten.Termination
		}
	}
	return nil
}

func (a *App) Draw(screen *ebiten.Image) {
	if a.tex == nil {
		a.tex = ebiten.NewImage(160, 144)
	}
	ExpandFrame(a.m, a.pixels[:])
	a.tex.WritePixels(a.pixels[:])
	screen.DrawImage(a.tex, nil)
}

func (a *App) Layout(outW, outH int) (int, int) { return 160, 144 }

// ExpandFrame turns the core's palette-encoded screen buffer into RGBA using
// the host palette. With the LCD off the frame is the palette's lightest
// shade.
func ExpandFrame(m *emu.Emu, out []byte) {
	pal := m.Palette()
	buf := m.ScreenBuffer()
	enabled := m.IsScreenEnabled()
	for i, px := range buf {
		argb := pal[0][0]
		if enabled {
			argb = pal[px>>2&3][px&3]
		}
		// ARGB -> RGBA bytes
		out[i*4+0] = byte(argb >> 16)
		out[i*4+1] = byte(argb >> 8)
		out[i*4+2] = byte(argb)
		out[i*4+3] = byte(argb >> 24)
	}
}
