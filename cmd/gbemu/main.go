package main

import (
	"flag"
	"fmt"
	"hash/crc32"
	"image"
	"image/png"
	"log"
	"os"
	"strings"
	"time"

	"github.com/TheThief/CoroGB/internal/cart"
	"github.com/TheThief/CoroGB/internal/emu"
	"github.com/TheThief/CoroGB/internal/ui"
)

const cyclesPerFrame = 70224

type cliFlags struct {
	ROMPath string
	BootROM string
	Scale   int
	Title   string
	SaveRAM bool
	Strict  bool
	Palette string

	// headless
	Headless bool
	Frames   int
	PNGOut   string
	Expect   string // expected framebuffer CRC32 hex
}

func parseFlags() cliFlags {
	var f cliFlags
	flag.StringVar(&f.ROMPath, "rom", "", "path to ROM (.gb)")
	flag.StringVar(&f.BootROM, "bootrom", "", "optional DMG boot ROM")
	flag.IntVar(&f.Scale, "scale", 3, "window scale")
	flag.StringVar(&f.Title, "title", "corogb", "window title")
	flag.BoolVar(&f.SaveRAM, "save", true, "persist battery RAM to ROM.sav on exit and load on start")
	flag.BoolVar(&f.Strict, "strict-vram", false, "block CPU access to OAM/VRAM during PPU modes 2/3")
	flag.StringVar(&f.Palette, "palette", "green", "palette preset: grey, green, blue, red, gbr")

	flag.BoolVar(&f.Headless, "headless", false, "run without a window")
	flag.IntVar(&f.Frames, "frames", 300, "frames to run in headless mode")
	flag.StringVar(&f.PNGOut, "outpng", "", "write last framebuffer to PNG at path")
	flag.StringVar(&f.Expect, "expect", "", "assert framebuffer CRC32 (hex)")
	flag.Parse()
	return f
}

func palettePreset(name string) emu.PalettePreset {
	switch strings.ToLower(name) {
	case "grey", "gray":
		return emu.PaletteGrey
	case "blue":
		return emu.PaletteBlue
	case "red":
		return emu.PaletteRed
	case "gbr":
		return emu.PaletteGBR
	default:
		return emu.PaletteGreen
	}
}

func runHeadless(m *emu.Emu, frames int, pngPath, expectCRC string) error {
	if frames <= 0 {
		frames = 1
	}

	start := time.Now()
	for i := 0; i < frames; i++ {
		if err := m.Tick(cyclesPerFrame); err != nil {
			return err
		}
	}
	dur := time.Since(start)

	var fb [160 * 144 * 4]byte
	ui.ExpandFrame(m, fb[:])
	crc := crc32.ChecksumIEEE(fb[:])
	fps := float64(frames) / dur.Seconds()

	log.Printf("headless: frames=%d elapsed=%s fps=%.2f fb_crc32=%08x",
		frames, dur.Truncate(time.Millisecond), fps, crc)

	if pngPath != "" {
		if err := saveFramePNG(fb[:], pngPath); err != nil {
			return fmt.Errorf("write PNG: %w", err)
		}
		log.Printf("wrote %s", pngPath)
	}

	if expectCRC != "" {
		want := strings.TrimPrefix(strings.ToLower(expectCRC), "0x")
		got := fmt.Sprintf("%08x", crc)
		if got != want {
			return fmt.Errorf("checksum mismatch: got %s, want %s", got, want)
		}
	}
	return nil
}

func saveFramePNG(pix []byte, path string) error {
	img := &image.RGBA{
		Pix:    append([]byte(nil), pix...),
		Stride: 4 * 160,
		Rect:   image.Rect(0, 0, 160, 144),
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

func savPath(romPath string) string {
	return strings.TrimSuffix(romPath, ".gb") + ".sav"
}

func main() {
	f := parseFlags()
	if f.ROMPath == "" {
		log.Fatal("no ROM given (-rom)")
	}
	rom, err := os.ReadFile(f.ROMPath)
	if err != nil {
		log.Fatalf("read %s: %v", f.ROMPath, err)
	}

	c, err := cart.New(rom)
	if err != nil {
		log.Fatalf("load cart: %v", err)
	}
	h := c.Header()
	log.Printf("ROM: %q type=%s rom=%dB ram=%dB", h.Title, h.CartTypeStr, len(rom), h.RAMSizeBytes)

	m := emu.New(emu.Config{StrictAccessBlocking: f.Strict})
	m.SelectPalette(palettePreset(f.Palette))
	m.SetSerialOut(os.Stdout)

	if f.BootROM != "" {
		boot, err := os.ReadFile(f.BootROM)
		if err != nil {
			log.Fatalf("read %s: %v", f.BootROM, err)
		}
		if err := m.LoadBootROM(boot); err != nil {
			log.Fatalf("boot rom: %v", err)
		}
	}

	// battery RAM: load .sav if present, write it back when the cart unmaps
	if f.SaveRAM {
		path := savPath(f.ROMPath)
		if data, err := os.ReadFile(path); err == nil {
			if err := c.LoadBatteryRAM(data); err != nil {
				log.Fatalf("load %s: %v", path, err)
			}
			log.Printf("loaded save RAM: %s (%d bytes)", path, len(data))
		}
		c.SetSaveSink(func(data []byte) {
			if err := os.WriteFile(path, data, 0644); err != nil {
				log.Printf("write %s: %v", path, err)
			} else {
				log.Printf("wrote %s", path)
			}
		})
	}

	if err := m.LoadCart(c); err != nil {
		log.Fatalf("load cart: %v", err)
	}
	if f.BootROM == "" {
		m.SkipBootROM()
	}
	if err := m.Start(); err != nil {
		log.Fatal(err)
	}

	if f.Headless {
		err := runHeadless(m, f.Frames, f.PNGOut, f.Expect)
		m.UnloadCart()
		if err != nil {
			log.Fatal(err)
		}
		return
	}

	app := ui.NewApp(ui.Config{Title: f.Title, Scale: f.Scale}, m)
	runErr := app.Run()
	m.UnloadCart()
	if runErr != nil {
		log.Fatal(runErr)
	}
}
