package emu

// Config selects the core behaviors that are deliberately switchable.
type Config struct {
	// StrictAccessBlocking makes PPU mode 2 take OAM and mode 3 take
	// OAM+VRAM away from the CPU. Off by default: several games poke video
	// memory at times the datasheet says they must not, and run fine on
	// hardware variants that tolerate it.
	StrictAccessBlocking bool
}
