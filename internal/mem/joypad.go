package mem

// Button is one of the eight joypad inputs.
type Button uint8

const (
	ButtonRight Button = iota
	ButtonLeft
	ButtonUp
	ButtonDown
	ButtonA
	ButtonB
	ButtonSelect
	ButtonStart
)

// ButtonState is active-low like the hardware lines: a pressed button pulls
// its line to 0.
type ButtonState byte

const (
	Pressed  ButtonState = 0
	Released ButtonState = 1
)

// Input latches a button's state. The CPU-wake on press lives in the emu
// facade, which calls this first.
func (m *Mapper) Input(b Button, state ButtonState) {
	m.buttons[b] = state
}

// readJoypad assembles FF00 from the select bits last written and the current
// button lines. With both groups deselected the low nibble floats high.
func (m *Mapper) readJoypad() byte {
	lines := byte(0x0F)
	if m.joypadSelect&0x10 == 0 { // direction keys
		lines &= byte(m.buttons[ButtonRight]) |
			byte(m.buttons[ButtonLeft])<<1 |
			byte(m.buttons[ButtonUp])<<2 |
			byte(m.buttons[ButtonDown])<<3
	}
	if m.joypadSelect&0x20 == 0 { // button keys
		lines &= byte(m.buttons[ButtonA]) |
			byte(m.buttons[ButtonB])<<1 |
			byte(m.buttons[ButtonSelect])<<2 |
			byte(m.buttons[ButtonStart])<<3
	}
	return 0xC0 | m.joypadSelect | lines
}
