package mem

// Interrupt bits shared by IF (0xFF0F) and IE (0xFFFF).
const (
	IntVBlank byte = 1 << 0 // INT 40h
	IntSTAT   byte = 1 << 1 // INT 48h
	IntTimer  byte = 1 << 2 // INT 50h
	IntSerial byte = 1 << 3 // INT 58h
	IntJoypad byte = 1 << 4 // INT 60h
)

// Write-back masks force the unreadable bits of each audio register to 1 at
// store time, so reads come back with them set.
var audioRegisterMask = [20]byte{
	0x80, 0x3F, 0x00, 0x00, 0xB8,
	0xFF, 0x3F, 0x00, 0x00, 0xB8,
	0x7F, 0xFF, 0x9F, 0x00, 0xB8,
	0xFF, 0xFF, 0x00, 0x00, 0xBF,
}

var audioControlMask = [3]byte{0x00, 0x00, 0x70}

// readRegister serves 0xFF00-0xFF7F addresses not claimed by a window. The
// PPU registers (0xFF40-0xFF4B) are a callback window and never land here.
func (m *Mapper) readRegister(addr uint16) byte {
	switch {
	case addr == 0xFF00:
		return m.readJoypad()
	case addr == 0xFF01:
		return m.serialData
	case addr == 0xFF02:
		return m.serialControl
	case addr == 0xFF04:
		return byte((m.sch.CycleCounter() - m.divResetCycle) >> 8)
	case addr == 0xFF05:
		return m.timerCounter()
	case addr == 0xFF06:
		return m.timer.modulo
	case addr == 0xFF07:
		return m.timer.control
	case addr == 0xFF0F:
		return m.interruptFlag
	case addr >= 0xFF10 && addr <= 0xFF23:
		return m.audioRegisters[addr-0xFF10]
	case addr >= 0xFF24 && addr <= 0xFF26:
		return m.audioControl[addr-0xFF24]
	case addr >= 0xFF30 && addr <= 0xFF3F:
		return m.audioWave[addr-0xFF30]
	}
	// FF50 is write-only, everything else here is unmapped
	return 0xFF
}

func (m *Mapper) writeRegister(addr uint16, v byte) {
	switch {
	case addr == 0xFF00:
		m.joypadSelect = v & 0x30
	case addr == 0xFF01:
		m.serialData = v
	case addr == 0xFF02:
		m.serialControl = 0x7E | v
		if m.serialControl&0x80 != 0 {
			if m.SerialOut != nil {
				m.SerialOut.Write([]byte{m.serialData})
			}
			m.serialControl &^= 0x80
		}
	case addr == 0xFF04:
		// any write zeroes DIV
		m.divResetCycle = m.sch.CycleCounter()
	case addr == 0xFF05:
		m.writeTIMA(v)
	case addr == 0xFF06:
		m.timer.modulo = v
	case addr == 0xFF07:
		m.writeTAC(v)
	case addr == 0xFF0F:
		m.interruptFlag = 0xE0 | (v & 0x1F)
		m.wakeIfPending()
	case addr >= 0xFF10 && addr <= 0xFF23:
		m.audioRegisters[addr-0xFF10] = audioRegisterMask[addr-0xFF10] | v
	case addr >= 0xFF24 && addr <= 0xFF26:
		m.audioControl[addr-0xFF24] = audioControlMask[addr-0xFF24] | v
	case addr >= 0xFF30 && addr <= 0xFF3F:
		m.audioWave[addr-0xFF30] = v
	case addr == 0xFF50:
		if !m.bootROMDisabled && v&0x01 != 0 {
			m.bootROMDisabled = true
			m.RemoveMapping(0x0000, 0x00FF)
		}
	}
}
