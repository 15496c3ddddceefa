package mem

import "github.com/TheThief/CoroGB/internal/sched"

// TIMA is not stepped cycle-by-cycle; like DIV it is derived from the cycle
// counter on read, and the overflow is a queued event that raises IF.timer,
// reloads from TMA and re-arms. Reconfiguring the timer materializes the
// derived value first, then invalidates any in-flight overflow event via the
// generation counter.
type timerState struct {
	counter   byte   // TIMA as of baseCycle
	modulo    byte   // TMA
	control   byte   // TAC, stored 0xF8|bits
	baseCycle uint32 // cycle at which counter was sampled
	gen       uint64 // bumped on every reconfigure; stale events no-op
}

// tacPeriods maps TAC bits 0-1 to T-cycles per TIMA increment:
// 4096 Hz, 262144 Hz, 65536 Hz, 16384 Hz.
var tacPeriods = [4]uint32{1024, 16, 64, 256}

func (m *Mapper) timerEnabled() bool {
	return m.timer.control&0x04 != 0
}

func (m *Mapper) timerPeriod() uint32 {
	return tacPeriods[m.timer.control&0x03]
}

// timerCounter derives the current TIMA value.
func (m *Mapper) timerCounter() byte {
	if !m.timerEnabled() {
		return m.timer.counter
	}
	elapsed := (m.sch.CycleCounter() - m.timer.baseCycle) / m.timerPeriod()
	return m.timer.counter + byte(elapsed)
}

// materializeTimer folds elapsed whole periods into the stored counter so a
// rate or value change measures from now.
func (m *Mapper) materializeTimer() {
	if !m.timerEnabled() {
		m.timer.baseCycle = m.sch.CycleCounter()
		return
	}
	period := m.timerPeriod()
	elapsed := (m.sch.CycleCounter() - m.timer.baseCycle) / period
	m.timer.counter += byte(elapsed)
	m.timer.baseCycle += elapsed * period
}

func (m *Mapper) writeTIMA(v byte) {
	m.materializeTimer()
	m.timer.counter = v
	m.timer.baseCycle = m.sch.CycleCounter()
	m.armTimerOverflow()
}

func (m *Mapper) writeTAC(v byte) {
	m.materializeTimer()
	m.timer.control = 0xF8 | v
	m.timer.baseCycle = m.sch.CycleCounter()
	m.armTimerOverflow()
}

// armTimerOverflow queues the next overflow event. Any prior event is
// invalidated by the generation bump rather than removed from the queue.
func (m *Mapper) armTimerOverflow() {
	m.timer.gen++
	if !m.timerEnabled() {
		return
	}
	period := m.timerPeriod()
	at := m.timer.baseCycle + (0x100-uint32(m.timer.counter))*period
	gen := m.timer.gen
	m.sch.Queue(at, sched.UnitDebug, sched.Write, func() {
		if gen != m.timer.gen {
			return
		}
		m.timer.counter = m.timer.modulo
		m.timer.baseCycle = at
		m.RaiseInterrupt(IntTimer)
		m.armTimerOverflow()
	})
}
