package sched

// The master clock runs at 4194304 Hz ("T-cycles"). The cycle counter is a
// wrapping uint32; every comparison of scheduling targets goes through signed
// differences against the current counter so that wrap-around is transparent
// for any difference below 2^31 cycles.

// Unit identifies an execution unit on the scheduler. The numeric order is
// the tie-break order at a shared cycle: lower runs first.
type Unit uint8

const (
	UnitDebug Unit = iota
	UnitDMA
	UnitCPU // the CPU clocks on the rising edge
	UnitPPU // the PPU clocks on the falling edge (inverted clock)
)

// Priority is the upper byte of a wait's ordering key. The CPU and PPU clock
// on opposite edges, so reads and writes share one level.
type Priority uint8

const (
	Read  Priority = 0
	Write Priority = Read
)

type cycleWait struct {
	target   uint32
	priority uint16
	id       uint64
	fn       func()
}

// Scheduler owns the cycle counter and a queue of suspended waits ordered by
// wrap-aware (target, priority16). Tick pops due waits and resumes them.
type Scheduler struct {
	counter      uint32
	currentUnit  Unit
	next         uint32
	nextPriority uint16
	end          uint32
	nextID       uint64

	// sorted with the soonest wait at the back, so popping is cheap
	queued []cycleWait
}

func New() *Scheduler {
	return &Scheduler{}
}

// CycleCounter returns the current cycle counter.
func (s *Scheduler) CycleCounter() uint32 {
	return s.counter
}

func priority16(unit Unit, priority Priority) uint16 {
	return uint16(priority)<<8 | uint16(unit)
}

// waitLess orders two keys by wrap-aware distance from the current counter,
// then by priority16.
func (s *Scheduler) waitLess(aTarget uint32, aPriority uint16, bTarget uint32, bPriority uint16) bool {
	da, db := int32(aTarget-s.counter), int32(bTarget-s.counter)
	if da != db {
		return da < db
	}
	return aPriority < bPriority
}

// Queue records a wait resuming fn at the given cycle. If the new wait is
// sooner than the tracked "next", the next pointer is updated so that running
// tasks stop short-circuiting past it.
func (s *Scheduler) Queue(at uint32, unit Unit, priority Priority, fn func()) {
	s.queue(at, priority16(unit, priority), fn)
}

func (s *Scheduler) queue(at uint32, priority uint16, fn func()) uint64 {
	if int32(at-s.counter) > 1<<30 {
		panic("sched: wait target past the wrap guard")
	}

	if s.waitLess(at, priority, s.next, s.nextPriority) {
		s.next = at
		s.nextPriority = priority
	}

	s.nextID++
	w := cycleWait{target: at, priority: priority, id: s.nextID, fn: fn}

	// back = soonest; walk forward until w sorts after the neighbour
	i := len(s.queued)
	for i > 0 && s.waitLess(s.queued[i-1].target, s.queued[i-1].priority, w.target, w.priority) {
		i--
	}
	s.queued = append(s.queued, cycleWait{})
	copy(s.queued[i+1:], s.queued[i:])
	s.queued[i] = w
	return w.id
}

// remove discards a queued wait by identity. Reports whether it was present.
func (s *Scheduler) remove(id uint64) bool {
	for i := len(s.queued) - 1; i >= 0; i-- {
		if s.queued[i].id == id {
			s.queued = append(s.queued[:i], s.queued[i+1:]...)
			return true
		}
	}
	return false
}

// Tick advances the clock by n cycles, resuming every due wait in
// (target, priority16) order. On return the counter has advanced by exactly n.
func (s *Scheduler) Tick(n uint32) {
	s.end = s.counter + n
	for len(s.queued) > 0 {
		top := s.queued[len(s.queued)-1]
		if int32(top.target-s.counter) > int32(s.end-s.counter) {
			break
		}
		s.queued = s.queued[:len(s.queued)-1]
		s.counter = top.target
		s.next = s.end
		s.nextPriority = 0
		if len(s.queued) > 0 {
			head := s.queued[len(s.queued)-1]
			if int32(head.target-s.counter) < int32(s.end-s.counter) {
				s.next = head.target
				s.nextPriority = head.priority
			}
		}
		top.fn()
	}
	s.counter = s.end
}

// Cycles suspends co for delay cycles on the given unit. If the target is
// already due, the unit is the one currently running, and nothing sooner is
// scheduled, the wait short-circuits: the clock advances to the target and the
// task continues without a round-trip through the queue.
func (s *Scheduler) Cycles(co *Coro, unit Unit, priority Priority, delay uint32) {
	target := s.counter + delay
	p := priority16(unit, priority)

	if s.currentUnit == unit && s.waitLess(target, p, s.next, s.nextPriority) {
		s.counter = target
		return
	}

	s.queue(target, p, co.resume)
	co.park()
	s.currentUnit = unit
}

// InterruptibleCycles suspends co on both a cycle target and a signal and
// resumes when either fires. Reports true if the signal fired first, in which
// case the queued cycle wait has been discarded; otherwise the signal waiter
// has been cleared and the clock stands at the cycle target.
func (s *Scheduler) InterruptibleCycles(signal *Signal, co *Coro, unit Unit, priority Priority, delay uint32) bool {
	target := s.counter + delay
	p := priority16(unit, priority)

	if s.currentUnit == unit && s.waitLess(target, p, s.next, s.nextPriority) {
		s.counter = target
		return false
	}
	if signal.Triggered() {
		return true
	}

	id := s.queue(target, p, co.resume)
	signal.SetCallback(co.resume)
	co.park()
	signal.ClearCallback()

	if s.remove(id) {
		// still in the cycle queue, so the signal must have fired
		return true
	}
	s.currentUnit = unit
	return false
}
