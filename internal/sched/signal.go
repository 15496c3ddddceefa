package sched

// Signal is a one-shot edge signal with at most one waiter. Triggering with a
// waiter present resumes it; triggering with no waiter latches until Reset.
// The two states are mutually exclusive: triggered and waiter are never both
// set.
type Signal struct {
	triggered bool
	waiter    func()
}

// Triggered reports whether the signal has latched a trigger.
func (s *Signal) Triggered() bool {
	return s.triggered
}

// Await returns immediately if the signal is already triggered (without
// consuming it); otherwise it parks co until the next Trigger.
func (s *Signal) Await(co *Coro) {
	if s.triggered {
		return
	}
	s.waiter = co.resume
	co.park()
}

// Trigger resumes the waiter if one is parked, else latches. The waiter is
// detached before it runs so the resumed code may immediately re-await this
// same signal.
func (s *Signal) Trigger() {
	if s.waiter != nil {
		w := s.waiter
		s.waiter = nil
		w()
	} else {
		s.triggered = true
	}
}

// Reset clears a latched trigger.
func (s *Signal) Reset() {
	s.triggered = false
}

// SetCallback binds a raw continuation in place of a parked waiter. Used by
// the scheduler to combine a timed wait with a signal wait.
func (s *Signal) SetCallback(fn func()) {
	s.waiter = fn
}

// ClearCallback removes the bound continuation, if any.
func (s *Signal) ClearCallback() {
	s.waiter = nil
}
