package worker

import (
	"sync"
	"sync/atomic"
)

// StopSignal is a write-once broadcast flag shared by every worker of a
// session. Once set it is never cleared; a new session needs a new signal.
type StopSignal struct {
	flag atomic.Bool
	done chan struct{}
	once sync.Once
}

// NewStopSignal creates an unset signal.
func NewStopSignal() *StopSignal {
	return &StopSignal{done: make(chan struct{})}
}

// Stop sets the signal. It reports whether this call was the one that set it.
func (s *StopSignal) Stop() bool {
	set := false
	s.once.Do(func() {
		s.flag.Store(true)
		close(s.done)
		set = true
	})
	return set
}

// Stopped is the hot-path check polled between batches.
func (s *StopSignal) Stopped() bool {
	return s.flag.Load()
}

// Done returns a channel that is closed once the signal is set.
func (s *StopSignal) Done() <-chan struct{} {
	return s.done
}
