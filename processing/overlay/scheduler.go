package overlay

import "sync/atomic"

// Scheduler coalesces redraw requests: however many arrive before the
// scheduled callback runs, draw runs once.
type Scheduler struct {
	pending  atomic.Bool
	schedule func(func())
	draw     func()
}

// NewScheduler runs draw through schedule, e.g. fyne.Do.
func NewScheduler(schedule func(func()), draw func()) *Scheduler {
	return &Scheduler{schedule: schedule, draw: draw}
}

func (s *Scheduler) Request() {
	if !s.pending.CompareAndSwap(false, true) {
		return
	}
	s.schedule(func() {
		s.pending.Store(false)
		s.draw()
	})
}
