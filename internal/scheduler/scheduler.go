// Package scheduler drives the simulation timeline.
//
// All task callbacks and Do calls are serialized, so code running inside them may
// mutate simulation state without further locking. Time is measured in seconds
// since the scheduler was created and only moves when Advance is called.
package scheduler

import (
	"context"
	"sync"
	"time"

	"codeberg.org/mutker/serverroom/internal/errors"
)

// Task is a periodic callback registered with Every
type Task struct {
	id       uint64
	interval float64
	next     float64
	fn       func()
	s        *Scheduler
	stopped  bool
}

// Scheduler is a cooperative virtual-time scheduler
type Scheduler struct {
	exec sync.Mutex // held while callbacks run

	mu     sync.Mutex // guards the fields below
	now    float64
	tasks  []*Task
	nextID uint64
}

func New() *Scheduler {
	return &Scheduler{}
}

// Now returns the current position of the timeline
func (s *Scheduler) Now() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Every registers fn to run each interval seconds, starting one interval from now
func (s *Scheduler) Every(interval float64, fn func()) (*Task, error) {
	if interval <= 0 {
		return nil, errors.New().WithData(errors.ErrInvalidInterval, interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	t := &Task{
		id:       s.nextID,
		interval: interval,
		next:     s.now + interval,
		fn:       fn,
		s:        s,
	}
	s.tasks = append(s.tasks, t)

	return t, nil
}

// Stop cancels the task. It is safe to call more than once and from inside fn.
func (t *Task) Stop() {
	if t == nil {
		return
	}

	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.stopped {
		return
	}
	t.stopped = true

	for i, other := range s.tasks {
		if other == t {
			s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
			break
		}
	}
}

// Advance moves the timeline forward by dt seconds, running every task that
// falls due on the way in due-time order.
func (s *Scheduler) Advance(dt float64) {
	s.exec.Lock()
	defer s.exec.Unlock()

	s.mu.Lock()
	target := s.now
	if dt > 0 {
		target += dt
	}
	s.mu.Unlock()

	for {
		t := s.popDue(target)
		if t == nil {
			return
		}
		t.fn()
	}
}

// popDue returns the earliest task due at or before target and reschedules it.
// When nothing is due the clock is moved to target.
func (s *Scheduler) popDue(target float64) *Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due *Task
	for _, t := range s.tasks {
		if t.next > target {
			continue
		}
		if due == nil || t.next < due.next || (t.next == due.next && t.id < due.id) {
			due = t
		}
	}

	if due == nil {
		s.now = target
		return nil
	}

	s.now = due.next
	due.next += due.interval

	return due
}

// Do runs fn serialized with task execution
func (s *Scheduler) Do(fn func()) {
	s.exec.Lock()
	defer s.exec.Unlock()
	fn()
}

// Run advances the timeline with the wall clock every resolution until ctx is done
func (s *Scheduler) Run(ctx context.Context, resolution time.Duration) error {
	if resolution <= 0 {
		return errors.New().WithData(errors.ErrInvalidInterval, resolution)
	}

	ticker := time.NewTicker(resolution)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			s.Advance(now.Sub(last).Seconds())
			last = now
		}
	}
}
