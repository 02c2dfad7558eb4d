package ipc

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Priority orders jobs within one loop pass.
type Priority int

const (
	PriorityHigh Priority = iota
	PriorityMed
	PriorityLow
	numPriorities
)

// idleJobWait bounds how long the loop sleeps while jobs are still
// scheduled but no new work was posted.
const idleJobWait = time.Millisecond

// Job is a cooperative unit of work. Its function runs once per loop pass
// for as long as it returns true.
type Job struct {
	fn        func() bool
	cancelled bool
	done      bool
}

// Cancel stops the job before its next run. Must be called on the loop.
func (j *Job) Cancel() {
	if j != nil {
		j.cancelled = true
	}
}

// Active reports whether the job will run again.
func (j *Job) Active() bool {
	return j != nil && !j.cancelled && !j.done
}

// Timer is a one-shot loop timer.
type Timer struct {
	stop    func() bool
	stopped bool
	fired   bool
}

// Stop cancels the timer. It reports whether the timer was still pending.
// Must be called on the loop.
func (t *Timer) Stop() bool {
	if t == nil || t.stopped || t.fired {
		return false
	}
	t.stopped = true
	t.stop()
	return true
}

// Pending reports whether the timer has neither fired nor been stopped.
func (t *Timer) Pending() bool {
	return t != nil && !t.stopped && !t.fired
}

// Loop is the single cooperative event loop that owns all connection
// state. Post is safe from any goroutine; every other method must be
// called from a function running on the loop.
type Loop struct {
	mu     sync.Mutex
	posted []func()
	wake   chan struct{}

	jobs [numPriorities][]*Job

	afterFunc func(d time.Duration, f func()) (stop func() bool)
	logger    *slog.Logger
}

// NewLoop creates an idle loop.
func NewLoop(logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		wake:   make(chan struct{}, 1),
		logger: logger,
		afterFunc: func(d time.Duration, f func()) func() bool {
			return time.AfterFunc(d, f).Stop
		},
	}
}

// Post queues fn to run on the loop.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.posted = append(l.posted, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Call runs fn on the loop and waits for it to return. It must not be
// called from the loop itself.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AddJob schedules fn at prio. Jobs added during a pass first run on the
// next pass.
func (l *Loop) AddJob(prio Priority, fn func() bool) *Job {
	j := &Job{fn: fn}
	l.jobs[prio] = append(l.jobs[prio], j)
	return j
}

// AfterFunc runs fn on the loop once d has elapsed.
func (l *Loop) AfterFunc(d time.Duration, fn func()) *Timer {
	t := &Timer{}
	t.stop = l.afterFunc(d, func() {
		l.Post(func() {
			if t.stopped || t.fired {
				return
			}
			t.fired = true
			fn()
		})
	})
	return t
}

// Run executes loop passes until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Debug("event loop started")
	defer l.logger.Debug("event loop stopped")

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		l.RunPending()

		if l.hasJobs() {
			t := time.NewTimer(idleJobWait)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-l.wake:
			case <-t.C:
			}
			t.Stop()
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// RunPending executes one pass: everything posted so far, then every
// scheduled job in priority order. It returns the number of functions run.
func (l *Loop) RunPending() int {
	n := l.runPosted()

	for p := range l.jobs {
		batch := l.jobs[p]
		l.jobs[p] = nil
		for _, j := range batch {
			if j.cancelled {
				continue
			}
			n++
			if j.fn() && !j.cancelled {
				l.jobs[p] = append(l.jobs[p], j)
			} else {
				j.done = true
			}
		}
	}
	return n
}

func (l *Loop) runPosted() int {
	l.mu.Lock()
	posted := l.posted
	l.posted = nil
	l.mu.Unlock()

	for _, fn := range posted {
		fn()
	}
	return len(posted)
}

func (l *Loop) hasJobs() bool {
	for _, q := range l.jobs {
		for _, j := range q {
			if !j.cancelled {
				return true
			}
		}
	}
	return false
}
