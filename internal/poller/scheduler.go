package poller

import (
	"context"
	"sync"
	"time"

	"github.com/juju/clock"

	"github.com/Aman-CERP/searchsync/internal/errors"
)

// Task is a unit of recurring work.
type Task func(ctx context.Context)

// Handle controls a scheduled task.
type Handle interface {
	// Cancel stops scheduling. A run in progress is not interrupted.
	Cancel()
	// Done is closed once no run is in progress and none will start.
	Done() <-chan struct{}
}

// Scheduler runs tasks with a fixed delay between the end of one run and the
// start of the next.
type Scheduler interface {
	ScheduleWithFixedDelay(ctx context.Context, task Task, initial, delay time.Duration) (Handle, error)
}

// ClockScheduler runs each task on its own goroutine driven by a clock
// timer. Runs of one task never overlap.
type ClockScheduler struct {
	clock clock.Clock
}

var _ Scheduler = (*ClockScheduler)(nil)

// NewClockScheduler returns a scheduler on c, or the wall clock if c is nil.
func NewClockScheduler(c clock.Clock) *ClockScheduler {
	if c == nil {
		c = clock.WallClock
	}
	return &ClockScheduler{clock: c}
}

type handle struct {
	once sync.Once
	stop chan struct{}
	done chan struct{}
}

func (h *handle) Cancel() {
	h.once.Do(func() { close(h.stop) })
}

func (h *handle) Done() <-chan struct{} {
	return h.done
}

// ScheduleWithFixedDelay runs task after initial, then delay after each run
// returns. ctx is passed to every run; cancelling it also stops scheduling.
func (s *ClockScheduler) ScheduleWithFixedDelay(ctx context.Context, task Task, initial, delay time.Duration) (Handle, error) {
	if task == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "task is nil", nil)
	}
	if delay <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidInput, "delay must be positive, got %s", delay)
	}
	if initial < 0 {
		initial = 0
	}

	h := &handle{stop: make(chan struct{}), done: make(chan struct{})}
	go func() {
		defer close(h.done)
		timer := s.clock.NewTimer(initial)
		defer timer.Stop()
		for {
			select {
			case <-h.stop:
				return
			case <-ctx.Done():
				return
			case <-timer.Chan():
			}
			// Cancel may race with the timer; it wins.
			select {
			case <-h.stop:
				return
			default:
			}
			task(ctx)
			timer.Reset(delay)
		}
	}()
	return h, nil
}
