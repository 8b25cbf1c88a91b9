// Package poller drains capture tables on a fixed delay and dispatches each
// batch to the index updater.
//
// Offsets move only after a batch is dispatched, so a failed tick delivers
// the same rows again on the next one. Consumers must be idempotent.
package poller

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/juju/clock"

	"github.com/Aman-CERP/searchsync/internal/capture"
	"github.com/Aman-CERP/searchsync/internal/errors"
	"github.com/Aman-CERP/searchsync/internal/eventmodel"
	"github.com/Aman-CERP/searchsync/internal/logging"
	"github.com/Aman-CERP/searchsync/internal/metrics"
	"github.com/Aman-CERP/searchsync/internal/notify"
	"github.com/Aman-CERP/searchsync/internal/updater"
)

// Dispatcher applies one ordered batch.
type Dispatcher interface {
	Apply(ctx context.Context, events []capture.CaptureEvent) (updater.ApplyStats, error)
}

// OffsetStore persists per-table consumption cursors.
type OffsetStore interface {
	Load(ctx context.Context) (map[string]int64, error)
	Commit(ctx context.Context, lastKeys map[string]int64) error
}

// Config wires a Poller. Streams, Offsets and Dispatcher are required.
type Config struct {
	Streams    []capture.Stream
	Offsets    OffsetStore
	Dispatcher Dispatcher

	// Scheduler defaults to a ClockScheduler on Clock.
	Scheduler Scheduler
	// Notifier is told about every committed batch. Defaults to notify.Noop.
	Notifier notify.Notifier
	Metrics  *metrics.Collector
	// Breaker, if set, skips scheduled ticks while open.
	Breaker *errors.CircuitBreaker
	Clock   clock.Clock
	Logger  *slog.Logger

	// BatchSize caps the rows taken per tick. 0 means no cap.
	BatchSize    int
	PageSize     int
	InitialDelay time.Duration
	Delay        time.Duration
	// Instance identifies this process in notifications.
	Instance string
}

// TickResult describes one tick.
type TickResult struct {
	// Taken counts capture rows consumed, skipped ones included.
	Taken   int                `json:"taken"`
	Events  int                `json:"events"`
	Stats   updater.ApplyStats `json:"stats"`
	Offsets map[string]int64   `json:"offsets,omitempty"`
}

// Poller is the capture poller. Ticks never run concurrently.
type Poller struct {
	cfg    Config
	logger *slog.Logger

	tickMu sync.Mutex

	mu         sync.Mutex
	handle     Handle
	cancelRuns context.CancelFunc
	stopped    bool
	failures   int
}

// New validates cfg and returns a Poller.
func New(cfg Config) (*Poller, error) {
	if cfg.Offsets == nil || cfg.Dispatcher == nil {
		return nil, errors.InternalError("poller needs an offset store and a dispatcher", nil)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = NewClockScheduler(cfg.Clock)
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Noop{}
	}
	if cfg.Delay <= 0 {
		cfg.Delay = 500 * time.Millisecond
	}
	return &Poller{cfg: cfg, logger: logging.OrDefault(cfg.Logger)}, nil
}

// Tick runs one drain, dispatch and commit cycle. It is what the scheduled
// task runs, and may also be called directly; calls are serialized.
func (p *Poller) Tick(ctx context.Context) (TickResult, error) {
	p.tickMu.Lock()
	defer p.tickMu.Unlock()

	start := p.cfg.Clock.Now()
	res, err := p.tick(ctx)
	elapsed := p.cfg.Clock.Now().Sub(start)

	switch {
	case err != nil:
		p.cfg.Metrics.Tick(metrics.ResultFailed, elapsed)
	case res.Taken == 0:
		p.cfg.Metrics.Tick(metrics.ResultEmpty, elapsed)
	default:
		p.cfg.Metrics.Tick(metrics.ResultOK, elapsed)
		p.logger.Debug("tick finished",
			slog.Int("taken", res.Taken),
			slog.Int("events", res.Events),
			slog.Duration("duration", elapsed))
	}
	return res, err
}

func (p *Poller) tick(ctx context.Context) (TickResult, error) {
	p.logger.Debug("tick started")

	offsets, err := p.cfg.Offsets.Load(ctx)
	if err != nil {
		return TickResult{}, errors.New(errors.ErrCodeCaptureRead, "failed to load offsets", err)
	}

	streams := make([]capture.Stream, len(p.cfg.Streams))
	for i, s := range p.cfg.Streams {
		s.After = offsets[s.Source.Name()]
		streams[i] = s
	}
	cursor := capture.NewMultiCursor(streams, capture.CursorOptions{
		PageSize: p.cfg.PageSize,
		Limit:    p.cfg.BatchSize,
		Logger:   p.logger,
	})
	defer func() { _ = cursor.Close() }()

	events, err := capture.Drain(ctx, cursor)
	if err != nil {
		return TickResult{}, err
	}
	res := TickResult{Taken: cursor.Taken(), Events: len(events), Offsets: cursor.LastKeys()}
	if res.Taken == 0 {
		return res, nil
	}

	if len(events) > 0 {
		stats, err := p.cfg.Dispatcher.Apply(ctx, events)
		if err != nil {
			return TickResult{}, errors.New(errors.ErrCodeDispatchFailed, "dispatch failed", err).
				WithDetail("events", strconv.Itoa(len(events)))
		}
		res.Stats = stats
	}

	if err := p.cfg.Offsets.Commit(ctx, res.Offsets); err != nil {
		return TickResult{}, err
	}

	p.record(events, res)

	// The index already holds the batch; a lost notification is only logged.
	if err := p.cfg.Notifier.Notify(ctx, notify.BatchApplied{
		Instance:   p.cfg.Instance,
		Events:     res.Events,
		Indexed:    res.Stats.Indexed,
		Updated:    res.Stats.Updated,
		Deleted:    res.Stats.Deleted,
		Downgraded: res.Stats.Downgraded,
		Skipped:    res.Stats.Skipped,
		Offsets:    res.Offsets,
		AppliedAt:  p.cfg.Clock.Now().UTC(),
	}); err != nil {
		p.logger.Warn("batch notification failed", errors.LogAttrs(err)...)
	}
	return res, nil
}

func (p *Poller) record(events []capture.CaptureEvent, res TickResult) {
	m := p.cfg.Metrics
	if m == nil {
		return
	}
	counts := make(map[eventmodel.EventType]int, 3)
	for _, ev := range events {
		counts[ev.EventType]++
	}
	for e, n := range counts {
		m.Events(e.String(), n)
	}
	m.Skipped(metrics.ReasonUnknownEvent, res.Taken-res.Events)
	m.Skipped(metrics.ReasonUnmapped, res.Stats.Skipped)
	m.BatchSize(res.Taken)
}

// scheduledTick is the recurring task. Failures are logged; the next tick
// retries the same rows.
func (p *Poller) scheduledTick(ctx context.Context) {
	if b := p.cfg.Breaker; b != nil && !b.Allow() {
		p.logger.Debug("circuit open, skipping tick", slog.Int("failures", b.Failures()))
		p.cfg.Metrics.Tick(metrics.ResultSkipped, 0)
		return
	}

	_, err := p.Tick(ctx)

	p.mu.Lock()
	if err != nil {
		p.failures++
	} else {
		p.failures = 0
	}
	attempt := p.failures
	p.mu.Unlock()

	if err != nil {
		if b := p.cfg.Breaker; b != nil {
			b.RecordFailure()
		}
		attrs := append([]any{slog.Int("attempt", attempt)}, errors.LogAttrs(err)...)
		p.logger.Error("tick failed", attrs...)
		return
	}
	if b := p.cfg.Breaker; b != nil {
		b.RecordSuccess()
	}
}

// Start schedules the recurring tick. A stopped poller cannot be restarted.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return errors.StateError("poller is stopped")
	}
	if p.handle != nil {
		return errors.StateError("poller already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	h, err := p.cfg.Scheduler.ScheduleWithFixedDelay(runCtx, p.scheduledTick, p.cfg.InitialDelay, p.cfg.Delay)
	if err != nil {
		cancel()
		return err
	}
	p.handle = h
	p.cancelRuns = cancel
	p.logger.Info("poller started",
		slog.Int("streams", len(p.cfg.Streams)),
		slog.Duration("delay", p.cfg.Delay),
		slog.Int("batch_size", p.cfg.BatchSize))
	return nil
}

// Stop stops scheduling and waits up to timeout for a tick in progress.
// When the wait times out the tick's context is cancelled, Stop waits up to
// timeout once more for it to return, and an invalid-state error is
// returned either way. Idle then tells whether the tick has finished.
// Stop is idempotent and safe without Start.
func (p *Poller) Stop(timeout time.Duration) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	h, cancel := p.handle, p.cancelRuns
	p.mu.Unlock()

	if h == nil {
		return nil
	}
	h.Cancel()
	defer cancel()

	select {
	case <-h.Done():
		p.logger.Info("poller stopped")
		return nil
	case <-p.cfg.Clock.After(timeout):
	}

	cancel()
	drained := true
	select {
	case <-h.Done():
	case <-p.cfg.Clock.After(timeout):
		drained = false
	}
	p.logger.Warn("poller stop timed out, cancelled tick in progress",
		slog.Duration("timeout", timeout),
		slog.Bool("drained", drained))
	return errors.StateError("timed out waiting for tick in progress").
		WithDetail("timeout", timeout.String()).
		WithDetail("drained", strconv.FormatBool(drained))
}

// Idle reports whether no scheduled tick is running or can start. It is
// false while a started poller runs, and after a Stop whose cancelled tick
// has not returned yet.
func (p *Poller) Idle() bool {
	p.mu.Lock()
	h, stopped := p.handle, p.stopped
	p.mu.Unlock()
	if h == nil {
		return true
	}
	if !stopped {
		return false
	}
	select {
	case <-h.Done():
		return true
	default:
		return false
	}
}
