package searchsync

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"

	"github.com/Aman-CERP/searchsync/internal/capture"
	"github.com/Aman-CERP/searchsync/internal/config"
	"github.com/Aman-CERP/searchsync/internal/database"
	"github.com/Aman-CERP/searchsync/internal/entity"
	"github.com/Aman-CERP/searchsync/internal/errors"
	"github.com/Aman-CERP/searchsync/internal/eventmodel"
	"github.com/Aman-CERP/searchsync/internal/lock"
	"github.com/Aman-CERP/searchsync/internal/logging"
	"github.com/Aman-CERP/searchsync/internal/metrics"
	"github.com/Aman-CERP/searchsync/internal/notify"
	"github.com/Aman-CERP/searchsync/internal/poller"
	"github.com/Aman-CERP/searchsync/internal/store"
	"github.com/Aman-CERP/searchsync/internal/triggers"
	"github.com/Aman-CERP/searchsync/internal/updater"
)

// Options configures New.
type Options struct {
	// Config is required and must have been loaded through the config
	// package so defaults are applied.
	Config *config.Config
	Logger *slog.Logger
	// Metrics, if set, records poller activity.
	Metrics *metrics.Collector
	// Clock drives scheduling. Defaults to the wall clock.
	Clock clock.Clock
	// Notifier replaces the notifier built from the config.
	Notifier notify.Notifier
	// Lock takes the index directory lock so no second poller can run on
	// the same index. In-memory indexes are never locked.
	Lock bool
}

// Sync is one searchsync instance.
type Sync struct {
	cfg      *config.Config
	logger   *slog.Logger
	instance string

	db       *sql.DB
	model    []eventmodel.EventModelInfo
	source   triggers.Source
	backend  store.IndexBackend
	offsets  *capture.Offsets
	updater  *updater.Updater
	poller   *poller.Poller
	notifier notify.Notifier
	lock     *lock.FileLock

	closeOnce sync.Once
	closeErr  error
}

// New builds every component from opts.Config: the event model, the
// database connection, capture tables and triggers, the index and the
// poller. Either everything is set up or nothing stays open.
func New(ctx context.Context, opts Options) (*Sync, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.ConfigError("no configuration given", nil)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := logging.OrDefault(opts.Logger)
	clk := opts.Clock
	if clk == nil {
		clk = clock.WallClock
	}

	s := &Sync{cfg: cfg, instance: uuid.NewString()}
	s.logger = logger.With(slog.String("instance", s.instance))

	model, err := cfg.BuildModel()
	if err != nil {
		return nil, err
	}
	s.model = model
	if s.source, err = triggers.SourceForDialect(cfg.Triggers.Dialect); err != nil {
		return nil, err
	}
	strategy, err := triggers.ParseStrategy(cfg.Triggers.Strategy)
	if err != nil {
		return nil, err
	}
	consume, err := capture.ParseConsumeMode(cfg.Poller.Consume)
	if err != nil {
		return nil, err
	}
	mapping, err := updater.NewMapping(model)
	if err != nil {
		return nil, err
	}

	ok := false
	defer func() {
		if !ok {
			_ = s.closeAll()
		}
	}()

	if opts.Lock && cfg.Index.Path != "" {
		if s.lock, err = lock.Acquire(cfg.Index.Path); err != nil {
			return nil, err
		}
	}

	retry := errors.DefaultRetryConfig()
	retry.MaxRetries = cfg.Database.ConnectRetries
	retry.Clock = clk
	s.db, err = database.Open(ctx, database.Options{
		Driver: cfg.Database.Driver,
		DSN:    cfg.Database.DSN,
		Retry:  retry,
		Logger: s.logger,
	})
	if err != nil {
		return nil, err
	}

	quote := s.source.QuoteToken()
	s.offsets = capture.NewOffsets(s.db, cfg.Triggers.Dialect, quote, consume, model)

	installer := triggers.NewInstaller(s.source, s.db, s.logger, triggers.WithOffsetResetter(s.offsets))
	report, err := installer.Install(ctx, model, strategy)
	if err != nil {
		return nil, err
	}
	if report.Failed > 0 {
		s.logger.Warn("some trigger statements failed",
			slog.Int("executed", report.Executed),
			slog.Int("failed", report.Failed),
			slog.String("strategy", string(strategy)))
	}

	if err := s.offsets.Init(ctx); err != nil {
		return nil, err
	}

	if s.backend, err = store.NewIndexBackend(cfg.Index.Backend, cfg.Index.Path, s.logger); err != nil {
		return nil, err
	}

	s.updater, err = updater.New(updater.Config{
		Provider: entity.NewSQLProvider(s.db, model, quote, cfg.Database.StatementCache),
		Backend:  s.backend,
		Mapping:  mapping,
		Logger:   s.logger,
	})
	if err != nil {
		return nil, err
	}

	switch {
	case opts.Notifier != nil:
		s.notifier = opts.Notifier
	case cfg.Notify.NATSURL != "":
		if s.notifier, err = notify.NewNATSPublisher(notify.NATSOptions{
			URL:     cfg.Notify.NATSURL,
			Subject: cfg.Notify.Subject,
			Logger:  s.logger,
		}); err != nil {
			return nil, err
		}
	default:
		s.notifier = notify.Noop{}
	}

	streams := make([]capture.Stream, len(model))
	for i, info := range model {
		streams[i] = capture.Stream{EntityType: info.EntityType, Source: capture.NewTableSource(s.db, info, quote)}
	}
	s.poller, err = poller.New(poller.Config{
		Streams:    streams,
		Offsets:    s.offsets,
		Dispatcher: s.updater,
		Scheduler:  poller.NewClockScheduler(clk),
		Notifier:   s.notifier,
		Metrics:    opts.Metrics,
		Breaker: errors.NewCircuitBreaker("dispatch",
			errors.WithMaxFailures(cfg.Poller.BreakerFailures),
			errors.WithResetTimeout(cfg.Poller.BreakerReset),
			errors.WithClock(clk)),
		Clock:        clk,
		Logger:       s.logger,
		BatchSize:    cfg.Poller.BatchSize,
		PageSize:     cfg.Poller.PageSize,
		InitialDelay: cfg.Poller.InitialDelay,
		Delay:        cfg.Poller.Delay,
		Instance:     s.instance,
	})
	if err != nil {
		return nil, err
	}

	ok = true
	s.logger.Info("searchsync ready",
		slog.Int("entities", len(model)),
		slog.String("backend", cfg.Index.Backend),
		slog.String("dialect", cfg.Triggers.Dialect))
	return s, nil
}

// Instance returns the id of this instance, as carried in notifications.
func (s *Sync) Instance() string {
	return s.instance
}

// Model returns the event model.
func (s *Sync) Model() []eventmodel.EventModelInfo {
	return s.model
}

// Start begins polling. With update_source manual-updates it does nothing;
// the index then changes only through Index, Purge and PurgeAll.
func (s *Sync) Start(ctx context.Context) error {
	if s.cfg.ManualUpdates() {
		s.logger.Info("manual updates configured, poller not started")
		return nil
	}
	return s.poller.Start(ctx)
}

// SyncOnce runs a single poller tick. It is serialized with scheduled ticks.
func (s *Sync) SyncOnce(ctx context.Context) (poller.TickResult, error) {
	return s.poller.Tick(ctx)
}

// Search returns the best matches of query among documents of indexedType.
func (s *Sync) Search(ctx context.Context, indexedType, query string, limit int) ([]store.Hit, error) {
	return s.backend.Search(ctx, indexedType, query, limit)
}

// Index reindexes one entity from its current row. A missing row removes it
// from the index. id is written the way the entity's index id field holds it.
func (s *Sync) Index(ctx context.Context, entityType, id string) (updater.ApplyStats, error) {
	return s.applyOne(ctx, entityType, id, eventmodel.EventUpdate)
}

// Purge removes one entity from the index.
func (s *Sync) Purge(ctx context.Context, entityType, id string) (updater.ApplyStats, error) {
	return s.applyOne(ctx, entityType, id, eventmodel.EventDelete)
}

func (s *Sync) applyOne(ctx context.Context, entityType, id string, e eventmodel.EventType) (updater.ApplyStats, error) {
	parsed, err := s.updater.Mapping().ParseID(entityType, id)
	if err != nil {
		return updater.ApplyStats{}, err
	}
	return s.updater.Apply(ctx, []capture.CaptureEvent{{EntityType: entityType, ID: parsed, EventType: e}})
}

// PurgeAll removes every document of entityType.
func (s *Sync) PurgeAll(ctx context.Context, entityType string) error {
	return s.updater.PurgeAll(ctx, entityType)
}

// IndexStatus is the document count of one indexed type.
type IndexStatus struct {
	IndexedType string `json:"indexed_type"`
	Documents   uint64 `json:"documents"`
}

// Status describes consumption progress and index contents.
type Status struct {
	Instance string                `json:"instance"`
	Tables   []capture.TableStatus `json:"tables"`
	Indexes  []IndexStatus         `json:"indexes"`
}

// Status reports, per capture table, the stored offset and pending rows,
// and the document count of every indexed type.
func (s *Sync) Status(ctx context.Context) (Status, error) {
	tables, err := s.offsets.Status(ctx)
	if err != nil {
		return Status{}, err
	}
	st := Status{Instance: s.instance, Tables: tables}

	seen := make(map[string]bool)
	for _, info := range s.model {
		for _, ref := range info.Index {
			if seen[ref.IndexedType] {
				continue
			}
			seen[ref.IndexedType] = true
			n, err := s.backend.Count(ctx, ref.IndexedType)
			if err != nil {
				return Status{}, errors.New(errors.ErrCodeIndexUnavailable, "failed to count documents", err).
					WithDetail("indexed_type", ref.IndexedType)
			}
			st.Indexes = append(st.Indexes, IndexStatus{IndexedType: ref.IndexedType, Documents: n})
		}
	}
	return st, nil
}

// Close stops the poller, waiting up to the configured shutdown timeout for
// a tick in progress, then releases everything. A tick that ignores the
// cancellation and outlives the wait fails against the closed handles; its
// batch is delivered again on the next start. It is safe to call twice.
func (s *Sync) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.closeAll()
		s.logger.Info("searchsync closed")
	})
	return s.closeErr
}

func (s *Sync) closeAll() error {
	var errs []error
	if s.poller != nil {
		timeout := s.cfg.Poller.ShutdownTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		if err := s.poller.Stop(timeout); err != nil {
			errs = append(errs, err)
			if !s.poller.Idle() {
				// The backend and database reject calls once closed, so the
				// late tick can neither commit its batch nor move offsets.
				s.logger.Warn("closing while a cancelled tick is still running; it will fail and be redelivered")
			}
		}
	}
	if s.notifier != nil {
		errs = append(errs, s.notifier.Close())
	}
	if s.backend != nil {
		errs = append(errs, s.backend.Close())
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	if s.lock != nil {
		errs = append(errs, s.lock.Unlock())
	}
	return errors.Join(errs...)
}
