// Package updater applies batches of captured changes to the search index.
package updater

import (
	"context"
	"log/slog"
	"maps"

	"github.com/Aman-CERP/searchsync/internal/capture"
	"github.com/Aman-CERP/searchsync/internal/entity"
	"github.com/Aman-CERP/searchsync/internal/errors"
	"github.com/Aman-CERP/searchsync/internal/eventmodel"
	"github.com/Aman-CERP/searchsync/internal/logging"
	"github.com/Aman-CERP/searchsync/internal/store"
)

// Config wires an Updater.
type Config struct {
	Provider entity.Provider
	Backend  store.IndexBackend
	Mapping  *Mapping
	Logger   *slog.Logger
}

// Updater folds a batch to one action per entity and applies it in one index
// transaction.
type Updater struct {
	provider entity.Provider
	backend  store.IndexBackend
	mapping  *Mapping
	logger   *slog.Logger
}

// ApplyStats counts what one Apply did, per entity.
type ApplyStats struct {
	Indexed int `json:"indexed"`
	Updated int `json:"updated"`
	Deleted int `json:"deleted"`
	// Downgraded counts writes turned into deletes because the entity was gone.
	Downgraded int `json:"downgraded"`
	// Skipped counts events of unmapped entity types.
	Skipped int `json:"skipped"`
}

// Writes returns the number of index writes.
func (s ApplyStats) Writes() int {
	return s.Indexed + s.Updated
}

// New returns an Updater. Provider, Backend and Mapping are required.
func New(cfg Config) (*Updater, error) {
	if cfg.Provider == nil || cfg.Backend == nil || cfg.Mapping == nil {
		return nil, errors.InternalError("updater needs a provider, a backend and a mapping", nil)
	}
	return &Updater{
		provider: cfg.Provider,
		backend:  cfg.Backend,
		mapping:  cfg.Mapping,
		logger:   logging.OrDefault(cfg.Logger),
	}, nil
}

// Mapping returns the updater's index mapping.
func (u *Updater) Mapping() *Mapping {
	return u.mapping
}

type action struct {
	entityType string
	id         eventmodel.ID
	event      eventmodel.EventType
	targets    []Target
}

// fold keeps the last event of every (entity type, id), in order of first
// appearance. A trailing DELETE therefore overrides everything before it.
func (u *Updater) fold(events []capture.CaptureEvent, stats *ApplyStats) []action {
	var (
		out   []action
		index = make(map[string]int)
	)
	for _, ev := range events {
		targets, ok := u.mapping.Targets(ev.EntityType)
		if !ok {
			stats.Skipped++
			u.logger.Warn("skipping event of unmapped entity type",
				slog.String("entity", ev.EntityType),
				slog.String("table", ev.Table),
				slog.Int64("key", ev.Key))
			continue
		}
		k := ev.EntityType + "\x00" + ev.ID.String()
		if i, seen := index[k]; seen {
			out[i].event = ev.EventType
			continue
		}
		index[k] = len(out)
		out = append(out, action{entityType: ev.EntityType, id: ev.ID, event: ev.EventType, targets: targets})
	}
	return out
}

// Apply applies events in order. Either every mutation commits or none does.
// Applying the same batch again leaves the index in the same state.
func (u *Updater) Apply(ctx context.Context, events []capture.CaptureEvent) (ApplyStats, error) {
	var stats ApplyStats
	actions := u.fold(events, &stats)
	if len(actions) == 0 {
		return stats, nil
	}

	session, err := u.provider.Open(ctx)
	if err != nil {
		return ApplyStats{}, errors.New(errors.ErrCodeSnapshotFailed, "failed to open entity session", err)
	}
	defer func() { _ = session.Close() }()

	tx, err := u.backend.Begin(ctx)
	if err != nil {
		return ApplyStats{}, errors.New(errors.ErrCodeIndexUnavailable, "failed to begin index transaction", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	for _, a := range actions {
		if err := ctx.Err(); err != nil {
			return ApplyStats{}, err
		}
		if err := u.applyOne(ctx, session, tx, a, &stats); err != nil {
			return ApplyStats{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return ApplyStats{}, errors.New(errors.ErrCodeIndexFailed, "failed to commit index transaction", err)
	}
	committed = true

	u.logger.Debug("batch applied",
		slog.Int("events", len(events)),
		slog.Int("indexed", stats.Indexed),
		slog.Int("updated", stats.Updated),
		slog.Int("deleted", stats.Deleted),
		slog.Int("downgraded", stats.Downgraded),
		slog.Int("skipped", stats.Skipped))
	return stats, nil
}

func (u *Updater) applyOne(ctx context.Context, session entity.Session, tx store.IndexTx, a action, stats *ApplyStats) error {
	var snap *entity.Snapshot
	if a.event != eventmodel.EventDelete {
		var err error
		snap, err = session.Get(ctx, a.entityType, a.id)
		if err != nil {
			return errors.New(errors.ErrCodeSnapshotFailed, "failed to fetch snapshot", err).
				WithDetail("entity", a.entityType).
				WithDetail("id", a.id.String())
		}
		if snap == nil {
			u.logger.Debug("entity gone, deleting instead",
				slog.String("entity", a.entityType),
				slog.String("id", a.id.String()),
				slog.String("event", a.event.String()))
			stats.Downgraded++
		}
	}

	for _, t := range a.targets {
		value, err := t.Encoder.Encode(a.id)
		if err != nil {
			return errors.New(errors.ErrCodeIndexFailed, "failed to encode id", err).
				WithDetail("entity", a.entityType).
				WithDetail("indexed_type", t.IndexedType)
		}

		if snap == nil {
			err = tx.DeleteByField(t.IndexedType, t.IDField, value)
		} else {
			doc := store.Document{
				IndexedType: t.IndexedType,
				ID:          value,
				IDField:     t.IDField,
				Fields:      maps.Clone(snap.Fields),
			}
			if doc.Fields == nil {
				doc.Fields = make(map[string]any, 1)
			}
			doc.Fields[t.IDField] = value
			if a.event == eventmodel.EventInsert {
				err = tx.Index(doc)
			} else {
				err = tx.Update(doc)
			}
		}
		if err != nil {
			return errors.New(errors.ErrCodeIndexFailed, "index mutation failed", err).
				WithDetail("entity", a.entityType).
				WithDetail("id", value).
				WithDetail("indexed_type", t.IndexedType)
		}
	}

	switch {
	case snap == nil:
		stats.Deleted++
	case a.event == eventmodel.EventInsert:
		stats.Indexed++
	default:
		stats.Updated++
	}
	return nil
}

// PurgeAll removes every document entityType wrote to its indexed types.
// Documents other entities wrote to the same types under other id fields stay.
func (u *Updater) PurgeAll(ctx context.Context, entityType string) error {
	targets, ok := u.mapping.Targets(entityType)
	if !ok {
		return errors.MappingError("no index mapping for entity " + entityType)
	}
	tx, err := u.backend.Begin(ctx)
	if err != nil {
		return errors.New(errors.ErrCodeIndexUnavailable, "failed to begin index transaction", err)
	}
	for _, t := range targets {
		if err := tx.PurgeAll(t.IndexedType, t.IDField); err != nil {
			_ = tx.Rollback()
			return errors.New(errors.ErrCodeIndexFailed, "purge failed", err).WithDetail("indexed_type", t.IndexedType)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.New(errors.ErrCodeIndexFailed, "failed to commit purge", err)
	}
	return nil
}
