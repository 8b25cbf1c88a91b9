package capture

import (
	"context"
	"fmt"
	"log/slog"

	serrors "github.com/Aman-CERP/searchsync/internal/errors"
	"github.com/Aman-CERP/searchsync/internal/eventmodel"
	"github.com/Aman-CERP/searchsync/internal/logging"
)

// CursorOptions configures a MultiCursor.
type CursorOptions struct {
	// PageSize bounds each per-stream fetch. Defaults to 100.
	PageSize int
	// Limit caps the rows taken across all streams, 0 for no cap.
	// Skipped rows count toward it.
	Limit  int
	Logger *slog.Logger
}

// MultiCursor presents several capture streams as one sequence ordered by
// capture key. Each call to Advance takes the smallest key among the stream
// heads; equal keys on different streams go to the stream registered first.
//
// Keys of different tables are unrelated sequences, so the order between
// events of different tables carries no meaning. Only per-table order is
// guaranteed. A MultiCursor is not safe for concurrent use.
type MultiCursor struct {
	streams  []*stream
	pageSize int
	limit    int
	logger   *slog.Logger

	taken   int
	current CaptureEvent
	valid   bool
	done    bool
	closed  bool
}

type stream struct {
	Stream
	page     []Row
	pos      int
	after    int64
	lastPage bool
	// lastKey is the highest key taken from this stream, valid if taken.
	lastKey int64
	taken   bool
}

func (s *stream) head() (Row, bool) {
	if s.pos < len(s.page) {
		return s.page[s.pos], true
	}
	return Row{}, false
}

// NewMultiCursor returns a cursor over streams. Nothing is fetched until
// the first Advance.
func NewMultiCursor(streams []Stream, opts CursorOptions) *MultiCursor {
	if opts.PageSize <= 0 {
		opts.PageSize = 100
	}
	m := &MultiCursor{
		pageSize: opts.PageSize,
		limit:    opts.Limit,
		logger:   logging.OrDefault(opts.Logger),
	}
	for _, st := range streams {
		m.streams = append(m.streams, &stream{Stream: st, after: st.After})
	}
	return m
}

// Advance moves to the next event. It returns false once every stream is
// exhausted or the limit is reached. Rows with an unknown event type are
// logged and skipped.
func (m *MultiCursor) Advance(ctx context.Context) (bool, error) {
	if m.closed {
		return false, serrors.StateError("advance on closed cursor")
	}
	m.valid = false
	if m.done {
		return false, nil
	}

	for {
		if m.limit > 0 && m.taken >= m.limit {
			m.done = true
			return false, nil
		}

		var best *stream
		var bestRow Row
		for _, s := range m.streams {
			if err := m.fill(ctx, s); err != nil {
				return false, err
			}
			row, ok := s.head()
			if ok && (best == nil || row.Key < bestRow.Key) {
				best, bestRow = s, row
			}
		}
		if best == nil {
			m.done = true
			return false, nil
		}

		best.pos++
		best.lastKey, best.taken = bestRow.Key, true
		m.taken++

		if bestRow.EventType == eventmodel.EventUnknown {
			m.logger.Warn("unknown event type in capture row, skipping",
				slog.String("table", best.Source.Name()),
				slog.Int64("key", bestRow.Key),
				slog.Int64("event_type", bestRow.RawEventType))
			continue
		}

		m.current = CaptureEvent{
			EntityType: best.EntityType,
			ID:         bestRow.ID,
			EventType:  bestRow.EventType,
			Key:        bestRow.Key,
			Table:      best.Source.Name(),
		}
		m.valid = true
		return true, nil
	}
}

// fill fetches the next page of s once its current page is used up.
func (m *MultiCursor) fill(ctx context.Context, s *stream) error {
	if s.pos < len(s.page) || s.lastPage {
		return nil
	}
	rows, err := s.Source.FetchPage(ctx, s.after, m.pageSize)
	if err != nil {
		return serrors.New(serrors.ErrCodeCaptureRead,
			fmt.Sprintf("read capture table %s", s.Source.Name()), err)
	}
	prev := s.after
	for _, r := range rows {
		if r.Key <= prev {
			return serrors.New(serrors.ErrCodeCaptureRead,
				fmt.Sprintf("capture table %s returned key %d after %d", s.Source.Name(), r.Key, prev), nil)
		}
		prev = r.Key
	}
	s.page, s.pos = rows, 0
	s.after = prev
	s.lastPage = len(rows) < m.pageSize
	return nil
}

// Current returns the event Advance moved to. It fails before the first
// successful Advance and after the cursor is exhausted or closed.
func (m *MultiCursor) Current() (CaptureEvent, error) {
	if !m.valid {
		return CaptureEvent{}, serrors.StateError("no current capture event; Advance must return true first")
	}
	return m.current, nil
}

// LastKeys returns, per stream name, the highest key taken so far,
// including skipped rows. Streams nothing was taken from are absent.
func (m *MultiCursor) LastKeys() map[string]int64 {
	keys := make(map[string]int64)
	for _, s := range m.streams {
		if s.taken {
			keys[s.Source.Name()] = s.lastKey
		}
	}
	return keys
}

// Taken returns the number of rows taken, skipped ones included.
func (m *MultiCursor) Taken() int {
	return m.taken
}

// Close releases buffered pages. Current fails afterwards.
func (m *MultiCursor) Close() error {
	m.closed = true
	m.valid = false
	for _, s := range m.streams {
		s.page = nil
	}
	return nil
}

// Drain advances c to exhaustion and returns every event in order.
func Drain(ctx context.Context, c *MultiCursor) ([]CaptureEvent, error) {
	var events []CaptureEvent
	for {
		ok, err := c.Advance(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return events, nil
		}
		ev, err := c.Current()
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
}
