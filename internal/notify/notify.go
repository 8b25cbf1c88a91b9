// Package notify tells other processes that a batch reached the index.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Aman-CERP/searchsync/internal/errors"
	"github.com/Aman-CERP/searchsync/internal/logging"
)

// BatchApplied summarizes one committed batch.
type BatchApplied struct {
	Instance   string           `json:"instance"`
	Events     int              `json:"events"`
	Indexed    int              `json:"indexed"`
	Updated    int              `json:"updated"`
	Deleted    int              `json:"deleted"`
	Downgraded int              `json:"downgraded"`
	Skipped    int              `json:"skipped"`
	Offsets    map[string]int64 `json:"offsets"`
	AppliedAt  time.Time        `json:"applied_at"`
}

// Notifier publishes batch summaries.
type Notifier interface {
	Notify(ctx context.Context, b BatchApplied) error
	Close() error
}

// Noop discards notifications.
type Noop struct{}

func (Noop) Notify(context.Context, BatchApplied) error { return nil }
func (Noop) Close() error                               { return nil }

// publisher is the part of *nats.Conn the NATSPublisher uses.
type publisher interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Close()
}

// NATSOptions configures a NATSPublisher.
type NATSOptions struct {
	URL           string
	Subject       string
	MaxReconnects int
	ReconnectWait time.Duration
	Logger        *slog.Logger
}

// NATSPublisher publishes each summary as JSON on one subject.
type NATSPublisher struct {
	conn    publisher
	subject string
	logger  *slog.Logger
}

// NewNATSPublisher connects to the NATS server at opts.URL.
func NewNATSPublisher(opts NATSOptions) (*NATSPublisher, error) {
	logger := logging.OrDefault(opts.Logger)
	if opts.MaxReconnects == 0 {
		opts.MaxReconnects = -1
	}
	if opts.ReconnectWait <= 0 {
		opts.ReconnectWait = 2 * time.Second
	}

	conn, err := nats.Connect(opts.URL,
		nats.Name("searchsync"),
		nats.MaxReconnects(opts.MaxReconnects),
		nats.ReconnectWait(opts.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			logger.Info("nats connection closed")
		}),
	)
	if err != nil {
		return nil, errors.New(errors.ErrCodeNotifyFailed, "failed to connect to NATS", err).
			WithDetail("url", opts.URL)
	}
	logger.Info("connected to nats", slog.String("url", opts.URL), slog.String("subject", opts.Subject))

	return newNATSPublisher(conn, opts.Subject, logger), nil
}

func newNATSPublisher(conn publisher, subject string, logger *slog.Logger) *NATSPublisher {
	return &NATSPublisher{conn: conn, subject: subject, logger: logging.OrDefault(logger)}
}

// Notify publishes b and flushes, so a returned nil means the server has it.
func (p *NATSPublisher) Notify(ctx context.Context, b BatchApplied) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return errors.New(errors.ErrCodeNotifyFailed, "failed to publish to NATS", err)
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return errors.New(errors.ErrCodeNotifyFailed, "failed to flush NATS connection", err)
	}
	p.logger.Debug("published batch notification",
		slog.String("subject", p.subject),
		slog.Int("events", b.Events))
	return nil
}

// Close closes the connection.
func (p *NATSPublisher) Close() error {
	if p.conn != nil {
		p.conn.Close()
	}
	return nil
}
