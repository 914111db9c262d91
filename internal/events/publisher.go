package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

const DefaultSubject = "barsync.import.completed"

// ImportCompleted - publikowane po zakończeniu zapisu sesji importu
type ImportCompleted struct {
	EventType string    `json:"event_type"`
	SessionID string    `json:"session_id"`
	Kind      string    `json:"kind"`
	Operator  string    `json:"operator,omitempty"`
	State     string    `json:"state"`
	Created   int       `json:"created"`
	Updated   int       `json:"updated"`
	Failed    int       `json:"failed"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type Publisher interface {
	PublishImportCompleted(ctx context.Context, ev ImportCompleted) error
	Close()
}

// New łączy się z NATS, a bez URL zwraca publisher no-op.
func New(natsURL, subject string, log zerolog.Logger) (Publisher, error) {
	if natsURL == "" {
		return Noop{}, nil
	}
	if subject == "" {
		subject = DefaultSubject
	}
	conn, err := nats.Connect(natsURL,
		nats.Name("barsync-publisher"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	log.Info().Str("subject", subject).Msg("events: NATS publisher connected")
	return &natsPublisher{conn: conn, subject: subject, log: log}, nil
}

type natsPublisher struct {
	conn    *nats.Conn
	subject string
	log     zerolog.Logger
}

func (p *natsPublisher) PublishImportCompleted(ctx context.Context, ev ImportCompleted) error {
	if ev.EventType == "" {
		ev.EventType = "import.completed"
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", p.subject, err)
	}
	p.log.Debug().Str("subject", p.subject).Str("session_id", ev.SessionID).Msg("event published")
	return nil
}

func (p *natsPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}

type Noop struct{}

func (Noop) PublishImportCompleted(context.Context, ImportCompleted) error { return nil }
func (Noop) Close()                                                        {}
