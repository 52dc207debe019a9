package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/patrolscan/internal/core/domain"
)

// Subjects carrying patrol events.
const (
	SubjectPosition   = "patrol.position"
	SubjectDetections = "patrol.detections"
	SubjectLogs       = "patrol.logs"
)

// StreamDetections is the JetStream stream retaining detection batches.
const StreamDetections = "PATROL_DETECTIONS"

// Publisher implements ports.EventPublisher using NATS. Detections go through
// JetStream so the archiver can consume them durably; positions and log
// entries are fire-and-forget.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS and ensures the detections stream exists.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	cfg := nats.StreamConfig{
		Name:      StreamDetections,
		Subjects:  []string{SubjectDetections},
		Retention: nats.LimitsPolicy,
		MaxAge:    24 * time.Hour,
		Storage:   nats.FileStorage,
	}
	if _, err := js.AddStream(&cfg); err != nil {
		// Stream may already exist, try update
		if _, err := js.UpdateStream(&cfg); err != nil {
			conn.Close()
			return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
		}
	}

	return &Publisher{conn: conn, js: js}, nil
}

func (p *Publisher) PublishSnapshot(ctx context.Context, snap *domain.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return p.conn.Publish(SubjectPosition, data)
}

func (p *Publisher) PublishDetections(ctx context.Context, detections []domain.Detection) error {
	if len(detections) == 0 {
		return nil
	}
	data, err := json.Marshal(detections)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(SubjectDetections, data, nats.Context(ctx))
	return err
}

func (p *Publisher) PublishLog(ctx context.Context, entry *domain.LogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return p.conn.Publish(SubjectLogs, data)
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// RawConn creates a plain NATS connection for subscribing (e.g. WebSocket relay).
func RawConn(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("patrolscan"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}
