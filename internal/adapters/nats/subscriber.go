package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/patrolscan/internal/core/domain"
)

// Subscriber consumes detection batches from JetStream.
type Subscriber struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	subs []*nats.Subscription
}

// NewSubscriber creates a subscriber with its own NATS connection.
func NewSubscriber(url string) (*Subscriber, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	return &Subscriber{conn: conn, js: js}, nil
}

// SubscribeDetections delivers each published batch to handler. A batch is
// redelivered up to three times when the handler fails.
func (s *Subscriber) SubscribeDetections(ctx context.Context, durable string, handler func(ctx context.Context, detections []domain.Detection) error) error {
	sub, err := s.js.Subscribe(SubjectDetections, func(msg *nats.Msg) {
		handleBatch(ctx, msg.Data, handler, msg.Ack, msg.Nak, msg.Term)
	},
		nats.Durable(durable),
		nats.ManualAck(),
		nats.MaxDeliver(3),
	)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	return nil
}

// handleBatch decodes one message and settles it. Undecodable payloads are
// terminated since redelivery cannot fix them.
func handleBatch(ctx context.Context, data []byte, handler func(context.Context, []domain.Detection) error,
	ack, nak func(...nats.AckOpt) error, term func(...nats.AckOpt) error) {
	var detections []domain.Detection
	if err := json.Unmarshal(data, &detections); err != nil {
		_ = term()
		return
	}
	if err := handler(ctx, detections); err != nil {
		_ = nak()
		return
	}
	_ = ack()
}

// Close unsubscribes and drains.
func (s *Subscriber) Close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	_ = s.conn.Drain()
}
