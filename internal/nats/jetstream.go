package natsjs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultStream is the JetStream stream holding emitted incidents
const DefaultStream = "MAILPOLL_INCIDENTS"

// Publisher wraps NATS JetStream for publishing incidents
type Publisher struct {
	nc *nats.Conn
	js nats.JetStreamContext

	stream  string
	subject string
}

// NewPublisher connects to NATS. subject is the prefix of every published
// subject; the stream captures subject.>
func NewPublisher(url, subject string) (*Publisher, error) {
	nc, err := nats.Connect(url, nats.Name("mailpoll"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	return &Publisher{nc: nc, js: js, stream: DefaultStream, subject: subject}, nil
}

// StreamConfig returns the configuration EnsureStream creates
func (p *Publisher) StreamConfig() *nats.StreamConfig {
	return &nats.StreamConfig{
		Name:       p.stream,
		Subjects:   []string{p.subject + ".>"},
		Storage:    nats.FileStorage,
		Retention:  nats.LimitsPolicy,
		Duplicates: 10 * time.Minute,
		MaxAge:     30 * 24 * time.Hour,
	}
}

// EnsureStream creates the incident stream when missing
func (p *Publisher) EnsureStream(ctx context.Context) error {
	if info, err := p.js.StreamInfo(p.stream, nats.Context(ctx)); err == nil && info != nil {
		return nil
	}

	_, err := p.js.AddStream(p.StreamConfig(), nats.Context(ctx))
	if err != nil {
		if errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			return nil
		}
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// Publish publishes a message to JetStream. msgID feeds the stream's
// duplicate window so a retried outbox entry is stored once.
func (p *Publisher) Publish(subject string, payload []byte, msgID string) error {
	_, err := p.js.Publish(subject, payload, nats.MsgId(msgID))
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// Close closes the NATS connection
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}
