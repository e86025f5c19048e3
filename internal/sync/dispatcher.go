package sync

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Martian-dev/mailpoll/internal/metrics"
	"github.com/Martian-dev/mailpoll/internal/platform"
)

// DefaultRetryBackoff delays the next attempt of a failed publish
const DefaultRetryBackoff = 10 * time.Second

// Publisher delivers outbox messages downstream
type Publisher interface {
	Publish(subject string, payload []byte, msgID string) error
}

// Dispatcher moves queued incidents from the outbox to a Publisher
type Dispatcher struct {
	Outbox       platform.Outbox
	Publisher    Publisher
	Logger       *zap.Logger
	RetryBackoff time.Duration
}

// DispatchOnce publishes up to limit queued messages and returns how many
// were published. Failed publishes are scheduled for retry.
func (d *Dispatcher) DispatchOnce(ctx context.Context, limit int) (int, error) {
	messages, err := d.Outbox.DequeueOutbox(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("dequeue outbox: %w", err)
	}

	backoff := d.RetryBackoff
	if backoff == 0 {
		backoff = DefaultRetryBackoff
	}
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}

	published := 0
	for _, msg := range messages {
		if err := ctx.Err(); err != nil {
			return published, err
		}

		if err := d.Publisher.Publish(msg.Subject, msg.Payload, msg.MsgID); err != nil {
			log.Warn("publish failed", zap.Int64("outbox_id", msg.ID), zap.Error(err))
			metrics.IncrementOutbox("retry")
			if err := d.Outbox.MarkOutboxRetry(ctx, msg.ID, backoff); err != nil {
				return published, fmt.Errorf("mark retry %d: %w", msg.ID, err)
			}
			continue
		}

		if err := d.Outbox.MarkPublished(ctx, msg.ID); err != nil {
			return published, fmt.Errorf("mark published %d: %w", msg.ID, err)
		}
		metrics.IncrementOutbox("published")
		published++
	}
	return published, nil
}
