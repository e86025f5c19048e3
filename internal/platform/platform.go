// Package platform defines what the poller needs from the automation
// platform it reports to.
package platform

import (
	"context"
	"time"

	"github.com/Martian-dev/mailpoll/internal/incident"
)

// StateStore persists opaque cursor state per key. LoadState returns nil
// and no error when nothing was stored. PersistState must replace the
// previous value atomically.
type StateStore interface {
	LoadState(ctx context.Context, key string) ([]byte, error)
	PersistState(ctx context.Context, key string, state []byte) error
	DeleteState(ctx context.Context, key string) error
}

// Emitter receives the incidents produced by one tick. Attachment blobs
// are stored first and their Path filled in.
type Emitter interface {
	EmitIncidents(ctx context.Context, key string, incidents []incident.Incident) error
}

// Committer is implemented by platforms able to emit incidents and
// persist the cursor state in one transaction.
type Committer interface {
	CommitTick(ctx context.Context, key string, state []byte, incidents []incident.Incident) error
}

// Platform is the full collaborator used by the poller
type Platform interface {
	StateStore
	Emitter
}

// OutboxMessage is an emitted incident waiting to be published
type OutboxMessage struct {
	ID      int64
	Subject string
	Payload []byte
	MsgID   string
}

// Outbox is implemented by platforms that queue emitted incidents for
// publication
type Outbox interface {
	DequeueOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkPublished(ctx context.Context, id int64) error
	MarkOutboxRetry(ctx context.Context, id int64, backoff time.Duration) error
}
