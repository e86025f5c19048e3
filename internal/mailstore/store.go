package mailstore

import (
	"context"
	"iter"
	"time"
)

// Store is the remote mailbox the ingestion core polls.
//
// Implementations report failures as *Error so callers can switch on Kind
// instead of matching library specific error types.
type Store interface {
	// QueryFolder yields items of folder received at or after since,
	// oldest first. Iteration stops at the first error.
	QueryFolder(ctx context.Context, folder string, since time.Time) iter.Seq2[*Item, error]

	// GetItem fetches a single item by id
	GetItem(ctx context.Context, id string) (*Item, error)

	// SaveItem persists the mutable flags of an item
	SaveItem(ctx context.Context, item *Item) error

	// MarkRead sets the read flag of an item
	MarkRead(ctx context.Context, item *Item, read bool) error

	// AccountRoot returns the root folder of the mailbox
	AccountRoot(ctx context.Context) (*Folder, error)

	// ResolveFolder returns the folder addressed by path
	ResolveFolder(ctx context.Context, path string) (*Folder, error)
}
