// Package cursor persists the incremental ingestion cursor of a folder.
package cursor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Martian-dev/mailpoll/internal/mailstore"
	"github.com/Martian-dev/mailpoll/internal/platform"
)

// Cursor tracks ingestion progress for one folder
type Cursor struct {
	// LastRunTime is the watermark; zero when no poll has emitted yet
	LastRunTime  time.Time
	Folder       string
	Seen         *Window
	ErrorCounter int
}

type state struct {
	LastRunTime  string   `json:"lastRunTime,omitempty"`
	FolderName   string   `json:"folderName"`
	IDs          []string `json:"ids"`
	ErrorCounter int      `json:"errorCounter,omitempty"`
}

// New returns an empty cursor bound to folder
func New(folder string) *Cursor {
	return &Cursor{Folder: folder, Seen: NewWindow(WindowCapacity)}
}

// Decode parses persisted cursor state
func Decode(data []byte) (*Cursor, error) {
	var s state
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}
	c := &Cursor{
		Folder:       s.FolderName,
		Seen:         NewWindow(WindowCapacity, s.IDs...),
		ErrorCounter: s.ErrorCounter,
	}
	if s.LastRunTime != "" {
		t, err := mailstore.ParseTime(s.LastRunTime)
		if err != nil {
			return nil, fmt.Errorf("decode cursor time: %w", err)
		}
		c.LastRunTime = t
	}
	return c, nil
}

// Encode renders the cursor in its persisted form
func (c *Cursor) Encode() ([]byte, error) {
	s := state{
		FolderName:   c.Folder,
		IDs:          c.Seen.IDs(),
		ErrorCounter: c.ErrorCounter,
	}
	if !c.LastRunTime.IsZero() {
		s.LastRunTime = mailstore.FormatTime(c.LastRunTime)
	}
	return json.Marshal(s)
}

// MarshalJSON renders the persisted form
func (c *Cursor) MarshalJSON() ([]byte, error) {
	return c.Encode()
}

// Clone returns an independent copy
func (c *Cursor) Clone() *Cursor {
	out := *c
	out.Seen = c.Seen.Clone()
	return &out
}

// Advance records a successful poll. The watermark only moves forward; a
// zero watermark leaves it unchanged.
func (c *Cursor) Advance(watermark time.Time, ids []string) {
	if watermark.After(c.LastRunTime) {
		c.LastRunTime = watermark
	}
	c.Seen.Add(ids...)
	c.ErrorCounter = 0
}

// RateLimited records one more consecutive rate-limit failure and returns
// the new counter
func (c *Cursor) RateLimited() int {
	c.ErrorCounter++
	return c.ErrorCounter
}

// Store loads and saves cursors under a fixed state key
type Store struct {
	state platform.StateStore
	key   string
}

// NewStore creates a cursor store for key
func NewStore(state platform.StateStore, key string) *Store {
	return &Store{state: state, key: key}
}

// Key returns the state key
func (s *Store) Key() string {
	return s.key
}

// Load returns the persisted cursor, or a fresh one when nothing is stored
// or the stored cursor belongs to a different folder
func (s *Store) Load(ctx context.Context, folder string) (*Cursor, error) {
	data, err := s.state.LoadState(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("load cursor state: %w", err)
	}
	if len(data) == 0 {
		return New(folder), nil
	}
	c, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if c.Folder != folder {
		return New(folder), nil
	}
	return c, nil
}

// Save persists c, replacing the previous cursor
func (s *Store) Save(ctx context.Context, c *Cursor) error {
	data, err := c.Encode()
	if err != nil {
		return fmt.Errorf("encode cursor: %w", err)
	}
	if err := s.state.PersistState(ctx, s.key, data); err != nil {
		return fmt.Errorf("persist cursor state: %w", err)
	}
	return nil
}

// Reset removes the persisted cursor
func (s *Store) Reset(ctx context.Context) error {
	if err := s.state.DeleteState(ctx, s.key); err != nil {
		return fmt.Errorf("reset cursor state: %w", err)
	}
	return nil
}
