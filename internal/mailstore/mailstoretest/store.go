// Package mailstoretest provides an in-memory mailstore.Store for tests.
package mailstoretest

import (
	"context"
	"iter"
	"sort"
	"sync"
	"time"

	"github.com/Martian-dev/mailpoll/internal/mailstore"
)

// Store keeps items per folder in memory
type Store struct {
	mu      sync.Mutex
	folders map[string][]*mailstore.Item
	root    *mailstore.Folder

	// QueryErrs are returned, in order, by successive QueryFolder calls
	QueryErrs []error
	// SaveErrs are returned, in order, by successive SaveItem calls
	SaveErrs []error

	Queries   []time.Time
	Saves     int
	ReadMarks map[string]bool
}

// New creates an empty store
func New() *Store {
	return &Store{
		folders:   make(map[string][]*mailstore.Item),
		root:      &mailstore.Folder{ID: "root", Name: "root", AbsolutePath: "/root"},
		ReadMarks: make(map[string]bool),
	}
}

// Add places items into folder
func (s *Store) Add(folder string, items ...*mailstore.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.folders[folder] = append(s.folders[folder], items...)
}

// QueryFolder yields items received at or after since, oldest first
func (s *Store) QueryFolder(ctx context.Context, folder string, since time.Time) iter.Seq2[*mailstore.Item, error] {
	return func(yield func(*mailstore.Item, error) bool) {
		s.mu.Lock()
		s.Queries = append(s.Queries, since)
		var qerr error
		if len(s.QueryErrs) > 0 {
			qerr = s.QueryErrs[0]
			s.QueryErrs = s.QueryErrs[1:]
		}
		if _, ok := s.folders[folder]; !ok && qerr == nil {
			qerr = &mailstore.Error{Kind: mailstore.KindNotFound, Op: "query folder", Code: "ErrorFolderNotFound"}
		}
		var matched []*mailstore.Item
		for _, it := range s.folders[folder] {
			if !it.Received.Before(since) {
				matched = append(matched, it)
			}
		}
		s.mu.Unlock()

		if qerr != nil {
			yield(nil, qerr)
			return
		}

		sort.SliceStable(matched, func(i, j int) bool {
			return matched[i].Received.Before(matched[j].Received)
		})
		for _, it := range matched {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			if !yield(it, nil) {
				return
			}
		}
	}
}

// GetItem finds an item by id in any folder
func (s *Store) GetItem(ctx context.Context, id string) (*mailstore.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, items := range s.folders {
		for _, it := range items {
			if it.ID == id {
				return it, nil
			}
		}
	}
	return nil, &mailstore.Error{Kind: mailstore.KindNotFound, Op: "get item", Code: "ErrorItemNotFound"}
}

// SaveItem records the save and returns the next queued error
func (s *Store) SaveItem(ctx context.Context, item *mailstore.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Saves++
	if len(s.SaveErrs) > 0 {
		err := s.SaveErrs[0]
		s.SaveErrs = s.SaveErrs[1:]
		if err != nil {
			return err
		}
	}
	s.ReadMarks[item.ID] = item.IsRead
	return nil
}

// MarkRead sets the read flag
func (s *Store) MarkRead(ctx context.Context, item *mailstore.Item, read bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item.IsRead = read
	s.ReadMarks[item.ID] = read
	return nil
}

// AccountRoot returns the fake root folder
func (s *Store) AccountRoot(ctx context.Context) (*mailstore.Folder, error) {
	return s.root, nil
}

// ResolveFolder returns a folder for known paths
func (s *Store) ResolveFolder(ctx context.Context, path string) (*mailstore.Folder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.folders[path]; !ok {
		return nil, &mailstore.Error{Kind: mailstore.KindNotFound, Op: "resolve folder", Code: "ErrorFolderNotFound"}
	}
	return &mailstore.Folder{ID: path, Name: path, AbsolutePath: "/root/Top of Information Store/" + path}, nil
}

// Message builds a minimal message item
func Message(id, messageID string, at time.Time) *mailstore.Item {
	return &mailstore.Item{
		ID:        id,
		Kind:      mailstore.ItemMessage,
		MessageID: messageID,
		Subject:   "subject " + id,
		Body:      "<p>body " + id + "</p>",
		Created:   at,
		Received:  at,
		Sent:      at,
	}
}
