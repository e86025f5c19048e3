// Package mailops implements the interactive mailbox operations exposed
// next to polling: fetching and flagging items by id, exporting an item as
// .eml and checking connectivity.
package mailops

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Martian-dev/mailpoll/internal/eml"
	"github.com/Martian-dev/mailpoll/internal/incident"
	"github.com/Martian-dev/mailpoll/internal/mailstore"
	"github.com/Martian-dev/mailpoll/internal/normalize"
)

// ErrItemsNotFound is returned when none of the requested ids exist
var ErrItemsNotFound = errors.New("items not found")

const itemsNotFoundMessage = "One or more items were not found. Check the input item ids"

const folderPermissionMessage = "Success to authenticate, but user probably has no permissions to read " +
	"from the specific folder. Check user permissions."

// Error carries the simplified message of a failed operation
type Error struct {
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func explain(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrItemsNotFound) {
		return &Error{Message: itemsNotFoundMessage, Err: err}
	}
	return &Error{Message: mailstore.Explain(err, true), Err: err}
}

// Service runs operations against one mailbox
type Service struct {
	Store   mailstore.Store
	Mailbox string
	Logger  *zap.Logger
}

// New creates a service
func New(store mailstore.Store, mailbox string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{Store: store, Mailbox: mailbox, Logger: logger}
}

// Items is the result of GetItems
type Items struct {
	Incidents []incident.Incident `json:"incidents"`
	Records   []normalize.Record  `json:"items"`
}

// Mark describes one flagged item
type Mark struct {
	ItemID    string `json:"itemId"`
	MessageID string `json:"messageId"`
	Action    string `json:"action"`
}

// EML is a rendered message file
type EML struct {
	Name string
	Data []byte
}

// fetch loads the message items among ids. Missing ids are skipped unless
// all of them are missing.
func (s *Service) fetch(ctx context.Context, ids []string) ([]*mailstore.Item, error) {
	var items []*mailstore.Item
	missing := 0
	for _, id := range ids {
		item, err := s.Store.GetItem(ctx, id)
		if err != nil {
			if mailstore.KindOf(err) == mailstore.KindNotFound {
				s.Logger.Debug("item not found", zap.String("item_id", id))
				missing++
				continue
			}
			return nil, err
		}
		if !item.IsMessage() {
			continue
		}
		items = append(items, item)
	}
	if len(ids) > 0 && missing == len(ids) {
		return nil, ErrItemsNotFound
	}
	return items, nil
}

// GetItems returns incidents and compact records for the message items
// among ids. Items are never marked as read.
func (s *Service) GetItems(ctx context.Context, ids []string) (*Items, error) {
	items, err := s.fetch(ctx, ids)
	if err != nil {
		return nil, explain(err)
	}

	builder := &incident.Builder{Store: s.Store}
	out := &Items{
		Incidents: make([]incident.Incident, 0, len(items)),
		Records:   make([]normalize.Record, 0, len(items)),
	}
	for _, item := range items {
		inc, err := builder.Build(ctx, item, false)
		if err != nil {
			return nil, explain(err)
		}
		out.Incidents = append(out.Incidents, *inc)
		out.Records = append(out.Records, normalize.Normalize(item, normalize.Options{
			Compact:   true,
			CamelKeys: true,
			Mailbox:   s.Mailbox,
		}))
	}
	return out, nil
}

// MarkItems sets the read flag of the message items among ids
func (s *Service) MarkItems(ctx context.Context, ids []string, read bool) ([]Mark, error) {
	items, err := s.fetch(ctx, ids)
	if err != nil {
		return nil, explain(err)
	}

	action := "marked-as-unread"
	if read {
		action = "marked-as-read"
	}
	marks := make([]Mark, 0, len(items))
	for _, item := range items {
		if err := s.Store.MarkRead(ctx, item, read); err != nil {
			return nil, explain(err)
		}
		marks = append(marks, Mark{ItemID: item.ID, MessageID: item.MessageID, Action: action})
	}
	return marks, nil
}

// ItemAsEML renders the item as an RFC 5322 file
func (s *Service) ItemAsEML(ctx context.Context, id string) (*EML, error) {
	item, err := s.Store.GetItem(ctx, id)
	if err != nil {
		if mailstore.KindOf(err) == mailstore.KindNotFound {
			return nil, explain(fmt.Errorf("%w: %w", ErrItemsNotFound, err))
		}
		return nil, explain(err)
	}

	data, err := eml.Render(item)
	if err != nil {
		return nil, explain(err)
	}
	name := item.Subject
	if name == "" {
		name = "untitled"
	}
	return &EML{Name: eml.FileName(name), Data: data}, nil
}

// TestConnection checks that the mailbox root and folder are readable
func (s *Service) TestConnection(ctx context.Context, folder string) error {
	if _, err := s.Store.AccountRoot(ctx); err != nil {
		return explain(err)
	}
	if _, err := s.Store.ResolveFolder(ctx, folder); err != nil {
		if mailstore.KindOf(err) == mailstore.KindNotFound {
			return &Error{Message: folderPermissionMessage, Err: err}
		}
		return explain(err)
	}
	return nil
}
