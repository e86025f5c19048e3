// Package incident derives platform incidents from mailbox items.
package incident

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Martian-dev/mailpoll/internal/eml"
	"github.com/Martian-dev/mailpoll/internal/mailstore"
	"github.com/Martian-dev/mailpoll/internal/normalize"
)

// DefaultConflictDelay is the pause before the single save retry
const DefaultConflictDelay = 500 * time.Millisecond

// Label is a typed value attached to an incident
type Label struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// File is an attachment blob extracted from an item. Path is assigned by
// the platform when the blob is stored.
type File struct {
	Path string `json:"path"`
	Name string `json:"name"`
	Data []byte `json:"-"`
}

// Incident is the record handed to the automation platform
type Incident struct {
	Name       string  `json:"name"`
	Details    string  `json:"details"`
	Occurred   string  `json:"occurred"`
	Labels     []Label `json:"labels"`
	Attachment []File  `json:"attachment,omitempty"`
	RawJSON    string  `json:"rawJSON"`

	// OccurredAt and MessageID drive the cursor and are not serialized
	OccurredAt time.Time `json:"-"`
	MessageID  string    `json:"-"`
}

// Builder builds incidents, optionally flagging fetched items as read
type Builder struct {
	Store         mailstore.Store
	MarkAsRead    bool
	ConflictDelay time.Duration
}

// Build converts item into an incident. When fetch is set and MarkAsRead
// is configured the item is saved as read; a conflict is retried once
// after ConflictDelay and a second failure is returned.
func (b *Builder) Build(ctx context.Context, item *mailstore.Item, fetch bool) (*Incident, error) {
	inc := &Incident{
		Name:       item.Subject,
		Details:    item.TextBody,
		Occurred:   mailstore.FormatTime(item.Created),
		OccurredAt: item.Created,
		MessageID:  item.MessageID,
	}
	if inc.Details == "" {
		inc.Details = item.Body
	}

	labels := []Label{{Type: "Email/subject", Value: item.Subject}}
	for _, r := range item.To {
		labels = append(labels, Label{Type: "Email", Value: r.EmailAddress})
	}
	for _, r := range item.Cc {
		labels = append(labels, Label{Type: "Email/cc", Value: r.EmailAddress})
	}
	if item.Sender != nil {
		labels = append(labels, Label{Type: "Email/from", Value: item.Sender.EmailAddress})
	}

	format := ""
	if item.TextBody != "" {
		labels = append(labels, Label{Type: "Email/text", Value: item.TextBody})
		format = "text"
	}
	if item.Body != "" {
		labels = append(labels, Label{Type: "Email/html", Value: item.Body})
		format = "HTML"
	}
	labels = append(labels, Label{Type: "Email/format", Value: format})

	for _, a := range item.Attachments {
		file, attLabels, err := attachment(a)
		if err != nil {
			return nil, fmt.Errorf("attachment %s: %w", a.ID, err)
		}
		if file != nil {
			inc.Attachment = append(inc.Attachment, *file)
		}
		labels = append(labels, attLabels...)
	}

	if len(item.Headers) > 0 {
		joined := make([]string, 0, len(item.Headers))
		for _, h := range item.Headers {
			labels = append(labels, Label{Type: "Email/Header/" + h.Name, Value: h.Value})
			joined = append(joined, h.Name+": "+h.Value)
		}
		labels = append(labels, Label{Type: "Email/headers", Value: strings.Join(joined, "\r\n")})
	}

	if item.MessageID != "" {
		labels = append(labels, Label{Type: "Email/MessageId", Value: item.MessageID})
	}
	if item.ID != "" {
		labels = append(labels,
			Label{Type: "Email/ID", Value: item.ID},
			Label{Type: "Email/itemId", Value: item.ID},
		)
	}
	if item.ConversationID != "" {
		labels = append(labels, Label{Type: "Email/ConversionID", Value: item.ConversationID})
	}

	if fetch && b.MarkAsRead {
		if err := b.markRead(ctx, item); err != nil {
			return nil, err
		}
	}

	inc.Labels = labels

	raw, err := json.Marshal(normalize.Normalize(item, normalize.Options{}))
	if err != nil {
		return nil, fmt.Errorf("marshal raw record: %w", err)
	}
	inc.RawJSON = string(raw)

	return inc, nil
}

func (b *Builder) markRead(ctx context.Context, item *mailstore.Item) error {
	item.IsRead = true
	err := b.Store.SaveItem(ctx, item)
	if mailstore.KindOf(err) != mailstore.KindConflict {
		return err
	}

	delay := b.ConflictDelay
	if delay == 0 {
		delay = DefaultConflictDelay
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	}
	return b.Store.SaveItem(ctx, item)
}

func attachment(a mailstore.Attachment) (*File, []Label, error) {
	name := normalize.AttachmentName(a.Name)

	if a.Kind == mailstore.ItemAttachment {
		labels := []Label{
			{Type: "attachmentItems", Value: name},
			{Type: "attachmentItemsId", Value: a.ID},
		}
		if a.Item == nil || len(a.Item.MimeContent) == 0 {
			return nil, labels, nil
		}
		data, err := eml.Render(a.Item)
		if err != nil {
			return nil, nil, err
		}
		return &File{Name: eml.FileName(name), Data: data}, labels, nil
	}

	labels := []Label{
		{Type: "attachments", Value: name},
		{Type: "attachmentId", Value: a.ID},
	}
	if len(a.Content) == 0 {
		return nil, labels, nil
	}
	return &File{Name: name, Data: a.Content}, labels, nil
}
