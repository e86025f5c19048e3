// Package normalize flattens mailbox items into JSON-ready records.
//
// Fields are extracted through a fixed table rather than by walking the
// item, so every item variant yields the same keys for the same data and
// the compact and camel-cased projections stay deterministic.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/Martian-dev/mailpoll/internal/mailstore"
)

// RootPrefix is stripped from absolute folder paths
const RootPrefix = "/root/Top of Information Store/"

// Record is a normalized, JSON serializable view of an item
type Record map[string]any

// Options selects the projection applied to a record
type Options struct {
	// Compact reduces the record to the listing allow-list
	Compact bool
	// CamelKeys rewrites underscore keys to camel case
	CamelKeys bool
	// Mailbox is added under the "mailbox" key when set
	Mailbox string
}

// Normalize converts item into a record
func Normalize(item *mailstore.Item, opts Options) Record {
	rec := Record{}
	for _, f := range messageFields {
		if v, ok := f.extract(item); ok {
			rec[f.name] = v
		}
	}

	if len(item.Attachments) > 0 {
		atts := make([]any, 0, len(item.Attachments))
		for _, a := range item.Attachments {
			atts = append(atts, Attachment(item.ID, a))
		}
		rec["attachments"] = atts
	}

	if opts.Compact {
		rec = compact(rec)
	}
	if opts.CamelKeys {
		rec = Record(CamelKeys(map[string]any(rec)).(map[string]any))
	}
	if opts.Mailbox != "" {
		rec["mailbox"] = opts.Mailbox
	}
	return rec
}

// Attachment describes an attachment of the item identified by itemID.
// Item attachments also carry the compact, camel-cased record of the
// embedded item.
func Attachment(itemID string, a mailstore.Attachment) map[string]any {
	kind := a.Kind
	if kind == "" {
		kind = mailstore.FileAttachment
	}

	content := a.Content
	if kind == mailstore.ItemAttachment && a.Item != nil {
		content = a.Item.MimeContent
	}

	var lastModified any
	if !a.LastModified.IsZero() {
		lastModified = mailstore.FormatTime(a.LastModified)
	}

	rec := map[string]any{
		"originalItemId":             itemID,
		"attachmentId":               a.ID,
		"attachmentName":             AttachmentName(a.Name),
		"attachmentSHA256":           Fingerprint(content),
		"attachmentContentType":      nullable(a.ContentType),
		"attachmentContentId":        nullable(a.ContentID),
		"attachmentContentLocation":  nullable(a.ContentLocation),
		"attachmentSize":             a.Size,
		"attachmentLastModifiedTime": lastModified,
		"attachmentIsInline":         a.IsInline,
		"attachmentType":             string(kind),
	}

	if kind == mailstore.ItemAttachment && a.Item != nil {
		for k, v := range Normalize(a.Item, Options{Compact: true, CamelKeys: true}) {
			rec[k] = v
		}
	}
	return rec
}

// Fingerprint returns the hex SHA-256 of content, or nil when empty
func Fingerprint(content []byte) any {
	if len(content) == 0 {
		return nil
	}
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// AttachmentName substitutes a placeholder for unnamed attachments
func AttachmentName(name string) string {
	if name == "" {
		return "untitled_attachment"
	}
	return name
}

// FolderPath strips RootPrefix from an absolute folder path
func FolderPath(absolute string) string {
	if strings.HasPrefix(absolute, RootPrefix) {
		return absolute[len(RootPrefix):]
	}
	return absolute
}

func compact(raw Record) Record {
	out := Record{}
	if id, ok := raw["id"]; ok {
		out["item_id"] = id
	}
	for _, name := range compactFields {
		if v, ok := raw[name]; ok {
			out[name] = v
		}
	}
	for _, name := range compactAddressFields {
		if m, ok := raw[name].(map[string]any); ok {
			out[name] = m["email_address"]
		}
	}
	if recips, ok := raw["to_recipients"].([]any); ok {
		addrs := make([]any, 0, len(recips))
		for _, r := range recips {
			if m, ok := r.(map[string]any); ok {
				addrs = append(addrs, m["email_address"])
			}
		}
		out["to_recipients"] = addrs
	}

	if atts, ok := raw["attachments"].([]any); ok {
		var files, items []any
		for _, a := range atts {
			m, ok := a.(map[string]any)
			if !ok {
				continue
			}
			switch m["attachmentType"] {
			case string(mailstore.FileAttachment):
				files = append(files, m)
			case string(mailstore.ItemAttachment):
				items = append(items, m)
			}
		}
		if len(files) > 0 {
			out["FileAttachments"] = files
		}
		if len(items) > 0 {
			out["ItemAttachments"] = items
		}
	}
	return out
}
