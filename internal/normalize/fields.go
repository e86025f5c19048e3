package normalize

import (
	"time"

	"github.com/Martian-dev/mailpoll/internal/mailstore"
)

// field maps a record key to the rule extracting it from an item.
// extract reports false when the field is absent and must be omitted.
type field struct {
	name    string
	extract func(it *mailstore.Item) (any, bool)
}

func scalar(name string, get func(it *mailstore.Item) any) field {
	return field{name: name, extract: func(it *mailstore.Item) (any, bool) {
		return get(it), true
	}}
}

func date(name string, get func(it *mailstore.Item) time.Time) field {
	return field{name: name, extract: func(it *mailstore.Item) (any, bool) {
		t := get(it)
		if t.IsZero() {
			return nil, false
		}
		return mailstore.FormatTime(t), true
	}}
}

func mailbox(name string, get func(it *mailstore.Item) *mailstore.Mailbox) field {
	return field{name: name, extract: func(it *mailstore.Item) (any, bool) {
		m := get(it)
		if m == nil {
			return nil, false
		}
		return mailboxRecord(*m), true
	}}
}

func mailboxes(name string, get func(it *mailstore.Item) []mailstore.Mailbox) field {
	return field{name: name, extract: func(it *mailstore.Item) (any, bool) {
		ms := get(it)
		if len(ms) == 0 {
			return nil, false
		}
		out := make([]any, 0, len(ms))
		for _, m := range ms {
			out = append(out, mailboxRecord(m))
		}
		return out, true
	}}
}

func identifier(name string, get func(it *mailstore.Item) string) field {
	return field{name: name, extract: func(it *mailstore.Item) (any, bool) {
		id := get(it)
		if id == "" {
			return nil, false
		}
		return map[string]any{"id": id}, true
	}}
}

// messageFields is the fixed extraction table for message items
var messageFields = []field{
	scalar("id", func(it *mailstore.Item) any { return it.ID }),
	scalar("changekey", func(it *mailstore.Item) any { return it.ChangeKey }),
	scalar("message_id", func(it *mailstore.Item) any { return nullable(it.MessageID) }),
	scalar("subject", func(it *mailstore.Item) any { return it.Subject }),
	scalar("text_body", func(it *mailstore.Item) any { return nullable(it.TextBody) }),
	scalar("body", func(it *mailstore.Item) any { return it.Body }),
	scalar("importance", func(it *mailstore.Item) any { return nullable(it.Importance) }),
	scalar("size", func(it *mailstore.Item) any { return it.Size }),
	scalar("is_read", func(it *mailstore.Item) any { return it.IsRead }),
	scalar("is_draft", func(it *mailstore.Item) any { return it.IsDraft }),
	scalar("has_attachments", func(it *mailstore.Item) any { return it.HasAttachments }),
	scalar("web_link", func(it *mailstore.Item) any { return nullable(it.WebLink) }),
	{name: "categories", extract: func(it *mailstore.Item) (any, bool) {
		if len(it.Categories) == 0 {
			return nil, false
		}
		out := make([]any, 0, len(it.Categories))
		for _, c := range it.Categories {
			out = append(out, c)
		}
		return out, true
	}},

	date("datetime_sent", func(it *mailstore.Item) time.Time { return it.Sent }),
	date("datetime_created", func(it *mailstore.Item) time.Time { return it.Created }),
	date("datetime_received", func(it *mailstore.Item) time.Time { return it.Received }),
	date("last_modified_time", func(it *mailstore.Item) time.Time { return it.LastModified }),
	date("reminder_due_by", func(it *mailstore.Item) time.Time { return it.ReminderDueBy }),

	identifier("conversation_id", func(it *mailstore.Item) string { return it.ConversationID }),
	identifier("parent_folder_id", func(it *mailstore.Item) string { return it.ParentFolderID }),
	mailbox("author", func(it *mailstore.Item) *mailstore.Mailbox { return it.Author }),
	mailbox("sender", func(it *mailstore.Item) *mailstore.Mailbox { return it.Sender }),
	mailbox("received_by", func(it *mailstore.Item) *mailstore.Mailbox { return it.ReceivedBy }),
	mailbox("received_representing", func(it *mailstore.Item) *mailstore.Mailbox { return it.ReceivedRepresenting }),
	mailboxes("reply_to", func(it *mailstore.Item) []mailstore.Mailbox { return it.ReplyTo }),
	mailboxes("to_recipients", func(it *mailstore.Item) []mailstore.Mailbox { return it.To }),
	mailboxes("cc_recipients", func(it *mailstore.Item) []mailstore.Mailbox { return it.Cc }),
	mailboxes("bcc_recipients", func(it *mailstore.Item) []mailstore.Mailbox { return it.Bcc }),

	{name: "headers", extract: func(it *mailstore.Item) (any, bool) {
		if len(it.Headers) == 0 {
			return nil, false
		}
		out := make([]any, 0, len(it.Headers))
		for _, h := range it.Headers {
			out = append(out, map[string]any{"name": h.Name, "value": h.Value})
		}
		return out, true
	}},
	{name: "folder", extract: func(it *mailstore.Item) (any, bool) {
		if it.Folder == nil {
			return nil, false
		}
		return folderRecord(*it.Folder), true
	}},
	{name: "folder_path", extract: func(it *mailstore.Item) (any, bool) {
		if it.Folder == nil {
			return nil, false
		}
		return FolderPath(it.Folder.AbsolutePath), true
	}},
}

// compactFields are copied verbatim into compact records
var compactFields = []string{
	"datetime_created",
	"datetime_received",
	"datetime_sent",
	"has_attachments",
	"importance",
	"message_id",
	"last_modified_time",
	"size",
	"subject",
	"text_body",
	"headers",
	"body",
	"folder_path",
	"is_read",
}

// compactAddressFields collapse to their email address
var compactAddressFields = []string{"received_by", "author", "sender"}

func mailboxRecord(m mailstore.Mailbox) map[string]any {
	return map[string]any{
		"name":          nullable(m.Name),
		"email_address": nullable(m.EmailAddress),
		"routing_type":  nullable(m.RoutingType),
		"mailbox_type":  nullable(m.MailboxType),
	}
}

func folderRecord(f mailstore.Folder) map[string]any {
	rec := map[string]any{
		"id":                 f.ID,
		"name":               f.Name,
		"absolute":           f.AbsolutePath,
		"changekey":          nullable(f.ChangeKey),
		"total_count":        f.TotalCount,
		"unread_count":       f.UnreadCount,
		"child_folder_count": f.ChildFolderCount,
	}
	if f.ParentFolderID != "" {
		rec["parent_folder_id"] = map[string]any{"id": f.ParentFolderID}
	}
	return rec
}

// nullable maps the empty string to a JSON null
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
