package outlook

import (
	"time"

	"github.com/microsoftgraph/msgraph-sdk-go/models"

	"github.com/Martian-dev/mailpoll/internal/mailstore"
	"github.com/Martian-dev/mailpoll/internal/normalize"
)

var importanceNames = map[models.Importance]string{
	models.LOW_IMPORTANCE:    "Low",
	models.NORMAL_IMPORTANCE: "Normal",
	models.HIGH_IMPORTANCE:   "High",
}

// convertMessage maps a Graph message onto a mailstore item
func convertMessage(m models.Messageable) *mailstore.Item {
	item := &mailstore.Item{
		Kind:           mailstore.ItemMessage,
		ID:             str(m.GetId()),
		ChangeKey:      str(m.GetChangeKey()),
		MessageID:      str(m.GetInternetMessageId()),
		ConversationID: str(m.GetConversationId()),
		ParentFolderID: str(m.GetParentFolderId()),
		Subject:        str(m.GetSubject()),
		Categories:     m.GetCategories(),
		WebLink:        str(m.GetWebLink()),
		IsRead:         boolean(m.GetIsRead()),
		IsDraft:        boolean(m.GetIsDraft()),
		HasAttachments: boolean(m.GetHasAttachments()),
		Created:        timestamp(m.GetCreatedDateTime()),
		Received:       timestamp(m.GetReceivedDateTime()),
		Sent:           timestamp(m.GetSentDateTime()),
		LastModified:   timestamp(m.GetLastModifiedDateTime()),
		Author:         recipient(m.GetFrom()),
		Sender:         recipient(m.GetSender()),
		ReplyTo:        recipients(m.GetReplyTo()),
		To:             recipients(m.GetToRecipients()),
		Cc:             recipients(m.GetCcRecipients()),
		Bcc:            recipients(m.GetBccRecipients()),
	}

	if imp := m.GetImportance(); imp != nil {
		item.Importance = importanceNames[*imp]
	}

	if body := m.GetBody(); body != nil {
		content := str(body.GetContent())
		if ct := body.GetContentType(); ct != nil && *ct == models.TEXT_BODYTYPE {
			item.TextBody = content
		}
		item.Body = content
	}

	for _, h := range m.GetInternetMessageHeaders() {
		item.Headers = append(item.Headers, mailstore.Header{
			Name:  str(h.GetName()),
			Value: str(h.GetValue()),
		})
	}

	for _, a := range m.GetAttachments() {
		item.Attachments = append(item.Attachments, convertAttachment(a))
	}
	return item
}

// convertAttachment maps file and item attachments. Other attachment
// types, such as reference attachments, keep only their metadata.
func convertAttachment(a models.Attachmentable) mailstore.Attachment {
	att := mailstore.Attachment{
		Kind:         mailstore.FileAttachment,
		ID:           str(a.GetId()),
		Name:         str(a.GetName()),
		ContentType:  str(a.GetContentType()),
		IsInline:     boolean(a.GetIsInline()),
		LastModified: timestamp(a.GetLastModifiedDateTime()),
	}
	if size := a.GetSize(); size != nil {
		att.Size = int(*size)
	}

	switch v := a.(type) {
	case models.FileAttachmentable:
		att.Content = v.GetContentBytes()
		att.ContentID = str(v.GetContentId())
		att.ContentLocation = str(v.GetContentLocation())
	case models.ItemAttachmentable:
		att.Kind = mailstore.ItemAttachment
		if msg, ok := v.GetItem().(models.Messageable); ok {
			att.Item = convertMessage(msg)
		}
	}
	return att
}

func convertFolder(f models.MailFolderable, path string) *mailstore.Folder {
	folder := &mailstore.Folder{
		ID:             str(f.GetId()),
		Name:           str(f.GetDisplayName()),
		ParentFolderID: str(f.GetParentFolderId()),
		AbsolutePath:   normalize.RootPrefix + path,
	}
	if n := f.GetTotalItemCount(); n != nil {
		folder.TotalCount = int(*n)
	}
	if n := f.GetUnreadItemCount(); n != nil {
		folder.UnreadCount = int(*n)
	}
	if n := f.GetChildFolderCount(); n != nil {
		folder.ChildFolderCount = int(*n)
	}
	return folder
}

func recipient(r models.Recipientable) *mailstore.Mailbox {
	if r == nil || r.GetEmailAddress() == nil {
		return nil
	}
	addr := r.GetEmailAddress()
	return &mailstore.Mailbox{
		Name:         str(addr.GetName()),
		EmailAddress: str(addr.GetAddress()),
		RoutingType:  "SMTP",
	}
}

func recipients(rs []models.Recipientable) []mailstore.Mailbox {
	var out []mailstore.Mailbox
	for _, r := range rs {
		if m := recipient(r); m != nil {
			out = append(out, *m)
		}
	}
	return out
}

func str(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func boolean(b *bool) bool {
	return b != nil && *b
}

func timestamp(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}
