package mailstore

import (
	"time"
)

// ItemKind distinguishes messages from other mailbox items
type ItemKind string

const (
	ItemMessage  ItemKind = "Message"
	ItemCalendar ItemKind = "CalendarItem"
	ItemContact  ItemKind = "Contact"
	ItemTask     ItemKind = "Task"
)

// AttachmentKind tags how an attachment is carried
type AttachmentKind string

const (
	FileAttachment AttachmentKind = "FileAttachment"
	ItemAttachment AttachmentKind = "ItemAttachment"
)

// Mailbox represents a sender or recipient
type Mailbox struct {
	Name         string
	EmailAddress string
	RoutingType  string
	MailboxType  string
}

// Header represents a single internet message header
type Header struct {
	Name  string
	Value string
}

// Folder represents a mailbox folder as reported by the store
type Folder struct {
	ID               string
	Name             string
	AbsolutePath     string
	ParentFolderID   string
	ChangeKey        string
	TotalCount       int
	UnreadCount      int
	ChildFolderCount int
}

// Attachment represents a file or item attached to a message
type Attachment struct {
	ID              string
	Kind            AttachmentKind
	Name            string
	ContentType     string
	ContentID       string
	ContentLocation string
	Size            int
	IsInline        bool
	LastModified    time.Time

	// Content holds the binary payload of a file attachment
	Content []byte

	// Item holds the embedded item of an item attachment
	Item *Item
}

// Item represents a raw mailbox item fetched from a folder
type Item struct {
	ID             string
	ChangeKey      string
	Kind           ItemKind
	MessageID      string
	ConversationID string
	ParentFolderID string

	Subject    string
	TextBody   string
	Body       string
	Importance string
	Categories []string
	WebLink    string
	Size       int

	IsRead         bool
	IsDraft        bool
	HasAttachments bool

	Created       time.Time
	Received      time.Time
	Sent          time.Time
	LastModified  time.Time
	ReminderDueBy time.Time

	Author               *Mailbox
	Sender               *Mailbox
	ReceivedBy           *Mailbox
	ReceivedRepresenting *Mailbox
	ReplyTo              []Mailbox
	To                   []Mailbox
	Cc                   []Mailbox
	Bcc                  []Mailbox

	Headers     []Header
	Folder      *Folder
	Attachments []Attachment

	// MimeContent is the raw RFC 5322 message when the store provides it
	MimeContent []byte
}

// IsMessage reports whether the item is of the message kind
func (it *Item) IsMessage() bool {
	return it != nil && (it.Kind == ItemMessage || it.Kind == "")
}

// TimeLayout is the textual timestamp format used for rendered dates and
// persisted watermarks
const TimeLayout = "2006-01-02T15:04:05Z"

// FormatTime renders t in TimeLayout
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a timestamp written by FormatTime. RFC 3339 input with
// fractional seconds or offsets is accepted as well.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
