package incident

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/Martian-dev/mailpoll/internal/mailstore"
	"github.com/Martian-dev/mailpoll/internal/mailstore/mailstoretest"
)

func testItem() *mailstore.Item {
	at := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	return &mailstore.Item{
		ID:             "item-1",
		Kind:           mailstore.ItemMessage,
		MessageID:      "<m1@corp.test>",
		ConversationID: "conv-1",
		Subject:        "Alert",
		TextBody:       "plain",
		Body:           "<b>rich</b>",
		Created:        at,
		Received:       at,
		Sender:         &mailstore.Mailbox{EmailAddress: "from@corp.test"},
		To:             []mailstore.Mailbox{{EmailAddress: "a@corp.test"}, {EmailAddress: "b@corp.test"}},
		Cc:             []mailstore.Mailbox{{EmailAddress: "c@corp.test"}},
		Headers: []mailstore.Header{
			{Name: "X-A", Value: "1"},
			{Name: "X-B", Value: "2"},
		},
		Attachments: []mailstore.Attachment{
			{ID: "att-f", Kind: mailstore.FileAttachment, Name: "a.txt", Content: []byte("data")},
			{ID: "att-i", Kind: mailstore.ItemAttachment, Name: "fwd", Item: &mailstore.Item{
				MimeContent: []byte("Subject: inner\r\n\r\nbody\r\n"),
			}},
		},
	}
}

func TestBuildLabels(t *testing.T) {
	b := &Builder{Store: mailstoretest.New()}
	inc, err := b.Build(context.Background(), testItem(), false)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	want := []Label{
		{"Email/subject", "Alert"},
		{"Email", "a@corp.test"},
		{"Email", "b@corp.test"},
		{"Email/cc", "c@corp.test"},
		{"Email/from", "from@corp.test"},
		{"Email/text", "plain"},
		{"Email/html", "<b>rich</b>"},
		{"Email/format", "HTML"},
		{"attachments", "a.txt"},
		{"attachmentId", "att-f"},
		{"attachmentItems", "fwd"},
		{"attachmentItemsId", "att-i"},
		{"Email/Header/X-A", "1"},
		{"Email/Header/X-B", "2"},
		{"Email/headers", "X-A: 1\r\nX-B: 2"},
		{"Email/MessageId", "<m1@corp.test>"},
		{"Email/ID", "item-1"},
		{"Email/itemId", "item-1"},
		{"Email/ConversionID", "conv-1"},
	}
	if !reflect.DeepEqual(inc.Labels, want) {
		t.Errorf("labels =\n%v\nwant\n%v", inc.Labels, want)
	}

	if inc.Name != "Alert" || inc.Details != "plain" {
		t.Errorf("name/details = %q/%q", inc.Name, inc.Details)
	}
	if inc.Occurred != "2024-05-01T08:00:00Z" {
		t.Errorf("occurred = %q", inc.Occurred)
	}

	if len(inc.Attachment) != 2 {
		t.Fatalf("attachments = %d", len(inc.Attachment))
	}
	if inc.Attachment[0].Name != "a.txt" || string(inc.Attachment[0].Data) != "data" {
		t.Errorf("file blob = %+v", inc.Attachment[0])
	}
	if inc.Attachment[1].Name != "fwd.eml" {
		t.Errorf("item blob name = %q", inc.Attachment[1].Name)
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(inc.RawJSON), &raw); err != nil {
		t.Fatalf("rawJSON: %v", err)
	}
	if raw["message_id"] != "<m1@corp.test>" {
		t.Errorf("rawJSON is not the full record: %v", raw)
	}
}

func TestBuildDetailsFallsBackToBody(t *testing.T) {
	item := testItem()
	item.TextBody = ""
	b := &Builder{Store: mailstoretest.New()}
	inc, err := b.Build(context.Background(), item, false)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if inc.Details != "<b>rich</b>" {
		t.Errorf("details = %q", inc.Details)
	}
}

func TestBuildMarksReadOnFetch(t *testing.T) {
	store := mailstoretest.New()
	b := &Builder{Store: store, MarkAsRead: true}

	if _, err := b.Build(context.Background(), testItem(), false); err != nil {
		t.Fatal(err)
	}
	if store.Saves != 0 {
		t.Errorf("non-fetch build saved the item")
	}

	if _, err := b.Build(context.Background(), testItem(), true); err != nil {
		t.Fatal(err)
	}
	if store.Saves != 1 || !store.ReadMarks["item-1"] {
		t.Errorf("saves = %d, read = %v", store.Saves, store.ReadMarks["item-1"])
	}
}

func TestBuildRetriesConflictOnce(t *testing.T) {
	conflict := &mailstore.Error{Kind: mailstore.KindConflict, Op: "save item", Code: "ErrorIrresolvableConflict"}

	store := mailstoretest.New()
	store.SaveErrs = []error{conflict}
	b := &Builder{Store: store, MarkAsRead: true, ConflictDelay: time.Millisecond}
	if _, err := b.Build(context.Background(), testItem(), true); err != nil {
		t.Fatalf("single conflict should be retried: %v", err)
	}
	if store.Saves != 2 {
		t.Errorf("saves = %d, want 2", store.Saves)
	}

	store = mailstoretest.New()
	store.SaveErrs = []error{conflict, conflict}
	b.Store = store
	_, err := b.Build(context.Background(), testItem(), true)
	if mailstore.KindOf(err) != mailstore.KindConflict {
		t.Fatalf("second conflict must propagate, got %v", err)
	}
	if store.Saves != 2 {
		t.Errorf("saves = %d, want 2", store.Saves)
	}
}

func TestBuildDoesNotRetryOtherErrors(t *testing.T) {
	store := mailstoretest.New()
	store.SaveErrs = []error{errors.New("boom")}
	b := &Builder{Store: store, MarkAsRead: true, ConflictDelay: time.Millisecond}
	if _, err := b.Build(context.Background(), testItem(), true); err == nil {
		t.Fatal("expected error")
	}
	if store.Saves != 1 {
		t.Errorf("saves = %d, want 1", store.Saves)
	}
}
