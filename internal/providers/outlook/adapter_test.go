package outlook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/microsoftgraph/msgraph-sdk-go/models"
	"github.com/microsoftgraph/msgraph-sdk-go/models/odataerrors"

	"github.com/Martian-dev/mailpoll/internal/incident"
	"github.com/Martian-dev/mailpoll/internal/mailstore"
)

func odataError(status int, code string) error {
	e := odataerrors.NewODataError()
	e.ResponseStatusCode = status
	if code != "" {
		me := odataerrors.NewMainError()
		me.SetCode(&code)
		e.SetErrorEscaped(me)
	}
	return e
}

func TestClassify(t *testing.T) {
	tests := []struct {
		status int
		code   string
		want   mailstore.Kind
	}{
		{http.StatusTooManyRequests, "", mailstore.KindRateLimited},
		{http.StatusServiceUnavailable, "ErrorServerBusy", mailstore.KindRateLimited},
		{http.StatusBadRequest, "ApplicationThrottled", mailstore.KindRateLimited},
		{http.StatusNotFound, "ErrorItemNotFound", mailstore.KindNotFound},
		{http.StatusBadRequest, "ErrorInvalidIdMalformed", mailstore.KindNotFound},
		{http.StatusConflict, "", mailstore.KindConflict},
		{http.StatusPreconditionFailed, "", mailstore.KindConflict},
		{http.StatusBadRequest, "ErrorIrresolvableConflict", mailstore.KindConflict},
		{http.StatusServiceUnavailable, "ErrorMailboxStoreUnavailable", mailstore.KindTransient},
		{http.StatusInternalServerError, "ErrorMailboxMoveInProgress", mailstore.KindTransient},
		{http.StatusUnauthorized, "InvalidAuthenticationToken", mailstore.KindUnauthorized},
		{http.StatusForbidden, "", mailstore.KindUnauthorized},
		{http.StatusBadRequest, "ErrorInvalidPropertyRequest", mailstore.KindFatal},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_%s", tt.status, tt.code), func(t *testing.T) {
			err := classify("op", fmt.Errorf("wrapped: %w", odataError(tt.status, tt.code)))
			if got := mailstore.KindOf(err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
			if got := mailstore.CodeOf(err); got != tt.code {
				t.Errorf("CodeOf() = %q, want %q", got, tt.code)
			}
		})
	}
}

func TestClassifyNonODataErrors(t *testing.T) {
	if err := classify("op", nil); err != nil {
		t.Errorf("classify(nil) = %v", err)
	}
	if got := mailstore.KindOf(classify("op", context.DeadlineExceeded)); got != mailstore.KindTransport {
		t.Errorf("deadline kind = %v", got)
	}
	if got := mailstore.KindOf(classify("op", errors.New("boom"))); got != mailstore.KindFatal {
		t.Errorf("plain error kind = %v", got)
	}
}

func ptr[T any](v T) *T { return &v }

func address(name, addr string) models.Recipientable {
	r := models.NewRecipient()
	e := models.NewEmailAddress()
	e.SetName(ptr(name))
	e.SetAddress(ptr(addr))
	r.SetEmailAddress(e)
	return r
}

func TestConvertMessage(t *testing.T) {
	received := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	body := models.NewItemBody()
	body.SetContent(ptr("<p>hi</p>"))
	body.SetContentType(ptr(models.HTML_BODYTYPE))

	header := models.NewInternetMessageHeader()
	header.SetName(ptr("X-Spam"))
	header.SetValue(ptr("yes"))

	file := models.NewFileAttachment()
	file.SetId(ptr("att-1"))
	file.SetName(ptr("invoice.pdf"))
	file.SetContentBytes([]byte("pdf"))
	file.SetSize(ptr(int32(3)))

	embedded := models.NewMessage()
	embedded.SetSubject(ptr("forwarded"))
	itemAtt := models.NewItemAttachment()
	itemAtt.SetId(ptr("att-2"))
	itemAtt.SetName(ptr("fwd"))
	itemAtt.SetItem(embedded)

	m := models.NewMessage()
	m.SetId(ptr("AAMk1"))
	m.SetInternetMessageId(ptr("<m1@example.com>"))
	m.SetSubject(ptr("Suspicious"))
	m.SetBody(body)
	m.SetBodyPreview(ptr("hi"))
	m.SetImportance(ptr(models.HIGH_IMPORTANCE))
	m.SetIsRead(ptr(false))
	m.SetReceivedDateTime(&received)
	m.SetFrom(address("Eve", "eve@example.com"))
	m.SetToRecipients([]models.Recipientable{address("Bob", "bob@example.com")})
	m.SetInternetMessageHeaders([]models.InternetMessageHeaderable{header})
	m.SetAttachments([]models.Attachmentable{file, itemAtt})

	item := convertMessage(m)
	if item.ID != "AAMk1" || item.MessageID != "<m1@example.com>" || item.Subject != "Suspicious" {
		t.Errorf("identity = %+v", item)
	}
	if item.Body != "<p>hi</p>" || item.TextBody != "" || item.Importance != "High" {
		t.Errorf("body = %q %q %q", item.Body, item.TextBody, item.Importance)
	}
	if !item.Received.Equal(received) || item.Kind != mailstore.ItemMessage {
		t.Errorf("received = %v kind = %v", item.Received, item.Kind)
	}
	if item.Author == nil || item.Author.EmailAddress != "eve@example.com" {
		t.Errorf("author = %+v", item.Author)
	}
	if len(item.To) != 1 || item.To[0].Name != "Bob" {
		t.Errorf("to = %+v", item.To)
	}
	if len(item.Headers) != 1 || item.Headers[0].Value != "yes" {
		t.Errorf("headers = %+v", item.Headers)
	}

	if len(item.Attachments) != 2 {
		t.Fatalf("attachments = %+v", item.Attachments)
	}
	if a := item.Attachments[0]; a.Kind != mailstore.FileAttachment || string(a.Content) != "pdf" || a.Size != 3 {
		t.Errorf("file attachment = %+v", a)
	}
	if a := item.Attachments[1]; a.Kind != mailstore.ItemAttachment || a.Item == nil || a.Item.Subject != "forwarded" {
		t.Errorf("item attachment = %+v", a)
	}
}

func TestConvertMessageKeepsFullBody(t *testing.T) {
	html := "<p>" + strings.Repeat("suspicious wire transfer request ", 70) + "</p>"
	preview := html[:255]

	body := models.NewItemBody()
	body.SetContent(ptr(html))
	body.SetContentType(ptr(models.HTML_BODYTYPE))
	m := models.NewMessage()
	m.SetId(ptr("AAMk2"))
	m.SetInternetMessageId(ptr("<m2@example.com>"))
	m.SetBody(body)
	m.SetBodyPreview(ptr(preview))

	inc, err := (&incident.Builder{}).Build(context.Background(), convertMessage(m), false)
	if err != nil {
		t.Fatal(err)
	}
	if inc.Details != html {
		t.Errorf("details len = %d, want %d", len(inc.Details), len(html))
	}
	for _, l := range inc.Labels {
		if l.Type == "Email/text" {
			t.Errorf("Email/text label set from preview: %d chars", len(l.Value))
		}
	}

	text := models.NewItemBody()
	text.SetContent(ptr("plain body"))
	text.SetContentType(ptr(models.TEXT_BODYTYPE))
	m.SetBody(text)
	if got := convertMessage(m); got.TextBody != "plain body" || got.Body != "plain body" {
		t.Errorf("text body = %q %q", got.TextBody, got.Body)
	}
}

func TestConvertFolder(t *testing.T) {
	f := models.NewMailFolder()
	f.SetId(ptr("f1"))
	f.SetDisplayName(ptr("Abuse"))
	f.SetTotalItemCount(ptr(int32(7)))
	f.SetUnreadItemCount(ptr(int32(2)))

	got := convertFolder(f, "Inbox/Abuse")
	if got.ID != "f1" || got.Name != "Abuse" || got.TotalCount != 7 || got.UnreadCount != 2 {
		t.Errorf("folder = %+v", got)
	}
	if got.AbsolutePath != "/root/Top of Information Store/Inbox/Abuse" {
		t.Errorf("AbsolutePath = %q", got.AbsolutePath)
	}
}
