// Package eml renders mailbox items as RFC 5322 messages.
package eml

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"

	"github.com/Martian-dev/mailpoll/internal/mailstore"
)

// Render returns item as an .eml payload. When the store supplied the MIME
// content, item headers missing from it are merged in (Content-Type is
// never overridden). Otherwise a single part message is synthesized from
// the item fields.
func Render(item *mailstore.Item) ([]byte, error) {
	if len(item.MimeContent) > 0 {
		return merge(item.MimeContent, item.Headers)
	}
	return synthesize(item)
}

// FileName returns the attachment file name for a rendered item
func FileName(name string) string {
	if name == "" {
		name = "untitled_eml"
	}
	return name + ".eml"
}

func merge(mime []byte, headers []mailstore.Header) ([]byte, error) {
	br := bufio.NewReader(bytes.NewReader(mime))
	h, err := textproto.ReadHeader(br)
	if err != nil {
		return nil, fmt.Errorf("read mime header: %w", err)
	}

	present := make(map[string]bool)
	fields := h.Fields()
	for fields.Next() {
		present[fieldKey(fields.Key(), fields.Value())] = true
	}

	for _, hdr := range headers {
		if strings.EqualFold(hdr.Name, "Content-Type") {
			continue
		}
		if present[fieldKey(hdr.Name, hdr.Value)] {
			continue
		}
		h.Add(hdr.Name, hdr.Value)
	}

	var buf bytes.Buffer
	if err := textproto.WriteHeader(&buf, h); err != nil {
		return nil, fmt.Errorf("write mime header: %w", err)
	}
	if _, err := io.Copy(&buf, br); err != nil {
		return nil, fmt.Errorf("copy mime body: %w", err)
	}
	return buf.Bytes(), nil
}

// fieldKey identifies a header field independent of folding
func fieldKey(name, value string) string {
	return strings.ToLower(name) + ":" + strings.Join(strings.Fields(value), " ")
}

func synthesize(item *mailstore.Item) ([]byte, error) {
	var h mail.Header
	if !item.Sent.IsZero() {
		h.SetDate(item.Sent)
	} else if !item.Created.IsZero() {
		h.SetDate(item.Created)
	}
	h.SetSubject(item.Subject)
	if item.MessageID != "" {
		h.SetMessageID(strings.Trim(item.MessageID, "<>"))
	}
	if item.Sender != nil {
		h.SetAddressList("From", addresses([]mailstore.Mailbox{*item.Sender}))
	}
	if len(item.To) > 0 {
		h.SetAddressList("To", addresses(item.To))
	}
	if len(item.Cc) > 0 {
		h.SetAddressList("Cc", addresses(item.Cc))
	}

	body := item.Body
	contentType := "text/html"
	if body == "" {
		body = item.TextBody
		contentType = "text/plain"
	}
	h.SetContentType(contentType, map[string]string{"charset": "utf-8"})

	for _, hdr := range item.Headers {
		if strings.EqualFold(hdr.Name, "Content-Type") || h.Has(hdr.Name) {
			continue
		}
		h.Add(hdr.Name, hdr.Value)
	}

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create message writer: %w", err)
	}
	if _, err := io.WriteString(w, body); err != nil {
		return nil, fmt.Errorf("write message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close message writer: %w", err)
	}
	return buf.Bytes(), nil
}

func addresses(ms []mailstore.Mailbox) []*mail.Address {
	out := make([]*mail.Address, 0, len(ms))
	for _, m := range ms {
		if m.EmailAddress == "" {
			continue
		}
		out = append(out, &mail.Address{Name: m.Name, Address: m.EmailAddress})
	}
	return out
}
