// Package outlook implements mailstore.Store on top of Microsoft Graph.
package outlook

import (
	"context"
	"fmt"
	"iter"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	abstractions "github.com/microsoft/kiota-abstractions-go"
	msgraphsdk "github.com/microsoftgraph/msgraph-sdk-go"
	"github.com/microsoftgraph/msgraph-sdk-go/models"
	"github.com/microsoftgraph/msgraph-sdk-go/models/odataerrors"
	"github.com/microsoftgraph/msgraph-sdk-go/users"

	"github.com/Martian-dev/mailpoll/internal/auth"
	"github.com/Martian-dev/mailpoll/internal/mailstore"
	"github.com/Martian-dev/mailpoll/internal/normalize"
)

// PageSize is the number of messages requested per Graph page
const PageSize = 50

// DefaultRequestTimeout bounds every Graph round trip
const DefaultRequestTimeout = 120 * time.Second

const rootFolderID = "msgfolderroot"

// wellKnown maps folder names to Graph well-known folder ids
var wellKnown = map[string]string{
	"Inbox":        "inbox",
	"SentItems":    "sentitems",
	"DeletedItems": "deleteditems",
	"Drafts":       "drafts",
	"JunkEmail":    "junkemail",
	"Archive":      "archive",
}

var messageFields = []string{
	"id", "changeKey", "internetMessageId", "conversationId", "parentFolderId",
	"subject", "body", "bodyPreview", "importance", "categories", "webLink",
	"isRead", "isDraft", "hasAttachments",
	"createdDateTime", "receivedDateTime", "sentDateTime", "lastModifiedDateTime",
	"from", "sender", "replyTo", "toRecipients", "ccRecipients", "bccRecipients",
	"internetMessageHeaders",
}

// Adapter is a mailstore.Store for one Exchange Online mailbox
type Adapter struct {
	client  *msgraphsdk.GraphServiceClient
	mailbox string
	timeout time.Duration

	folders      map[string]*mailstore.Folder
	foldersMutex sync.Mutex
}

// New creates an adapter for mailbox authenticating with cred
func New(cred azcore.TokenCredential, mailbox string, timeout time.Duration) (*Adapter, error) {
	client, err := msgraphsdk.NewGraphServiceClientWithCredentials(cred, []string{auth.GraphScope})
	if err != nil {
		return nil, fmt.Errorf("failed to create Graph client: %w", err)
	}
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &Adapter{
		client:  client,
		mailbox: mailbox,
		timeout: timeout,
		folders: make(map[string]*mailstore.Folder),
	}, nil
}

func (a *Adapter) user() *users.UserItemRequestBuilder {
	return a.client.Users().ByUserId(a.mailbox)
}

func (a *Adapter) call(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, a.timeout)
}

// QueryFolder yields messages received at or after since, oldest first,
// following @odata.nextLink lazily
func (a *Adapter) QueryFolder(ctx context.Context, folder string, since time.Time) iter.Seq2[*mailstore.Item, error] {
	return func(yield func(*mailstore.Item, error) bool) {
		f, err := a.ResolveFolder(ctx, folder)
		if err != nil {
			yield(nil, err)
			return
		}

		filter := "receivedDateTime ge " + mailstore.FormatTime(since)
		top := int32(PageSize)
		builder := a.user().MailFolders().ByMailFolderId(f.ID).Messages()
		config := &users.ItemMailFoldersItemMessagesRequestBuilderGetRequestConfiguration{
			QueryParameters: &users.ItemMailFoldersItemMessagesRequestBuilderGetQueryParameters{
				Filter:  &filter,
				Orderby: []string{"receivedDateTime asc"},
				Top:     &top,
				Select:  messageFields,
				Expand:  []string{"attachments"},
			},
		}

		for {
			callCtx, cancel := a.call(ctx)
			page, err := builder.Get(callCtx, config)
			cancel()
			if err != nil {
				yield(nil, classify("query folder", err))
				return
			}

			for _, msg := range page.GetValue() {
				item := convertMessage(msg)
				item.Folder = f
				if err := a.loadItemAttachments(ctx, item); err != nil {
					yield(nil, err)
					return
				}
				if !yield(item, nil) {
					return
				}
			}

			next := page.GetOdataNextLink()
			if next == nil || *next == "" {
				return
			}
			builder = builder.WithUrl(*next)
			config = nil
		}
	}
}

// GetItem fetches a message together with its MIME content
func (a *Adapter) GetItem(ctx context.Context, id string) (*mailstore.Item, error) {
	callCtx, cancel := a.call(ctx)
	defer cancel()

	msg, err := a.user().Messages().ByMessageId(id).Get(callCtx, &users.ItemMessagesMessageItemRequestBuilderGetRequestConfiguration{
		QueryParameters: &users.ItemMessagesMessageItemRequestBuilderGetQueryParameters{
			Select: messageFields,
			Expand: []string{"attachments"},
		},
	})
	if err != nil {
		return nil, classify("get item", err)
	}
	item := convertMessage(msg)

	mime, err := a.user().Messages().ByMessageId(id).Content().Get(callCtx, nil)
	if err != nil {
		return nil, classify("get item content", err)
	}
	item.MimeContent = mime

	if err := a.loadItemAttachments(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// SaveItem writes the read flag back to the mailbox
func (a *Adapter) SaveItem(ctx context.Context, item *mailstore.Item) error {
	return a.MarkRead(ctx, item, item.IsRead)
}

// MarkRead sets the read flag of item
func (a *Adapter) MarkRead(ctx context.Context, item *mailstore.Item, read bool) error {
	callCtx, cancel := a.call(ctx)
	defer cancel()

	patch := models.NewMessage()
	patch.SetIsRead(&read)
	updated, err := a.user().Messages().ByMessageId(item.ID).Patch(callCtx, patch, nil)
	if err != nil {
		return classify("mark read", err)
	}
	item.IsRead = read
	if updated != nil && updated.GetChangeKey() != nil {
		item.ChangeKey = *updated.GetChangeKey()
	}
	return nil
}

// AccountRoot returns the root of the mailbox folder tree
func (a *Adapter) AccountRoot(ctx context.Context) (*mailstore.Folder, error) {
	callCtx, cancel := a.call(ctx)
	defer cancel()

	f, err := a.user().MailFolders().ByMailFolderId(rootFolderID).Get(callCtx, nil)
	if err != nil {
		return nil, classify("account root", err)
	}
	root := convertFolder(f, "")
	root.AbsolutePath = strings.TrimSuffix(normalize.RootPrefix, "/")
	return root, nil
}

// ResolveFolder resolves a slash separated folder path. The first segment
// may name a well-known folder; other segments are matched by display name.
func (a *Adapter) ResolveFolder(ctx context.Context, path string) (*mailstore.Folder, error) {
	path = strings.Trim(path, "/")
	if path == "" {
		path = "Inbox"
	}

	a.foldersMutex.Lock()
	cached, ok := a.folders[path]
	a.foldersMutex.Unlock()
	if ok {
		return cached, nil
	}

	segments := strings.Split(path, "/")
	var (
		current *mailstore.Folder
		err     error
	)
	if id, ok := wellKnown[segments[0]]; ok {
		current, err = a.folderByID(ctx, id, segments[0])
		segments = segments[1:]
	} else {
		current = &mailstore.Folder{ID: rootFolderID}
	}
	if err != nil {
		return nil, err
	}

	walked := ""
	if current.ID != rootFolderID {
		walked = current.Name
	}
	for _, name := range segments {
		if walked != "" {
			walked += "/"
		}
		walked += name
		current, err = a.childFolder(ctx, current.ID, name, walked)
		if err != nil {
			return nil, err
		}
	}

	a.foldersMutex.Lock()
	a.folders[path] = current
	a.foldersMutex.Unlock()
	return current, nil
}

func (a *Adapter) folderByID(ctx context.Context, id, path string) (*mailstore.Folder, error) {
	callCtx, cancel := a.call(ctx)
	defer cancel()

	f, err := a.user().MailFolders().ByMailFolderId(id).Get(callCtx, nil)
	if err != nil {
		return nil, classify("resolve folder", err)
	}
	return convertFolder(f, path), nil
}

func (a *Adapter) childFolder(ctx context.Context, parentID, name, path string) (*mailstore.Folder, error) {
	callCtx, cancel := a.call(ctx)
	defer cancel()

	filter := "displayName eq '" + strings.ReplaceAll(name, "'", "''") + "'"
	res, err := a.user().MailFolders().ByMailFolderId(parentID).ChildFolders().Get(callCtx,
		&users.ItemMailFoldersItemChildFoldersRequestBuilderGetRequestConfiguration{
			QueryParameters: &users.ItemMailFoldersItemChildFoldersRequestBuilderGetQueryParameters{
				Filter: &filter,
			},
		})
	if err != nil {
		return nil, classify("resolve folder", err)
	}
	folders := res.GetValue()
	if len(folders) == 0 {
		return nil, &mailstore.Error{
			Kind: mailstore.KindNotFound,
			Op:   "resolve folder",
			Code: "ErrorFolderNotFound",
			Err:  fmt.Errorf("folder %q not found", path),
		}
	}
	return convertFolder(folders[0], path), nil
}

// loadItemAttachments re-fetches item attachments with their embedded item
// and MIME content, which the attachments expansion leaves out
func (a *Adapter) loadItemAttachments(ctx context.Context, item *mailstore.Item) error {
	for i := range item.Attachments {
		att := &item.Attachments[i]
		if att.Kind != mailstore.ItemAttachment {
			continue
		}

		callCtx, cancel := a.call(ctx)
		res, err := a.user().Messages().ByMessageId(item.ID).Attachments().ByAttachmentId(att.ID).Get(callCtx,
			&users.ItemMessagesItemAttachmentsAttachmentItemRequestBuilderGetRequestConfiguration{
				QueryParameters: &users.ItemMessagesItemAttachmentsAttachmentItemRequestBuilderGetQueryParameters{
					Expand: []string{"microsoft.graph.itemAttachment/item"},
				},
			})
		cancel()
		if err != nil {
			return classify("get item attachment", err)
		}
		if full := convertAttachment(res); full.Item != nil {
			att.Item = full.Item
		}

		mime, err := a.attachmentValue(ctx, item.ID, att.ID)
		if err != nil {
			return err
		}
		if att.Item == nil {
			att.Item = &mailstore.Item{Kind: mailstore.ItemMessage}
		}
		att.Item.MimeContent = mime
	}
	return nil
}

// attachmentValue downloads the raw $value of an attachment. For item
// attachments Graph returns the embedded message as MIME.
func (a *Adapter) attachmentValue(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	adapter := a.client.GetAdapter()
	raw := fmt.Sprintf("%s/users/%s/messages/%s/attachments/%s/$value",
		adapter.GetBaseUrl(), url.PathEscape(a.mailbox), url.PathEscape(messageID), url.PathEscape(attachmentID))
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("attachment url: %w", err)
	}

	info := abstractions.NewRequestInformation()
	info.Method = abstractions.GET
	info.SetUri(*u)
	info.Headers.TryAdd("Accept", "application/octet-stream")

	callCtx, cancel := a.call(ctx)
	defer cancel()
	res, err := adapter.SendPrimitive(callCtx, info, "[]byte", abstractions.ErrorMappings{
		"XXX": odataerrors.CreateODataErrorFromDiscriminatorValue,
	})
	if err != nil {
		return nil, classify("get attachment content", err)
	}
	data, _ := res.([]byte)
	return data, nil
}

var _ mailstore.Store = (*Adapter)(nil)
