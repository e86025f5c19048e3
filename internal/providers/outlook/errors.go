package outlook

import (
	"errors"
	"net/http"

	"github.com/microsoftgraph/msgraph-sdk-go/models/odataerrors"

	"github.com/Martian-dev/mailpoll/internal/mailstore"
)

var codeKinds = map[string]mailstore.Kind{
	"ErrorServerBusy":              mailstore.KindRateLimited,
	"ApplicationThrottled":         mailstore.KindRateLimited,
	"ErrorItemNotFound":            mailstore.KindNotFound,
	"ErrorInvalidIdMalformed":      mailstore.KindNotFound,
	"ErrorFolderNotFound":          mailstore.KindNotFound,
	"ErrorIrresolvableConflict":    mailstore.KindConflict,
	"ErrorMailboxStoreUnavailable": mailstore.KindTransient,
	"ErrorMailboxMoveInProgress":   mailstore.KindTransient,
	"MailboxStoreUnavailable":      mailstore.KindTransient,
}

// classify converts a Graph SDK error into a *mailstore.Error. Errors that
// are not OData responses keep the kind mailstore.KindOf assigns them.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var odataErr *odataerrors.ODataError
	if !errors.As(err, &odataErr) {
		return &mailstore.Error{Kind: mailstore.KindOf(err), Op: op, Err: err}
	}

	code := ""
	if me := odataErr.GetErrorEscaped(); me != nil && me.GetCode() != nil {
		code = *me.GetCode()
	}
	status := odataErr.GetStatusCode()
	return &mailstore.Error{
		Kind:   kindOf(status, code),
		Op:     op,
		Code:   code,
		Status: status,
		Err:    err,
	}
}

func kindOf(status int, code string) mailstore.Kind {
	if kind, ok := codeKinds[code]; ok {
		return kind
	}
	switch status {
	case http.StatusTooManyRequests:
		return mailstore.KindRateLimited
	case http.StatusNotFound:
		return mailstore.KindNotFound
	case http.StatusConflict, http.StatusPreconditionFailed:
		return mailstore.KindConflict
	case http.StatusUnauthorized, http.StatusForbidden:
		return mailstore.KindUnauthorized
	case http.StatusServiceUnavailable:
		return mailstore.KindTransient
	}
	return mailstore.KindFatal
}
