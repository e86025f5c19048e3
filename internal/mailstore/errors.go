package mailstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
)

// Kind classifies a mail store failure
type Kind int

const (
	KindOK Kind = iota
	KindNotFound
	KindRateLimited
	KindConflict
	KindTransient
	KindTransport
	KindMalformed
	KindUnauthorized
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindNotFound:
		return "not_found"
	case KindRateLimited:
		return "rate_limited"
	case KindConflict:
		return "conflict"
	case KindTransient:
		return "transient"
	case KindTransport:
		return "transport"
	case KindMalformed:
		return "malformed"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "fatal"
	}
}

// Error is returned by Store implementations
type Error struct {
	Kind   Kind
	Op     string
	Code   string // remote error code, e.g. ErrorServerBusy
	Status int    // HTTP status when known
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Code != "" {
		msg = e.Code
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf builds an *Error of the given kind
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf classifies err. Errors not produced by a Store are classified by
// their dynamic type: network failures are transport errors, JSON decode
// failures are malformed responses, anything else is fatal.
func KindOf(err error) Kind {
	if err == nil {
		return KindOK
	}

	var storeErr *Error
	if errors.As(err, &storeErr) {
		return storeErr.Kind
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return KindMalformed
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransport
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return KindTransport
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindTransport
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransport
	}

	return KindFatal
}

// IsDNS reports whether err was caused by a failed host name lookup
func IsDNS(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

// CodeOf returns the remote error code carried by err, if any
func CodeOf(err error) string {
	var storeErr *Error
	if errors.As(err, &storeErr) {
		return storeErr.Code
	}
	return ""
}

const maintenanceMessage = "Office365 is undergoing load balancing operations. " +
	"As a result, the service is temporarily unavailable."

// Explain returns a short human readable message for err. Interactive
// callers get a retry hint for transient failures.
func Explain(err error, interactive bool) string {
	if err == nil {
		return ""
	}

	if CodeOf(err) == "ErrorInvalidPropertyRequest" {
		return "Verify that the Exchange version is correct."
	}

	switch KindOf(err) {
	case KindTransient:
		if interactive {
			return maintenanceMessage + " Please retry your request."
		}
		return maintenanceMessage
	case KindTransport:
		if IsDNS(err) {
			return "Could not resolve the server host name.\n" +
				"Verify that the Hostname is correct and reachable from this network.\n\n" +
				"Additional information: " + err.Error()
		}
		return "Could not connect to the server.\n" +
			"Verify that the Hostname or IP address is correct.\n\n" +
			"Additional information: " + err.Error()
	case KindMalformed:
		return "Got invalid response from the server.\n" +
			"Verify that the Hostname or IP address is correct."
	case KindUnauthorized:
		return "Got unauthorized from the server. " +
			"Check credentials are correct and authentication method are supported."
	case KindRateLimited:
		return "The server is throttling requests. Too many consecutive rate limit failures."
	case KindNotFound:
		return "One or more items were not found. Check the input item ids"
	}
	return err.Error()
}
