package mailstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
)

func TestKindOf(t *testing.T) {
	var syntaxErr *json.SyntaxError
	jsonErr := json.Unmarshal([]byte("{"), &struct{}{})
	if !errors.As(jsonErr, &syntaxErr) {
		t.Fatalf("expected a json syntax error, got %T", jsonErr)
	}

	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindOK},
		{"store error", &Error{Kind: KindRateLimited}, KindRateLimited},
		{"wrapped store error", fmt.Errorf("query: %w", &Error{Kind: KindConflict}), KindConflict},
		{"dns", &net.DNSError{Err: "no such host", Name: "outlook.example"}, KindTransport},
		{"op error", &net.OpError{Op: "dial", Err: errors.New("refused")}, KindTransport},
		{"json", jsonErr, KindMalformed},
		{"plain", errors.New("boom"), KindFatal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := KindOf(tc.err); got != tc.want {
				t.Errorf("KindOf() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestErrorMessage(t *testing.T) {
	err := &Error{Kind: KindRateLimited, Op: "query folder", Code: "ErrorServerBusy", Err: errors.New("slow down")}
	if got := err.Error(); got != "query folder: ErrorServerBusy: slow down" {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(err, err.Err) {
		t.Error("expected Unwrap to expose the cause")
	}
}

func TestExplain(t *testing.T) {
	transient := &Error{Kind: KindTransient, Code: "ErrorMailboxStoreUnavailable"}

	if got := Explain(transient, false); strings.Contains(got, "retry") {
		t.Errorf("poll explanation should not suggest a retry: %q", got)
	}
	if got := Explain(transient, true); !strings.HasSuffix(got, "Please retry your request.") {
		t.Errorf("interactive explanation should suggest a retry: %q", got)
	}

	dns := fmt.Errorf("get token: %w", &net.DNSError{Err: "no such host", Name: "login.example"})
	if got := Explain(dns, false); !strings.HasPrefix(got, "Could not resolve") {
		t.Errorf("dns explanation = %q", got)
	}

	refused := &net.OpError{Op: "dial", Err: errors.New("connection refused")}
	if got := Explain(refused, false); !strings.HasPrefix(got, "Could not connect to the server.") {
		t.Errorf("transport explanation = %q", got)
	}

	prop := &Error{Kind: KindFatal, Code: "ErrorInvalidPropertyRequest"}
	if got := Explain(prop, false); got != "Verify that the Exchange version is correct." {
		t.Errorf("property explanation = %q", got)
	}

	if got := Explain(errors.New("boom"), false); got != "boom" {
		t.Errorf("fallback explanation = %q", got)
	}
}
