package credential

import (
	"testing"

	"github.com/99designs/keyring"
)

func TestResolve(t *testing.T) {
	r := &Resolver{Open: func() (keyring.Keyring, error) {
		return keyring.NewArrayKeyring([]keyring.Item{{Key: "graph", Data: []byte("s3cret")}}), nil
	}}

	got, err := r.Resolve("plain-value")
	if err != nil || got != "plain-value" {
		t.Errorf("Resolve(plain) = %q, %v", got, err)
	}

	got, err = r.Resolve("keyring:graph")
	if err != nil || got != "s3cret" {
		t.Errorf("Resolve(keyring:graph) = %q, %v", got, err)
	}

	if _, err := r.Resolve("keyring:missing"); err == nil {
		t.Error("missing key resolved")
	}
}
