package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// ErrMissingToken is returned when the request has no bearer token
var ErrMissingToken = errors.New("missing authorization header")

// Principal is the authenticated caller of a trigger endpoint
type Principal struct {
	Subject string `json:"sub"`
	Email   string `json:"email,omitempty"`
	Name    string `json:"name,omitempty"`
}

// Verifier authenticates incoming requests
type Verifier interface {
	Verify(r *http.Request) (*Principal, error)
}

// JWKSVerifier verifies asymmetric JWTs against a cached JWKS
type JWKSVerifier struct {
	jwksURL string
	cache   *jwk.Cache
}

// NewJWKSVerifier registers jwksURL with an auto-refreshing cache and
// fetches the key set once
func NewJWKSVerifier(ctx context.Context, jwksURL string) (*JWKSVerifier, error) {
	cache := jwk.NewCache(ctx)
	if err := cache.Register(jwksURL, jwk.WithMinRefreshInterval(5*time.Minute)); err != nil {
		return nil, fmt.Errorf("failed to register JWKS URL: %w", err)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := cache.Refresh(fetchCtx, jwksURL); err != nil {
		return nil, fmt.Errorf("failed initial JWKS fetch: %w", err)
	}

	return &JWKSVerifier{jwksURL: jwksURL, cache: cache}, nil
}

// Verify parses the bearer token of r and validates signature and expiry
func (v *JWKSVerifier) Verify(r *http.Request) (*Principal, error) {
	if bearer(r) == "" {
		return nil, ErrMissingToken
	}

	keySet, err := v.cache.Get(r.Context(), v.jwksURL)
	if err != nil {
		return nil, fmt.Errorf("load JWKS: %w", err)
	}

	token, err := jwt.ParseRequest(r, jwt.WithKeySet(keySet), jwt.WithValidate(true))
	if err != nil {
		return nil, fmt.Errorf("failed to parse JWT: %w", err)
	}
	return principalFromClaims(token.Subject(), token.PrivateClaims())
}

func principalFromClaims(subject string, claims map[string]any) (*Principal, error) {
	if subject == "" {
		return nil, fmt.Errorf("token missing subject")
	}
	p := &Principal{Subject: subject}
	p.Email, _ = claims["email"].(string)
	p.Name, _ = claims["name"].(string)
	return p, nil
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
