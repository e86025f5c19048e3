package auth

import (
	"fmt"
	"net/http"

	gjwt "github.com/golang-jwt/jwt/v5"
)

// HMACVerifier verifies HS256 tokens signed with a shared secret
type HMACVerifier struct {
	secret []byte
}

// NewHMACVerifier creates a verifier for secret
func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret)}
}

// Verify parses the bearer token of r
func (v *HMACVerifier) Verify(r *http.Request) (*Principal, error) {
	raw := bearer(r)
	if raw == "" {
		return nil, ErrMissingToken
	}

	claims := gjwt.MapClaims{}
	_, err := gjwt.ParseWithClaims(raw, claims, func(token *gjwt.Token) (any, error) {
		return v.secret, nil
	}, gjwt.WithValidMethods([]string{gjwt.SigningMethodHS256.Alg()}), gjwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("failed to parse JWT: %w", err)
	}

	sub, _ := claims.GetSubject()
	return principalFromClaims(sub, claims)
}

// Sign issues an HS256 token, used by operators to call trigger endpoints
func (v *HMACVerifier) Sign(claims gjwt.MapClaims) (string, error) {
	return gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString(v.secret)
}
