package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verifier turns a raw bearer token into an Identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

type claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

// HMACVerifier validates HS256/HS384/HS512 tokens signed with a shared secret.
type HMACVerifier struct {
	secret   []byte
	issuer   string
	audience string
	leeway   time.Duration
}

type VerifierOption func(*HMACVerifier)

func WithIssuer(issuer string) VerifierOption {
	return func(v *HMACVerifier) { v.issuer = strings.TrimSpace(issuer) }
}

func WithAudience(audience string) VerifierOption {
	return func(v *HMACVerifier) { v.audience = strings.TrimSpace(audience) }
}

func WithLeeway(d time.Duration) VerifierOption {
	return func(v *HMACVerifier) { v.leeway = d }
}

func NewHMACVerifier(secret string, opts ...VerifierOption) *HMACVerifier {
	if secret == "" {
		panic("session: jwt secret cannot be empty")
	}
	v := &HMACVerifier{secret: []byte(secret)}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify requires an expiry and a subject; the subject becomes the user id.
func (v *HMACVerifier) Verify(_ context.Context, token string) (Identity, error) {
	parserOpts := []jwt.ParserOption{
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
	}
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(v.audience))
	}
	if v.leeway > 0 {
		parserOpts = append(parserOpts, jwt.WithLeeway(v.leeway))
	}

	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.secret, nil
	}, parserOpts...)
	if err != nil || !parsed.Valid {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if strings.TrimSpace(c.Subject) == "" {
		return Identity{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return Identity{
		UserID:    c.Subject,
		Email:     c.Email,
		ExpiresAt: c.ExpiresAt.Time,
	}, nil
}
