// Package identity verifies learner bearer tokens and carries the caller through a context.
package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/at-ishikawa/lessonquiz/internal/apperr"
)

// Identity is the authenticated caller. Token is forwarded to the store so row-level
// policies apply to the learner's own rows.
type Identity struct {
	LearnerID string
	Token     string
}

type Claims struct {
	jwt.RegisteredClaims
}

type Verifier struct {
	secret []byte
	issuer string
}

func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer}
}

// Verify parses an HS256 token. The subject becomes the learner ID.
func (v *Verifier) Verify(token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, fmt.Errorf("missing bearer token: %w", apperr.ErrUnauthorized)
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return Identity{}, fmt.Errorf("invalid token: %v: %w", err, apperr.ErrUnauthorized)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return Identity{}, fmt.Errorf("invalid token claims: %w", apperr.ErrUnauthorized)
	}
	return Identity{LearnerID: claims.Subject, Token: token}, nil
}

// VerifyHeader verifies the value of an Authorization header.
func (v *Verifier) VerifyHeader(header string) (Identity, error) {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return Identity{}, fmt.Errorf("missing bearer token: %w", apperr.ErrUnauthorized)
	}
	return v.Verify(token)
}

// Issue signs a token for learnerID. It is used by the CLI and tests.
func (v *Verifier) Issue(learnerID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   learnerID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("token.SignedString() > %w", err)
	}
	return signed, nil
}

type contextKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}

// TokenFromContext returns the caller's bearer token. Its signature matches reststore.TokenFunc.
func TokenFromContext(ctx context.Context) (string, bool) {
	id, ok := FromContext(ctx)
	if !ok || id.Token == "" {
		return "", false
	}
	return id.Token, true
}
