// Package auth verifies caller identity for the HTTP surface.
//
// Production deployments verify HMAC-signed JWTs; the static verifier backs
// development setups and tests.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the authenticated caller extracted from a token.
type Identity struct {
	UserID    string
	Workspace string
	Tier      string
}

// Verifier authenticates bearer tokens.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// Claims is the JWT payload. The user ID travels in the registered subject.
type Claims struct {
	Workspace string `json:"workspace,omitempty"`
	Tier      string `json:"tier,omitempty"`
	jwt.RegisteredClaims
}

// Sign mints an HS256 token for identity, valid for ttl.
func Sign(secret string, identity Identity, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("jwt secret is empty")
	}
	if identity.UserID == "" {
		return "", errors.New("identity has no user ID")
	}
	now := time.Now()
	claims := Claims{
		Workspace: identity.Workspace,
		Tier:      identity.Tier,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// JWTVerifier validates HS256 tokens against a shared secret.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier returns a verifier for the given secret.
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

// Verify parses and validates the token, returning the caller identity.
func (v *JWTVerifier) Verify(_ context.Context, token string) (Identity, error) {
	if len(v.secret) == 0 {
		return Identity{}, errors.New("jwt secret not configured")
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Identity{}, fmt.Errorf("parse token: %w", err)
	}
	if !parsed.Valid {
		return Identity{}, errors.New("token rejected")
	}
	if claims.Subject == "" {
		return Identity{}, errors.New("token has no subject")
	}
	return Identity{
		UserID:    claims.Subject,
		Workspace: claims.Workspace,
		Tier:      claims.Tier,
	}, nil
}

// StaticVerifier maps fixed tokens to identities. Development only.
type StaticVerifier map[string]Identity

// Verify looks the token up in the static table.
func (v StaticVerifier) Verify(_ context.Context, token string) (Identity, error) {
	identity, ok := v[token]
	if !ok {
		return Identity{}, errors.New("unknown token")
	}
	return identity, nil
}
