// Package auth verifies the credential presented when a client connects.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dkeye/Relay/internal/domain"
)

var ErrUnauthorized = errors.New("unauthorized")

// Gate resolves a connection credential to the user it was issued for.
type Gate interface {
	VerifyConnectionCredential(ctx context.Context, token string) (domain.UserID, error)
}

// HMACGate accepts HS256 access tokens whose subject is the decimal user id.
type HMACGate struct {
	secret []byte
	leeway time.Duration
	now    func() time.Time
}

func NewHMACGate(secret string) (*HMACGate, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("secret is required")
	}
	return &HMACGate{secret: []byte(secret), leeway: 30 * time.Second, now: time.Now}, nil
}

func (g *HMACGate) VerifyConnectionCredential(_ context.Context, token string) (domain.UserID, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return 0, fmt.Errorf("%w: empty token", ErrUnauthorized)
	}
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return g.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(g.leeway),
		jwt.WithTimeFunc(g.now),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	uid, err := domain.ParseUserID(claims.Subject)
	if err != nil {
		return 0, fmt.Errorf("%w: bad subject", ErrUnauthorized)
	}
	return uid, nil
}

// Issue signs a token for uid valid for ttl. Used by tests and tooling.
func (g *HMACGate) Issue(uid domain.UserID, ttl time.Duration) (string, error) {
	now := g.now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   uid.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	return tok.SignedString(g.secret)
}
