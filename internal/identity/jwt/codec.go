// Package jwt implements the signed token codec for the identity module.
package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for any token that fails verification.
// Malformed input, a bad signature and an expired token are deliberately
// indistinguishable to callers.
var ErrInvalidToken = errors.New("invalid or expired token")

// Config contains codec configuration. Access and refresh tokens are
// signed with independent secrets so a leaked key for one kind cannot
// forge the other.
type Config struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// Codec issues and verifies the access/refresh token pair.
type Codec struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// NewCodec creates a token codec.
func NewCodec(cfg Config) *Codec {
	return &Codec{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		now:           time.Now,
	}
}

// IssueAccess creates a short-lived access token for the given subject.
func (c *Codec) IssueAccess(subjectID string) (string, error) {
	return c.issue(subjectID, c.accessSecret, c.accessTTL)
}

// IssueRefresh creates a long-lived refresh token for the given subject.
func (c *Codec) IssueRefresh(subjectID string) (string, error) {
	return c.issue(subjectID, c.refreshSecret, c.refreshTTL)
}

// VerifyAccess checks an access token and returns its subject id.
func (c *Codec) VerifyAccess(token string) (string, error) {
	return c.verify(token, c.accessSecret)
}

// VerifyRefresh checks a refresh token and returns its subject id.
func (c *Codec) VerifyRefresh(token string) (string, error) {
	return c.verify(token, c.refreshSecret)
}

func (c *Codec) issue(subjectID string, secret []byte, ttl time.Duration) (string, error) {
	now := c.now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   subjectID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (c *Codec) verify(tokenString string, secret []byte) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{},
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, ErrInvalidToken
			}
			return secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
