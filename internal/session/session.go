// Package session issues and verifies sealed session tokens and
// enforces single-writer access per conversation.
package session

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/nacl/secretbox"
)

// ErrInvalidToken is returned when a token fails to decode or its seal
// does not verify.
var ErrInvalidToken = errors.New("session: invalid token")

// ErrExpired is returned when a token verifies but is past its expiry.
var ErrExpired = errors.New("session: token expired")

// Session is the authenticated state carried in a sealed token.
type Session struct {
	ID     string `json:"sid"`
	UserID string `json:"uid"`

	// GoogleToken is the user's Google OAuth access token, empty when
	// no account is connected. Token-gated tools need it.
	GoogleToken string `json:"gtok,omitempty"`

	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}

// Sealer seals and opens session tokens with a symmetric key.
type Sealer struct {
	key [32]byte
	ttl time.Duration
}

// NewSealer builds a sealer from a 64-character hex key. ttl bounds the
// lifetime of tokens it issues.
func NewSealer(hexKey string, ttl time.Duration) (*Sealer, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("session: decode key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("session: key must be 32 bytes, got %d", len(raw))
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	s := &Sealer{ttl: ttl}
	copy(s.key[:], raw)
	return s, nil
}

// Seal stamps issue/expiry times on sess and returns it as an opaque
// URL-safe token.
func (s *Sealer) Seal(sess Session) (string, error) {
	now := time.Now().UTC()
	sess.IssuedAt = now
	sess.ExpiresAt = now.Add(s.ttl)

	payload, err := json.Marshal(sess)
	if err != nil {
		return "", fmt.Errorf("session: encode: %w", err)
	}

	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("session: nonce: %w", err)
	}

	sealed := secretbox.Seal(nonce[:], payload, &nonce, &s.key)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open verifies a token and returns the session it carries.
func (s *Sealer) Open(token string) (*Session, error) {
	sealed, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(sealed) < 24 {
		return nil, ErrInvalidToken
	}

	var nonce [24]byte
	copy(nonce[:], sealed[:24])
	payload, ok := secretbox.Open(nil, sealed[24:], &nonce, &s.key)
	if !ok {
		return nil, ErrInvalidToken
	}

	var sess Session
	if err := json.Unmarshal(payload, &sess); err != nil {
		return nil, ErrInvalidToken
	}
	if time.Now().UTC().After(sess.ExpiresAt) {
		return nil, ErrExpired
	}
	return &sess, nil
}
