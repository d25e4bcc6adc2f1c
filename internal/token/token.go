// Package token mints and verifies resolution tokens: short-lived signed
// credentials binding one resolved spec to one session, one schema and one
// dictionary version. A NEEDS_CONFIRMATION token authorizes a confirmation; a
// RESOLVED token proves the server produced the spec it travels with.
package token

import (
	"crypto/sha256"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"

	"shipfilter/internal/filterspec"
)

const (
	DefaultTTL = 10 * time.Minute

	// MinSecretLength is the shortest master secret accepted.
	MinSecretLength = 32

	issuer   = "shipfilter"
	audience = "resolution"
	keyInfo  = "shipfilter/resolution-token"
)

// Claims is the signed payload. Field order is fixed so the encoded payload
// is canonical for a given set of values.
type Claims struct {
	SessionID         string            `json:"session_id"`
	SchemaSignature   string            `json:"schema_signature"`
	DictionaryVersion string            `json:"dictionary_version"`
	ResolvedSpecHash  string            `json:"resolved_spec_hash"`
	ExpansionHashes   []string          `json:"expansion_hashes"`
	Status            filterspec.Status `json:"status"`
	jwt.RegisteredClaims
}

// Binding is what a token is minted for.
type Binding struct {
	SessionID         string
	SchemaSignature   string
	DictionaryVersion string
	SpecHash          string
	ExpansionHashes   []string
	Status            filterspec.Status
}

// Expect is what a presented token is checked against. An empty SpecHash
// skips the hash comparison and an empty Status accepts either status.
type Expect struct {
	SessionID         string
	SchemaSignature   string
	DictionaryVersion string
	SpecHash          string
	Status            filterspec.Status
}

type Option func(*Signer)

// WithTTL overrides the token lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(s *Signer) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock injects the time source used for both minting and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Signer) {
		if now != nil {
			s.now = now
		}
	}
}

// Signer mints and verifies resolution tokens. It holds no mutable state.
type Signer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewSigner derives the signing key from the master secret.
func NewSigner(secret string, opts ...Option) (*Signer, error) {
	key, err := DeriveKey(secret, keyInfo)
	if err != nil {
		return nil, err
	}
	s := &Signer{key: key, ttl: DefaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// DeriveKey expands a master secret into a 32-byte purpose-bound key.
func DeriveKey(secret, info string) ([]byte, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("token secret must be at least %d characters", MinSecretLength)
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

func (s *Signer) TTL() time.Duration { return s.ttl }

// Mint signs a token for a RESOLVED or NEEDS_CONFIRMATION spec.
func (s *Signer) Mint(b Binding) (string, error) {
	if !mintable(b.Status) {
		return "", fmt.Errorf("mint token: status %q carries no token", b.Status)
	}
	if !filterspec.IsHexHash(b.SpecHash) {
		return "", fmt.Errorf("mint token: spec hash is not a hex digest")
	}
	for _, h := range b.ExpansionHashes {
		if !filterspec.IsHexHash(h) {
			return "", fmt.Errorf("mint token: expansion hash is not a hex digest")
		}
	}
	now := s.now()
	claims := Claims{
		SessionID:         b.SessionID,
		SchemaSignature:   b.SchemaSignature,
		DictionaryVersion: b.DictionaryVersion,
		ResolvedSpecHash:  b.SpecHash,
		ExpansionHashes:   append([]string{}, b.ExpansionHashes...),
		Status:            b.Status,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{audience},
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign resolution token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, expiry and every binding. All failures are
// TOKEN_INVALID_OR_EXPIRED except a spec hash that differs from the one the
// token was minted for, which is TOKEN_HASH_MISMATCH.
func (s *Signer) Verify(raw string, want Expect) (*Claims, error) {
	claims, err := s.Parse(raw)
	if err != nil {
		return nil, err
	}
	switch {
	case claims.SessionID != want.SessionID:
		return nil, invalid("token belongs to a different session")
	case claims.SchemaSignature != want.SchemaSignature:
		return nil, invalid("token was minted against a different schema")
	case claims.DictionaryVersion != want.DictionaryVersion:
		return nil, invalid("token was minted against dictionary %s", claims.DictionaryVersion)
	case want.Status != "" && claims.Status != want.Status:
		return nil, invalid("token was minted for a %s spec, not %s", claims.Status, want.Status)
	}
	if want.SpecHash != "" && claims.ResolvedSpecHash != want.SpecHash {
		return nil, filterspec.NewError(filterspec.CodeTokenHashMismatch,
			"resolved spec does not match the expansion the token was issued for")
	}
	return claims, nil
}

// Parse checks the signature, expiry and payload shape without comparing
// bindings.
func (s *Signer) Parse(raw string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithTimeFunc(s.now),
	)
	var claims Claims
	tok, err := parser.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return s.key, nil
	})
	if err != nil || !tok.Valid {
		return nil, invalid("token is invalid or expired")
	}
	if !mintable(claims.Status) {
		return nil, invalid("token status %q is not recognized", claims.Status)
	}
	if !filterspec.IsHexHash(claims.ResolvedSpecHash) {
		return nil, invalid("token spec hash is malformed")
	}
	for _, h := range claims.ExpansionHashes {
		if !filterspec.IsHexHash(h) {
			return nil, invalid("token expansion hash is malformed")
		}
	}
	return &claims, nil
}

func mintable(st filterspec.Status) bool {
	return st == filterspec.StatusResolved || st == filterspec.StatusNeedsConfirmation
}

func invalid(format string, args ...any) *filterspec.Error {
	return filterspec.NewError(filterspec.CodeTokenInvalidOrExpired, format, args...)
}
