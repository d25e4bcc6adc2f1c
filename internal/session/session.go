// Package session issues the bearer tokens that scope Tier B confirmations
// to one conversation, and stores the confirmations granted within it.
package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"shipfilter/internal/token"
)

const (
	DefaultTTL = 12 * time.Hour

	issuer   = "shipfilter"
	audience = "session"
	keyInfo  = "shipfilter/session-token"
)

// Claims represents the session JWT claims. The subject is the session ID.
type Claims struct {
	jwt.RegisteredClaims
}

// Session is returned when a session is opened.
type Session struct {
	ID        string    `json:"session_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Manager mints and parses session tokens. Its key is derived from the
// master secret with a label distinct from resolution tokens, so neither
// kind of token verifies as the other.
type Manager struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

func NewManager(secret string, ttl time.Duration) (*Manager, error) {
	if len(secret) < token.MinSecretLength {
		return nil, fmt.Errorf("session secret must be at least %d bytes", token.MinSecretLength)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	key, err := token.DeriveKey(secret, keyInfo)
	if err != nil {
		return nil, err
	}
	return &Manager{key: key, ttl: ttl, now: time.Now}, nil
}

// Open starts a new session.
func (m *Manager) Open() (Session, error) {
	now := m.now()
	id := uuid.NewString()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id,
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			ID:        uuid.NewString(),
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(m.key)
	if err != nil {
		return Session{}, fmt.Errorf("sign session token: %w", err)
	}
	return Session{ID: id, Token: signed, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Parse validates a session token and returns its session ID.
func (m *Manager) Parse(raw string) (string, error) {
	tok, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return "", err
	}
	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid || claims.Subject == "" {
		return "", fmt.Errorf("invalid session claims")
	}
	return claims.Subject, nil
}
