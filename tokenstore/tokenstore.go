// Package tokenstore persists the local session token and decodes its
// claims.
//
// Tokens are signed JWTs issued by the auth backend. The store never
// verifies signatures: verification is the backend's job, and the
// client only needs the claims for display and refresh scheduling.
// A malformed token is treated the same as an absent one.
package tokenstore

import (
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	labdojo "github.com/labdojo/labdojo-go"
)

// Storage abstracts the persistence of a single token string under a
// key. Implementations: Memory, File.
type Storage interface {
	Load(key string) (string, error)
	Store(key, value string) error
	Delete(key string) error
}

// Store implements labdojo.TokenStore over a Storage backend.
type Store struct {
	storage Storage
	key     string
	logger  *slog.Logger

	mu    sync.Mutex
	state string // transient OAuth state nonce, session-scoped
	now   func() time.Time
}

// compile-time check
var _ labdojo.TokenStore = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a token store persisting under the given key.
func New(storage Storage, key string, opts ...Option) *Store {
	s := &Store{
		storage: storage,
		key:     key,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SetToken persists the token. Storage failure is logged and the
// prior persisted state is left unchanged; the session continues on
// whatever token was stored before.
func (s *Store) SetToken(token string) {
	if err := s.storage.Store(s.key, token); err != nil {
		s.logger.Error("failed to store auth token", "error", err)
	}
}

// Token returns the persisted token, or false if absent.
func (s *Store) Token() (string, bool) {
	token, err := s.storage.Load(s.key)
	if err != nil {
		s.logger.Error("failed to retrieve auth token", "error", err)
		return "", false
	}
	if token == "" {
		return "", false
	}
	return token, true
}

// RemoveToken deletes the persisted token.
func (s *Store) RemoveToken() {
	if err := s.storage.Delete(s.key); err != nil {
		s.logger.Error("failed to remove auth token", "error", err)
	}
}

// IsTokenValid reports whether a well-formed, unexpired token is
// persisted. It never panics: malformed tokens simply return false.
func (s *Store) IsTokenValid() bool {
	claims := s.DecodeClaims()
	if claims == nil {
		return false
	}
	return claims.ExpiresAt.After(s.now())
}

// DecodeClaims returns the structured claims of the persisted token,
// or nil when the token is absent or malformed.
func (s *Store) DecodeClaims() *labdojo.Claims {
	token, ok := s.Token()
	if !ok {
		return nil
	}
	claims, err := Decode(token)
	if err != nil {
		s.logger.Error("failed to decode token", "error", err)
		return nil
	}
	return claims
}

// SetState stores the single-use OAuth state nonce, replacing any
// previous one. The nonce lives only for the process session.
func (s *Store) SetState(state string) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// ConsumeState returns the stored state nonce and deletes it in the
// same critical section, so a nonce can never be read twice.
func (s *Store) ConsumeState() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.state
	s.state = ""
	return state, state != ""
}

// Decode parses a token string without signature verification and
// maps its claims. Returns an error for malformed input.
func Decode(token string) (*labdojo.Claims, error) {
	mapClaims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, mapClaims); err != nil {
		return nil, err
	}

	c := &labdojo.Claims{}
	if v, ok := mapClaims["user_id"].(string); ok {
		c.UserID = v
	}
	if v, ok := mapClaims["email"].(string); ok {
		c.Email = v
	}
	if v, ok := mapClaims["name"].(string); ok {
		c.Name = v
	}
	if v, ok := mapClaims["avatar"].(string); ok {
		c.Avatar = v
	}
	if v, ok := mapClaims["provider"].(string); ok {
		c.Provider = v
	}
	if v, ok := mapClaims["iat"].(float64); ok {
		c.IssuedAt = time.Unix(int64(v), 0)
	}
	if v, ok := mapClaims["exp"].(float64); ok {
		c.ExpiresAt = time.Unix(int64(v), 0)
	}
	return c, nil
}
