// Package csrf issues and verifies stateless, HMAC-signed CSRF tokens.
//
// A token is "value:expiration:signature" where value is 32 random bytes
// (hex), expiration is a unix millisecond timestamp and signature is
// hex(HMAC-SHA256(secret, value + ":" + expiration)). The server keeps no
// state between issue and validate.
package csrf

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultTTL is how long an issued token stays valid.
const DefaultTTL = 2 * time.Hour

// HeaderName is the request header a browser may use to present a token.
const HeaderName = "X-CSRF-Token"

const (
	valueBytes = 32
	separator  = ":"
)

var (
	ErrMalformed        = errors.New("csrf: malformed token")
	ErrInvalidSignature = errors.New("csrf: invalid signature")
	ErrExpired          = errors.New("csrf: token expired")
	ErrMissing          = errors.New("csrf: token missing")
	ErrEmptySecret      = errors.New("csrf: signing secret is empty")
)

// Token is an issued CSRF token.
type Token struct {
	Value      string
	Expiration time.Time
	Signature  string
}

// String renders the wire form handed to the browser.
func (t Token) String() string {
	return t.Value + separator + strconv.FormatInt(t.Expiration.UnixMilli(), 10) + separator + t.Signature
}

// Service issues and validates tokens with a single signing secret.
type Service struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService builds a Service. The secret is copied.
func NewService(secret []byte, opts ...Option) (*Service, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	s := &Service{
		secret: append([]byte(nil), secret...),
		ttl:    DefaultTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// EphemeralSecret returns a random 32-byte key. Tokens signed with it do not
// survive a restart and are not accepted by other instances.
func EphemeralSecret() ([]byte, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("csrf: generate secret: %w", err)
	}
	return key, nil
}

// TTL returns the validity window of issued tokens.
func (s *Service) TTL() time.Duration { return s.ttl }

// Issue creates a new token valid for the service TTL.
func (s *Service) Issue() (Token, error) {
	raw := make([]byte, valueBytes)
	if _, err := rand.Read(raw); err != nil {
		return Token{}, fmt.Errorf("csrf: read random: %w", err)
	}
	value := hex.EncodeToString(raw)
	// Millisecond precision so the expiration round-trips through the wire form.
	expiration := time.UnixMilli(s.now().Add(s.ttl).UnixMilli())
	return Token{
		Value:      value,
		Expiration: expiration,
		Signature:  s.sign(value, strconv.FormatInt(expiration.UnixMilli(), 10)),
	}, nil
}

// Validate checks, in order, that token parses into three parts, that its
// signature matches and that it has not expired.
func (s *Service) Validate(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrMissing
	}
	parts := strings.Split(token, separator)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return ErrMalformed
	}
	value, expRaw, sig := parts[0], parts[1], parts[2]
	expMillis, err := strconv.ParseInt(expRaw, 10, 64)
	if err != nil {
		return ErrMalformed
	}

	expected := s.sign(value, expRaw)
	if !hmac.Equal([]byte(sig), []byte(expected)) {
		return ErrInvalidSignature
	}
	if !s.now().Before(time.UnixMilli(expMillis)) {
		return ErrExpired
	}
	return nil
}

func (s *Service) sign(value, expiration string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(value))
	mac.Write([]byte(separator))
	mac.Write([]byte(expiration))
	return hex.EncodeToString(mac.Sum(nil))
}

// TokenFromRequest returns the token carried in the X-CSRF-Token header,
// falling back to the value decoded from the request body.
func TokenFromRequest(r *http.Request, bodyToken string) string {
	if v := strings.TrimSpace(r.Header.Get(HeaderName)); v != "" {
		return v
	}
	return strings.TrimSpace(bodyToken)
}
