// Package tokens issues and validates the time-bounded secrets that gate
// onboarding downloads. Cleartext secrets are returned exactly once at
// issue time; only their digest is ever persisted.
package tokens

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// Kind labels what a token authorizes.
type Kind string

const (
	KindDownload Kind = "download"
	KindJoin     Kind = "join"
)

// secretBytes yields 192 bits of entropy per secret.
const secretBytes = 24

// Status is the outcome of validating a candidate secret.
type Status int

const (
	StatusInvalid Status = iota
	StatusExpired
	StatusValid
)

func (s Status) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusExpired:
		return "expired"
	case StatusInvalid:
		return "invalid"
	default:
		return "invalid"
	}
}

// Issued carries the result of minting a token. Secret is the one-time
// cleartext; Digest is what storage keeps.
type Issued struct {
	ID        string
	Kind      Kind
	Secret    string
	Digest    string
	ExpiresAt time.Time
}

// Issuer mints tokens. The clock and entropy source are injectable for
// deterministic tests.
type Issuer struct {
	now  func() time.Time
	rand io.Reader
}

// Option customizes an Issuer.
type Option func(*Issuer)

// WithClock overrides the issuer's clock.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

// WithRand overrides the issuer's entropy source.
func WithRand(r io.Reader) Option {
	return func(i *Issuer) { i.rand = r }
}

// NewIssuer constructs an Issuer backed by crypto/rand.
func NewIssuer(opts ...Option) *Issuer {
	issuer := &Issuer{now: time.Now, rand: rand.Reader}
	for _, opt := range opts {
		opt(issuer)
	}
	return issuer
}

// Issue mints a token of the given kind expiring after ttl.
func (i *Issuer) Issue(kind Kind, ttl time.Duration) (*Issued, error) {
	buf := make([]byte, secretBytes)
	if _, err := io.ReadFull(i.rand, buf); err != nil {
		return nil, fmt.Errorf("tokens: read random bytes: %w", err)
	}

	secret := base64.RawURLEncoding.EncodeToString(buf)

	return &Issued{
		ID:        uuid.NewString(),
		Kind:      kind,
		Secret:    secret,
		Digest:    Digest(secret),
		ExpiresAt: i.now().UTC().Add(ttl),
	}, nil
}

// Digest returns the non-reversible representation persisted for a secret.
func Digest(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// Validate checks a candidate secret against a stored digest. Digest
// comparison is constant time. A matching but stale token reports
// StatusExpired so callers can surface an informative error without
// revealing whether the digest itself matched for arbitrary inputs.
func Validate(storedDigest, candidate string, expiresAt, now time.Time) Status {
	if storedDigest == "" || candidate == "" {
		return StatusInvalid
	}

	match := subtle.ConstantTimeCompare([]byte(storedDigest), []byte(Digest(candidate))) == 1
	if !match {
		return StatusInvalid
	}

	if now.After(expiresAt) {
		return StatusExpired
	}

	return StatusValid
}
