// Package token issues and verifies the signed bearer tokens used by the
// alternate authentication flow. It knows nothing about revocation; that is
// the registry's job.
package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/minus-twelve/taskauth/types"
)

const (
	DefaultTTL    = 5 * time.Minute
	DefaultIssuer = "taskauth"
)

var (
	ErrMalformed = errors.New("token: malformed")
	ErrClaims    = errors.New("token: missing required claims")
)

// Claims is the payload of an access token.
type Claims struct {
	jwt.RegisteredClaims
	UserID int64 `json:"user_id"`
}

// TokenID is the jti claim.
func (c *Claims) TokenID() string { return c.ID }

// Lifetime is the declared lifetime of the token, exp minus iat.
func (c *Claims) Lifetime() time.Duration {
	if c.ExpiresAt == nil || c.IssuedAt == nil {
		return 0
	}
	return c.ExpiresAt.Sub(c.IssuedAt.Time)
}

type Signer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

type Option func(*Signer)

func WithClock(now func() time.Time) Option {
	return func(s *Signer) { s.now = now }
}

func NewSigner(cfg types.TokenConfig, opts ...Option) (*Signer, error) {
	if cfg.Secret == "" {
		return nil, errors.New("token: signing secret is required")
	}
	s := &Signer{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    cfg.TTL,
		now:    time.Now,
	}
	if s.issuer == "" {
		s.issuer = DefaultIssuer
	}
	if s.ttl <= 0 {
		s.ttl = DefaultTTL
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Signer) TTL() time.Duration { return s.ttl }

// Issue signs a fresh HS256 access token for userID.
func (s *Signer) Issue(userID int64) (string, *Claims, error) {
	now := s.now().UTC().Truncate(time.Second)
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			ID:        uuid.NewString(),
		},
		UserID: userID,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("token: sign: %w", err)
	}
	return signed, claims, nil
}

// Decode verifies the signature and time claims of raw and returns its
// payload. Tokens without jti, iat or exp are rejected.
func (s *Signer) Decode(raw string) (*Claims, error) {
	if raw == "" {
		return nil, ErrMalformed
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	if claims.ID == "" || claims.IssuedAt == nil || claims.UserID == 0 {
		return nil, ErrClaims
	}
	return claims, nil
}
