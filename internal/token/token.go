// Package token issues and verifies the signed bearer credentials used by
// the auth service and the gateway. Verification here covers signature,
// expiry and issuer only; revocation and session existence are layered on
// top by callers so this package stays pure and testable.
package token

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"authgate.org/internal/authz"
)

var (
	// ErrInvalidToken indicates the token is malformed or failed validation.
	ErrInvalidToken = errors.New("token: invalid token")
	// ErrExpiredToken indicates the token's expiry has passed.
	ErrExpiredToken = errors.New("token: expired token")
)

// Claims is the payload embedded in signed tokens: identity, the
// authorization snapshot taken at issue time, and registered metadata.
type Claims struct {
	Email string                     `json:"email,omitempty"`
	Apps  map[string]authz.AppAccess `json:"apps,omitempty"`
	jwt.RegisteredClaims
}

// Issuer creates and verifies HS256-signed tokens.
type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(i *Issuer) {
		if fn != nil {
			i.now = fn
		}
	}
}

// NewIssuer constructs an Issuer. The secret is mandatory external
// configuration; there is deliberately no default.
func NewIssuer(secret, issuer string, ttl time.Duration, opts ...Option) (*Issuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("token: signing secret is required")
	}
	if ttl <= 0 {
		return nil, errors.New("token: ttl must be greater than zero")
	}
	i := &Issuer{
		secret: []byte(secret),
		issuer: strings.TrimSpace(issuer),
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// TTL returns the configured token lifetime.
func (i *Issuer) TTL() time.Duration { return i.ttl }

// Issue signs a token for the identity. Pure construction: the caller is
// responsible for persisting the matching session keyed by tokenID.
func (i *Issuer) Issue(id authz.Identity) (token, tokenID string, expiresAt time.Time, err error) {
	if strings.TrimSpace(id.UserID) == "" {
		return "", "", time.Time{}, errors.New("token: user id is required")
	}

	now := i.now().UTC()
	expiresAt = now.Add(i.ttl)
	tokenID = uuid.NewString()

	claims := Claims{
		Email: id.Email,
		Apps:  id.Apps,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        tokenID,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", "", time.Time{}, err
	}
	return signed, tokenID, expiresAt, nil
}

// Verify checks signature, expiry and issuer and returns the embedded
// identity and claims. It does not consult the revocation list or the
// session store.
func (i *Issuer) Verify(raw string) (authz.Identity, *Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return authz.Identity{}, nil, ErrInvalidToken
	}

	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return authz.Identity{}, nil, ErrExpiredToken
		}
		return authz.Identity{}, nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return authz.Identity{}, nil, ErrInvalidToken
	}
	if i.issuer != "" && claims.Issuer != i.issuer {
		return authz.Identity{}, nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" || claims.ID == "" {
		return authz.Identity{}, nil, ErrInvalidToken
	}

	id := authz.Identity{
		UserID: claims.Subject,
		Email:  claims.Email,
		Apps:   claims.Apps,
	}
	if id.Apps == nil {
		id.Apps = map[string]authz.AppAccess{}
	}
	return id, claims, nil
}
