// Package auth resolves bearer tokens into principals.
//
// Tokens are HS256 JWTs carrying a numeric user_id claim, the shape issued by
// the commerce backend. Resolution performs one signature/expiry check and one
// user-store lookup. Any failure degrades to the Anonymous principal; callers
// never see a token error from Authenticate.
package auth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-notify-backend/internal/config"
	"github.com/tbourn/go-notify-backend/internal/domain"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrInactiveUser = errors.New("user inactive")
)

// Principal is the identity bound to a connection or request.
type Principal struct {
	UserID        uint64
	Username      string
	Staff         bool
	Authenticated bool
}

// Anonymous is the principal used when no valid token is presented.
var Anonymous = Principal{Username: "anonymous"}

// UserID is a user_id claim that accepts either a JSON number or a numeric
// string.
type UserID uint64

// UnmarshalJSON implements json.Unmarshaler.
func (u *UserID) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	v, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("user_id: %w", err)
	}
	*u = UserID(v)
	return nil
}

// Claims is the JWT payload.
type Claims struct {
	jwt.RegisteredClaims
	UserID    UserID `json:"user_id"`
	TokenType string `json:"token_type,omitempty"`
}

// UserLookup resolves a user id to an account.
type UserLookup interface {
	GetUser(ctx context.Context, id uint64) (*domain.User, error)
}

// Authenticator verifies tokens and resolves principals.
type Authenticator struct {
	secret        []byte
	issuer        string
	ttl           time.Duration
	lookupTimeout time.Duration
	users         UserLookup
	now           func() time.Time
}

// NewAuthenticator builds an Authenticator from cfg.
func NewAuthenticator(cfg config.AuthConfig, users UserLookup) *Authenticator {
	return &Authenticator{
		secret:        []byte(cfg.JWTSecret),
		issuer:        cfg.Issuer,
		ttl:           cfg.TokenTTL,
		lookupTimeout: cfg.LookupTimeout,
		users:         users,
		now:           time.Now,
	}
}

// Parse validates signature, algorithm, expiry and (if configured) issuer.
func (a *Authenticator) Parse(token string) (*Claims, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(_ *jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.TokenType != "" && claims.TokenType != "access" {
		return nil, fmt.Errorf("%w: token_type %q", ErrInvalidToken, claims.TokenType)
	}
	if claims.UserID == 0 {
		return nil, fmt.Errorf("%w: missing user_id", ErrInvalidToken)
	}
	return claims, nil
}

// Resolve parses token and loads its user. Unlike Authenticate it reports
// why resolution failed.
func (a *Authenticator) Resolve(ctx context.Context, token string) (Principal, error) {
	claims, err := a.Parse(token)
	if err != nil {
		return Anonymous, err
	}

	lctx, cancel := context.WithTimeout(ctx, a.lookupTimeout)
	defer cancel()
	u, err := a.users.GetUser(lctx, uint64(claims.UserID))
	if err != nil {
		return Anonymous, fmt.Errorf("lookup user %d: %w", claims.UserID, err)
	}
	if !u.IsActive {
		return Anonymous, ErrInactiveUser
	}
	return Principal{
		UserID:        u.ID,
		Username:      u.Username,
		Staff:         u.Privileged(),
		Authenticated: true,
	}, nil
}

// Authenticate resolves token to a principal, falling back to Anonymous on
// any failure. Failures are logged at warn level and never returned.
func (a *Authenticator) Authenticate(ctx context.Context, token string) Principal {
	p, err := a.Resolve(ctx, token)
	if err != nil {
		if token != "" {
			log.Warn().Err(err).Msg("token authentication degraded to anonymous")
		}
		return Anonymous
	}
	return p
}

// Issue signs an access token for u. Used by tooling and tests; production
// tokens come from the commerce backend.
func (a *Authenticator) Issue(u domain.User) (string, error) {
	now := a.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(u.ID, 10),
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
		UserID:    UserID(u.ID),
		TokenType: "access",
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
