// Package identity verifies caller bearer tokens. Tokens are issued by the
// platform's identity provider; this service only checks them.
package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/coursepay/internal/clock"
	"github.com/smallbiznis/coursepay/internal/config"
	"go.uber.org/fx"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrTokenMissing = errors.New("token_missing")
)

var Module = fx.Module("identity",
	fx.Provide(NewVerifier),
)

// Caller is the verified identity behind a request.
type Caller struct {
	UserID    string
	Role      string
	ExpiresAt time.Time
}

func (c Caller) IsAdmin() bool {
	return c.Role == RoleAdmin
}

type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type Verifier struct {
	secret []byte
	issuer string
	clock  clock.Clock
}

func NewVerifier(cfg config.Config, clk clock.Clock) (*Verifier, error) {
	if cfg.AuthJWTSecret == "" {
		return nil, &config.ConfigError{Field: "AUTH_JWT_SECRET", Err: config.ErrMissingValue}
	}
	return &Verifier{secret: []byte(cfg.AuthJWTSecret), issuer: cfg.AuthJWTIssuer, clock: clk}, nil
}

// VerifyCallerIdentity accepts a raw token or an Authorization header value
// and returns the caller it names.
func (v *Verifier) VerifyCallerIdentity(token string) (Caller, error) {
	raw := bearerToken(token)
	if raw == "" {
		return Caller{}, ErrTokenMissing
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithTimeFunc(v.clock.Now),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	c := &claims{}
	parsed, err := jwt.ParseWithClaims(raw, c, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil || parsed == nil || !parsed.Valid {
		return Caller{}, ErrUnauthorized
	}

	subject := strings.TrimSpace(c.Subject)
	if subject == "" {
		return Caller{}, ErrUnauthorized
	}
	role := strings.ToLower(strings.TrimSpace(c.Role))
	if role == "" {
		role = RoleUser
	}
	return Caller{UserID: subject, Role: role, ExpiresAt: c.ExpiresAt.Time}, nil
}

func bearerToken(value string) string {
	parts := strings.Fields(value)
	if len(parts) > 0 && strings.EqualFold(parts[0], "bearer") {
		parts = parts[1:]
	}
	if len(parts) != 1 {
		return ""
	}
	return parts[0]
}

// Issue signs a token for subject. Used by tests and local tooling.
func (v *Verifier) Issue(subject, role string, ttl time.Duration) (string, error) {
	now := v.clock.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
