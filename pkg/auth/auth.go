// Package auth verifies bearer tokens on API requests.
//
// Tokens are JWT signed with HS256 by a shared secret, and should have "exp".
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	apierr "github.com/opst/vitrain/pkg/api/types/errors"
)

var ErrNoToken = errors.New("no bearer token")

// Claims of tokens for this API.
type Claims struct {
	jwt.RegisteredClaims
}

const claimsKey = "vitrain/auth/claims"

type Verifier struct {
	secret []byte
	now    func() time.Time
}

type Option func(*Verifier)

func WithClock(now func() time.Time) Option {
	return func(v *Verifier) {
		v.now = now
	}
}

func NewVerifier(secret []byte, options ...Option) *Verifier {
	v := &Verifier{secret: secret, now: time.Now}
	for _, o := range options {
		o(v)
	}
	return v
}

// Verify parses and validates the token.
func (v *Verifier) Verify(token string) (*Claims, error) {
	claims := new(Claims)
	_, err := jwt.ParseWithClaims(
		token, claims,
		func(t *jwt.Token) (interface{}, error) { return v.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// Issue signs a new token expiring after ttl.
func (v *Verifier) Issue(subject string, ttl time.Duration) (string, error) {
	now := v.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString(v.secret)
}

func bearer(header string) (string, error) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", ErrNoToken
	}
	return strings.TrimSpace(token), nil
}

// Middleware rejects requests without a valid bearer token with 401.
//
// Verified claims can be got with ClaimsOf.
func (v *Verifier) Middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token, err := bearer(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return apierr.Unauthorized(err)
		}
		claims, err := v.Verify(token)
		if err != nil {
			return apierr.Unauthorized(fmt.Errorf("invalid token: %w", err))
		}
		c.Set(claimsKey, claims)
		return next(c)
	}
}

// ClaimsOf returns claims verified by Middleware.
func ClaimsOf(c echo.Context) (*Claims, bool) {
	claims, ok := c.Get(claimsKey).(*Claims)
	return claims, ok
}

// Passthrough is a middleware doing nothing, used when auth is disabled.
func Passthrough(next echo.HandlerFunc) echo.HandlerFunc {
	return next
}
