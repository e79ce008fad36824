// Package auth identifies the user behind a websocket connection.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthenticated is returned when a connection carries no usable
// credentials and anonymous access is disabled.
var ErrUnauthenticated = errors.New("unauthenticated")

// User is the identity attached to a connection for its whole lifetime.
type User struct {
	Name          string `json:"name,omitempty"`
	Admin         bool   `json:"admin,omitempty"`
	Authenticated bool   `json:"authenticated"`
}

// Anonymous returns the identity of a connection without credentials.
func Anonymous() User {
	return User{}
}

// Authenticator resolves the user of an upgrade request.
type Authenticator interface {
	Authenticate(r *http.Request) (User, error)
}

// claims is the JWT payload. The subject is the user name.
type claims struct {
	jwt.RegisteredClaims
	Admin bool `json:"admin,omitempty"`
}

// JWT authenticates HS256 bearer tokens.
type JWT struct {
	secret         []byte
	issuer         string
	allowAnonymous bool
	now            func() time.Time
}

// JWTOption configures a JWT authenticator.
type JWTOption func(*JWT)

// WithIssuer requires tokens to carry iss == issuer and stamps it on issued
// tokens.
func WithIssuer(issuer string) JWTOption {
	return func(a *JWT) {
		a.issuer = issuer
	}
}

// WithAnonymous lets requests without a token through as Anonymous().
// Requests with an invalid token are still rejected.
func WithAnonymous(allow bool) JWTOption {
	return func(a *JWT) {
		a.allowAnonymous = allow
	}
}

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) JWTOption {
	return func(a *JWT) {
		a.now = now
	}
}

// NewJWT creates an authenticator for tokens signed with secret.
func NewJWT(secret []byte, opts ...JWTOption) *JWT {
	a := &JWT{secret: secret, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Authenticate reads the token from the Authorization header
// ("Bearer <token>") or, for browsers that cannot set headers on a
// websocket upgrade, from the "token" query parameter.
func (a *JWT) Authenticate(r *http.Request) (User, error) {
	token := bearerToken(r)
	if token == "" {
		if a.allowAnonymous {
			return Anonymous(), nil
		}
		return User{}, ErrUnauthenticated
	}
	return a.Verify(token)
}

// Verify parses and validates a token string.
func (a *JWT) Verify(token string) (User, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	var parsed claims
	_, err := jwt.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return User{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if parsed.Subject == "" {
		return User{}, fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}

	return User{Name: parsed.Subject, Admin: parsed.Admin, Authenticated: true}, nil
}

// Issue signs a token for user valid for ttl. A zero ttl issues a token
// without expiry.
func (a *JWT) Issue(user User, ttl time.Duration) (string, error) {
	if user.Name == "" {
		return "", errors.New("issue token: user name is required")
	}
	now := a.now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  user.Name,
			Issuer:   a.issuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
		Admin: user.Admin,
	}
	if ttl > 0 {
		c.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	return signed, nil
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if scheme, token, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "bearer") {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}
