package room

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/BaSui01/visionflow/types"
)

// AuthConfig configures join token verification.
type AuthConfig struct {
	// Secret signs and verifies HS256 join tokens.
	Secret   string
	Issuer   string
	Audience string
	// AllowAnonymous admits connections without a token under a generated
	// guest identity.
	AllowAnonymous bool
}

// Claims are the join token claims. Subject is the participant identity.
type Claims struct {
	// Room restricts the token to one room. Empty admits any room.
	Room string `json:"room,omitempty"`
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator issues and verifies participant join tokens.
type Authenticator struct {
	config     AuthConfig
	parserOpts []jwt.ParserOption
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(config AuthConfig) *Authenticator {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(config.Issuer))
	}
	if config.Audience != "" {
		opts = append(opts, jwt.WithAudience(config.Audience))
	}
	return &Authenticator{config: config, parserOpts: opts}
}

// IssueToken signs a token admitting identity to room. A zero ttl issues a
// token without expiry.
func (a *Authenticator) IssueToken(identity, room string, ttl time.Duration) (string, error) {
	if a.config.Secret == "" {
		return "", types.NewError(types.ErrInvalidRequest, "jwt secret not configured")
	}
	if identity == "" {
		return "", types.NewError(types.ErrInvalidRequest, "identity is required")
	}
	now := time.Now()
	claims := Claims{
		Room: room,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  identity,
			Issuer:   a.config.Issuer,
			IssuedAt: jwt.NewNumericDate(now),
			ID:       uuid.NewString(),
		},
	}
	if a.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{a.config.Audience}
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(a.config.Secret))
}

// Verify parses tokenStr and checks it admits the holder to room. It
// returns the participant identity.
func (a *Authenticator) Verify(tokenStr, room string) (string, error) {
	if a.config.Secret == "" {
		return "", unauthorized("jwt secret not configured", nil)
	}
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(*jwt.Token) (any, error) {
		return []byte(a.config.Secret), nil
	}, a.parserOpts...)
	if err != nil {
		return "", unauthorized("invalid or expired token", err)
	}
	if !token.Valid {
		return "", unauthorized("invalid token claims", nil)
	}
	if claims.Subject == "" {
		return "", unauthorized("token has no subject", nil)
	}
	if claims.Room != "" && claims.Room != room {
		return "", unauthorized(fmt.Sprintf("token is not valid for room %q", room), nil)
	}
	return claims.Subject, nil
}

// Authenticate resolves the participant identity of a join request. The
// token is taken from the token query parameter or a bearer Authorization
// header.
func (a *Authenticator) Authenticate(r *http.Request, room string) (string, error) {
	tokenStr := tokenFromRequest(r)
	if tokenStr == "" {
		if a.config.AllowAnonymous {
			return anonymousIdentity(r), nil
		}
		return "", unauthorized("missing join token", nil)
	}
	return a.Verify(tokenStr, room)
}

func tokenFromRequest(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

func anonymousIdentity(r *http.Request) string {
	if id := r.URL.Query().Get("identity"); id != "" {
		return id
	}
	return "guest-" + uuid.NewString()[:8]
}

func unauthorized(msg string, cause error) error {
	e := types.NewError(types.ErrUnauthorized, msg).WithHTTPStatus(http.StatusUnauthorized)
	if cause != nil {
		e = e.WithCause(cause)
	}
	return e
}
