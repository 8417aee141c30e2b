// Package auth validates connection credentials and binds an identity
// to a WebSocket handshake. Verification is stateless and safe to retry.
package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthorized is returned for any credential that cannot be
// accepted: missing, malformed, expired, or badly signed. The caller
// must terminate the connection without dispatching further events.
var ErrUnauthorized = errors.New("unauthorized")

// Identity is the result of a successful credential check.
type Identity struct {
	UserID      string
	CommunityID string
}

// Verifier checks a raw credential presented at connection time.
type Verifier interface {
	Verify(token string) (Identity, error)
}

type sessionClaims struct {
	jwt.RegisteredClaims
	CommunityID string `json:"communityId"`
}

// JWTVerifier validates HS256 session tokens issued by the auth service.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a verifier for tokens signed with the given secret.
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

// Verify parses and validates the token. The subject claim becomes the
// user identifier; communityId falls back to "default" when absent.
func (v *JWTVerifier) Verify(token string) (Identity, error) {
	if token == "" {
		return Identity{}, fmt.Errorf("missing token: %w", ErrUnauthorized)
	}

	var claims sessionClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return Identity{}, fmt.Errorf("%v: %w", err, ErrUnauthorized)
	}

	if claims.Subject == "" {
		return Identity{}, fmt.Errorf("token has no subject: %w", ErrUnauthorized)
	}

	community := claims.CommunityID
	if community == "" {
		community = "default"
	}
	return Identity{UserID: claims.Subject, CommunityID: community}, nil
}
