// Package auth verifies and issues the bearer tokens that identify document owners.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pedjoni/idiorag/internal/config"
	"github.com/pedjoni/idiorag/internal/domain"
)

// Claims that may carry the user id, in lookup order.
var userIDClaims = []string{
	"sub",
	"user_id",
	"userId",
	"id",
	"http://schemas.xmlsoap.org/ws/2005/05/identity/claims/nameidentifier",
}

var usernameClaims = []string{
	"name",
	"preferred_username",
	"unique_name",
	"username",
	"http://schemas.xmlsoap.org/ws/2005/05/identity/claims/name",
}

var emailClaims = []string{
	"email",
	"user_email",
	"http://schemas.xmlsoap.org/ws/2005/05/identity/claims/emailaddress",
}

// User is the authenticated caller. ID is the owner of every document the
// caller touches.
type User struct {
	ID       string `json:"user_id"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
}

// Authenticator validates tokens and, when a signing key is configured,
// issues them.
type Authenticator struct {
	method    jwt.SigningMethod
	verifyKey any
	signKey   any
	issuer    string
}

// NewAuthenticator builds an authenticator for HS256 (shared secret) or
// RS256 (PEM public key, optional private key).
func NewAuthenticator(cfg config.AuthConfig) (*Authenticator, error) {
	a := &Authenticator{issuer: cfg.Issuer}

	switch cfg.JWTAlgorithm {
	case "HS256", "":
		if cfg.JWTSecret == "" {
			return nil, fmt.Errorf("auth.jwt_secret is required for HS256")
		}
		a.method = jwt.SigningMethodHS256
		a.verifyKey = []byte(cfg.JWTSecret)
		a.signKey = []byte(cfg.JWTSecret)
	case "RS256":
		if cfg.JWTPublicKey == "" {
			return nil, fmt.Errorf("auth.jwt_public_key is required for RS256")
		}
		pub, err := jwt.ParseRSAPublicKeyFromPEM([]byte(cfg.JWTPublicKey))
		if err != nil {
			return nil, fmt.Errorf("parse jwt public key: %w", err)
		}
		a.method = jwt.SigningMethodRS256
		a.verifyKey = pub
		if cfg.JWTPrivateKey != "" {
			priv, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(cfg.JWTPrivateKey))
			if err != nil {
				return nil, fmt.Errorf("parse jwt private key: %w", err)
			}
			a.signKey = priv
		}
	default:
		return nil, fmt.Errorf("unsupported jwt algorithm %q", cfg.JWTAlgorithm)
	}
	return a, nil
}

// Authenticate verifies the token's signature and expiry and extracts the
// caller. Every failure wraps domain.ErrUnauthorized.
func (a *Authenticator) Authenticate(tokenString string) (*User, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return a.verifyKey, nil
	}, jwt.WithValidMethods([]string{a.method.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: token has expired", domain.ErrUnauthorized)
		}
		return nil, fmt.Errorf("%w: invalid token: %v", domain.ErrUnauthorized, err)
	}

	user := &User{
		ID:       firstClaim(claims, userIDClaims),
		Username: firstClaim(claims, usernameClaims),
		Email:    firstClaim(claims, emailClaims),
	}
	if user.ID == "" {
		return nil, fmt.Errorf("%w: user id not found in token", domain.ErrUnauthorized)
	}
	return user, nil
}

// firstClaim returns the first non-empty claim among keys. Numeric ids are
// formatted without a fractional part.
func firstClaim(claims jwt.MapClaims, keys []string) string {
	for _, k := range keys {
		switch v := claims[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return fmt.Sprintf("%.0f", v)
		}
	}
	return ""
}

// Issue signs a token for userID valid for ttl.
func (a *Authenticator) Issue(userID, email string, ttl time.Duration) (string, error) {
	if a.signKey == nil {
		return "", fmt.Errorf("no signing key configured for %s", a.method.Alg())
	}
	if userID == "" {
		return "", fmt.Errorf("user id is required")
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub": userID,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	if email != "" {
		claims["email"] = email
	}
	if a.issuer != "" {
		claims["iss"] = a.issuer
	}
	return jwt.NewWithClaims(a.method, claims).SignedString(a.signKey)
}
