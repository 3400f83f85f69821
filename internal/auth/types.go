package auth

import (
	"time"
)

// Scopes granted to API clients
const (
	ScopeRead  = "read"
	ScopeWrite = "write"
)

// ClientClaims represents the JWT claims for an API client
type ClientClaims struct {
	ClientID string   `json:"client_id"`
	Scopes   []string `json:"scopes"`
}

// HasScope reports whether the claims grant scope
func (c ClientClaims) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// ClientCredential is one configured API client. SecretHash is a bcrypt hash.
type ClientCredential struct {
	ID         string   `yaml:"id" json:"id" validate:"required"`
	SecretHash string   `yaml:"secret_hash" json:"-" validate:"required"`
	Scopes     []string `yaml:"scopes" json:"scopes" validate:"dive,oneof=read write"`
}

// TokenRequest is the client-credentials grant
type TokenRequest struct {
	ClientID     string `json:"client_id" binding:"required"`
	ClientSecret string `json:"client_secret" binding:"required"`
}

// TokenResponse is returned by a successful grant
type TokenResponse struct {
	AccessToken string   `json:"access_token"`
	ExpiresIn   int64    `json:"expires_in"` // seconds
	TokenType   string   `json:"token_type"`
	Scopes      []string `json:"scopes"`
}

// Config holds authentication configuration
type Config struct {
	Enabled             bool               `yaml:"enabled" json:"enabled" default:"false"`
	JWTSecret           string             `yaml:"jwt_secret" json:"-" validate:"required_if=Enabled true,omitempty,min=32"`
	AccessTokenDuration time.Duration      `yaml:"access_token_duration" json:"accessTokenDuration" default:"1h"`
	Issuer              string             `yaml:"issuer" json:"issuer" default:"forex-signal-engine"`
	Clients             []ClientCredential `yaml:"clients" json:"clients" validate:"dive"`
}

// AuthError is an authentication failure with a stable code
type AuthError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e AuthError) Error() string {
	return e.Message
}

// Common authentication errors
var (
	ErrInvalidCredentials = AuthError{Code: "INVALID_CREDENTIALS", Message: "invalid client id or secret"}
	ErrInvalidToken       = AuthError{Code: "INVALID_TOKEN", Message: "invalid or expired token"}
	ErrTokenExpired       = AuthError{Code: "TOKEN_EXPIRED", Message: "token has expired"}
	ErrUnauthorized       = AuthError{Code: "UNAUTHORIZED", Message: "unauthorized access"}
	ErrForbidden          = AuthError{Code: "FORBIDDEN", Message: "access forbidden"}
)
