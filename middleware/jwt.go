package middleware

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when the token is malformed or its signature does not verify
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned when the token has expired
	ErrTokenExpired = errors.New("token expired")

	// ErrInvalidIssuer is returned when the token issuer does not match
	ErrInvalidIssuer = errors.New("invalid issuer")

	// ErrAuthNotConfigured is returned by RejectAllValidator
	ErrAuthNotConfigured = errors.New("authentication is not configured")
)

// TokenValidator validates a bearer token and returns its claims
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*Claims, error)
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Email string   `json:"email,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

// HMACValidator validates HS256 tokens signed with a shared secret
type HMACValidator struct {
	secret []byte
	issuer string
	leeway time.Duration
}

// NewHMACValidator creates a validator. An empty issuer accepts any issuer.
func NewHMACValidator(secret, issuer string) *HMACValidator {
	return &HMACValidator{
		secret: []byte(secret),
		issuer: issuer,
		leeway: 30 * time.Second,
	}
}

// ValidateToken verifies the signature and registered claims of tokenString
func (v *HMACValidator) ValidateToken(_ context.Context, tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.leeway),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &tokenClaims{}, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenInvalidIssuer):
			return nil, ErrInvalidIssuer
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	tc, ok := token.Claims.(*tokenClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if tc.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	claims := &Claims{
		Sub:   tc.Subject,
		Email: tc.Email,
		Roles: tc.Roles,
		Iss:   tc.Issuer,
	}
	if tc.ExpiresAt != nil {
		claims.Exp = tc.ExpiresAt.Unix()
	}
	if tc.IssuedAt != nil {
		claims.Iat = tc.IssuedAt.Unix()
	}
	return claims, nil
}

// RejectAllValidator refuses every token. It is used when no signing secret is configured.
type RejectAllValidator struct{}

func (RejectAllValidator) ValidateToken(context.Context, string) (*Claims, error) {
	return nil, ErrAuthNotConfigured
}
