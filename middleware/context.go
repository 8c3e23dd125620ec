package middleware

import (
	"context"

	chimw "github.com/go-chi/chi/v5/middleware"
)

type contextKey string

// ClaimsKey is the context key for validated token claims
const ClaimsKey contextKey = "claims"

// RoleAdmin grants access to the settings endpoints
const RoleAdmin = "admin"

// Claims represents the caller identity extracted from a bearer token
type Claims struct {
	Sub   string   `json:"sub"`
	Email string   `json:"email,omitempty"`
	Roles []string `json:"roles,omitempty"`
	Iss   string   `json:"iss,omitempty"`
	Exp   int64    `json:"exp,omitempty"`
	Iat   int64    `json:"iat,omitempty"`
}

// HasRole reports whether the claims carry role
func (c *Claims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// GetRequestIDFromContext returns the request ID assigned by chi's RequestID middleware
func GetRequestIDFromContext(ctx context.Context) string {
	return chimw.GetReqID(ctx)
}

// GetClaimsFromContext retrieves the claims from context
func GetClaimsFromContext(ctx context.Context) *Claims {
	if claims, ok := ctx.Value(ClaimsKey).(*Claims); ok {
		return claims
	}
	return nil
}

// WithClaims adds claims to the context
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, ClaimsKey, claims)
}
