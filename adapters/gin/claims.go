package authgin

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
)

// Claims is the typed view of a verified phone sign-in attached by
// PhoneTokenRequired.
type Claims struct {
	Subject     string    `json:"sub"`
	PhoneNumber string    `json:"phone_number"`
	ExpiresAt   time.Time `json:"expires_at"`
}

const claimsGinKey = "phoneverify.claims"

// unexported context key
type claimsCtxKey struct{}

// SetClaims returns a child context with claims attached.
func SetClaims(ctx context.Context, cl Claims) context.Context {
	return context.WithValue(ctx, claimsCtxKey{}, cl)
}

// FromContext extracts claims from a standard context.
func FromContext(ctx context.Context) (Claims, bool) {
	cl, ok := ctx.Value(claimsCtxKey{}).(Claims)
	return cl, ok
}

// ClaimsFromGin returns claims from the Gin context if present.
func ClaimsFromGin(c *gin.Context) (Claims, bool) {
	if v, ok := c.Get(claimsGinKey); ok {
		if cl, ok := v.(Claims); ok {
			return cl, true
		}
	}
	return FromContext(c.Request.Context())
}

// GetClaims returns claims or an error if the request is unauthenticated.
func GetClaims(c *gin.Context) (Claims, error) {
	if cl, ok := ClaimsFromGin(c); ok {
		return cl, nil
	}
	return Claims{}, errors.New("unauthenticated")
}

// PhoneNumber is a typed accessor for the verified E.164 number.
func PhoneNumber(c *gin.Context) (string, bool) {
	if cl, ok := ClaimsFromGin(c); ok && cl.PhoneNumber != "" {
		return cl.PhoneNumber, true
	}
	return "", false
}
