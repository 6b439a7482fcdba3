package authgin

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/open-rails/phoneverify/adapters/ginutil"
	"github.com/open-rails/phoneverify/identitytoolkit"
)

// TokenVerifier validates ID tokens issued after a phone sign-in.
// *identitytoolkit.TokenVerifier implements it.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (*identitytoolkit.IDTokenClaims, error)
}

// PhoneTokenRequired validates the Bearer ID token and requires a verified
// phone_number claim. Claims are stored on both the Gin and request context.
func PhoneTokenRequired(v TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if v == nil {
			ginutil.ServerErrWithLog(c, "token_verifier_not_configured", nil, "phone token gate mounted without a verifier")
			return
		}
		raw := ginutil.BearerToken(c.GetHeader("Authorization"))
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing_token"})
			return
		}
		idc, err := v.Verify(c.Request.Context(), raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
			return
		}
		if idc.PhoneNumber == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "phone_not_verified"})
			return
		}
		cl := Claims{Subject: idc.Subject, PhoneNumber: idc.PhoneNumber}
		if idc.ExpiresAt != nil {
			cl.ExpiresAt = idc.ExpiresAt.Time
		}
		c.Set(claimsGinKey, cl)
		c.Request = c.Request.WithContext(SetClaims(c.Request.Context(), cl))
		c.Next()
	}
}
