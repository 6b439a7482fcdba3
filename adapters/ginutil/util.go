package ginutil

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	core "github.com/open-rails/phoneverify/core"
)

// RateLimiter is a minimal interface used by adapters.
type RateLimiter interface {
	AllowNamed(bucket string, key string) (bool, error)
}

// Bucket names used by the verification endpoints.
const (
	RLFlowOpen   = "verify_flow_open"
	RLFlowRead   = "verify_flow_read"
	RLFlowPhone  = "verify_flow_phone"
	RLFlowCode   = "verify_flow_code"
	RLFlowResend = "verify_flow_resend"
	RLFlowCancel = "verify_flow_cancel"
)

// AllowNamed applies a per-IP limit using the provided bucket name.
// It fails open on limiter error.
func AllowNamed(c *gin.Context, rl RateLimiter, bucket string) bool {
	if rl == nil {
		return true
	}
	ip := c.ClientIP()
	if ip == "" {
		return true
	}
	key := "auth:" + bucket + ":ip:" + ip
	ok, err := rl.AllowNamed(bucket, key)
	if err != nil {
		log.WithError(err).WithField("bucket", bucket).Warn("rate limiter unavailable")
		return true
	}
	return ok
}

// Error helpers
func SendErr(c *gin.Context, status int, code string) {
	c.AbortWithStatusJSON(status, gin.H{"error": code})
}
func BadRequest(c *gin.Context, code string)   { SendErr(c, http.StatusBadRequest, code) }
func Unauthorized(c *gin.Context, code string) { SendErr(c, http.StatusUnauthorized, code) }
func TooMany(c *gin.Context)                   { SendErr(c, http.StatusTooManyRequests, "rate_limited") }
func ServerErr(c *gin.Context, code string)    { SendErr(c, http.StatusInternalServerError, code) }
func NotFound(c *gin.Context, code string)     { SendErr(c, http.StatusNotFound, code) }

// FlowErr responds with the error code of a failed flow command and the
// flow's state after it.
func FlowErr(c *gin.Context, err error, snap core.Snapshot) {
	code := core.ErrorCode(err)
	snap.Error = code
	status := core.HTTPStatus(err)
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway {
		logEntry(c, code, err).Error("verification flow command failed")
	}
	c.AbortWithStatusJSON(status, gin.H{"error": code, "flow": snap})
}

// ServerErrWithLog logs the underlying error/context before responding with a generic server error.
func ServerErrWithLog(c *gin.Context, code string, err error, message string) {
	if strings.TrimSpace(message) == "" {
		message = "phoneverify server error"
	}
	logEntry(c, code, err).Error(message)
	ServerErr(c, code)
}

func logEntry(c *gin.Context, code string, err error) *log.Entry {
	entry := log.WithContext(c.Request.Context()).WithFields(log.Fields{
		"code":   code,
		"path":   c.FullPath(),
		"method": c.Request.Method,
	})
	if err != nil {
		entry = entry.WithError(err)
	}
	return entry
}

// OriginContext tags the request context with the client address and user
// agent for flow events.
func OriginContext(c *gin.Context) {
	ctx := core.WithRequestOrigin(c.Request.Context(), c.ClientIP(), c.Request.UserAgent())
	c.Request = c.Request.WithContext(ctx)
}

// BearerToken extracts a Bearer token from an Authorization header value.
func BearerToken(authorization string) string {
	if authorization == "" {
		return ""
	}
	parts := strings.SplitN(authorization, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
