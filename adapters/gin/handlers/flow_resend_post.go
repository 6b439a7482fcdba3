package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/open-rails/phoneverify/adapters/ginutil"
	core "github.com/open-rails/phoneverify/core"
)

// HandleFlowResendPOST handles POST /verify/flows/:id/resend
// Refused while the cooldown runs; needs a freshly solved challenge.
func HandleFlowResendPOST(reg *core.Registry, rl ginutil.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLFlowResend) {
			ginutil.TooMany(c)
			return
		}
		f, ok := lookupFlow(c, reg)
		if !ok {
			return
		}
		var req challengeReq
		if err := c.ShouldBindJSON(&req); err != nil {
			ginutil.BadRequest(c, "invalid_request")
			return
		}
		if !presentChallenge(c, reg, f, req.ChallengeToken) {
			return
		}
		ginutil.OriginContext(c)
		if err := f.Controller.RequestResend(c.Request.Context()); err != nil {
			ginutil.FlowErr(c, err, f.Controller.Snapshot())
			return
		}
		c.JSON(http.StatusOK, f.Controller.Snapshot())
	}
}
