package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/open-rails/phoneverify/adapters/ginutil"
	core "github.com/open-rails/phoneverify/core"
)

// HandleFlowPhonePOST handles POST /verify/flows/:id/phone
// Presents the solved challenge and dispatches a code to phone_number.
func HandleFlowPhonePOST(reg *core.Registry, rl ginutil.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLFlowPhone) {
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
		if strings.TrimSpace(req.PhoneNumber) == "" {
			ginutil.BadRequest(c, "phone_number_required")
			return
		}
		if !presentChallenge(c, reg, f, req.ChallengeToken) {
			return
		}
		ginutil.OriginContext(c)
		if err := f.Controller.SubmitPhone(c.Request.Context(), req.PhoneNumber); err != nil {
			ginutil.FlowErr(c, err, f.Controller.Snapshot())
			return
		}
		c.JSON(http.StatusOK, f.Controller.Snapshot())
	}
}
