package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/open-rails/phoneverify/adapters/ginutil"
	core "github.com/open-rails/phoneverify/core"
)

// HandleFlowCancelPOST handles POST /verify/flows/:id/cancel
// Returns the flow to idle without closing it.
func HandleFlowCancelPOST(reg *core.Registry, rl ginutil.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLFlowCancel) {
			ginutil.TooMany(c)
			return
		}
		f, ok := lookupFlow(c, reg)
		if !ok {
			return
		}
		ginutil.OriginContext(c)
		f.Controller.Cancel(c.Request.Context())
		c.JSON(http.StatusOK, f.Controller.Snapshot())
	}
}
