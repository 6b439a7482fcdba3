package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/open-rails/phoneverify/adapters/ginutil"
	core "github.com/open-rails/phoneverify/core"
)

// HandleFlowDELETE handles DELETE /verify/flows/:id
// Cancels the flow and forgets it.
func HandleFlowDELETE(reg *core.Registry, rl ginutil.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLFlowCancel) {
			ginutil.TooMany(c)
			return
		}
		if err := reg.Close(c.Param("id")); err != nil {
			ginutil.NotFound(c, core.ErrorCode(err))
			return
		}
		c.Status(http.StatusNoContent)
	}
}
