package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/open-rails/phoneverify/adapters/ginutil"
	core "github.com/open-rails/phoneverify/core"
)

// HandleFlowGET handles GET /verify/flows/:id
func HandleFlowGET(reg *core.Registry, rl ginutil.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLFlowRead) {
			ginutil.TooMany(c)
			return
		}
		f, ok := lookupFlow(c, reg)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, f.Controller.Snapshot())
	}
}
