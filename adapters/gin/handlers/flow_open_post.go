package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/open-rails/phoneverify/adapters/ginutil"
	core "github.com/open-rails/phoneverify/core"
)

// HandleFlowOpenPOST handles POST /verify/flows.
// Creates an idle flow and returns its snapshot.
func HandleFlowOpenPOST(reg *core.Registry, rl ginutil.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLFlowOpen) {
			ginutil.TooMany(c)
			return
		}
		f := reg.Open()
		c.JSON(http.StatusCreated, f.Controller.Snapshot())
	}
}
