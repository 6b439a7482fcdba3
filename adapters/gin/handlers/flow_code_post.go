package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/open-rails/phoneverify/adapters/ginutil"
	core "github.com/open-rails/phoneverify/core"
)

// HandleFlowCodePOST handles POST /verify/flows/:id/code
func HandleFlowCodePOST(reg *core.Registry, rl ginutil.RateLimiter) gin.HandlerFunc {
	type codeReq struct {
		Code string `json:"code" binding:"required"`
	}
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLFlowCode) {
			ginutil.TooMany(c)
			return
		}
		f, ok := lookupFlow(c, reg)
		if !ok {
			return
		}
		var req codeReq
		if err := c.ShouldBindJSON(&req); err != nil {
			ginutil.BadRequest(c, "invalid_request")
			return
		}
		ginutil.OriginContext(c)
		if err := f.Controller.SubmitCodeString(c.Request.Context(), strings.TrimSpace(req.Code)); err != nil {
			ginutil.FlowErr(c, err, f.Controller.Snapshot())
			return
		}
		c.JSON(http.StatusOK, f.Controller.Snapshot())
	}
}
