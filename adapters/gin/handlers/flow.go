package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/open-rails/phoneverify/adapters/ginutil"
	core "github.com/open-rails/phoneverify/core"
)

// lookupFlow resolves the :id param, aborting with 404 when the flow is
// unknown or evicted.
func lookupFlow(c *gin.Context, reg *core.Registry) (*core.Flow, bool) {
	f, err := reg.Get(c.Param("id"))
	if err != nil {
		ginutil.NotFound(c, core.ErrorCode(err))
		return nil, false
	}
	return f, true
}

// presentChallenge hands the client's solved challenge to the flow's slot.
func presentChallenge(c *gin.Context, reg *core.Registry, f *core.Flow, token string) bool {
	token = strings.TrimSpace(token)
	if token == "" {
		ginutil.BadRequest(c, "challenge_required")
		return false
	}
	if err := reg.Present(f.ID, token); err != nil {
		ginutil.NotFound(c, core.ErrorCode(core.ErrFlowNotFound))
		return false
	}
	return true
}

type challengeReq struct {
	PhoneNumber    string `json:"phone_number"`
	ChallengeToken string `json:"challenge_token"`
}
