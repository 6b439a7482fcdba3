package authgin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/open-rails/phoneverify/adapters/ginutil"
	core "github.com/open-rails/phoneverify/core"
	"github.com/open-rails/phoneverify/localverify"
	memorylimiter "github.com/open-rails/phoneverify/ratelimit/memory"
	memorystore "github.com/open-rails/phoneverify/storage/memory"
)

type captureSMS struct {
	mu   sync.Mutex
	code string
}

func (c *captureSMS) SendVerificationCode(_ context.Context, _, code string) error {
	c.mu.Lock()
	c.code = code
	c.mu.Unlock()
	return nil
}

func (c *captureSMS) last() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.code
}

func newRouter(t *testing.T, rl ginutil.RateLimiter) (*gin.Engine, *captureSMS) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	sms := &captureSMS{}
	reg := core.NewRegistry(core.Config{}, localverify.New(memorystore.NewKV()).WithSMSSender(sms), nil)
	t.Cleanup(reg.Shutdown)
	if rl == nil {
		rl = memorylimiter.New(nil)
	}
	r := gin.New()
	NewService(reg).WithRateLimiter(rl).GinRegisterAPI(r.Group("/api/v1"))
	return r, sms
}

func serve(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.RemoteAddr = "203.0.113.20:4000"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func snapshotOf(t *testing.T, w *httptest.ResponseRecorder) core.Snapshot {
	t.Helper()
	var snap core.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	return snap
}

func TestGinFlowVerifies(t *testing.T) {
	r, sms := newRouter(t, nil)

	w := serve(r, http.MethodPost, "/api/v1/verify/flows", "")
	require.Equal(t, http.StatusCreated, w.Code)
	id := snapshotOf(t, w).FlowID

	w = serve(r, http.MethodPost, "/api/v1/verify/flows/"+id+"/phone", `{"phone_number":"09123456789","challenge_token":"solved"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, core.StateCodeCollection, snapshotOf(t, w).State)

	w = serve(r, http.MethodPost, "/api/v1/verify/flows/"+id+"/code", `{"code":"`+sms.last()+`"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	snap := snapshotOf(t, w)
	require.Equal(t, core.StateVerified, snap.State)
	require.Equal(t, "+919123456789", snap.Principal.PhoneNumber)

	w = serve(r, http.MethodPost, "/api/v1/verify/flows/"+id+"/resend", `{"challenge_token":"again"}`)
	require.Equal(t, http.StatusConflict, w.Code)
	require.Contains(t, w.Body.String(), `"error":"invalid_state"`)
}

func TestGinFlowErrors(t *testing.T) {
	r, _ := newRouter(t, nil)

	w := serve(r, http.MethodGet, "/api/v1/verify/flows/missing", "")
	require.Equal(t, http.StatusNotFound, w.Code)
	require.JSONEq(t, `{"error":"flow_not_found"}`, w.Body.String())

	id := snapshotOf(t, serve(r, http.MethodPost, "/api/v1/verify/flows", "")).FlowID

	w = serve(r, http.MethodPost, "/api/v1/verify/flows/"+id+"/phone", `{"phone_number":"9123456789"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.JSONEq(t, `{"error":"challenge_required"}`, w.Body.String())

	w = serve(r, http.MethodPost, "/api/v1/verify/flows/"+id+"/code", `{}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.JSONEq(t, `{"error":"invalid_request"}`, w.Body.String())

	w = serve(r, http.MethodDelete, "/api/v1/verify/flows/"+id, "")
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, http.StatusNotFound, serve(r, http.MethodGet, "/api/v1/verify/flows/"+id, "").Code)
}

func TestGinRateLimit(t *testing.T) {
	rl := memorylimiter.New(map[string]memorylimiter.Limit{ginutil.RLFlowOpen: {Limit: 1, Window: time.Minute}})
	r, _ := newRouter(t, rl)

	require.Equal(t, http.StatusCreated, serve(r, http.MethodPost, "/api/v1/verify/flows", "").Code)
	w := serve(r, http.MethodPost, "/api/v1/verify/flows", "")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.JSONEq(t, `{"error":"rate_limited"}`, w.Body.String())
}

func TestDefaultLimitsCoverEveryBucket(t *testing.T) {
	limits := defaultLimits()
	for _, b := range []string{
		ginutil.RLFlowOpen, ginutil.RLFlowRead, ginutil.RLFlowPhone,
		ginutil.RLFlowCode, ginutil.RLFlowResend, ginutil.RLFlowCancel,
	} {
		require.Contains(t, limits, b)
	}
	require.Len(t, defaultMemoryLimits(), len(limits))
}
