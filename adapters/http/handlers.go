package authhttp

import (
	"context"
	"net/http"
	"strings"

	core "github.com/open-rails/phoneverify/core"
)

// APIHandler returns a handler serving the flow routes under /verify/*.
// It is intended to be mounted under the host's mux/router at any prefix.
func (s *Service) APIHandler() http.Handler {
	if s == nil || s.reg == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { serverErr(w, "phoneverify_not_initialized") })
	}

	mux := http.NewServeMux()
	mux.Handle("POST /verify/flows", http.HandlerFunc(s.handleFlowOpenPOST))
	mux.Handle("GET /verify/flows/{id}", http.HandlerFunc(s.handleFlowGET))
	mux.Handle("DELETE /verify/flows/{id}", http.HandlerFunc(s.handleFlowDELETE))
	mux.Handle("POST /verify/flows/{id}/phone", http.HandlerFunc(s.handleFlowPhonePOST))
	mux.Handle("POST /verify/flows/{id}/code", http.HandlerFunc(s.handleFlowCodePOST))
	mux.Handle("POST /verify/flows/{id}/resend", http.HandlerFunc(s.handleFlowResendPOST))
	mux.Handle("POST /verify/flows/{id}/cancel", http.HandlerFunc(s.handleFlowCancelPOST))
	return mux
}

// origin tags ctx with the caller so flow events can be attributed.
func (s *Service) origin(r *http.Request) context.Context {
	ip := s.ip(r)
	if ip == "" {
		ip = remoteIP(r)
	}
	return core.WithRequestOrigin(r.Context(), ip, r.UserAgent())
}

// flow resolves {id}, writing a 404 when the flow is unknown or evicted.
func (s *Service) flow(w http.ResponseWriter, r *http.Request) (*core.Flow, bool) {
	f, err := s.reg.Get(r.PathValue("id"))
	if err != nil {
		notFound(w, core.ErrorCode(core.ErrFlowNotFound))
		return nil, false
	}
	return f, true
}

func (s *Service) handleFlowOpenPOST(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLFlowOpen) {
		tooMany(w)
		return
	}
	f := s.reg.Open()
	writeJSON(w, http.StatusCreated, f.Controller.Snapshot())
}

func (s *Service) handleFlowGET(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLFlowRead) {
		tooMany(w)
		return
	}
	f, ok := s.flow(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, f.Controller.Snapshot())
}

func (s *Service) handleFlowDELETE(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLFlowCancel) {
		tooMany(w)
		return
	}
	if err := s.reg.Close(r.PathValue("id")); err != nil {
		notFound(w, core.ErrorCode(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type challengeReq struct {
	PhoneNumber    string `json:"phone_number"`
	ChallengeToken string `json:"challenge_token"`
}

func (s *Service) handleFlowPhonePOST(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLFlowPhone) {
		tooMany(w)
		return
	}
	f, ok := s.flow(w, r)
	if !ok {
		return
	}
	var req challengeReq
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, "invalid_request")
		return
	}
	if strings.TrimSpace(req.PhoneNumber) == "" {
		badRequest(w, "phone_number_required")
		return
	}
	if !s.present(w, f, req.ChallengeToken) {
		return
	}
	if err := f.Controller.SubmitPhone(s.origin(r), req.PhoneNumber); err != nil {
		flowErr(w, err, f.Controller.Snapshot())
		return
	}
	writeJSON(w, http.StatusOK, f.Controller.Snapshot())
}

func (s *Service) handleFlowResendPOST(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLFlowResend) {
		tooMany(w)
		return
	}
	f, ok := s.flow(w, r)
	if !ok {
		return
	}
	var req challengeReq
	if err := decodeJSON(w, r, &req); err != nil || req.PhoneNumber != "" {
		badRequest(w, "invalid_request")
		return
	}
	if !s.present(w, f, req.ChallengeToken) {
		return
	}
	if err := f.Controller.RequestResend(s.origin(r)); err != nil {
		flowErr(w, err, f.Controller.Snapshot())
		return
	}
	writeJSON(w, http.StatusOK, f.Controller.Snapshot())
}

func (s *Service) handleFlowCodePOST(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLFlowCode) {
		tooMany(w)
		return
	}
	f, ok := s.flow(w, r)
	if !ok {
		return
	}
	var req struct {
		Code string `json:"code"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, "invalid_request")
		return
	}
	if err := f.Controller.SubmitCodeString(s.origin(r), strings.TrimSpace(req.Code)); err != nil {
		flowErr(w, err, f.Controller.Snapshot())
		return
	}
	writeJSON(w, http.StatusOK, f.Controller.Snapshot())
}

// handleFlowCancelPOST resets the flow to idle but keeps it open.
func (s *Service) handleFlowCancelPOST(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLFlowCancel) {
		tooMany(w)
		return
	}
	f, ok := s.flow(w, r)
	if !ok {
		return
	}
	f.Controller.Cancel(s.origin(r))
	writeJSON(w, http.StatusOK, f.Controller.Snapshot())
}

// present hands the client's solved challenge to the flow's slot.
func (s *Service) present(w http.ResponseWriter, f *core.Flow, token string) bool {
	token = strings.TrimSpace(token)
	if token == "" {
		badRequest(w, "challenge_required")
		return false
	}
	if err := s.reg.Present(f.ID, token); err != nil {
		s.log.WithError(err).WithField("flow_id", f.ID).Debug("challenge proof rejected")
		notFound(w, core.ErrorCode(core.ErrFlowNotFound))
		return false
	}
	return true
}
