package authhttp

import (
	"encoding/json"
	"net/http"

	core "github.com/open-rails/phoneverify/core"
)

type errResp struct {
	Error string         `json:"error"`
	Flow  *core.Snapshot `json:"flow,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func sendErr(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, errResp{Error: code})
}

func badRequest(w http.ResponseWriter, code string) { sendErr(w, http.StatusBadRequest, code) }
func tooMany(w http.ResponseWriter)                 { sendErr(w, http.StatusTooManyRequests, "rate_limited") }
func serverErr(w http.ResponseWriter, code string)  { sendErr(w, http.StatusInternalServerError, code) }
func notFound(w http.ResponseWriter, code string)   { sendErr(w, http.StatusNotFound, code) }

// flowErr reports err together with the flow's state after the command.
func flowErr(w http.ResponseWriter, err error, snap core.Snapshot) {
	code := core.ErrorCode(err)
	snap.Error = code
	writeJSON(w, core.HTTPStatus(err), errResp{Error: code, Flow: &snap})
}
