package core

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorKindMatching(t *testing.T) {
	err := fmt.Errorf("submit: %w", newError(KindInvalidCode, errors.New("INVALID_CODE")))
	require.ErrorIs(t, err, ErrInvalidCode)
	require.NotErrorIs(t, err, ErrHandleExpired)
	require.Equal(t, KindInvalidCode, KindOf(err))
	require.Equal(t, "invalid_code", ErrorCode(err))
	require.Contains(t, err.Error(), "phoneverify: invalid_code: INVALID_CODE")
}

func TestErrorCodes(t *testing.T) {
	require.Equal(t, "", ErrorCode(nil))
	require.Equal(t, "busy", ErrorCode(ErrBusy))
	require.Equal(t, "cooldown_active", ErrorCode(fmt.Errorf("resend: %w", ErrCooldownActive)))
	require.Equal(t, "flow_not_found", ErrorCode(ErrFlowNotFound))
	require.Equal(t, "internal_error", ErrorCode(errors.New("boom")))
	require.Equal(t, Kind(""), KindOf(ErrBusy))
}

func TestStateText(t *testing.T) {
	b, err := StateCodeCollection.MarshalText()
	require.NoError(t, err)
	require.Equal(t, "code_collection", string(b))

	var s SessionState
	require.NoError(t, s.UnmarshalText([]byte("awaiting_challenge")))
	require.Equal(t, StateAwaitingChallenge, s)
	require.True(t, s.Busy())
	require.False(t, StateCodeCollection.Busy())
	require.Error(t, s.UnmarshalText([]byte("nope")))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[error]int{
		ErrInvalidInput:      http.StatusBadRequest,
		ErrInvalidCode:       http.StatusBadRequest,
		ErrWidgetUnavailable: http.StatusBadRequest,
		ErrHandleExpired:     http.StatusGone,
		ErrDispatchFailed:    http.StatusBadGateway,
		ErrConfirmFailed:     http.StatusBadGateway,
		ErrFlowNotFound:      http.StatusNotFound,
		ErrCooldownActive:    http.StatusTooManyRequests,
		ErrQuotaExceeded:     http.StatusTooManyRequests,
		ErrBusy:              http.StatusConflict,
		ErrInvalidState:      http.StatusConflict,
		ErrResendRequired:    http.StatusConflict,
		errors.New("boom"):   http.StatusInternalServerError,
	}
	for err, want := range cases {
		require.Equal(t, want, HTTPStatus(err), err.Error())
	}
}
