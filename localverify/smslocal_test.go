package localverify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSMSLocalSendsOTPRoute(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewSMSLocalSender("test-key", srv.URL, "PHNVRF")
	require.NoError(t, c.SendVerificationCode(context.Background(), "+919123456789", "123456"))
	require.Equal(t, "otp", body["route"])
	require.Equal(t, "919123456789", body["numbers"])
	require.Equal(t, "123456", body["variables"])
	require.Equal(t, "PHNVRF", body["sender_id"])
}

func TestSMSLocalErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := NewSMSLocalSender("k", srv.URL, "").SendVerificationCode(context.Background(), "+919123456789", "1")
	require.ErrorContains(t, err, "status=401")

	err = NewSMSLocalSender("", srv.URL, "").SendVerificationCode(context.Background(), "+919123456789", "1")
	require.ErrorContains(t, err, "API key not configured")
	require.Equal(t, DefaultSMSLocalURL, NewSMSLocalSender("k", "", "").BaseURL)
}
