package identitytoolkit

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/stretchr/testify/require"

	"github.com/open-rails/phoneverify/core"
)

type signer struct {
	key *rsa.PrivateKey
	kid string
}

func newSigner(t *testing.T) (*signer, *httptest.Server) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pub, err := jwk.FromRaw(&priv.PublicKey)
	require.NoError(t, err)
	require.NoError(t, pub.Set(jwk.KeyIDKey, "kid-1"))
	set := jwk.NewSet()
	require.NoError(t, set.AddKey(pub))
	raw, err := json.Marshal(set)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(raw)
	}))
	t.Cleanup(srv.Close)
	return &signer{key: priv, kid: "kid-1"}, srv
}

func (s *signer) sign(t *testing.T, claims IDTokenClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = s.kid
	out, err := tok.SignedString(s.key)
	require.NoError(t, err)
	return out
}

func validClaims(now time.Time) IDTokenClaims {
	return IDTokenClaims{
		PhoneNumber: "+919123456789",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuerPrefix + "demo-project",
			Audience:  jwt.ClaimStrings{"demo-project"},
			Subject:   "uid-1",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
}

func TestVerifyAcceptsValidToken(t *testing.T) {
	s, srv := newSigner(t)
	v := NewTokenVerifier("demo-project").WithJWKSURL(srv.URL).WithHTTPClient(srv.Client())

	claims, err := v.Verify(context.Background(), s.sign(t, validClaims(time.Now())))
	require.NoError(t, err)
	require.Equal(t, "uid-1", claims.Subject)
	require.Equal(t, "+919123456789", claims.PhoneNumber)
}

func TestVerifyRejects(t *testing.T) {
	s, srv := newSigner(t)
	v := NewTokenVerifier("demo-project").WithJWKSURL(srv.URL).WithHTTPClient(srv.Client())
	now := time.Now()

	wrongAud := validClaims(now)
	wrongAud.Audience = jwt.ClaimStrings{"other"}
	wrongIss := validClaims(now)
	wrongIss.Issuer = issuerPrefix + "other"
	expired := validClaims(now.Add(-3 * time.Hour))

	for name, c := range map[string]IDTokenClaims{"audience": wrongAud, "issuer": wrongIss, "expired": expired} {
		_, err := v.Verify(context.Background(), s.sign(t, c))
		require.Error(t, err, name)
	}

	s.kid = "unknown"
	_, err := v.Verify(context.Background(), s.sign(t, validClaims(now)))
	require.Error(t, err)

	_, err = v.Verify(context.Background(), "")
	require.Error(t, err)
}

func TestConfirmChecksIDToken(t *testing.T) {
	s, jwks := newSigner(t)
	c, api := newTestClient(t)
	c.WithTokenVerifier(NewTokenVerifier("demo-project").WithJWKSURL(jwks.URL).WithHTTPClient(jwks.Client()))

	tok := s.sign(t, validClaims(time.Now()))
	api.signResp = `{"idToken":"` + tok + `","refreshToken":"r","expiresIn":"3600","localId":"uid-1","phoneNumber":"+919123456789"}`
	p, err := c.Confirm(context.Background(), core.ConfirmationHandle{ID: "s"}, "123456")
	require.NoError(t, err)
	require.Equal(t, "uid-1", p.Subject)

	api.signResp = `{"idToken":"` + tok + `","localId":"uid-2"}`
	_, err = c.Confirm(context.Background(), core.ConfirmationHandle{ID: "s"}, "123456")
	require.ErrorContains(t, err, "subject mismatch")
}
