package identitytoolkit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

const (
	// DefaultJWKSURL publishes the keys that sign secure-token ID tokens.
	DefaultJWKSURL  = "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"
	issuerPrefix    = "https://securetoken.google.com/"
	defaultCacheTTL = time.Hour
	defaultLeeway   = 60 * time.Second
)

// IDTokenClaims are the claims checked and surfaced by TokenVerifier.
type IDTokenClaims struct {
	PhoneNumber string `json:"phone_number"`
	jwt.RegisteredClaims
}

// TokenVerifier validates RS256 ID tokens against a project's issuer and
// audience, with keys fetched from a JWKS endpoint and cached.
type TokenVerifier struct {
	projectID  string
	jwksURL    string
	httpClient *http.Client
	cacheTTL   time.Duration
	now        func() time.Time

	mu        sync.Mutex
	keys      jwk.Set
	expiresAt time.Time
}

func NewTokenVerifier(projectID string) *TokenVerifier {
	return &TokenVerifier{
		projectID:  projectID,
		jwksURL:    DefaultJWKSURL,
		httpClient: http.DefaultClient,
		cacheTTL:   defaultCacheTTL,
		now:        time.Now,
	}
}

func (v *TokenVerifier) WithJWKSURL(u string) *TokenVerifier {
	if u != "" {
		v.jwksURL = u
	}
	return v
}

func (v *TokenVerifier) WithHTTPClient(c *http.Client) *TokenVerifier {
	if c != nil {
		v.httpClient = c
	}
	return v
}

func (v *TokenVerifier) WithNow(now func() time.Time) *TokenVerifier {
	if now != nil {
		v.now = now
	}
	return v
}

func (v *TokenVerifier) Issuer() string { return issuerPrefix + v.projectID }

// Verify parses tokenStr and enforces signature, issuer, audience and expiry.
func (v *TokenVerifier) Verify(ctx context.Context, tokenStr string) (*IDTokenClaims, error) {
	tokenStr = strings.TrimSpace(tokenStr)
	if tokenStr == "" {
		return nil, errors.New("identitytoolkit: missing id token")
	}
	claims := &IDTokenClaims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims,
		func(t *jwt.Token) (any, error) {
			kid, _ := t.Header["kid"].(string)
			return v.publicKey(ctx, kid)
		},
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithIssuer(v.Issuer()),
		jwt.WithAudience(v.projectID),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(defaultLeeway),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, fmt.Errorf("identitytoolkit: invalid id token: %w", err)
	}
	if claims.Subject == "" {
		return nil, errors.New("identitytoolkit: id token without subject")
	}
	return claims, nil
}

func (v *TokenVerifier) publicKey(ctx context.Context, kid string) (any, error) {
	if kid == "" {
		return nil, errors.New("missing_kid")
	}
	set, err := v.keySet(ctx, false)
	if err != nil {
		return nil, err
	}
	key, ok := set.LookupKeyID(kid)
	if !ok {
		// Keys rotate; refetch once before giving up.
		if set, err = v.keySet(ctx, true); err != nil {
			return nil, err
		}
		if key, ok = set.LookupKeyID(kid); !ok {
			return nil, errors.New("unknown_kid")
		}
	}
	var raw any
	if err := key.Raw(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (v *TokenVerifier) keySet(ctx context.Context, force bool) (jwk.Set, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !force && v.keys != nil && v.now().Before(v.expiresAt) {
		return v.keys, nil
	}
	set, err := jwk.Fetch(ctx, v.jwksURL, jwk.WithHTTPClient(v.httpClient))
	if err != nil {
		if v.keys != nil {
			return v.keys, nil
		}
		return nil, fmt.Errorf("identitytoolkit: fetch jwks: %w", err)
	}
	v.keys = set
	v.expiresAt = v.now().Add(v.cacheTTL)
	return set, nil
}
