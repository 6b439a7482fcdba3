// Package identitytoolkit is a verification provider backed by an
// Identity Toolkit style REST API: sendVerificationCode exchanges a phone
// number and a solved challenge for session info, and signInWithPhoneNumber
// exchanges session info and the code for an ID token.
package identitytoolkit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/open-rails/phoneverify/core"
)

const (
	DefaultBaseURL = "https://identitytoolkit.googleapis.com"
	ProviderName   = "identitytoolkit"

	defaultTimeout  = 15 * time.Second
	maxResponseSize = 1 << 20
)

// APIError is a non-200 response. Codes the session can act on unwrap to
// core.ErrInvalidCode or core.ErrHandleExpired.
type APIError struct {
	Status  int
	Code    string
	Message string
	kind    error
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("identitytoolkit: http %d", e.Status)
	}
	return fmt.Sprintf("identitytoolkit: http %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error { return e.kind }

type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	now        func() time.Time
	sessionTTL time.Duration
	verifier   *TokenVerifier
}

func New(apiKey string) *Client {
	return &Client{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		now:        time.Now,
	}
}

func (c *Client) WithBaseURL(u string) *Client {
	if u = strings.TrimRight(strings.TrimSpace(u), "/"); u != "" {
		c.baseURL = u
	}
	return c
}

func (c *Client) WithHTTPClient(h *http.Client) *Client {
	if h != nil {
		c.httpClient = h
	}
	return c
}

func (c *Client) WithNow(now func() time.Time) *Client {
	if now != nil {
		c.now = now
	}
	return c
}

// WithSessionTTL sets ExpiresAt on returned handles so the session can
// refuse to confirm stale ones without a round trip.
func (c *Client) WithSessionTTL(d time.Duration) *Client { c.sessionTTL = d; return c }

// WithTokenVerifier checks every ID token returned by Confirm.
func (c *Client) WithTokenVerifier(v *TokenVerifier) *Client { c.verifier = v; return c }

func (c *Client) DispatchCode(ctx context.Context, phone core.PhoneNumber, challengeProof string) (*core.ConfirmationHandle, error) {
	body, err := c.post(ctx, "/v1/accounts:sendVerificationCode", map[string]string{
		"phoneNumber":    phone.E164(),
		"recaptchaToken": challengeProof,
	})
	if err != nil {
		return nil, err
	}
	sessionInfo := gjson.GetBytes(body, "sessionInfo").String()
	if sessionInfo == "" {
		return nil, errors.New("identitytoolkit: response missing sessionInfo")
	}
	now := c.now()
	h := &core.ConfirmationHandle{ID: sessionInfo, Phone: phone, IssuedAt: now}
	if c.sessionTTL > 0 {
		h.ExpiresAt = now.Add(c.sessionTTL)
	}
	return h, nil
}

func (c *Client) Confirm(ctx context.Context, handle core.ConfirmationHandle, code string) (*core.Principal, error) {
	body, err := c.post(ctx, "/v1/accounts:signInWithPhoneNumber", map[string]string{
		"sessionInfo": handle.ID,
		"code":        code,
	})
	if err != nil {
		return nil, err
	}
	res := gjson.GetManyBytes(body, "idToken", "refreshToken", "expiresIn", "localId", "phoneNumber", "isNewUser")
	p := &core.Principal{
		IDToken:      res[0].String(),
		RefreshToken: res[1].String(),
		Subject:      res[3].String(),
		PhoneNumber:  res[4].String(),
		IsNew:        res[5].Bool(),
		Provider:     ProviderName,
	}
	if secs, err := strconv.ParseInt(res[2].String(), 10, 64); err == nil && secs > 0 {
		p.ExpiresAt = c.now().Add(time.Duration(secs) * time.Second)
	}
	if p.Subject == "" {
		return nil, errors.New("identitytoolkit: response missing localId")
	}
	if p.PhoneNumber == "" {
		p.PhoneNumber = handle.Phone.E164()
	}
	if c.verifier != nil {
		claims, err := c.verifier.Verify(ctx, p.IDToken)
		if err != nil {
			return nil, err
		}
		if claims.Subject != p.Subject {
			return nil, errors.New("identitytoolkit: id token subject mismatch")
		}
	}
	return p, nil
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	u := c.baseURL + path + "?key=" + url.QueryEscape(c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identitytoolkit: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("identitytoolkit: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, newAPIError(resp.StatusCode, body)
	}
	return body, nil
}

// newAPIError reads error.message, which looks like "CODE" or
// "CODE : human readable detail".
func newAPIError(status int, body []byte) *APIError {
	msg := strings.TrimSpace(gjson.GetBytes(body, "error.message").String())
	code := msg
	if i := strings.IndexAny(code, " :"); i >= 0 {
		code = code[:i]
	}
	e := &APIError{Status: status, Code: code, Message: msg}
	switch code {
	case "INVALID_CODE":
		e.kind = core.ErrInvalidCode
	case "SESSION_EXPIRED", "INVALID_SESSION_INFO", "CODE_EXPIRED", "MISSING_SESSION_INFO":
		e.kind = core.ErrHandleExpired
	}
	return e
}
