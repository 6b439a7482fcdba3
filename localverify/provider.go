// Package localverify is a verification provider that generates and checks
// codes itself, storing them hashed in an EphemeralStore. Codes go out
// through a core.SMSSender, or to the log in dev environments.
package localverify

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/open-rails/phoneverify/codeinput"
	"github.com/open-rails/phoneverify/core"
)

const (
	// DefaultCodeTTL bounds how long a dispatched code can be confirmed.
	DefaultCodeTTL = 10 * time.Minute
	ProviderName   = "local"

	keyHandle = "phoneverify:handle:"
)

var (
	ErrNoProof     = errors.New("localverify: challenge proof required")
	ErrNoSMSSender = errors.New("localverify: no SMS sender configured")
)

// subjectNamespace derives stable principal subjects from phone numbers.
var subjectNamespace = uuid.MustParse("6f1f3c55-3a8e-4d1b-9a43-0d6c8f5b2e71")

type handleData struct {
	Phone    string    `json:"phone"`
	CodeHash string    `json:"code_hash"`
	IssuedAt time.Time `json:"issued_at"`
}

type Provider struct {
	store   core.EphemeralStore
	sms     core.SMSSender
	codeTTL time.Duration
	now     func() time.Time
	log     logrus.FieldLogger
	newCode func() (string, error)
	devLog  bool
}

func New(store core.EphemeralStore) *Provider {
	return &Provider{
		store:   store,
		codeTTL: DefaultCodeTTL,
		now:     time.Now,
		log:     logrus.StandardLogger(),
		newCode: GenerateCode,
		devLog:  core.IsDevEnvironment(),
	}
}

func (p *Provider) WithSMSSender(s core.SMSSender) *Provider { p.sms = s; return p }
func (p *Provider) WithCodeTTL(d time.Duration) *Provider {
	if d > 0 {
		p.codeTTL = d
	}
	return p
}
func (p *Provider) WithNow(now func() time.Time) *Provider {
	if now != nil {
		p.now = now
	}
	return p
}
func (p *Provider) WithLogger(l logrus.FieldLogger) *Provider {
	if l != nil {
		p.log = l
	}
	return p
}

// WithCodeGenerator replaces the random code source, for tests.
func (p *Provider) WithCodeGenerator(fn func() (string, error)) *Provider {
	if fn != nil {
		p.newCode = fn
	}
	return p
}

// WithDevLog controls whether codes are logged when no SMS sender is set.
// It defaults to true outside production.
func (p *Provider) WithDevLog(on bool) *Provider { p.devLog = on; return p }

// DispatchCode stores a fresh hashed code under a new handle and sends it.
func (p *Provider) DispatchCode(ctx context.Context, phone core.PhoneNumber, challengeProof string) (*core.ConfirmationHandle, error) {
	if strings.TrimSpace(challengeProof) == "" {
		return nil, ErrNoProof
	}
	if p.sms == nil && !p.devLog {
		return nil, ErrNoSMSSender
	}
	code, err := p.newCode()
	if err != nil {
		return nil, fmt.Errorf("localverify: generate code: %w", err)
	}
	now := p.now()
	id := uuid.NewString()
	data := handleData{Phone: phone.E164(), CodeHash: HashCode(code), IssuedAt: now}
	if err := core.PutJSON(ctx, p.store, keyHandle+id, data, p.codeTTL); err != nil {
		return nil, fmt.Errorf("localverify: store handle: %w", err)
	}

	if p.sms != nil {
		if err := p.sms.SendVerificationCode(ctx, phone.E164(), code); err != nil {
			_ = p.store.Del(ctx, keyHandle+id)
			return nil, fmt.Errorf("localverify: send sms: %w", err)
		}
	} else {
		p.log.Infof("[phoneverify/dev-sms] verify to=%s code=%s", phone.E164(), code)
	}

	return &core.ConfirmationHandle{
		ID:        id,
		Phone:     phone,
		IssuedAt:  now,
		ExpiresAt: now.Add(p.codeTTL),
	}, nil
}

// Confirm checks code against the handle. The handle is deleted whatever
// the outcome, so each handle confirms at most once.
func (p *Provider) Confirm(ctx context.Context, handle core.ConfirmationHandle, code string) (*core.Principal, error) {
	var data handleData
	ok, err := core.TakeJSON(ctx, p.store, keyHandle+handle.ID, &data)
	if err != nil {
		return nil, fmt.Errorf("localverify: load handle: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: unknown or expired handle", core.ErrHandleExpired)
	}
	if !handle.Phone.IsZero() && handle.Phone.E164() != data.Phone {
		return nil, fmt.Errorf("%w: handle issued for a different number", core.ErrInvalidCode)
	}
	if !CodeEqual(code, data.CodeHash) {
		return nil, core.ErrInvalidCode
	}
	return &core.Principal{
		Subject:     uuid.NewSHA1(subjectNamespace, []byte(data.Phone)).String(),
		PhoneNumber: data.Phone,
		Provider:    ProviderName,
	}, nil
}

// GenerateCode returns a random numeric code of codeinput.Length digits.
func GenerateCode() (string, error) {
	return randomDigits(rand.Reader, codeinput.Length)
}

// randomDigits draws n uniformly distributed decimal digits from r.
func randomDigits(r io.Reader, n int) (string, error) {
	ten := big.NewInt(10)
	s := make([]byte, n)
	for i := range s {
		d, err := rand.Int(r, ten)
		if err != nil {
			return "", err
		}
		s[i] = '0' + byte(d.Int64())
	}
	return string(s), nil
}

func HashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// CodeEqual compares code's hash with storedHash in constant time.
func CodeEqual(code, storedHash string) bool {
	return subtle.ConstantTimeCompare([]byte(HashCode(code)), []byte(storedHash)) == 1
}
