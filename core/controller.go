package core

import (
	"context"
	"sync"

	"github.com/open-rails/phoneverify/codeinput"
)

// Controller is the command surface a presentation layer talks to. It
// validates input before forwarding to the Session and keeps the error of
// the latest command.
type Controller struct {
	session    *Session
	policy     PhonePolicy
	onVerified func(ctx context.Context, p Principal)

	mu      sync.Mutex
	lastErr error
}

func NewController(session *Session) *Controller {
	return &Controller{session: session, policy: session.Config().Phone}
}

// WithOnVerified registers the hook that receives the Principal when a flow
// reaches Verified.
func (c *Controller) WithOnVerified(fn func(ctx context.Context, p Principal)) *Controller {
	c.onVerified = fn
	return c
}

func (c *Controller) Session() *Session { return c.session }

// SubmitPhone parses raw with the configured PhonePolicy and starts the flow.
func (c *Controller) SubmitPhone(ctx context.Context, raw string) error {
	phone, err := c.policy.Parse(raw)
	if err != nil {
		return c.record(err)
	}
	return c.record(c.session.Start(ctx, phone))
}

func (c *Controller) SetDigit(index int, value string) { c.session.SetDigit(index, value) }
func (c *Controller) Backspace(index int)              { c.session.Backspace(index) }

// SubmitCode confirms the digits currently in the buffer.
func (c *Controller) SubmitCode(ctx context.Context) error {
	if c.session.State() == StateCodeCollection {
		if _, ok := c.session.AssembledCode(); !ok {
			return c.record(invalidInput("code must have %d digits", codeinput.Length))
		}
	}
	err := c.session.SubmitCode(ctx)
	if err == nil {
		c.verified(ctx)
	}
	return c.record(err)
}

// SubmitCodeString fills the buffer from code and submits it. Separators are
// ignored; more digits than the buffer holds is invalid input, not a
// truncated code.
func (c *Controller) SubmitCodeString(ctx context.Context, code string) error {
	if c.session.State() == StateCodeCollection {
		if n := countDigits(code); n > codeinput.Length {
			return c.record(invalidInput("code must have %d digits, got %d", codeinput.Length, n))
		}
		c.session.FillCode(code)
	}
	return c.SubmitCode(ctx)
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

func (c *Controller) RequestResend(ctx context.Context) error {
	return c.record(c.session.Resend(ctx))
}

func (c *Controller) Cancel(ctx context.Context) {
	c.session.Cancel(ctx)
	c.record(nil)
}

// Close cancels the flow so its timer and challenge are released.
func (c *Controller) Close() {
	c.session.Cancel(context.Background())
}

func (c *Controller) State() SessionState   { return c.session.State() }
func (c *Controller) Principal() *Principal { return c.session.Principal() }

// LastError returns the error of the latest command, nil if it succeeded.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Snapshot reports the session view with Error set from the latest command.
func (c *Controller) Snapshot() Snapshot {
	snap := c.session.Snapshot()
	snap.Error = ErrorCode(c.LastError())
	return snap
}

func (c *Controller) record(err error) error {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
	return err
}

func (c *Controller) verified(ctx context.Context) {
	if c.onVerified == nil {
		return
	}
	if p := c.session.Principal(); p != nil {
		c.onVerified(ctx, *p)
	}
}
