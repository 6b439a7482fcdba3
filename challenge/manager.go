package challenge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Manager owns the lifecycle of one challenge slot.
type Manager struct {
	mu         sync.Mutex
	sdk        SDK
	targetID   string
	mode       Mode
	staleAfter time.Duration
	now        func() time.Time
	live       *Token
	gen        uint64
}

func NewManager(sdk SDK, targetID string) *Manager {
	return &Manager{
		sdk:        sdk,
		targetID:   targetID,
		mode:       ModeInvisible,
		staleAfter: DefaultStaleAfter,
		now:        time.Now,
	}
}

// WithStaleAfter overrides the token TTL. Non-positive values keep the default.
func (m *Manager) WithStaleAfter(d time.Duration) *Manager {
	if d > 0 {
		m.staleAfter = d
	}
	return m
}

func (m *Manager) WithNow(now func() time.Time) *Manager {
	if now != nil {
		m.now = now
	}
	return m
}

func (m *Manager) WithMode(mode Mode) *Manager {
	if mode != "" {
		m.mode = mode
	}
	return m
}

// Setup tears down any live token and creates a fresh widget. Errors are
// returned as-is to the caller; Setup never retries. The SDK call runs
// without the slot lock, so a Teardown issued meanwhile wins and the new
// widget is destroyed with ErrTornDown.
func (m *Manager) Setup(ctx context.Context) (*Token, error) {
	m.mu.Lock()
	m.teardownLocked()
	gen := m.gen
	sdk := m.sdk
	m.mu.Unlock()

	if sdk == nil || !sdk.Ready() {
		return nil, ErrNotReady
	}
	target, ok := sdk.LookupTarget(m.targetID)
	if !ok {
		return nil, ErrTargetNotFound
	}
	w, err := sdk.CreateChallenge(ctx, target, m.mode)
	if err != nil {
		if errors.Is(err, ErrWidgetUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrWidgetUnavailable, err)
	}
	if w == nil {
		return nil, ErrWidgetUnavailable
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen {
		w.Destroy()
		return nil, ErrTornDown
	}
	m.teardownLocked()
	tok := &Token{
		ID:        uuid.NewString(),
		CreatedAt: m.now(),
		Target:    target,
		widget:    w,
	}
	w.OnExpired(tok.markExpired)
	m.live = tok
	return tok, nil
}

// IsStale reports whether tok can no longer be used for a dispatch.
func (m *Manager) IsStale(tok *Token, now time.Time) bool {
	if tok == nil {
		return true
	}
	if now.Sub(tok.CreatedAt) > m.staleAfter {
		return true
	}
	return !tok.usable()
}

// Current returns the live token, or nil.
func (m *Manager) Current() *Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live
}

// Teardown destroys the live token if any. Safe to call repeatedly.
func (m *Manager) Teardown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardownLocked()
}

// Discard tears tok down only if it is still the live token. Completions
// from a cancelled flow use it so they never destroy a newer widget.
func (m *Manager) Discard(tok *Token) {
	if tok == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.live == tok {
		m.teardownLocked()
	}
}

func (m *Manager) teardownLocked() {
	m.gen++
	if m.live == nil {
		return
	}
	m.live.destroy()
	m.live = nil
}
