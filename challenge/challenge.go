// Package challenge manages the anti-abuse challenge that must be solved
// before a verification code can be dispatched.
//
// A Manager owns a single slot: at most one Token is live per Manager, and
// Setup always tears the previous one down before asking the SDK for a new
// widget. The SDK itself is an external collaborator; PresentedSDK and DevSDK
// are the two in-process implementations.
package challenge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrWidgetUnavailable is the root of every challenge failure.
	ErrWidgetUnavailable = errors.New("challenge: widget unavailable")
	ErrNotReady          = fmt.Errorf("%w: auth context not initialized", ErrWidgetUnavailable)
	ErrTargetNotFound    = fmt.Errorf("%w: render target not found", ErrWidgetUnavailable)
	ErrWidgetSpent       = fmt.Errorf("%w: widget already used or expired", ErrWidgetUnavailable)
	ErrNoProof           = fmt.Errorf("%w: no solved challenge presented", ErrWidgetUnavailable)
	ErrTornDown          = fmt.Errorf("%w: torn down during setup", ErrWidgetUnavailable)
)

// DefaultStaleAfter is how long a token stays usable even if the widget
// never reports expiry.
const DefaultStaleAfter = 5 * time.Minute

type Mode string

const (
	ModeInvisible Mode = "invisible"
	ModeNormal    Mode = "normal"
)

// RenderTarget identifies where a widget is mounted.
type RenderTarget struct {
	ID string
}

// SDK is the challenge vendor surface.
type SDK interface {
	// Ready reports whether the SDK's auth context has been initialized.
	Ready() bool
	LookupTarget(id string) (RenderTarget, bool)
	CreateChallenge(ctx context.Context, target RenderTarget, mode Mode) (Widget, error)
}

// Widget is a single challenge instance.
type Widget interface {
	// Verify runs the challenge and returns the proof a verification
	// provider expects alongside the phone number.
	Verify(ctx context.Context) (string, error)
	// Usable is false once the widget has invalidated itself.
	Usable() bool
	// OnExpired registers a callback fired when the vendor expires the widget.
	OnExpired(fn func())
	Destroy()
}

// Token is the live handle to a widget obtained through Manager.Setup.
type Token struct {
	ID        string
	CreatedAt time.Time
	Target    RenderTarget

	mu        sync.Mutex
	widget    Widget
	expired   bool
	destroyed bool
}

// Proof runs the widget's verify capability.
func (t *Token) Proof(ctx context.Context) (string, error) {
	t.mu.Lock()
	w, dead := t.widget, t.expired || t.destroyed
	t.mu.Unlock()
	if dead || w == nil {
		return "", ErrWidgetSpent
	}
	return w.Verify(ctx)
}

// Live reports whether the token has not been torn down.
func (t *Token) Live() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.destroyed
}

func (t *Token) markExpired() {
	t.mu.Lock()
	t.expired = true
	t.mu.Unlock()
}

func (t *Token) usable() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.expired || t.destroyed || t.widget == nil {
		return false
	}
	return t.widget.Usable()
}

func (t *Token) destroy() {
	t.mu.Lock()
	w := t.widget
	already := t.destroyed
	t.destroyed = true
	t.mu.Unlock()
	if !already && w != nil {
		w.Destroy()
	}
}
