package challenge

import (
	"context"
	"strings"
	"sync"
	"time"
)

// DefaultProofMaxAge matches the lifetime vendors give a solved invisible
// challenge before it must be re-solved.
const DefaultProofMaxAge = 2 * time.Minute

// PresentedSDK is a server-side SDK for challenges solved by a remote client.
// Each render target is a slot; the adapter registers a slot per flow and
// presents the client's solved proof before asking the flow to dispatch. A
// widget hands out the presented proof exactly once.
type PresentedSDK struct {
	mu     sync.Mutex
	slots  map[string]*presentedSlot
	maxAge time.Duration
	now    func() time.Time
}

type presentedSlot struct {
	proof       string
	presentedAt time.Time
}

func NewPresentedSDK() *PresentedSDK {
	return &PresentedSDK{
		slots:  make(map[string]*presentedSlot),
		maxAge: DefaultProofMaxAge,
		now:    time.Now,
	}
}

func (s *PresentedSDK) WithMaxAge(d time.Duration) *PresentedSDK {
	if d > 0 {
		s.maxAge = d
	}
	return s
}

func (s *PresentedSDK) WithNow(now func() time.Time) *PresentedSDK {
	if now != nil {
		s.now = now
	}
	return s
}

// Register creates an empty slot for target.
func (s *PresentedSDK) Register(target string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.slots[target]; !ok {
		s.slots[target] = &presentedSlot{}
	}
}

func (s *PresentedSDK) Unregister(target string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.slots, target)
}

// Present stores a solved proof for target, replacing any unused one.
func (s *PresentedSDK) Present(target, proof string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[target]
	if !ok {
		return ErrTargetNotFound
	}
	sl.proof = strings.TrimSpace(proof)
	sl.presentedAt = s.now()
	return nil
}

func (s *PresentedSDK) Ready() bool { return s != nil }

func (s *PresentedSDK) LookupTarget(id string) (RenderTarget, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.slots[id]
	return RenderTarget{ID: id}, ok
}

func (s *PresentedSDK) CreateChallenge(ctx context.Context, target RenderTarget, mode Mode) (Widget, error) {
	if _, ok := s.LookupTarget(target.ID); !ok {
		return nil, ErrTargetNotFound
	}
	return &presentedWidget{sdk: s, target: target.ID}, nil
}

// take removes and returns the presented proof for target.
func (s *PresentedSDK) take(target string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[target]
	if !ok {
		return "", false, ErrTargetNotFound
	}
	proof, at := sl.proof, sl.presentedAt
	sl.proof = ""
	if proof == "" {
		return "", false, ErrNoProof
	}
	if s.now().Sub(at) > s.maxAge {
		return "", true, ErrWidgetSpent
	}
	return proof, false, nil
}

type presentedWidget struct {
	sdk    *PresentedSDK
	target string

	mu        sync.Mutex
	used      bool
	destroyed bool
	onExpired func()
}

func (w *presentedWidget) Verify(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	w.mu.Lock()
	if w.used || w.destroyed {
		w.mu.Unlock()
		return "", ErrWidgetSpent
	}
	w.used = true
	w.mu.Unlock()

	proof, expired, err := w.sdk.take(w.target)
	if expired {
		w.fireExpired()
	}
	return proof, err
}

func (w *presentedWidget) Usable() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.used && !w.destroyed
}

func (w *presentedWidget) OnExpired(fn func()) {
	w.mu.Lock()
	w.onExpired = fn
	w.mu.Unlock()
}

func (w *presentedWidget) Destroy() {
	w.mu.Lock()
	w.destroyed = true
	w.mu.Unlock()
}

func (w *presentedWidget) fireExpired() {
	w.mu.Lock()
	fn := w.onExpired
	w.mu.Unlock()
	if fn != nil {
		fn()
	}
}
