package challenge

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// DevSDK solves challenges locally with random single-use proofs. It is
// meant for the dev server, the terminal client and tests.
type DevSDK struct {
	mu      sync.Mutex
	targets map[string]struct{}
	created int
}

func NewDevSDK(targets ...string) *DevSDK {
	s := &DevSDK{targets: make(map[string]struct{}, len(targets))}
	for _, t := range targets {
		s.targets[t] = struct{}{}
	}
	return s
}

func (s *DevSDK) AddTarget(id string) {
	s.mu.Lock()
	s.targets[id] = struct{}{}
	s.mu.Unlock()
}

func (s *DevSDK) Ready() bool { return s != nil }

func (s *DevSDK) LookupTarget(id string) (RenderTarget, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.targets[id]
	return RenderTarget{ID: id}, ok
}

func (s *DevSDK) CreateChallenge(ctx context.Context, target RenderTarget, mode Mode) (Widget, error) {
	s.mu.Lock()
	s.created++
	s.mu.Unlock()
	return &devWidget{}, nil
}

// Created returns the number of widgets handed out so far.
func (s *DevSDK) Created() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.created
}

type devWidget struct {
	mu        sync.Mutex
	used      bool
	destroyed bool
}

func (w *devWidget) Verify(ctx context.Context) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.used || w.destroyed {
		return "", ErrWidgetSpent
	}
	w.used = true
	return "dev-" + uuid.NewString(), nil
}

func (w *devWidget) Usable() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.used && !w.destroyed
}

func (w *devWidget) OnExpired(func()) {}

func (w *devWidget) Destroy() {
	w.mu.Lock()
	w.destroyed = true
	w.mu.Unlock()
}
