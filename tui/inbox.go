package tui

import (
	"context"
	"sync"
)

// Inbox is a core.SMSSender that keeps the last code instead of sending it,
// so a local session can show the code on screen.
type Inbox struct {
	mu    sync.Mutex
	phone string
	code  string
}

func (i *Inbox) SendVerificationCode(_ context.Context, phone, code string) error {
	i.mu.Lock()
	i.phone, i.code = phone, code
	i.mu.Unlock()
	return nil
}

// Last returns the most recent recipient and code.
func (i *Inbox) Last() (phone, code string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.phone, i.code
}
