package core

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/open-rails/phoneverify/challenge"
	"github.com/open-rails/phoneverify/cooldown"
)

var testStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// callLog is shared by the SDK and provider doubles so tests can assert the
// order of challenge and provider calls.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(s string) {
	l.mu.Lock()
	l.calls = append(l.calls, s)
	l.mu.Unlock()
}

func (l *callLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func (l *callLog) count(s string) int {
	n := 0
	for _, c := range l.all() {
		if c == s {
			n++
		}
	}
	return n
}

type recWidget struct {
	log   *callLog
	proof string

	mu        sync.Mutex
	destroyed bool
}

func (w *recWidget) Verify(context.Context) (string, error) { return w.proof, nil }
func (w *recWidget) OnExpired(func())                       {}
func (w *recWidget) Usable() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.destroyed
}
func (w *recWidget) Destroy() {
	w.mu.Lock()
	w.destroyed = true
	w.mu.Unlock()
	w.log.add("destroy")
}

type recSDK struct {
	log   *callLog
	ready bool
	n     int
}

func (s *recSDK) Ready() bool { return s.ready }
func (s *recSDK) LookupTarget(id string) (challenge.RenderTarget, bool) {
	return challenge.RenderTarget{ID: id}, true
}
func (s *recSDK) CreateChallenge(context.Context, challenge.RenderTarget, challenge.Mode) (challenge.Widget, error) {
	s.n++
	s.log.add("create")
	return &recWidget{log: s.log, proof: fmt.Sprintf("proof-%d", s.n)}, nil
}

type fakeProvider struct {
	log *callLog
	now func() time.Time

	mu           sync.Mutex
	dispatchErrs []error
	confirmErrs  []error
	handleTTL    time.Duration
	proofs       []string
	codes        []string
	handles      int
	// gates block the next call until closed.
	dispatchGate chan struct{}
	confirmGate  chan struct{}
}

func (p *fakeProvider) DispatchCode(ctx context.Context, phone PhoneNumber, proof string) (*ConfirmationHandle, error) {
	p.log.add("dispatch")
	p.mu.Lock()
	gate := p.dispatchGate
	p.dispatchGate = nil
	p.proofs = append(p.proofs, proof)
	var err error
	if len(p.dispatchErrs) > 0 {
		err, p.dispatchErrs = p.dispatchErrs[0], p.dispatchErrs[1:]
	}
	p.handles++
	id := fmt.Sprintf("handle-%d", p.handles)
	ttl := p.handleTTL
	p.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	h := &ConfirmationHandle{ID: id, Phone: phone, IssuedAt: p.now()}
	if ttl > 0 {
		h.ExpiresAt = h.IssuedAt.Add(ttl)
	}
	return h, nil
}

func (p *fakeProvider) Confirm(ctx context.Context, h ConfirmationHandle, code string) (*Principal, error) {
	p.log.add("confirm")
	p.mu.Lock()
	gate := p.confirmGate
	p.confirmGate = nil
	p.codes = append(p.codes, code)
	var err error
	if len(p.confirmErrs) > 0 {
		err, p.confirmErrs = p.confirmErrs[0], p.confirmErrs[1:]
	}
	p.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return &Principal{Subject: "user-" + h.ID, PhoneNumber: h.Phone.E164(), Provider: "fake"}, nil
}

type recordingEvents struct {
	mu     sync.Mutex
	events []FlowEvent
}

func (r *recordingEvents) LogFlowEvent(_ context.Context, e FlowEvent) error {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	return nil
}

func (r *recordingEvents) transitions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.From.String()+">"+e.To.String())
	}
	return out
}

// mapStore is an EphemeralStore without TTL enforcement.
type mapStore struct {
	mu   sync.Mutex
	data map[string][]byte
	err  error
}

func newMapStore() *mapStore { return &mapStore{data: map[string][]byte{}} }

func (m *mapStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, false, m.err
	}
	b, ok := m.data[key]
	return b, ok, nil
}

func (m *mapStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.data[key] = value
	return nil
}

func (m *mapStore) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

type harness struct {
	session  *Session
	provider *fakeProvider
	sdk      *recSDK
	manager  *challenge.Manager
	clock    *cooldown.ManualClock
	log      *callLog
	events   *recordingEvents
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := &callLog{}
	clock := cooldown.NewManualClock(testStart)
	sdk := &recSDK{log: log, ready: true}
	provider := &fakeProvider{log: log, now: clock.Now}
	mgr := challenge.NewManager(sdk, DefaultRenderTarget).WithNow(clock.Now)
	events := &recordingEvents{}
	sess := NewSession(Config{}, provider, mgr).
		WithClock(clock).
		WithFlowLogger(events)
	return &harness{session: sess, provider: provider, sdk: sdk, manager: mgr, clock: clock, log: log, events: events}
}

func mustPhone(t *testing.T, raw string) PhoneNumber {
	t.Helper()
	p, err := ParsePhoneNumber(raw)
	require.NoError(t, err)
	return p
}

// startCollecting drives h into CodeCollection.
func (h *harness) startCollecting(t *testing.T) {
	t.Helper()
	require.NoError(t, h.session.Start(context.Background(), mustPhone(t, "9123456789")))
	require.Equal(t, StateCodeCollection, h.session.State())
}

func (h *harness) fill(code string) {
	for i, r := range code {
		h.session.SetDigit(i, string(r))
	}
}
