package core

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/open-rails/phoneverify/challenge"
	"github.com/open-rails/phoneverify/cooldown"
)

// Flow is one server-hosted verification flow.
type Flow struct {
	ID         string
	CreatedAt  time.Time
	Controller *Controller
}

// Registry hosts concurrent flows for a server. Every flow owns its own
// Session, Timer, Buffer and challenge Manager; the challenge slot of a flow
// is registered in the shared PresentedSDK under the flow id. Flows idle for
// longer than Config.FlowIdleTTL are evicted and cancelled.
type Registry struct {
	cfg      Config
	provider Provider
	sdk      *challenge.PresentedSDK
	flows    *cache.Cache

	quota      *DispatchQuota
	events     FlowEventLogger
	log        logrus.FieldLogger
	clock      cooldown.Clock
	onVerified func(ctx context.Context, p Principal)
}

func NewRegistry(cfg Config, provider Provider, sdk *challenge.PresentedSDK) *Registry {
	cfg = cfg.withDefaults()
	if sdk == nil {
		sdk = challenge.NewPresentedSDK()
	}
	r := &Registry{
		cfg:      cfg,
		provider: provider,
		sdk:      sdk,
		flows:    cache.New(cfg.FlowIdleTTL, cfg.FlowIdleTTL/2),
		log:      logrus.StandardLogger(),
		clock:    cooldown.SystemClock(),
	}
	r.flows.OnEvicted(r.evicted)
	return r
}

func (r *Registry) WithQuota(q *DispatchQuota) *Registry {
	r.quota = q
	return r
}

func (r *Registry) WithFlowLogger(l FlowEventLogger) *Registry {
	r.events = l
	return r
}

func (r *Registry) WithLogger(l logrus.FieldLogger) *Registry {
	if l != nil {
		r.log = l
	}
	return r
}

func (r *Registry) WithClock(c cooldown.Clock) *Registry {
	if c != nil {
		r.clock = c
	}
	return r
}

func (r *Registry) WithOnVerified(fn func(ctx context.Context, p Principal)) *Registry {
	r.onVerified = fn
	return r
}

func (r *Registry) Config() Config { return r.cfg }

// Open creates a flow in Idle.
func (r *Registry) Open() *Flow {
	id := uuid.NewString()
	r.sdk.Register(id)
	mgr := challenge.NewManager(r.sdk, id).
		WithStaleAfter(r.cfg.StaleAfter).
		WithNow(r.clock.Now)
	sess := NewSession(r.cfg, r.provider, mgr).
		WithID(id).
		WithClock(r.clock).
		WithQuota(r.quota).
		WithFlowLogger(r.events).
		WithLogger(r.log)
	f := &Flow{
		ID:         id,
		CreatedAt:  r.clock.Now(),
		Controller: NewController(sess).WithOnVerified(r.onVerified),
	}
	r.flows.SetDefault(id, f)
	return f
}

// Get returns the flow and refreshes its idle expiry.
func (r *Registry) Get(id string) (*Flow, error) {
	v, ok := r.flows.Get(id)
	if !ok {
		return nil, ErrFlowNotFound
	}
	f := v.(*Flow)
	r.flows.SetDefault(id, f)
	return f, nil
}

// Present hands a solved challenge proof to the flow's slot.
func (r *Registry) Present(id, proof string) error {
	if _, err := r.Get(id); err != nil {
		return err
	}
	return r.sdk.Present(id, proof)
}

// Close cancels and forgets the flow.
func (r *Registry) Close(id string) error {
	if _, ok := r.flows.Get(id); !ok {
		return ErrFlowNotFound
	}
	r.flows.Delete(id)
	return nil
}

func (r *Registry) Len() int { return r.flows.ItemCount() }

// Sweep evicts flows whose idle expiry has passed.
func (r *Registry) Sweep() { r.flows.DeleteExpired() }

// Shutdown closes every flow.
func (r *Registry) Shutdown() {
	r.flows.DeleteExpired()
	for id := range r.flows.Items() {
		r.flows.Delete(id)
	}
}

func (r *Registry) evicted(id string, v any) {
	f, ok := v.(*Flow)
	if !ok {
		return
	}
	f.Controller.Close()
	r.sdk.Unregister(id)
	r.log.WithField("flow_id", id).Debug("verification flow closed")
}
