package core

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/open-rails/phoneverify/challenge"
	"github.com/open-rails/phoneverify/codeinput"
	"github.com/open-rails/phoneverify/cooldown"
)

var tracer = otel.Tracer("github.com/open-rails/phoneverify/core")

// Session is the verification state machine for one phone number at a time.
//
// Commands block until the provider call they trigger resolves. While a call
// is in flight (AwaitingChallenge, Dispatching, Verifying) every command but
// Cancel is rejected with ErrBusy. Cancel bumps an epoch; completions that
// resolve under an older epoch are dropped and report ErrCancelled.
type Session struct {
	mu sync.Mutex

	id         string
	cfg        Config
	provider   Provider
	challenges *challenge.Manager
	timer      *cooldown.Timer
	buffer     *codeinput.Buffer
	quota      *DispatchQuota
	events     FlowEventLogger
	log        logrus.FieldLogger
	clock      cooldown.Clock
	ownTimer   bool

	state     SessionState
	epoch     uint64
	phone     PhoneNumber
	handle    *ConfirmationHandle
	principal *Principal
	lastErr   error
	attempt   int
	pending   []FlowEvent
}

func NewSession(cfg Config, provider Provider, challenges *challenge.Manager) *Session {
	cfg = cfg.withDefaults()
	clock := cooldown.SystemClock()
	if challenges != nil {
		challenges.WithNow(clock.Now)
	}
	return &Session{
		id:         uuid.NewString(),
		cfg:        cfg,
		provider:   provider,
		challenges: challenges,
		timer:      cooldown.New(clock),
		buffer:     codeinput.New(),
		log:        logrus.StandardLogger(),
		clock:      clock,
		ownTimer:   true,
		state:      StateIdle,
	}
}

func (s *Session) WithID(id string) *Session {
	if id != "" {
		s.id = id
	}
	return s
}

// WithClock replaces the time source for the cooldown and for challenge
// staleness. The session's own timer is rebuilt on the new clock; a timer
// injected with WithTimer is left alone.
func (s *Session) WithClock(c cooldown.Clock) *Session {
	if c == nil {
		return s
	}
	s.clock = c
	if s.challenges != nil {
		s.challenges.WithNow(c.Now)
	}
	if s.ownTimer {
		s.timer = cooldown.New(c)
	}
	return s
}

func (s *Session) WithTimer(t *cooldown.Timer) *Session {
	if t != nil {
		s.timer = t
		s.ownTimer = false
	}
	return s
}

func (s *Session) WithBuffer(b *codeinput.Buffer) *Session {
	if b != nil {
		s.buffer = b
	}
	return s
}

func (s *Session) WithQuota(q *DispatchQuota) *Session {
	s.quota = q
	return s
}

func (s *Session) WithFlowLogger(l FlowEventLogger) *Session {
	s.events = l
	return s
}

func (s *Session) WithLogger(l logrus.FieldLogger) *Session {
	if l != nil {
		s.log = l
	}
	return s
}

func (s *Session) ID() string             { return s.id }
func (s *Session) Config() Config         { return s.cfg }
func (s *Session) Timer() *cooldown.Timer { return s.timer }

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastError is the most recent classified failure of the flow, or nil.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Principal is set once the flow reaches Verified.
func (s *Session) Principal() *Principal {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.principal == nil {
		return nil
	}
	p := *s.principal
	return &p
}

// Start begins a flow for phone. Only valid from Idle, and refused while the
// cooldown of an earlier dispatch is still running.
func (s *Session) Start(ctx context.Context, phone PhoneNumber) error {
	if phone.IsZero() {
		return invalidInput("phone number required")
	}
	s.mu.Lock()
	if err := s.admitLocked(StateIdle); err != nil {
		s.mu.Unlock()
		return err
	}
	if !s.timer.IsReady() {
		s.mu.Unlock()
		return ErrCooldownActive
	}
	epoch := s.epoch
	s.mu.Unlock()

	if err := s.quota.Reserve(ctx, phone); err != nil {
		return err
	}

	s.mu.Lock()
	if err := s.recheckLocked(epoch, StateIdle); err != nil {
		s.mu.Unlock()
		return err
	}
	s.phone = phone
	s.principal = nil
	s.lastErr = nil
	s.attempt = 1
	s.setStateLocked(ctx, StateAwaitingChallenge, "")
	s.unlock(ctx)

	return s.runDispatch(ctx, epoch, phone)
}

// Resend requests a fresh code for the current phone number. It is refused
// while the cooldown is running.
func (s *Session) Resend(ctx context.Context) error {
	s.mu.Lock()
	if err := s.admitLocked(StateCodeCollection); err != nil {
		s.mu.Unlock()
		return err
	}
	if !s.timer.IsReady() {
		s.mu.Unlock()
		return ErrCooldownActive
	}
	epoch, phone := s.epoch, s.phone
	s.mu.Unlock()

	if err := s.quota.Reserve(ctx, phone); err != nil {
		return err
	}

	s.mu.Lock()
	if err := s.recheckLocked(epoch, StateCodeCollection); err != nil {
		s.mu.Unlock()
		return err
	}
	s.handle = nil
	s.attempt = 1
	s.setStateLocked(ctx, StateAwaitingChallenge, "")
	s.unlock(ctx)

	return s.runDispatch(ctx, epoch, phone)
}

// SubmitCode confirms the assembled buffer against the live handle.
func (s *Session) SubmitCode(ctx context.Context) error {
	s.mu.Lock()
	if err := s.admitLocked(StateCodeCollection); err != nil {
		s.mu.Unlock()
		return err
	}
	code, ok := s.buffer.Assembled()
	if !ok {
		s.mu.Unlock()
		return invalidInput("code must have %d digits", codeinput.Length)
	}
	if s.handle == nil {
		s.mu.Unlock()
		return ErrResendRequired
	}
	handle := *s.handle
	s.handle = nil

	if handle.Expired(s.clock.Now()) {
		err := newError(KindHandleExpired, errors.New("confirmation handle expired before submit"))
		s.failLocked(ctx, err, StateIdle)
		s.unlock(ctx)
		return err
	}
	epoch := s.epoch
	s.setStateLocked(ctx, StateVerifying, "")
	s.unlock(ctx)

	principal, err := s.confirm(ctx, handle, code)

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return ErrCancelled
	}
	if err == nil && principal == nil {
		err = errors.New("provider returned no principal")
	}
	switch {
	case err == nil:
		s.principal = principal
		s.lastErr = nil
		s.challenges.Teardown()
		s.timer.Stop()
		s.setStateLocked(ctx, StateVerified, "")
		s.unlock(ctx)
		return nil
	case errors.Is(err, ErrInvalidCode):
		err = classify(KindInvalidCode, err)
		s.buffer.Clear()
		s.failLocked(ctx, err, StateCodeCollection)
	case errors.Is(err, ErrHandleExpired):
		err = classify(KindHandleExpired, err)
		s.failLocked(ctx, err, StateIdle)
	default:
		err = classify(KindConfirmFailed, err)
		s.failLocked(ctx, err, StateCodeCollection)
	}
	s.unlock(ctx)
	return err
}

// Cancel returns the session to Idle from any state and releases the
// challenge, buffer and handle. The cooldown stops ticking but its deadline
// stands.
func (s *Session) Cancel(ctx context.Context) {
	s.mu.Lock()
	s.epoch++
	s.lastErr = nil
	s.principal = nil
	s.releaseLocked()
	s.setStateLocked(ctx, StateIdle, "cancelled")
	s.phone = PhoneNumber{}
	s.unlock(ctx)
}

// SetDigit, Backspace and FillCode edit the code buffer. They are silent
// no-ops outside CodeCollection.
func (s *Session) SetDigit(index int, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateCodeCollection {
		s.buffer.SetDigit(index, value)
	}
}

func (s *Session) Backspace(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateCodeCollection {
		s.buffer.HandleBackspace(index)
	}
}

func (s *Session) FillCode(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateCodeCollection {
		s.buffer.Fill(code)
	}
}

func (s *Session) AssembledCode() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffer.Assembled()
}

// runDispatch performs challenge acquisition and code dispatch with the
// configured attempt budget. The caller has already moved the session into
// AwaitingChallenge under epoch.
func (s *Session) runDispatch(ctx context.Context, epoch uint64, phone PhoneNumber) error {
	// dispatchErr is what the flow reports when a retry cannot get past the
	// challenge after the provider refused the first send.
	var lastErr, dispatchErr error
	for attempt := 1; attempt <= s.cfg.MaxDispatchAttempts; attempt++ {
		s.mu.Lock()
		if s.epoch != epoch {
			s.mu.Unlock()
			return ErrCancelled
		}
		s.attempt = attempt
		s.setStateLocked(ctx, StateAwaitingChallenge, ErrorCode(lastErr))
		s.unlock(ctx)

		tok, err := s.acquireChallenge(ctx, attempt > 1)
		if !s.sameEpoch(epoch) {
			s.challenges.Discard(tok)
			return ErrCancelled
		}
		if err != nil {
			lastErr = classify(KindWidgetUnavailable, err)
			s.warn(lastErr, attempt, "challenge setup failed")
			if dispatchErr != nil {
				lastErr = dispatchErr
			}
			continue
		}

		s.mu.Lock()
		if s.epoch != epoch {
			s.mu.Unlock()
			s.challenges.Discard(tok)
			return ErrCancelled
		}
		s.setStateLocked(ctx, StateDispatching, "")
		s.unlock(ctx)

		proof, err := tok.Proof(ctx)
		if err != nil {
			if !s.sameEpoch(epoch) {
				s.challenges.Discard(tok)
				return ErrCancelled
			}
			lastErr = classify(KindWidgetUnavailable, err)
			s.warn(lastErr, attempt, "challenge verify failed")
			if dispatchErr != nil {
				lastErr = dispatchErr
			}
			continue
		}

		handle, err := s.dispatch(ctx, phone, proof, attempt)

		s.mu.Lock()
		if s.epoch != epoch {
			s.mu.Unlock()
			s.challenges.Discard(tok)
			return ErrCancelled
		}
		if err == nil && handle == nil {
			err = errors.New("provider returned no confirmation handle")
		}
		if err != nil {
			s.mu.Unlock()
			lastErr = classify(KindDispatchFailed, err)
			dispatchErr = lastErr
			s.warn(lastErr, attempt, "code dispatch failed")
			continue
		}
		h := *handle
		if h.Phone.IsZero() {
			h.Phone = phone
		}
		s.handle = &h
		s.lastErr = nil
		s.buffer.Clear()
		s.timer.Start(s.cfg.ResendCooldown)
		s.setStateLocked(ctx, StateCodeCollection, "")
		s.unlock(ctx)
		return nil
	}

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return ErrCancelled
	}
	s.failLocked(ctx, lastErr, StateIdle)
	s.unlock(ctx)
	return lastErr
}

// acquireChallenge reuses the live token unless it is stale or fresh is set,
// in which case the old token is torn down and a new one set up.
func (s *Session) acquireChallenge(ctx context.Context, fresh bool) (*challenge.Token, error) {
	if !fresh {
		if tok := s.challenges.Current(); !s.challenges.IsStale(tok, s.clock.Now()) {
			return tok, nil
		}
	}
	ctx, span := tracer.Start(ctx, "phoneverify.challenge.setup")
	defer span.End()
	s.challenges.Teardown()
	tok, err := s.challenges.Setup(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "challenge setup failed")
		return nil, err
	}
	span.SetAttributes(attribute.String("challenge.token_id", tok.ID))
	return tok, nil
}

func (s *Session) dispatch(ctx context.Context, phone PhoneNumber, proof string, attempt int) (*ConfirmationHandle, error) {
	ctx, span := tracer.Start(ctx, "phoneverify.dispatch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("flow.id", s.id),
			attribute.Int("dispatch.attempt", attempt),
		))
	defer span.End()
	if s.provider == nil {
		return nil, fmt.Errorf("no verification provider configured")
	}
	h, err := s.provider.DispatchCode(ctx, phone, proof)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dispatch failed")
	}
	return h, err
}

func (s *Session) confirm(ctx context.Context, h ConfirmationHandle, code string) (*Principal, error) {
	ctx, span := tracer.Start(ctx, "phoneverify.confirm",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("flow.id", s.id)))
	defer span.End()
	if s.provider == nil {
		return nil, fmt.Errorf("no verification provider configured")
	}
	p, err := s.provider.Confirm(ctx, h, code)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "confirm failed")
	}
	return p, err
}

// admitLocked rejects commands while a provider call is in flight or when
// the session is not in want.
func (s *Session) admitLocked(want SessionState) error {
	if s.state.Busy() {
		return ErrBusy
	}
	if s.state != want {
		return ErrInvalidState
	}
	return nil
}

// recheckLocked re-validates after an unlocked quota reservation.
func (s *Session) recheckLocked(epoch uint64, want SessionState) error {
	if s.epoch != epoch {
		return ErrCancelled
	}
	return s.admitLocked(want)
}

func (s *Session) sameEpoch(epoch uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch == epoch
}

// failLocked records err, passes through Failed and lands in next. Landing
// in Idle releases every resource the flow holds.
func (s *Session) failLocked(ctx context.Context, err error, next SessionState) {
	s.lastErr = err
	code := ErrorCode(err)
	s.setStateLocked(ctx, StateFailed, code)
	s.setStateLocked(ctx, next, code)
	if next == StateIdle {
		s.releaseLocked()
		s.phone = PhoneNumber{}
	}
}

// releaseLocked keeps the cooldown deadline so a new Start cannot bypass it.
func (s *Session) releaseLocked() {
	s.challenges.Teardown()
	s.timer.Halt()
	s.buffer.Clear()
	s.handle = nil
}

func (s *Session) setStateLocked(ctx context.Context, to SessionState, reason string) {
	from := s.state
	if from == to {
		return
	}
	s.state = to
	ip, ua := originFromContext(ctx)
	s.pending = append(s.pending, FlowEvent{
		OccurredAt: s.clock.Now(),
		FlowID:     s.id,
		Phone:      s.phone.Masked(),
		From:       from,
		To:         to,
		Reason:     reason,
		Attempt:    s.attempt,
		IPAddr:     ip,
		UserAgent:  ua,
	})
}

// unlock releases s.mu and then delivers the transitions queued while it
// was held.
func (s *Session) unlock(ctx context.Context) {
	events := s.pending
	s.pending = nil
	s.mu.Unlock()
	if s.events == nil {
		return
	}
	for _, e := range events {
		if err := s.events.LogFlowEvent(ctx, e); err != nil {
			s.log.WithError(err).WithField("flow_id", s.id).Warn("flow event logger failed")
		}
	}
}

func (s *Session) warn(err error, attempt int, msg string) {
	s.log.WithError(err).WithFields(logrus.Fields{
		"flow_id": s.id,
		"attempt": attempt,
	}).Warn(msg)
}

func classify(kind Kind, err error) error {
	if KindOf(err) == kind {
		return err
	}
	return newError(kind, err)
}
