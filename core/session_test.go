package core

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/open-rails/phoneverify/challenge"
	"github.com/open-rails/phoneverify/cooldown"
)

func TestStartDispatchesAndEntersCodeCollection(t *testing.T) {
	h := newHarness(t)
	h.startCollecting(t)

	require.Equal(t, 30, h.session.Timer().Remaining())
	require.True(t, h.session.Timer().Running())
	_, complete := h.session.AssembledCode()
	require.False(t, complete)
	for _, c := range h.session.Snapshot().Cells {
		require.Empty(t, c)
	}
	require.Equal(t, []string{"create", "dispatch"}, h.log.all())
	require.Equal(t, []string{"proof-1"}, h.provider.proofs)
	require.Equal(t, []string{
		"idle>awaiting_challenge",
		"awaiting_challenge>dispatching",
		"dispatching>code_collection",
	}, h.events.transitions())
}

func TestInvalidCodeReturnsToCodeCollection(t *testing.T) {
	h := newHarness(t)
	h.startCollecting(t)
	h.provider.confirmErrs = []error{ErrInvalidCode}

	h.fill("123456")
	err := h.session.SubmitCode(context.Background())
	require.ErrorIs(t, err, ErrInvalidCode)
	require.Equal(t, KindInvalidCode, KindOf(err))
	require.Equal(t, StateCodeCollection, h.session.State())
	require.ErrorIs(t, h.session.LastError(), ErrInvalidCode)
	require.Equal(t, []string{"", "", "", "", "", ""}, h.session.Snapshot().Cells)
	require.Equal(t, []string{"123456"}, h.provider.codes)

	// The handle was consumed by the failed confirm.
	h.fill("654321")
	require.ErrorIs(t, h.session.SubmitCode(context.Background()), ErrResendRequired)
	require.Equal(t, 1, h.log.count("confirm"))
}

func TestResendRejectedDuringCooldown(t *testing.T) {
	h := newHarness(t)
	h.startCollecting(t)
	h.clock.Advance(18 * time.Second)
	require.Equal(t, 12, h.session.Timer().Remaining())

	err := h.session.Resend(context.Background())
	require.ErrorIs(t, err, ErrCooldownActive)
	require.Equal(t, StateCodeCollection, h.session.State())
	require.Equal(t, 1, h.log.count("dispatch"))
}

func TestResendRechallengesStaleToken(t *testing.T) {
	h := newHarness(t)
	h.startCollecting(t)
	h.clock.Advance(301 * time.Second)

	require.NoError(t, h.session.Resend(context.Background()))
	require.Equal(t, []string{"create", "dispatch", "destroy", "create", "dispatch"}, h.log.all())
	require.Equal(t, StateCodeCollection, h.session.State())
	require.Equal(t, 30, h.session.Timer().Remaining())
}

func TestResendReusesFreshToken(t *testing.T) {
	h := newHarness(t)
	h.startCollecting(t)
	h.clock.Advance(31 * time.Second)

	require.NoError(t, h.session.Resend(context.Background()))
	require.Equal(t, []string{"create", "dispatch", "dispatch"}, h.log.all())
	require.Equal(t, []string{"proof-1", "proof-1"}, h.provider.proofs)
}

func TestDispatchRetriesOnceThenIdle(t *testing.T) {
	h := newHarness(t)
	h.provider.dispatchErrs = []error{errors.New("gateway timeout"), errors.New("gateway down")}

	err := h.session.Start(context.Background(), mustPhone(t, "9123456789"))
	require.ErrorIs(t, err, ErrDispatchFailed)
	require.Contains(t, err.Error(), "gateway down")
	require.Equal(t, StateIdle, h.session.State())
	require.Equal(t, 2, h.log.count("dispatch"))
	require.Equal(t, []string{"create", "dispatch", "destroy", "create", "dispatch", "destroy"}, h.log.all())
	require.Nil(t, h.manager.Current())
	require.False(t, h.session.Timer().Running())
	require.ErrorIs(t, h.session.LastError(), ErrDispatchFailed)
	require.Equal(t, []string{
		"idle>awaiting_challenge",
		"awaiting_challenge>dispatching",
		"dispatching>awaiting_challenge",
		"awaiting_challenge>dispatching",
		"dispatching>failed",
		"failed>idle",
	}, h.events.transitions())
}

func TestDispatchRetrySucceeds(t *testing.T) {
	h := newHarness(t)
	h.provider.dispatchErrs = []error{errors.New("transient")}

	require.NoError(t, h.session.Start(context.Background(), mustPhone(t, "9123456789")))
	require.Equal(t, StateCodeCollection, h.session.State())
	require.Equal(t, []string{"proof-1", "proof-2"}, h.provider.proofs)
	require.Nil(t, h.session.LastError())
	require.Equal(t, 2, h.session.Snapshot().Attempt)
}

func TestChallengeUnavailable(t *testing.T) {
	h := newHarness(t)
	h.sdk.ready = false

	err := h.session.Start(context.Background(), mustPhone(t, "9123456789"))
	require.ErrorIs(t, err, ErrWidgetUnavailable)
	require.Equal(t, StateIdle, h.session.State())
	require.Zero(t, h.log.count("dispatch"))
}

func TestCommandsRejectedWhileDispatching(t *testing.T) {
	h := newHarness(t)
	gate := make(chan struct{})
	h.provider.dispatchGate = gate

	phone := mustPhone(t, "9123456789")
	done := make(chan error, 1)
	go func() { done <- h.session.Start(context.Background(), phone) }()
	require.Eventually(t, func() bool { return h.session.State() == StateDispatching }, time.Second, time.Millisecond)

	ctx := context.Background()
	require.ErrorIs(t, h.session.Start(ctx, mustPhone(t, "9876543210")), ErrBusy)
	require.ErrorIs(t, h.session.Resend(ctx), ErrBusy)
	require.ErrorIs(t, h.session.SubmitCode(ctx), ErrBusy)
	require.Equal(t, StateDispatching, h.session.State())

	h.session.Cancel(ctx)
	require.Equal(t, StateIdle, h.session.State())
	close(gate)

	require.ErrorIs(t, <-done, ErrCancelled)
	require.Equal(t, StateIdle, h.session.State())
	require.Nil(t, h.manager.Current())
	require.False(t, h.session.Timer().Running())
}

func TestCancelDuringVerifyDropsResult(t *testing.T) {
	h := newHarness(t)
	h.startCollecting(t)
	gate := make(chan struct{})
	h.provider.confirmGate = gate
	h.fill("123456")

	done := make(chan error, 1)
	go func() { done <- h.session.SubmitCode(context.Background()) }()
	require.Eventually(t, func() bool { return h.session.State() == StateVerifying }, time.Second, time.Millisecond)

	h.session.Cancel(context.Background())
	close(gate)
	require.ErrorIs(t, <-done, ErrCancelled)
	require.Equal(t, StateIdle, h.session.State())
	require.Nil(t, h.session.Principal())
}

func TestVerifiedReleasesResources(t *testing.T) {
	h := newHarness(t)
	h.startCollecting(t)
	h.fill("123456")

	require.NoError(t, h.session.SubmitCode(context.Background()))
	require.Equal(t, StateVerified, h.session.State())
	p := h.session.Principal()
	require.NotNil(t, p)
	require.Equal(t, "+919123456789", p.PhoneNumber)
	require.Nil(t, h.manager.Current())
	require.False(t, h.session.Timer().Running())

	require.ErrorIs(t, h.session.Resend(context.Background()), ErrInvalidState)
	require.ErrorIs(t, h.session.Start(context.Background(), mustPhone(t, "9123456789")), ErrInvalidState)
}

func TestLocallyExpiredHandleSkipsProvider(t *testing.T) {
	h := newHarness(t)
	h.provider.handleTTL = time.Minute
	h.startCollecting(t)
	h.clock.Advance(2 * time.Minute)
	h.fill("123456")

	err := h.session.SubmitCode(context.Background())
	require.ErrorIs(t, err, ErrHandleExpired)
	require.Equal(t, StateIdle, h.session.State())
	require.Zero(t, h.log.count("confirm"))
	require.Nil(t, h.manager.Current())
}

func TestProviderExpiredHandleReturnsToIdle(t *testing.T) {
	h := newHarness(t)
	h.startCollecting(t)
	h.provider.confirmErrs = []error{ErrHandleExpired}
	h.fill("123456")

	require.ErrorIs(t, h.session.SubmitCode(context.Background()), ErrHandleExpired)
	require.Equal(t, StateIdle, h.session.State())
	require.False(t, h.session.Timer().Running())
	require.Empty(t, h.session.Snapshot().Phone)
}

func TestUnclassifiedConfirmErrorIsConfirmFailed(t *testing.T) {
	h := newHarness(t)
	h.startCollecting(t)
	h.provider.confirmErrs = []error{errors.New("503 from upstream")}
	h.fill("123456")

	err := h.session.SubmitCode(context.Background())
	require.ErrorIs(t, err, ErrConfirmFailed)
	require.Equal(t, StateCodeCollection, h.session.State())
	require.Equal(t, "confirm_failed", h.session.Snapshot().Error)
}

func TestIncompleteCodeIsInvalidInput(t *testing.T) {
	h := newHarness(t)
	h.startCollecting(t)
	h.fill("123")

	err := h.session.SubmitCode(context.Background())
	require.ErrorIs(t, err, ErrInvalidInput)
	require.Equal(t, StateCodeCollection, h.session.State())
	require.Zero(t, h.log.count("confirm"))
}

func TestBufferEditsIgnoredOutsideCodeCollection(t *testing.T) {
	h := newHarness(t)
	h.session.SetDigit(0, "1")
	h.session.FillCode("123456")
	_, ok := h.session.AssembledCode()
	require.False(t, ok)
}

func TestQuotaExceededLeavesStateAlone(t *testing.T) {
	h := newHarness(t)
	h.session.WithQuota(NewDispatchQuota(newMapStore(), QuotaConfig{Limit: 1, Window: time.Hour}).WithNow(h.clock.Now))
	h.startCollecting(t)
	h.clock.Advance(31 * time.Second)

	require.ErrorIs(t, h.session.Resend(context.Background()), ErrQuotaExceeded)
	require.Equal(t, StateCodeCollection, h.session.State())
	require.Equal(t, 1, h.log.count("dispatch"))
}

func TestCancelFromCodeCollection(t *testing.T) {
	h := newHarness(t)
	h.startCollecting(t)
	h.fill("12")

	h.session.Cancel(context.Background())
	snap := h.session.Snapshot()
	require.Equal(t, StateIdle, snap.State)
	require.Equal(t, 30, snap.CooldownRemaining)
	require.Equal(t, []string{"", "", "", "", "", ""}, snap.Cells)
	require.Nil(t, h.manager.Current())
	require.Zero(t, h.clock.Pending())

	// A cancelled session accepts a new flow once the cooldown has elapsed.
	h.clock.Advance(30 * time.Second)
	h.startCollecting(t)
}

func TestCancelDoesNotResetCooldown(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.startCollecting(t)
	h.clock.Advance(2 * time.Second)
	h.session.Cancel(ctx)

	err := h.session.Start(ctx, mustPhone(t, "9123456789"))
	require.ErrorIs(t, err, ErrCooldownActive)
	require.Equal(t, http.StatusTooManyRequests, HTTPStatus(err))
	require.Equal(t, StateIdle, h.session.State())
	require.Equal(t, 1, h.log.count("dispatch"))
	require.Equal(t, 28, h.session.Snapshot().CooldownRemaining)

	// Another number is held to the same window.
	require.ErrorIs(t, h.session.Start(ctx, mustPhone(t, "9876543210")), ErrCooldownActive)

	h.clock.Advance(28 * time.Second)
	h.startCollecting(t)
	require.Equal(t, 2, h.log.count("dispatch"))
	require.Equal(t, 30, h.session.Timer().Remaining())
}

func TestSessionClockDrivesChallengeStaleness(t *testing.T) {
	log := &callLog{}
	clock := cooldown.NewManualClock(testStart)
	sdk := &recSDK{log: log, ready: true}
	provider := &fakeProvider{log: log, now: clock.Now}
	mgr := challenge.NewManager(sdk, DefaultRenderTarget)
	h := &harness{
		session:  NewSession(Config{}, provider, mgr).WithClock(clock),
		provider: provider, sdk: sdk, manager: mgr, clock: clock, log: log,
	}
	h.startCollecting(t)
	require.Equal(t, testStart, mgr.Current().CreatedAt)

	h.clock.Advance(301 * time.Second)
	require.NoError(t, h.session.Resend(context.Background()))
	require.Equal(t, []string{"create", "dispatch", "destroy", "create", "dispatch"}, log.all())
	require.Equal(t, []string{"proof-1", "proof-2"}, provider.proofs)
}

func TestEventsCarryRequestOrigin(t *testing.T) {
	h := newHarness(t)
	ctx := WithRequestOrigin(context.Background(), "203.0.113.7", "curl/8")
	require.NoError(t, h.session.Start(ctx, mustPhone(t, "9123456789")))

	h.events.mu.Lock()
	defer h.events.mu.Unlock()
	require.NotEmpty(t, h.events.events)
	e := h.events.events[0]
	require.NotNil(t, e.IPAddr)
	require.Equal(t, "203.0.113.7", *e.IPAddr)
	require.Equal(t, "+91******6789", e.Phone)
}
