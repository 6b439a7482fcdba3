package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestControllerRejectsMalformedPhone(t *testing.T) {
	h := newHarness(t)
	c := NewController(h.session)

	err := c.SubmitPhone(context.Background(), "12345")
	require.ErrorIs(t, err, ErrInvalidInput)
	require.ErrorIs(t, c.LastError(), ErrInvalidInput)
	require.Equal(t, StateIdle, c.State())
	require.Empty(t, h.log.all())
	require.Empty(t, h.events.transitions())
	require.Equal(t, "invalid_input", c.Snapshot().Error)
}

func TestControllerLatestErrorOverwrites(t *testing.T) {
	h := newHarness(t)
	c := NewController(h.session)
	ctx := context.Background()

	require.Error(t, c.SubmitPhone(ctx, "abc"))
	require.NoError(t, c.SubmitPhone(ctx, "+91 91234 56789"))
	require.Nil(t, c.LastError())
	require.Equal(t, StateCodeCollection, c.State())

	require.ErrorIs(t, c.RequestResend(ctx), ErrCooldownActive)
	require.ErrorIs(t, c.LastError(), ErrCooldownActive)
	require.Equal(t, "cooldown_active", c.Snapshot().Error)

	require.ErrorIs(t, c.SubmitCode(ctx), ErrInvalidInput)
	c.Cancel(ctx)
	require.Nil(t, c.LastError())
	require.Equal(t, StateIdle, c.State())
}

func TestControllerDigitsAndVerifiedHook(t *testing.T) {
	h := newHarness(t)
	var got *Principal
	c := NewController(h.session).WithOnVerified(func(_ context.Context, p Principal) { got = &p })
	ctx := context.Background()

	require.NoError(t, c.SubmitPhone(ctx, "9123456789"))
	for i, d := range []string{"1", "2", "3", "4", "5", "x"} {
		c.SetDigit(i, d)
	}
	require.ErrorIs(t, c.SubmitCode(ctx), ErrInvalidInput)
	require.Equal(t, 5, c.Snapshot().Focus)

	c.Backspace(5)
	require.Equal(t, 4, c.Snapshot().Focus)
	c.SetDigit(5, "6")
	require.NoError(t, c.SubmitCode(ctx))
	require.Equal(t, StateVerified, c.State())
	require.NotNil(t, got)
	require.Equal(t, "+919123456789", got.PhoneNumber)
	require.Equal(t, []string{"123456"}, h.provider.codes)
}

func TestControllerSubmitCodeString(t *testing.T) {
	h := newHarness(t)
	c := NewController(h.session)
	ctx := context.Background()

	require.NoError(t, c.SubmitPhone(ctx, "9123456789"))
	require.NoError(t, c.SubmitCodeString(ctx, "12 34 56"))
	require.Equal(t, []string{"123456"}, h.provider.codes)
	require.NotNil(t, c.Principal())
}

func TestControllerSubmitCodeStringRejectsExtraDigits(t *testing.T) {
	h := newHarness(t)
	c := NewController(h.session)
	ctx := context.Background()

	require.NoError(t, c.SubmitPhone(ctx, "9123456789"))
	err := c.SubmitCodeString(ctx, "1234567")
	require.ErrorIs(t, err, ErrInvalidInput)
	require.Contains(t, err.Error(), "got 7")
	require.Equal(t, StateCodeCollection, c.State())
	require.Zero(t, h.log.count("confirm"))
	require.Equal(t, "invalid_input", c.Snapshot().Error)

	require.NoError(t, c.SubmitCodeString(ctx, "123-456"))
	require.Equal(t, []string{"123456"}, h.provider.codes)
}

func TestControllerCloseReleases(t *testing.T) {
	h := newHarness(t)
	c := NewController(h.session)
	require.NoError(t, c.SubmitPhone(context.Background(), "9123456789"))
	c.Close()
	require.Equal(t, StateIdle, c.State())
	require.Nil(t, h.manager.Current())
	require.Zero(t, h.clock.Pending())
}

func TestControllerSubmitCodeOutsideCollection(t *testing.T) {
	h := newHarness(t)
	c := NewController(h.session)
	require.ErrorIs(t, c.SubmitCodeString(context.Background(), "123456"), ErrInvalidState)
	require.Equal(t, "invalid_state", c.Snapshot().Error)
}
