package core

import (
	"context"
	"time"
)

// Provider delivers codes to phones and confirms them. Implementations
// return errors matching ErrInvalidCode or ErrHandleExpired from Confirm when
// they can classify the failure; anything else is treated as a transient
// confirm failure.
type Provider interface {
	DispatchCode(ctx context.Context, phone PhoneNumber, challengeProof string) (*ConfirmationHandle, error)
	Confirm(ctx context.Context, handle ConfirmationHandle, code string) (*Principal, error)
}

// ConfirmationHandle is the opaque result of a dispatch. A Session confirms a
// handle at most once.
type ConfirmationHandle struct {
	ID       string
	Phone    PhoneNumber
	IssuedAt time.Time
	// ExpiresAt is optional; when set the session refuses to confirm past it.
	ExpiresAt time.Time
}

// Expired reports whether the handle carries an expiry that has passed.
func (h ConfirmationHandle) Expired(now time.Time) bool {
	return !h.ExpiresAt.IsZero() && !now.Before(h.ExpiresAt)
}

// Principal is the identity produced by a successful confirmation. Storing
// it is the caller's job.
type Principal struct {
	Subject      string    `json:"subject"`
	PhoneNumber  string    `json:"phone_number"`
	Provider     string    `json:"provider"`
	IsNew        bool      `json:"is_new,omitempty"`
	IDToken      string    `json:"id_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitzero"`
}

// SMSSender delivers a verification code by SMS. phone is E.164.
type SMSSender interface {
	SendVerificationCode(ctx context.Context, phone, code string) error
}
