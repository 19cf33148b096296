package auth

import (
	"context"

	"github.com/nkhella/fairshare/internal/session"
)

// Provider defines the interface for phone-OTP authentication implementations.
// This abstraction keeps the signup flow and HTTP layer independent of who
// actually sends and verifies codes (local authenticator, hosted auth service,
// test fake).
type Provider interface {
	// SendOtp generates a one-time passcode for the phone number and hands it
	// to the delivery channel. A repeated send replaces the pending code.
	SendOtp(ctx context.Context, phoneNumber string) error

	// VerifyOtp checks the submitted code for the phone number. On success it
	// establishes a session: the new session is published through the session
	// store and also returned.
	VerifyOtp(ctx context.Context, phoneNumber, code string) (*session.Session, error)

	// SignOut clears the active session.
	SignOut(ctx context.Context) error
}

// Sender delivers a one-time passcode to a phone number. In production this is
// an SMS gateway; the default implementation just logs the code.
type Sender interface {
	SendCode(ctx context.Context, phoneNumber, code string) error
}
