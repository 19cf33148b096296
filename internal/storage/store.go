// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"

	"github.com/nkhella/fairshare/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
// "Not found" is an expected outcome for lookups (a phone number that has
// never signed up, an empty session cache), so it is a sentinel the caller
// branches on rather than an exceptional failure.
var ErrNotFound = errors.New("record not found")

// Store defines the interface for FairShare persistence.
// This abstraction allows swapping storage backends (SQLite, PostgreSQL, etc.)
// without changing the callers.
type Store interface {
	// GetProfile retrieves a profile by user ID.
	// Returns ErrNotFound if no such profile exists.
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)

	// GetProfileByPhone retrieves a profile by its digits-only phone number.
	// Returns ErrNotFound if no such profile exists.
	GetProfileByPhone(ctx context.Context, phone string) (*models.Profile, error)

	// SearchProfilesByPhonePrefix returns profiles whose phone number starts
	// with the given digit prefix. An empty prefix returns no results.
	SearchProfilesByPhonePrefix(ctx context.Context, prefix string) ([]models.Profile, error)

	// UpsertProfile inserts or partially updates a profile keyed by ID.
	// Only non-nil optional fields overwrite existing values, so a name-only
	// update leaves a previously stored income intact. ID and timestamps are
	// populated on insert. Returns the stored profile.
	UpsertProfile(ctx context.Context, profile *models.Profile) (*models.Profile, error)

	// PutOtpChallenge stores the pending OTP challenge for a phone number,
	// replacing any previous one.
	PutOtpChallenge(ctx context.Context, challenge *models.OtpChallenge) error

	// GetOtpChallenge retrieves the pending challenge for a phone number.
	// Returns ErrNotFound if none is pending.
	GetOtpChallenge(ctx context.Context, phoneNumber string) (*models.OtpChallenge, error)

	// DeleteOtpChallenge removes the pending challenge for a phone number.
	// Deleting a missing challenge is not an error.
	DeleteOtpChallenge(ctx context.Context, phoneNumber string) error

	// PutCache stores an opaque value under a cache key (e.g. the serialized
	// session), replacing any previous value.
	PutCache(ctx context.Context, key string, value []byte) error

	// GetCache retrieves a cached value. Returns ErrNotFound for a missing key.
	GetCache(ctx context.Context, key string) ([]byte, error)

	// DeleteCache removes a cached value. Deleting a missing key is not an error.
	DeleteCache(ctx context.Context, key string) error

	// Close releases any resources held by the store.
	Close() error
}
