// Package session holds the authenticated-user session and publishes changes
// to interested readers.
//
// The original client kept the session in ambient mutable state; here it is an
// explicit Store with one writer (the auth flow) and any number of readers.
// Readers either poll Current or Subscribe for change notifications, and every
// change is mirrored to the persistent cache so a restart resumes logged in.
package session

import (
	"time"
)

// CacheKey is the fixed key the serialized session is cached under.
const CacheKey = "supabase.session"

// Session is the credential bundle issued after a successful OTP verification.
type Session struct {
	// UserID is the authenticated user's ID (matches the Profile ID).
	UserID string `json:"user_id"`

	// Phone is the verified phone number, digits-only with country code.
	Phone string `json:"phone"`

	// AccessToken is the signed token presented on authenticated calls.
	AccessToken string `json:"access_token"`

	// ExpiresAt is the Unix timestamp when the token expires.
	ExpiresAt int64 `json:"expires_at"`
}

// Expired reports whether the session's token lifetime has passed.
func (s *Session) Expired() bool {
	return s != nil && s.ExpiresAt > 0 && time.Now().Unix() >= s.ExpiresAt
}
