package models

// OtpChallenge is a pending one-time-passcode verification for a phone number.
// Only the bcrypt hash of the code is stored; the plaintext code exists solely
// in the delivery path (SMS gateway).
type OtpChallenge struct {
	// Phone is the digits-only phone number the code was sent to.
	// One live challenge per phone; a new send replaces the old one.
	Phone string

	// CodeHash is the bcrypt hash of the 6-digit code.
	CodeHash string

	// Attempts counts failed verification tries against this challenge.
	Attempts int

	// ExpiresAt is the Unix timestamp after which the code is rejected.
	ExpiresAt int64

	// CreatedAt is the Unix timestamp when the code was issued.
	CreatedAt int64
}
