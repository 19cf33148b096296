package models

// Profile represents a registered user's record.
// One row per user, keyed by the same ID the auth provider issues.
type Profile struct {
	// ID is the unique identifier for the user (UUID format).
	ID string `json:"id"`

	// Phone is the verified phone number in digits-only form with the
	// country code prefix (e.g. "15551234567").
	Phone string `json:"phone"`

	// Name is the display name. Nil until the user sets it during signup.
	Name *string `json:"name"`

	// AnnualizedIncome is the user's yearly income in dollars.
	// Nil until the user sets it during signup. Monthly entries are
	// annualized (x12) before they reach this field.
	AnnualizedIncome *float64 `json:"annualized_income"`

	// CreatedAt is the Unix timestamp when the profile was created.
	CreatedAt int64 `json:"created_at"`

	// UpdatedAt is the Unix timestamp of the last upsert.
	UpdatedAt int64 `json:"updated_at"`
}

// Complete reports whether the profile has finished signup: both the
// display name and the annualized income must be set.
func (p *Profile) Complete() bool {
	return p != nil && p.Name != nil && p.AnnualizedIncome != nil
}

// Income returns the annualized income, treating an unset income as zero.
func (p *Profile) Income() float64 {
	if p == nil || p.AnnualizedIncome == nil {
		return 0
	}
	return *p.AnnualizedIncome
}
