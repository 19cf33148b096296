// Package models defines the core domain models for FairShare.
//
// # Models
//
//   - Profile: Persisted user record (phone, name, income)
//   - OtpChallenge: Pending one-time-passcode verification for a phone number
//
// Profiles are created implicitly on the first successful OTP verification and
// completed over the signup flow: a profile is "complete" once both the display
// name and the annualized income are set. Until then the nullable fields stay
// nil, which is why Name and AnnualizedIncome are pointers rather than zero
// values.
//
// # Design Principles
//
//  1. **Nullable means pointer**: absent name/income must be distinguishable
//     from "" and 0, so partial profiles round-trip through storage intact.
//  2. **Avoid circular references**: use ID strings instead of pointers for
//     relationships.
//  3. **No behavior beyond predicates**: computation lives in the allocation
//     and signup packages, models stay plain.
package models
