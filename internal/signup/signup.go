// Package signup drives the multi-step signup/login flow: phone entry, OTP
// verification, then profile completion (name, income).
//
// Each step is a tagged state with its own handler and validation rather than
// an index into a step table, so transitions are explicit and exhaustively
// checked. The flow owns no I/O of its own: sending and verifying codes and
// persisting profile fields are delegated to the injected collaborators, and
// every collaborator failure is mapped to a field-level message instead of
// propagating.
package signup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/nkhella/fairshare/internal/auth"
	"github.com/nkhella/fairshare/internal/models"
	"github.com/nkhella/fairshare/internal/phone"
	"github.com/nkhella/fairshare/internal/session"
)

// Step identifies a state of the signup flow.
type Step int

const (
	StepPhone Step = iota
	StepOtp
	StepName
	StepIncome
	StepComplete
)

// String returns the step name for logs.
func (s Step) String() string {
	switch s {
	case StepPhone:
		return "phone"
	case StepOtp:
		return "otp"
	case StepName:
		return "name"
	case StepIncome:
		return "income"
	case StepComplete:
		return "complete"
	default:
		return fmt.Sprintf("Step(%d)", int(s))
	}
}

// Field identifies the input a validation or collaborator error attaches to.
type Field string

const (
	FieldPhone  Field = "phone"
	FieldCode   Field = "code"
	FieldName   Field = "name"
	FieldIncome Field = "income"
)

// fieldFor maps a step to the input field it owns.
func fieldFor(s Step) (Field, bool) {
	switch s {
	case StepPhone:
		return FieldPhone, true
	case StepOtp:
		return FieldCode, true
	case StepName:
		return FieldName, true
	case StepIncome:
		return FieldIncome, true
	default:
		return "", false
	}
}

// IncomePeriod says how the user entered their income.
type IncomePeriod int

const (
	PeriodAnnual IncomePeriod = iota
	PeriodMonthly
)

// ErrMissingSession is returned when a profile step runs without an
// established session. The flow only reaches those steps after verification,
// so hitting this is a programming error, not a user error.
var ErrMissingSession = errors.New("signup step requires an authenticated session")

// Validation messages shown inline on the owning field.
const (
	msgPhoneRequired = "Phone number is required"
	msgPhoneInvalid  = "Phone number is not valid"
	msgCodeInvalid   = "Verification code must be 6 digits"
	msgNameRequired  = "Name is required"
	msgIncomeInvalid = "Income must be a positive number"
)

// ProfileWriter persists partial profile updates. Satisfied by storage.Store.
type ProfileWriter interface {
	UpsertProfile(ctx context.Context, profile *models.Profile) (*models.Profile, error)
}

// Flow is one user's pass through the signup steps.
// Not safe for concurrent use; it models a single form.
type Flow struct {
	provider auth.Provider
	profiles ProfileWriter
	logger   *slog.Logger

	step        Step
	phoneNumber string // sanitized once phone entry succeeds
	sess        *session.Session
	profile     *models.Profile
	fieldErrors map[Field]string
	redirect    string
}

// NewFlow starts a signup flow. When an existing session is present the phone
// and OTP steps are skipped and the flow opens at the name step. redirect is
// where the caller should navigate after completion; empty means the
// application root.
func NewFlow(provider auth.Provider, profiles ProfileWriter, existing *session.Session, redirect string, logger *slog.Logger) *Flow {
	if redirect == "" {
		redirect = "/"
	}

	f := &Flow{
		provider:    provider,
		profiles:    profiles,
		logger:      logger,
		step:        StepPhone,
		fieldErrors: make(map[Field]string),
		redirect:    redirect,
	}

	if existing != nil {
		f.sess = existing
		f.phoneNumber = existing.Phone
		f.step = StepName
	}

	return f
}

// Step returns the current step.
func (f *Flow) Step() Step { return f.step }

// Session returns the session established by OTP verification, or the one the
// flow was started with. Nil before verification.
func (f *Flow) Session() *session.Session { return f.sess }

// Profile returns the most recent profile returned by an upsert. Nil until
// the name step succeeds.
func (f *Flow) Profile() *models.Profile { return f.profile }

// FieldError returns the inline error for a field, or "".
func (f *Flow) FieldError(field Field) string { return f.fieldErrors[field] }

// Redirect returns the post-completion navigation target.
func (f *Flow) Redirect() string { return f.redirect }

// SubmitPhone validates the phone number and asks the provider to send a
// code. On success the flow advances to OTP verification.
func (f *Flow) SubmitPhone(ctx context.Context, raw string) error {
	if f.step != StepPhone {
		return f.wrongStep(StepPhone)
	}

	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return f.fail(FieldPhone, msgPhoneRequired, nil)
	}
	if !phone.ValidNumber(trimmed) {
		return f.fail(FieldPhone, msgPhoneInvalid, nil)
	}

	if err := f.provider.SendOtp(ctx, trimmed); err != nil {
		return f.fail(FieldPhone, err.Error(), err)
	}

	f.phoneNumber = phone.Sanitize(trimmed)
	f.advance(StepOtp)
	return nil
}

// SubmitCode verifies the 6-digit code. On success the provider establishes
// the session and the flow advances to name entry.
func (f *Flow) SubmitCode(ctx context.Context, raw string) error {
	if f.step != StepOtp {
		return f.wrongStep(StepOtp)
	}

	code := strings.TrimSpace(raw)
	if !phone.ValidOtpCode(code) {
		return f.fail(FieldCode, msgCodeInvalid, nil)
	}

	sess, err := f.provider.VerifyOtp(ctx, f.phoneNumber, code)
	if err != nil {
		return f.fail(FieldCode, err.Error(), err)
	}

	f.sess = sess
	f.advance(StepName)
	return nil
}

// SubmitName stores the display name on the profile and advances to income
// entry.
func (f *Flow) SubmitName(ctx context.Context, raw string) error {
	if f.step != StepName {
		return f.wrongStep(StepName)
	}
	if f.sess == nil {
		return ErrMissingSession
	}

	name := strings.TrimSpace(raw)
	if name == "" {
		return f.fail(FieldName, msgNameRequired, nil)
	}

	profile, err := f.profiles.UpsertProfile(ctx, &models.Profile{
		ID:    f.sess.UserID,
		Phone: f.sess.Phone,
		Name:  &name,
	})
	if err != nil {
		return f.fail(FieldName, "Could not save your name, please try again", err)
	}

	f.profile = profile
	f.advance(StepIncome)
	return nil
}

// SubmitIncome parses and stores the income, annualizing monthly figures, and
// completes the flow. After this the caller should navigate to Redirect().
func (f *Flow) SubmitIncome(ctx context.Context, raw string, period IncomePeriod) error {
	if f.step != StepIncome {
		return f.wrongStep(StepIncome)
	}
	if f.sess == nil {
		return ErrMissingSession
	}

	amount, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return f.fail(FieldIncome, msgIncomeInvalid, nil)
	}

	annualized := amount
	if period == PeriodMonthly {
		annualized = amount * 12
	}

	profile, err := f.profiles.UpsertProfile(ctx, &models.Profile{
		ID:               f.sess.UserID,
		Phone:            f.sess.Phone,
		AnnualizedIncome: &annualized,
	})
	if err != nil {
		return f.fail(FieldIncome, "Could not save your income, please try again", err)
	}

	f.profile = profile
	f.advance(StepComplete)
	f.logger.Info("signup complete", "user_id", f.sess.UserID, "redirect", f.redirect)
	return nil
}

// Back steps to the previous state. It is a pure local transition: no
// collaborator is called, and it is not permitted on the first step.
func (f *Flow) Back() error {
	switch f.step {
	case StepPhone:
		return fmt.Errorf("cannot go back from the %s step", StepPhone)
	case StepOtp:
		f.regress(StepPhone)
	case StepName:
		f.regress(StepOtp)
	case StepIncome:
		f.regress(StepName)
	case StepComplete:
		f.regress(StepIncome)
	}
	return nil
}

// advance moves forward, clearing the inline error of the step being left.
func (f *Flow) advance(next Step) {
	f.clearFieldError(f.step)
	f.logger.Debug("signup step", "from", f.step, "to", next)
	f.step = next
}

// regress moves backward, clearing the inline error of the step being left.
func (f *Flow) regress(prev Step) {
	f.clearFieldError(f.step)
	f.step = prev
}

func (f *Flow) clearFieldError(s Step) {
	if field, ok := fieldFor(s); ok {
		delete(f.fieldErrors, field)
	}
}

// fail records an inline message on the field and returns an error for
// callers that want one. The flow stays on the current step.
func (f *Flow) fail(field Field, message string, cause error) error {
	f.fieldErrors[field] = message
	if cause != nil {
		f.logger.Warn("signup step failed", "step", f.step, "error", cause)
		return fmt.Errorf("%s: %w", f.step, cause)
	}
	return fmt.Errorf("%s: %s", f.step, message)
}

func (f *Flow) wrongStep(want Step) error {
	return fmt.Errorf("submit for %s step while on %s", want, f.step)
}
