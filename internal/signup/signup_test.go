package signup

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/nkhella/fairshare/internal/models"
	"github.com/nkhella/fairshare/internal/session"
)

// fakeProvider scripts the auth collaborator and counts calls.
type fakeProvider struct {
	sendErr   error
	verifyErr error
	session   *session.Session

	sendCalls   int
	verifyCalls int
	lastPhone   string
	lastCode    string
}

func (p *fakeProvider) SendOtp(_ context.Context, phoneNumber string) error {
	p.sendCalls++
	p.lastPhone = phoneNumber
	return p.sendErr
}

func (p *fakeProvider) VerifyOtp(_ context.Context, phoneNumber, code string) (*session.Session, error) {
	p.verifyCalls++
	p.lastPhone = phoneNumber
	p.lastCode = code
	if p.verifyErr != nil {
		return nil, p.verifyErr
	}
	return p.session, nil
}

func (p *fakeProvider) SignOut(context.Context) error { return nil }

// fakeProfiles records upserts and returns the merged profile.
type fakeProfiles struct {
	upserts []*models.Profile
	err     error
	stored  models.Profile
}

func (s *fakeProfiles) UpsertProfile(_ context.Context, p *models.Profile) (*models.Profile, error) {
	s.upserts = append(s.upserts, p)
	if s.err != nil {
		return nil, s.err
	}
	s.stored.ID = p.ID
	s.stored.Phone = p.Phone
	if p.Name != nil {
		s.stored.Name = p.Name
	}
	if p.AnnualizedIncome != nil {
		s.stored.AnnualizedIncome = p.AnnualizedIncome
	}
	out := s.stored
	return &out, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSession() *session.Session {
	return &session.Session{UserID: "user-1", Phone: "15551234567", AccessToken: "tok"}
}

func TestNewFlowStartsAtPhone(t *testing.T) {
	f := NewFlow(&fakeProvider{}, &fakeProfiles{}, nil, "", testLogger())
	if f.Step() != StepPhone {
		t.Errorf("Step() = %v, want %v", f.Step(), StepPhone)
	}
	if f.Redirect() != "/" {
		t.Errorf("Redirect() = %q, want /", f.Redirect())
	}
}

func TestNewFlowWithSessionSkipsToName(t *testing.T) {
	f := NewFlow(&fakeProvider{}, &fakeProfiles{}, testSession(), "/expenses", testLogger())
	if f.Step() != StepName {
		t.Errorf("Step() = %v, want %v", f.Step(), StepName)
	}
	if f.Redirect() != "/expenses" {
		t.Errorf("Redirect() = %q, want /expenses", f.Redirect())
	}
}

func TestFullFlow(t *testing.T) {
	provider := &fakeProvider{session: testSession()}
	profiles := &fakeProfiles{}
	f := NewFlow(provider, profiles, nil, "", testLogger())
	ctx := context.Background()

	if err := f.SubmitPhone(ctx, "(555) 123-4567"); err != nil {
		t.Fatalf("SubmitPhone failed: %v", err)
	}
	if f.Step() != StepOtp {
		t.Fatalf("Step() = %v, want %v", f.Step(), StepOtp)
	}

	if err := f.SubmitCode(ctx, "123456"); err != nil {
		t.Fatalf("SubmitCode failed: %v", err)
	}
	if f.Step() != StepName {
		t.Fatalf("Step() = %v, want %v", f.Step(), StepName)
	}
	// The sanitized phone is what the provider verifies against
	if provider.lastPhone != "15551234567" {
		t.Errorf("verify phone = %q, want 15551234567", provider.lastPhone)
	}
	if f.Session() == nil {
		t.Fatal("expected a session after verification")
	}

	if err := f.SubmitName(ctx, "  Alice  "); err != nil {
		t.Fatalf("SubmitName failed: %v", err)
	}
	if f.Step() != StepIncome {
		t.Fatalf("Step() = %v, want %v", f.Step(), StepIncome)
	}
	nameUpsert := profiles.upserts[0]
	if nameUpsert.ID != "user-1" || nameUpsert.Phone != "15551234567" {
		t.Errorf("name upsert keyed %s/%s", nameUpsert.ID, nameUpsert.Phone)
	}
	if nameUpsert.Name == nil || *nameUpsert.Name != "Alice" {
		t.Errorf("name upsert = %v, want trimmed Alice", nameUpsert.Name)
	}
	if nameUpsert.AnnualizedIncome != nil {
		t.Error("name step must not write income")
	}

	if err := f.SubmitIncome(ctx, "60000", PeriodAnnual); err != nil {
		t.Fatalf("SubmitIncome failed: %v", err)
	}
	if f.Step() != StepComplete {
		t.Fatalf("Step() = %v, want %v", f.Step(), StepComplete)
	}
	if !f.Profile().Complete() {
		t.Error("profile should be complete after both steps")
	}
}

func TestSubmitPhoneValidation(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantMsg string
	}{
		{name: "empty", input: "   ", wantMsg: "Phone number is required"},
		{name: "not a number", input: "hello", wantMsg: "Phone number is not valid"},
		{name: "too short", input: "555123", wantMsg: "Phone number is not valid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &fakeProvider{}
			f := NewFlow(provider, &fakeProfiles{}, nil, "", testLogger())

			if err := f.SubmitPhone(context.Background(), tt.input); err == nil {
				t.Fatal("expected an error")
			}
			if got := f.FieldError(FieldPhone); got != tt.wantMsg {
				t.Errorf("FieldError = %q, want %q", got, tt.wantMsg)
			}
			if f.Step() != StepPhone {
				t.Errorf("Step() = %v, want to stay on %v", f.Step(), StepPhone)
			}
			if provider.sendCalls != 0 {
				t.Error("invalid input must not reach the provider")
			}
		})
	}
}

func TestSendFailureStaysOnPhone(t *testing.T) {
	provider := &fakeProvider{sendErr: errors.New("sms gateway unavailable")}
	f := NewFlow(provider, &fakeProfiles{}, nil, "", testLogger())

	if err := f.SubmitPhone(context.Background(), "5551234567"); err == nil {
		t.Fatal("expected an error")
	}
	if f.Step() != StepPhone {
		t.Errorf("Step() = %v, want %v", f.Step(), StepPhone)
	}
	if got := f.FieldError(FieldPhone); got != "sms gateway unavailable" {
		t.Errorf("FieldError = %q", got)
	}
}

func TestVerifyFailureStaysOnOtp(t *testing.T) {
	provider := &fakeProvider{verifyErr: errors.New("verification code is incorrect")}
	f := NewFlow(provider, &fakeProfiles{}, nil, "", testLogger())
	ctx := context.Background()

	if err := f.SubmitPhone(ctx, "5551234567"); err != nil {
		t.Fatalf("SubmitPhone failed: %v", err)
	}
	if err := f.SubmitCode(ctx, "123456"); err == nil {
		t.Fatal("expected an error")
	}

	if f.Step() != StepOtp {
		t.Errorf("Step() = %v, want to stay on %v", f.Step(), StepOtp)
	}
	if got := f.FieldError(FieldCode); got != "verification code is incorrect" {
		t.Errorf("FieldError = %q", got)
	}
	if f.Session() != nil {
		t.Error("failed verification must not set a session")
	}

	// No auto-retry: exactly one verify call happened
	if provider.verifyCalls != 1 {
		t.Errorf("verifyCalls = %d, want 1", provider.verifyCalls)
	}
}

func TestSubmitCodeValidation(t *testing.T) {
	provider := &fakeProvider{}
	f := NewFlow(provider, &fakeProfiles{}, nil, "", testLogger())
	ctx := context.Background()

	if err := f.SubmitPhone(ctx, "5551234567"); err != nil {
		t.Fatalf("SubmitPhone failed: %v", err)
	}
	for _, bad := range []string{"", "12345", "abcdef"} {
		if err := f.SubmitCode(ctx, bad); err == nil {
			t.Errorf("SubmitCode(%q): expected an error", bad)
		}
	}
	if provider.verifyCalls != 0 {
		t.Error("malformed codes must not reach the provider")
	}
}

func TestSubmitNameValidation(t *testing.T) {
	profiles := &fakeProfiles{}
	f := NewFlow(&fakeProvider{}, profiles, testSession(), "", testLogger())

	if err := f.SubmitName(context.Background(), "   "); err == nil {
		t.Fatal("expected an error")
	}
	if got := f.FieldError(FieldName); got != "Name is required" {
		t.Errorf("FieldError = %q", got)
	}
	if len(profiles.upserts) != 0 {
		t.Error("invalid name must not reach the store")
	}
}

func TestSubmitIncomeAnnualizesMonthly(t *testing.T) {
	profiles := &fakeProfiles{}
	f := NewFlow(&fakeProvider{}, profiles, testSession(), "", testLogger())
	ctx := context.Background()

	if err := f.SubmitName(ctx, "Alice"); err != nil {
		t.Fatalf("SubmitName failed: %v", err)
	}
	if err := f.SubmitIncome(ctx, "5000", PeriodMonthly); err != nil {
		t.Fatalf("SubmitIncome failed: %v", err)
	}

	incomeUpsert := profiles.upserts[1]
	if incomeUpsert.AnnualizedIncome == nil || *incomeUpsert.AnnualizedIncome != 60000 {
		t.Errorf("annualized income = %v, want 60000", incomeUpsert.AnnualizedIncome)
	}
	if incomeUpsert.Name != nil {
		t.Error("income step must not write name")
	}
	if f.Step() != StepComplete {
		t.Errorf("Step() = %v, want %v", f.Step(), StepComplete)
	}
}

func TestSubmitIncomeValidation(t *testing.T) {
	profiles := &fakeProfiles{}
	f := NewFlow(&fakeProvider{}, profiles, testSession(), "", testLogger())
	ctx := context.Background()

	if err := f.SubmitName(ctx, "Alice"); err != nil {
		t.Fatalf("SubmitName failed: %v", err)
	}

	for _, bad := range []string{"", "abc", "-100", "0", "NaN", "+Inf"} {
		if err := f.SubmitIncome(ctx, bad, PeriodAnnual); err == nil {
			t.Errorf("SubmitIncome(%q): expected an error", bad)
		}
		if f.Step() != StepIncome {
			t.Errorf("SubmitIncome(%q): left the income step", bad)
		}
	}
	if got := f.FieldError(FieldIncome); got != "Income must be a positive number" {
		t.Errorf("FieldError = %q", got)
	}
}

func TestProfileStepsRequireSession(t *testing.T) {
	// Force the flow into the name step without a session by starting with
	// one and clearing it through the struct contract: a nil-session flow
	// cannot reach StepName through the public API, so construct directly.
	f := NewFlow(&fakeProvider{}, &fakeProfiles{}, nil, "", testLogger())
	f.step = StepName

	if err := f.SubmitName(context.Background(), "Alice"); !errors.Is(err, ErrMissingSession) {
		t.Errorf("err = %v, want ErrMissingSession", err)
	}
}

func TestBack(t *testing.T) {
	provider := &fakeProvider{session: testSession()}
	profiles := &fakeProfiles{}
	f := NewFlow(provider, profiles, nil, "", testLogger())
	ctx := context.Background()

	if err := f.Back(); err == nil {
		t.Error("Back from the first step should error")
	}

	if err := f.SubmitPhone(ctx, "5551234567"); err != nil {
		t.Fatalf("SubmitPhone failed: %v", err)
	}

	// Leave an error on the code field, then go back: the error clears and
	// no collaborator is called.
	if err := f.SubmitCode(ctx, "999"); err == nil {
		t.Fatal("expected a validation error")
	}
	if f.FieldError(FieldCode) == "" {
		t.Fatal("expected an inline error before Back")
	}

	sendsBefore, verifiesBefore := provider.sendCalls, provider.verifyCalls
	if err := f.Back(); err != nil {
		t.Fatalf("Back failed: %v", err)
	}
	if f.Step() != StepPhone {
		t.Errorf("Step() = %v, want %v", f.Step(), StepPhone)
	}
	if f.FieldError(FieldCode) != "" {
		t.Error("leaving a step must clear its inline error")
	}
	if provider.sendCalls != sendsBefore || provider.verifyCalls != verifiesBefore {
		t.Error("Back must not call collaborators")
	}
}
