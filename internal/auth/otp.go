package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/nkhella/fairshare/internal/models"
	"github.com/nkhella/fairshare/internal/phone"
	"github.com/nkhella/fairshare/internal/session"
	"github.com/nkhella/fairshare/internal/storage"
)

var (
	ErrInvalidPhone    = errors.New("phone number is not valid")
	ErrInvalidCode     = errors.New("verification code must be 6 digits")
	ErrNoChallenge     = errors.New("no verification code pending for this number")
	ErrCodeExpired     = errors.New("verification code expired, request a new one")
	ErrCodeMismatch    = errors.New("verification code is incorrect")
	ErrTooManyAttempts = errors.New("too many failed attempts, request a new code")
)

const (
	defaultCodeTTL     = 5 * time.Minute
	defaultMaxAttempts = 5
)

// Ensure OtpAuthenticator implements Provider
var _ Provider = (*OtpAuthenticator)(nil)

// OtpAuthenticator implements phone-OTP authentication backed by the local
// store. Codes are stored bcrypt-hashed with a short expiry; successful
// verification finds or creates the profile for the phone number and issues a
// JWT session through the session store.
type OtpAuthenticator struct {
	store       storage.Store
	jwtManager  *JWTManager
	sender      Sender
	sessions    *session.Store
	logger      *slog.Logger
	codeTTL     time.Duration
	maxAttempts int
}

// NewOtpAuthenticator creates an OTP authenticator with default code expiry
// and attempt limits.
func NewOtpAuthenticator(store storage.Store, jwtManager *JWTManager, sender Sender, sessions *session.Store, logger *slog.Logger) *OtpAuthenticator {
	return &OtpAuthenticator{
		store:       store,
		jwtManager:  jwtManager,
		sender:      sender,
		sessions:    sessions,
		logger:      logger,
		codeTTL:     defaultCodeTTL,
		maxAttempts: defaultMaxAttempts,
	}
}

// SendOtp generates a 6-digit code for the phone number and hands it to the
// sender. Only the bcrypt hash is persisted.
func (a *OtpAuthenticator) SendOtp(ctx context.Context, phoneNumber string) error {
	if !phone.ValidNumber(phoneNumber) {
		return ErrInvalidPhone
	}
	sanitized := phone.Sanitize(phoneNumber)

	code, err := generateCode()
	if err != nil {
		return fmt.Errorf("failed to generate code: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash code: %w", err)
	}

	now := time.Now()
	challenge := &models.OtpChallenge{
		Phone:     sanitized,
		CodeHash:  string(hash),
		ExpiresAt: now.Add(a.codeTTL).Unix(),
		CreatedAt: now.Unix(),
	}
	if err := a.store.PutOtpChallenge(ctx, challenge); err != nil {
		return fmt.Errorf("failed to store challenge: %w", err)
	}

	if err := a.sender.SendCode(ctx, sanitized, code); err != nil {
		return fmt.Errorf("failed to deliver code: %w", err)
	}

	a.logger.Info("OTP sent", "phone", phone.Format(sanitized))
	return nil
}

// VerifyOtp checks the submitted code. On success the pending challenge is
// consumed, the profile for the phone number is found or created, and a new
// session is published through the session store.
func (a *OtpAuthenticator) VerifyOtp(ctx context.Context, phoneNumber, code string) (*session.Session, error) {
	if !phone.ValidOtpCode(code) {
		return nil, ErrInvalidCode
	}
	sanitized := phone.Sanitize(phoneNumber)

	challenge, err := a.store.GetOtpChallenge(ctx, sanitized)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNoChallenge
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load challenge: %w", err)
	}

	if time.Now().Unix() >= challenge.ExpiresAt {
		if err := a.store.DeleteOtpChallenge(ctx, sanitized); err != nil {
			a.logger.Warn("failed to delete expired challenge", "error", err)
		}
		return nil, ErrCodeExpired
	}
	if challenge.Attempts >= a.maxAttempts {
		return nil, ErrTooManyAttempts
	}

	if err := bcrypt.CompareHashAndPassword([]byte(challenge.CodeHash), []byte(code)); err != nil {
		challenge.Attempts++
		if err := a.store.PutOtpChallenge(ctx, challenge); err != nil {
			a.logger.Warn("failed to record failed attempt", "error", err)
		}
		return nil, ErrCodeMismatch
	}

	if err := a.store.DeleteOtpChallenge(ctx, sanitized); err != nil {
		a.logger.Warn("failed to consume challenge", "error", err)
	}

	profile, err := a.findOrCreateProfile(ctx, sanitized)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := a.jwtManager.Generate(profile.ID, profile.Phone)
	if err != nil {
		return nil, fmt.Errorf("failed to issue session token: %w", err)
	}

	sess := &session.Session{
		UserID:      profile.ID,
		Phone:       profile.Phone,
		AccessToken: token,
		ExpiresAt:   expiresAt,
	}
	a.sessions.Set(ctx, sess)

	a.logger.Info("OTP verified", "user_id", profile.ID, "phone", phone.Format(profile.Phone))
	return sess, nil
}

// SignOut clears the active session.
func (a *OtpAuthenticator) SignOut(ctx context.Context) error {
	a.sessions.Set(ctx, nil)
	return nil
}

func (a *OtpAuthenticator) findOrCreateProfile(ctx context.Context, sanitizedPhone string) (*models.Profile, error) {
	profile, err := a.store.GetProfileByPhone(ctx, sanitizedPhone)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up profile: %w", err)
	}

	profile, err = a.store.UpsertProfile(ctx, &models.Profile{Phone: sanitizedPhone})
	if err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}
	return profile, nil
}

// generateCode returns a uniformly random 6-digit code as a string,
// zero-padded.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// LogSender is the default Sender: it logs the code instead of sending an SMS.
// Useful for local development; swap in a real gateway for production.
type LogSender struct {
	Logger *slog.Logger
}

// SendCode logs the code at debug level.
func (s LogSender) SendCode(_ context.Context, phoneNumber, code string) error {
	s.Logger.Debug("OTP code generated", "phone", phone.Format(phoneNumber), "code", code)
	return nil
}
