package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nkhella/fairshare/internal/models"
	"github.com/nkhella/fairshare/internal/storage"
)

// PutOtpChallenge stores the pending challenge for a phone number, replacing
// any previous one. One live challenge per phone.
func (s *SQLiteStore) PutOtpChallenge(ctx context.Context, challenge *models.OtpChallenge) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO otp_challenges (phone, code_hash, attempts, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(phone) DO UPDATE SET
		     code_hash = excluded.code_hash,
		     attempts = excluded.attempts,
		     expires_at = excluded.expires_at,
		     created_at = excluded.created_at`,
		challenge.Phone, challenge.CodeHash, challenge.Attempts, challenge.ExpiresAt, challenge.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to put otp challenge: %w", err)
	}
	return nil
}

// GetOtpChallenge retrieves the pending challenge for a phone number.
func (s *SQLiteStore) GetOtpChallenge(ctx context.Context, phoneNumber string) (*models.OtpChallenge, error) {
	c := &models.OtpChallenge{}
	err := s.db.QueryRowContext(ctx,
		"SELECT phone, code_hash, attempts, expires_at, created_at FROM otp_challenges WHERE phone = ?",
		phoneNumber,
	).Scan(&c.Phone, &c.CodeHash, &c.Attempts, &c.ExpiresAt, &c.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get otp challenge: %w", err)
	}
	return c, nil
}

// DeleteOtpChallenge removes the pending challenge for a phone number.
func (s *SQLiteStore) DeleteOtpChallenge(ctx context.Context, phoneNumber string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM otp_challenges WHERE phone = ?", phoneNumber); err != nil {
		return fmt.Errorf("failed to delete otp challenge: %w", err)
	}
	return nil
}
