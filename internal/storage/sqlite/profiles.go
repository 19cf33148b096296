package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nkhella/fairshare/internal/models"
	"github.com/nkhella/fairshare/internal/storage"
)

// searchLimit caps prefix search results; the UI shows a short pick list.
const searchLimit = 20

// GetProfile retrieves a profile by user ID.
func (s *SQLiteStore) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	return s.queryProfile(ctx,
		"SELECT id, phone, name, annualized_income, created_at, updated_at FROM profiles WHERE id = ?",
		userID,
	)
}

// GetProfileByPhone retrieves a profile by its digits-only phone number.
func (s *SQLiteStore) GetProfileByPhone(ctx context.Context, phone string) (*models.Profile, error) {
	return s.queryProfile(ctx,
		"SELECT id, phone, name, annualized_income, created_at, updated_at FROM profiles WHERE phone = ?",
		phone,
	)
}

// SearchProfilesByPhonePrefix returns profiles whose phone number starts with
// the given digit prefix, ordered by phone number.
func (s *SQLiteStore) SearchProfilesByPhonePrefix(ctx context.Context, prefix string) ([]models.Profile, error) {
	if prefix == "" {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, phone, name, annualized_income, created_at, updated_at
		 FROM profiles
		 WHERE phone LIKE ? ESCAPE '\'
		 ORDER BY phone
		 LIMIT ?`,
		escapeLike(prefix)+"%", searchLimit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search profiles: %w", err)
	}
	defer rows.Close()

	var profiles []models.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles = append(profiles, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating profiles: %w", err)
	}

	return profiles, nil
}

// UpsertProfile inserts or partially updates a profile keyed by ID.
// Nil optional fields never overwrite stored values (COALESCE keeps the old
// column), so the signup flow can write name and income in separate steps.
func (s *SQLiteStore) UpsertProfile(ctx context.Context, profile *models.Profile) (*models.Profile, error) {
	if profile.Phone == "" {
		return nil, fmt.Errorf("profile phone is required")
	}
	if profile.ID == "" {
		profile.ID = uuid.New().String()
	}

	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO profiles (id, phone, name, annualized_income, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		     phone = excluded.phone,
		     name = COALESCE(excluded.name, profiles.name),
		     annualized_income = COALESCE(excluded.annualized_income, profiles.annualized_income),
		     updated_at = excluded.updated_at`,
		profile.ID, profile.Phone, profile.Name, profile.AnnualizedIncome, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert profile: %w", err)
	}

	return s.GetProfile(ctx, profile.ID)
}

// queryProfile runs a single-row profile query and maps no-rows to ErrNotFound.
func (s *SQLiteStore) queryProfile(ctx context.Context, query string, arg any) (*models.Profile, error) {
	row := s.db.QueryRowContext(ctx, query, arg)
	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanProfile(row scanner) (*models.Profile, error) {
	p := &models.Profile{}
	var name sql.NullString
	var income sql.NullFloat64

	if err := row.Scan(&p.ID, &p.Phone, &name, &income, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}

	if name.Valid {
		p.Name = &name.String
	}
	if income.Valid {
		p.AnnualizedIncome = &income.Float64
	}
	return p, nil
}

// escapeLike escapes LIKE wildcards in user input. Prefixes are digits in
// practice, but the query must not break if they are not.
func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
