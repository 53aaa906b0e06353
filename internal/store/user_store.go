package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/taskminder/internal/model"
)

// userColumns is the column list for model.User. google_id is NULL for
// password-only accounts.
const userColumns = "id, name, email, password_hash, COALESCE(google_id, '') AS google_id, created_at"

// CreateUser inserts a new user. Generates a UUID if ID is empty.
func (s *SQLiteStore) CreateUser(ctx context.Context, u model.User) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, google_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Name, u.Email, u.PasswordHash, nullIfEmpty(u.GoogleID), u.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("creating user %s: %w", u.Email, ErrConflict)
		}
		return fmt.Errorf("creating user %s: %w", u.Email, err)
	}
	return nil
}

// GetUserByEmail retrieves a single user by email.
func (s *SQLiteStore) GetUserByEmail(
	ctx context.Context,
	email string,
) (*model.User, error) {
	return s.getUser(ctx, "email", email)
}

// GetUserByGoogleID retrieves the user linked to a Google account.
func (s *SQLiteStore) GetUserByGoogleID(
	ctx context.Context,
	googleID string,
) (*model.User, error) {
	if googleID == "" {
		return nil, fmt.Errorf("user with empty google id: %w", ErrNotFound)
	}
	return s.getUser(ctx, "google_id", googleID)
}

// getUser loads one user by a unique column.
func (s *SQLiteStore) getUser(ctx context.Context, column, value string) (*model.User, error) {
	var u model.User
	err := s.db.GetContext(ctx, &u,
		"SELECT "+userColumns+" FROM users WHERE "+column+" = ?", value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", value, ErrNotFound)
		}
		return nil, fmt.Errorf("getting user %s: %w", value, err)
	}
	return &u, nil
}

// LinkGoogleID sets the Google account id of the user with email.
func (s *SQLiteStore) LinkGoogleID(ctx context.Context, email, googleID string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE users SET google_id = ? WHERE email = ?", googleID, email)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("linking google account to %s: %w", email, ErrConflict)
		}
		return fmt.Errorf("linking google account to %s: %w", email, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("user %s: %w", email, ErrNotFound)
	}
	return nil
}

// nullIfEmpty maps "" to SQL NULL.
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
