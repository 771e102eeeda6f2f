package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"musinotes/model"
)

// UserRepository defines the interface for user data operations.
// Lookups return (nil, nil) when no row matches.
type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) (int64, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByGoogleID(ctx context.Context, googleID string) (*model.User, error)
	GetUserByResetToken(ctx context.Context, digest string) (*model.User, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	LinkGoogleID(ctx context.Context, userID int64, googleID string) error
	SetResetToken(ctx context.Context, userID int64, digest string, expires time.Time) error
	RedeemResetToken(ctx context.Context, userID int64, digest, passwordHash string) (bool, error)
	DeleteUser(ctx context.Context, userID int64) error
}

const userColumns = "id, username, email, password_hash, google_id, reset_token, reset_expires, created_at, updated_at"

type sqlUserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a UserRepository over db.
func NewUserRepository(db *sql.DB) UserRepository {
	return &sqlUserRepository{db: db}
}

func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	user := &model.User{}
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.GoogleID,
		&user.ResetToken, &user.ResetExpires, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (r *sqlUserRepository) getOne(ctx context.Context, where string, arg any) (*model.User, error) {
	query := "SELECT " + userColumns + " FROM users WHERE " + where
	user, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan user row (%s): %w", where, err)
	}
	return user, nil
}

// CreateUser inserts user and returns its id. Unique violations yield ErrDuplicate.
func (r *sqlUserRepository) CreateUser(ctx context.Context, user *model.User) (int64, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO users (username, email, password_hash, google_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		user.Username, user.Email, user.PasswordHash, user.GoogleID, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to create user: %w", translateError(err))
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for user: %w", err)
	}
	user.ID = id
	user.CreatedAt = now
	user.UpdatedAt = now
	return id, nil
}

func (r *sqlUserRepository) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	return r.getOne(ctx, "id = ?", id)
}

func (r *sqlUserRepository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getOne(ctx, "email = ?", email)
}

func (r *sqlUserRepository) GetUserByGoogleID(ctx context.Context, googleID string) (*model.User, error) {
	return r.getOne(ctx, "google_id = ?", googleID)
}

// GetUserByResetToken finds the user holding digest. Expiry is checked by the caller.
func (r *sqlUserRepository) GetUserByResetToken(ctx context.Context, digest string) (*model.User, error) {
	return r.getOne(ctx, "reset_token = ?", digest)
}

func (r *sqlUserRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, "SELECT id FROM users WHERE username = ?", username).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check username %s: %w", username, err)
	}
	return true, nil
}

func (r *sqlUserRepository) LinkGoogleID(ctx context.Context, userID int64, googleID string) error {
	_, err := r.db.ExecContext(ctx, "UPDATE users SET google_id = ?, updated_at = ? WHERE id = ?",
		googleID, time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("failed to link google id for user %d: %w", userID, translateError(err))
	}
	return nil
}

func (r *sqlUserRepository) SetResetToken(ctx context.Context, userID int64, digest string, expires time.Time) error {
	_, err := r.db.ExecContext(ctx, "UPDATE users SET reset_token = ?, reset_expires = ?, updated_at = ? WHERE id = ?",
		digest, expires.UTC(), time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("failed to store reset token for user %d: %w", userID, err)
	}
	return nil
}

// RedeemResetToken replaces the password hash only while digest is still the stored
// token, so two concurrent redemptions cannot both succeed.
func (r *sqlUserRepository) RedeemResetToken(ctx context.Context, userID int64, digest, passwordHash string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE users SET password_hash = ?, reset_token = NULL, reset_expires = NULL, updated_at = ? WHERE id = ? AND reset_token = ?",
		passwordHash, time.Now().UTC(), userID, digest)
	if err != nil {
		return false, fmt.Errorf("failed to reset password for user %d: %w", userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n == 1, nil
}

// DeleteUser removes the user and its songs in one transaction. The songs FK also
// cascades; deleting them explicitly keeps the result independent of FK enforcement.
func (r *sqlUserRepository) DeleteUser(ctx context.Context, userID int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM songs WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("failed to delete songs of user %d: %w", userID, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM users WHERE id = ?", userID); err != nil {
		return fmt.Errorf("failed to delete user %d: %w", userID, err)
	}
	return tx.Commit()
}
