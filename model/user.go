package model

import "time"

// User represents an account. A user has a password hash, a Google id, or both.
type User struct {
	ID           int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     *string    `gorm:"size:50;uniqueIndex" json:"username"`
	Email        string     `gorm:"size:255;not null;uniqueIndex" json:"email"`
	PasswordHash *string    `gorm:"size:255" json:"-"`
	GoogleID     *string    `gorm:"column:google_id;size:255;uniqueIndex" json:"-"`
	ResetToken   *string    `gorm:"size:64;index" json:"-"` // SHA-256 hex of the issued token
	ResetExpires *time.Time `json:"-"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// HasPassword reports whether password login is possible for this account.
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// IsOAuthOnly reports whether the account can only sign in through Google.
func (u *User) IsOAuthOnly() bool {
	return !u.HasPassword() && u.GoogleID != nil
}

// UserSummary is the public part of a user returned by the API.
type UserSummary struct {
	ID       int64   `json:"id"`
	Username *string `json:"username"`
	Email    string  `json:"email"`
}

// Summary strips everything but identity fields.
func (u *User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Username: u.Username, Email: u.Email}
}

// UsernameOrEmpty returns the username or "" for accounts without one.
func (u *User) UsernameOrEmpty() string {
	if u.Username == nil {
		return ""
	}
	return *u.Username
}

// RegisterRequest is the body of POST /api/auth/register.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ForgotPasswordRequest is the body of POST /api/auth/forgot-password.
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// ResetPasswordRequest is the body of POST /api/auth/reset-password.
type ResetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// DeleteAccountRequest is the body of DELETE /api/auth/delete-account.
type DeleteAccountRequest struct {
	Password string `json:"password"`
}

// LoginResponse is returned after a successful password login.
type LoginResponse struct {
	Token     string      `json:"token"`
	User      UserSummary `json:"user"`
	ExpiresIn string      `json:"expiresIn"`
	ExpiresAt time.Time   `json:"expiresAt"`
}
