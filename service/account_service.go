package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"musinotes/cache"
	"musinotes/core/auth"
	"musinotes/core/mail"
	"musinotes/core/oauth"
	"musinotes/logger"
	"musinotes/model"
	"musinotes/repository"
	"musinotes/storage"
)

const oauthStateTTL = 10 * time.Minute

// AccountOptions holds the settings AccountService needs from config.
type AccountOptions struct {
	BcryptCost  int
	FrontendURL string
}

// AccountService implements registration, sign-in and account lifecycle.
type AccountService struct {
	users   repository.UserRepository
	tokens  *auth.TokenManager
	mailer  mail.Mailer
	archive storage.ExportArchive // nil when no object store is configured
	google  oauth.Provider        // nil when Google sign-in is not configured
	states  cache.StateStore
	opts    AccountOptions
	now     func() time.Time
}

// NewAccountService wires the account use cases. archive and google may be nil.
func NewAccountService(
	users repository.UserRepository,
	tokens *auth.TokenManager,
	mailer mail.Mailer,
	archive storage.ExportArchive,
	google oauth.Provider,
	states cache.StateStore,
	opts AccountOptions,
) *AccountService {
	if opts.BcryptCost == 0 {
		opts.BcryptCost = auth.DefaultCost
	}
	return &AccountService{
		users:   users,
		tokens:  tokens,
		mailer:  mailer,
		archive: archive,
		google:  google,
		states:  states,
		opts:    opts,
		now:     time.Now,
	}
}

// Register creates a password account.
func (s *AccountService) Register(ctx context.Context, req model.RegisterRequest) (model.UserSummary, error) {
	username := strings.TrimSpace(req.Username)
	email := normalizeEmail(req.Email)

	v := &validator{}
	if username != "" {
		v.username(username)
	}
	v.email(email)
	v.password(req.Password)
	if err := v.err(); err != nil {
		return model.UserSummary{}, err
	}

	hash, err := auth.HashPassword(req.Password, s.opts.BcryptCost)
	if err != nil {
		return model.UserSummary{}, err
	}

	user := &model.User{Email: email, PasswordHash: &hash}
	if username != "" {
		lower := strings.ToLower(username)
		user.Username = &lower
	}

	if _, err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return model.UserSummary{}, ErrDuplicateAccount
		}
		return model.UserSummary{}, err
	}

	logger.Info("User registered", logger.Int64("userID", user.ID))
	return user.Summary(), nil
}

// Login checks the password and issues a token. Every failure that depends on
// the account is reported as ErrInvalidCredentials.
func (s *AccountService) Login(ctx context.Context, req model.LoginRequest) (*model.LoginResponse, error) {
	email := normalizeEmail(req.Email)

	v := &validator{}
	v.email(email)
	v.required("password", req.Password, "Password is required")
	if err := v.err(); err != nil {
		return nil, err
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.HasPassword() || !auth.CheckPasswordHash(req.Password, *user.PasswordHash) {
		logger.Warn("Failed login attempt", logger.String("email", email))
		return nil, ErrInvalidCredentials
	}

	token, expiresAt, err := s.issue(user)
	if err != nil {
		return nil, err
	}

	logger.Info("User logged in", logger.Int64("userID", user.ID))
	return &model.LoginResponse{
		Token:     token,
		User:      user.Summary(),
		ExpiresIn: auth.FormatTTL(s.tokens.TTL()),
		ExpiresAt: expiresAt,
	}, nil
}

func (s *AccountService) issue(user *model.User) (string, time.Time, error) {
	return s.tokens.Issue(auth.Identity{
		UserID:   user.ID,
		Username: user.UsernameOrEmpty(),
		Email:    user.Email,
	})
}

// Me returns the current account.
func (s *AccountService) Me(ctx context.Context, userID int64) (*model.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// ForgotPassword issues a reset token when the account exists. The caller always
// answers with the same acknowledgement; only malformed input is reported.
func (s *AccountService) ForgotPassword(ctx context.Context, req model.ForgotPasswordRequest) error {
	email := normalizeEmail(req.Email)
	v := &validator{}
	v.email(email)
	if err := v.err(); err != nil {
		return err
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user == nil {
		logger.Info("Password reset requested for unknown email")
		return nil
	}

	token, digest, err := auth.NewResetToken()
	if err != nil {
		return err
	}
	if err := s.users.SetResetToken(ctx, user.ID, digest, s.now().Add(auth.ResetTokenTTL)); err != nil {
		return err
	}

	resetURL := s.opts.FrontendURL + "/reset-password?token=" + url.QueryEscape(token)
	if err := s.mailer.SendPasswordReset(ctx, user.Email, resetURL); err != nil {
		logger.Error("Failed to send password reset mail", logger.Int64("userID", user.ID), logger.ErrorField(err))
		return nil
	}
	logger.Info("Password reset mail sent", logger.Int64("userID", user.ID))
	return nil
}

// ResetPassword redeems a reset token once.
func (s *AccountService) ResetPassword(ctx context.Context, req model.ResetPasswordRequest) error {
	v := &validator{}
	v.required("token", req.Token, "Reset token is required")
	v.password(req.Password)
	if err := v.err(); err != nil {
		return err
	}

	digest := auth.DigestResetToken(req.Token)
	user, err := s.users.GetUserByResetToken(ctx, digest)
	if err != nil {
		return err
	}
	if user == nil || user.ResetExpires == nil || !s.now().Before(*user.ResetExpires) {
		return ErrInvalidResetToken
	}

	hash, err := auth.HashPassword(req.Password, s.opts.BcryptCost)
	if err != nil {
		return err
	}
	ok, err := s.users.RedeemResetToken(ctx, user.ID, digest, hash)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidResetToken
	}

	logger.Info("Password reset successful", logger.Int64("userID", user.ID))
	return nil
}

// DeleteAccount removes the account, its songs and its archived exports.
// Accounts without a password (Google only) are not asked for one.
func (s *AccountService) DeleteAccount(ctx context.Context, userID int64, req model.DeleteAccountRequest) error {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}

	if user.HasPassword() {
		v := &validator{}
		v.required("password", req.Password, "Password is required")
		if err := v.err(); err != nil {
			return err
		}
		if !auth.CheckPasswordHash(req.Password, *user.PasswordHash) {
			return ErrInvalidPassword
		}
	}

	if err := s.users.DeleteUser(ctx, userID); err != nil {
		return err
	}
	logger.Info("Account deleted", logger.Int64("userID", userID))

	if s.archive != nil {
		if err := s.archive.RemoveUser(ctx, userID); err != nil {
			logger.Warn("Failed to remove archived exports", logger.Int64("userID", userID), logger.ErrorField(err))
		}
	}
	return nil
}

// GoogleConfigured reports whether Google sign-in is available.
func (s *AccountService) GoogleConfigured() bool {
	return s.google != nil
}

// GoogleAuthURL starts the consent flow and remembers its state.
func (s *AccountService) GoogleAuthURL(ctx context.Context) (string, error) {
	if s.google == nil {
		return "", ErrOAuthNotConfigured
	}
	state, err := oauth.NewState()
	if err != nil {
		return "", err
	}
	if err := s.states.Save(ctx, state, oauthStateTTL); err != nil {
		return "", err
	}
	return s.google.AuthCodeURL(state), nil
}

// CompleteGoogleSignIn validates state, exchanges code and returns a token for
// the matching, linked or newly provisioned account.
func (s *AccountService) CompleteGoogleSignIn(ctx context.Context, state, code string) (string, error) {
	if s.google == nil {
		return "", ErrOAuthNotConfigured
	}

	valid, err := s.states.Consume(ctx, state)
	if err != nil {
		return "", err
	}
	if !valid {
		return "", fmt.Errorf("%w: unknown or reused state", ErrOAuthFailed)
	}
	if code == "" {
		return "", fmt.Errorf("%w: missing authorization code", ErrOAuthFailed)
	}

	profile, err := s.google.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOAuthFailed, err)
	}

	user, err := s.findOrProvisionGoogleUser(ctx, profile)
	if err != nil {
		return "", err
	}

	token, _, err := s.issue(user)
	if err != nil {
		return "", err
	}
	logger.Info("Google sign-in", logger.Int64("userID", user.ID))
	return token, nil
}

func (s *AccountService) findOrProvisionGoogleUser(ctx context.Context, profile *oauth.Profile) (*model.User, error) {
	user, err := s.users.GetUserByGoogleID(ctx, profile.ID)
	if err != nil || user != nil {
		return user, err
	}

	user, err = s.users.GetUserByEmail(ctx, profile.Email)
	if err != nil {
		return nil, err
	}
	if user != nil {
		// Linking takes over an existing account, so the address must be proven.
		if !profile.VerifiedEmail {
			return nil, fmt.Errorf("%w: unverified email matches an existing account", ErrOAuthFailed)
		}
		if err := s.users.LinkGoogleID(ctx, user.ID, profile.ID); err != nil {
			return nil, err
		}
		user.GoogleID = &profile.ID
		logger.Info("Linked Google account", logger.Int64("userID", user.ID))
		return user, nil
	}

	username, err := s.uniqueUsername(ctx, oauth.BaseUsername(profile))
	if err != nil {
		return nil, err
	}
	user = &model.User{Username: &username, Email: profile.Email, GoogleID: &profile.ID}
	if _, err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	logger.Info("Provisioned Google account", logger.Int64("userID", user.ID))
	return user, nil
}

// uniqueUsername returns base, or base_1, base_2, ... whichever is free first.
func (s *AccountService) uniqueUsername(ctx context.Context, base string) (string, error) {
	candidate := base
	for i := 1; ; i++ {
		exists, err := s.users.UsernameExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s_%d", base, i)
	}
}
