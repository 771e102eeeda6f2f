package server

import (
	"errors"
	"net/http"
	"net/url"

	"musinotes/core/auth"
	"musinotes/logger"
	"musinotes/model"
	"musinotes/service"
)

const forgotPasswordAck = "If an account with that email exists, a reset link has been sent."

// AuthHandler serves the /api/auth routes.
type AuthHandler struct {
	accounts    *service.AccountService
	errs        errorWriter
	frontendURL string
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(accounts *service.AccountService, errs errorWriter, frontendURL string) *AuthHandler {
	return &AuthHandler{accounts: accounts, errs: errs, frontendURL: frontendURL}
}

// identityOf returns the identity stored by requireAuth.
func identityOf(r *http.Request) (auth.Identity, error) {
	id, ok := auth.IdentityFrom(r.Context())
	if !ok {
		return auth.Identity{}, auth.ErrTokenMissing
	}
	return id, nil
}

// RegisterHandler handles POST /api/auth/register.
func (h *AuthHandler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		h.errs.write(w, r, err)
		return
	}

	user, err := h.accounts.Register(r.Context(), req)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// LoginHandler handles POST /api/auth/login.
func (h *AuthHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		h.errs.write(w, r, err)
		return
	}

	resp, err := h.accounts.Login(r.Context(), req)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// MeHandler handles GET /api/auth/me.
func (h *AuthHandler) MeHandler(w http.ResponseWriter, r *http.Request) {
	id, err := identityOf(r)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}

	user, err := h.accounts.Me(r.Context(), id.UserID)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		*model.User
		HasPassword  bool `json:"hasPassword"`
		GoogleLinked bool `json:"googleLinked"`
	}{User: user, HasPassword: user.HasPassword(), GoogleLinked: user.GoogleID != nil})
}

// ForgotPasswordHandler handles POST /api/auth/forgot-password.
func (h *AuthHandler) ForgotPasswordHandler(w http.ResponseWriter, r *http.Request) {
	var req model.ForgotPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		h.errs.write(w, r, err)
		return
	}

	if err := h.accounts.ForgotPassword(r.Context(), req); err != nil {
		var verr *service.ValidationError
		if errors.As(err, &verr) {
			h.errs.write(w, r, err)
			return
		}
		// Internal failures get the same answer as success.
		logger.Error("Forgot password failed", logger.ErrorField(err))
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: forgotPasswordAck})
}

// ResetPasswordHandler handles POST /api/auth/reset-password.
func (h *AuthHandler) ResetPasswordHandler(w http.ResponseWriter, r *http.Request) {
	var req model.ResetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		h.errs.write(w, r, err)
		return
	}

	if err := h.accounts.ResetPassword(r.Context(), req); err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Password reset successful"})
}

// DeleteAccountHandler handles DELETE /api/auth/delete-account.
func (h *AuthHandler) DeleteAccountHandler(w http.ResponseWriter, r *http.Request) {
	id, err := identityOf(r)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}

	var req model.DeleteAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		h.errs.write(w, r, err)
		return
	}

	if err := h.accounts.DeleteAccount(r.Context(), id.UserID, req); err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Account deleted successfully"})
}

// GoogleLoginHandler handles GET /api/auth/google.
func (h *AuthHandler) GoogleLoginHandler(w http.ResponseWriter, r *http.Request) {
	target, err := h.accounts.GoogleAuthURL(r.Context())
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// GoogleCallbackHandler handles GET /api/auth/google/callback. Outcomes go back
// to the frontend as query parameters.
func (h *AuthHandler) GoogleCallbackHandler(w http.ResponseWriter, r *http.Request) {
	if !h.accounts.GoogleConfigured() {
		h.errs.write(w, r, service.ErrOAuthNotConfigured)
		return
	}

	q := r.URL.Query()
	if denied := q.Get("error"); denied != "" {
		logger.Warn("Google OAuth denied", logger.String("error", denied))
		h.redirectFrontend(w, r, "error", "google_auth_failed")
		return
	}

	token, err := h.accounts.CompleteGoogleSignIn(r.Context(), q.Get("state"), q.Get("code"))
	if err != nil {
		logger.Error("Google OAuth error", logger.ErrorField(err))
		h.redirectFrontend(w, r, "error", "google_auth_failed")
		return
	}
	h.redirectFrontend(w, r, "token", token)
}

func (h *AuthHandler) redirectFrontend(w http.ResponseWriter, r *http.Request, key, value string) {
	http.Redirect(w, r, h.frontendURL+"/?"+url.Values{key: {value}}.Encode(), http.StatusFound)
}
