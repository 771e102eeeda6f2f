package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"musinotes/core/auth"
	"musinotes/logger"
	"musinotes/service"
)

// apiError is the JSON error body every failure is rendered as.
type apiError struct {
	Status  int    `json:"-"`
	Message string `json:"error"`
	Details any    `json:"details,omitempty"`
}

func (e *apiError) Error() string { return e.Message }

func newAPIError(status int, message string) *apiError {
	return &apiError{Status: status, Message: message}
}

var errRouteNotFound = newAPIError(http.StatusNotFound, "Route not found")

// errorWriter turns errors into responses. Unclassified errors are logged and,
// outside production, their text is returned as details.
type errorWriter struct {
	exposeDetails bool
}

// classify maps domain errors onto HTTP statuses.
func classify(err error) *apiError {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var verr *service.ValidationError
	if errors.As(err, &verr) {
		return &apiError{Status: http.StatusBadRequest, Message: "Invalid input data", Details: verr.Fields}
	}

	switch {
	case errors.Is(err, auth.ErrTokenMissing):
		return newAPIError(http.StatusUnauthorized, "Access token required")
	case errors.Is(err, auth.ErrTokenInvalid), errors.Is(err, service.ErrAccountGone):
		return newAPIError(http.StatusForbidden, "Invalid or expired token")
	case errors.Is(err, service.ErrSongNotFound):
		return newAPIError(http.StatusNotFound, "Song not found or access denied")
	case errors.Is(err, service.ErrUserNotFound):
		return newAPIError(http.StatusNotFound, "User not found")
	case errors.Is(err, service.ErrDuplicateAccount):
		return newAPIError(http.StatusBadRequest, "Username or email already exists")
	case errors.Is(err, service.ErrInvalidCredentials):
		return newAPIError(http.StatusBadRequest, "Invalid email or password")
	case errors.Is(err, service.ErrInvalidPassword):
		return newAPIError(http.StatusBadRequest, "Invalid password")
	case errors.Is(err, service.ErrInvalidResetToken):
		return newAPIError(http.StatusBadRequest, "Invalid or expired reset token")
	case errors.Is(err, service.ErrOAuthNotConfigured):
		return &apiError{
			Status:  http.StatusBadRequest,
			Message: "Google OAuth not configured",
			Details: "Google authentication is not available. Set GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET in the server environment.",
		}
	}
	return nil
}

func (ew errorWriter) write(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := classify(err)
	if apiErr == nil {
		logger.Error("Unhandled error",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.String("requestID", requestIDFrom(r.Context())),
			logger.ErrorField(err))
		apiErr = newAPIError(http.StatusInternalServerError, "Internal server error")
		if ew.exposeDetails {
			apiErr.Details = err.Error()
		}
	}
	writeJSON(w, apiErr.Status, apiErr)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", logger.ErrorField(err))
	}
}

type messageResponse struct {
	Message string `json:"message"`
}

// decodeJSON reads a JSON body into v. An empty body leaves v zero-valued.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return newAPIError(http.StatusRequestEntityTooLarge, "Request body too large")
		}
		return &apiError{Status: http.StatusBadRequest, Message: "Invalid request body", Details: fmt.Sprint(err)}
	}
	return nil
}
