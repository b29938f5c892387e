package server

import (
	"errors"
	"net/http"

	notevault "github.com/MrEthical07/notevault"
	"github.com/MrEthical07/notevault/internal/logging"
	"github.com/MrEthical07/notevault/internal/notes"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Message string       `json:"message"`
	Reason  string       `json:"reason,omitempty"`
	Errors  []FieldError `json:"errors,omitempty"`
}

// statusError pins an error to a status and message chosen by a handler,
// overriding the default mapping.
type statusError struct {
	status  int
	message string
	err     error
}

func (e *statusError) Error() string { return e.message + ": " + e.err.Error() }
func (e *statusError) Unwrap() error { return e.err }

func withStatus(status int, message string, err error) error {
	return &statusError{status: status, message: message, err: err}
}

// mapError translates an error into a status and a client-safe body.
// Unrecognized errors are 500 and their text is never sent.
func mapError(err error) (int, ErrorResponse) {
	var se *statusError
	if errors.As(err, &se) {
		return se.status, ErrorResponse{Message: se.message, Reason: notevault.TokenErrorReason(se.err)}
	}

	var ve *validationError
	if errors.As(err, &ve) {
		return http.StatusBadRequest, ErrorResponse{Message: "Validation error", Errors: ve.fields}
	}

	if reason := notevault.TokenErrorReason(err); reason != "" {
		return http.StatusUnauthorized, ErrorResponse{Message: "Invalid or expired token", Reason: reason}
	}

	switch {
	case errors.Is(err, notevault.ErrValidation),
		errors.Is(err, notevault.ErrPasswordPolicy),
		errors.Is(err, notevault.ErrInvalidSalt),
		errors.Is(err, notes.ErrInvalidNote):
		return http.StatusBadRequest, ErrorResponse{Message: err.Error()}
	case errors.Is(err, notevault.ErrEmailTaken):
		return http.StatusBadRequest, ErrorResponse{Message: "User already exists with this email"}
	case errors.Is(err, notevault.ErrMFAAlreadyEnrolled):
		return http.StatusBadRequest, ErrorResponse{Message: "MFA is already enabled"}
	case errors.Is(err, notevault.ErrMFANotEnrolled):
		return http.StatusBadRequest, ErrorResponse{Message: "MFA is not enabled for this account"}
	case errors.Is(err, notevault.ErrInvalidCredentials):
		return http.StatusUnauthorized, ErrorResponse{Message: "Invalid credentials"}
	case errors.Is(err, notevault.ErrInvalidMFACode):
		return http.StatusUnauthorized, ErrorResponse{Message: "Invalid MFA code"}
	case errors.Is(err, notevault.ErrBackupCodeInvalid):
		return http.StatusUnauthorized, ErrorResponse{Message: "Invalid backup code"}
	case errors.Is(err, notevault.ErrAccountLocked):
		return http.StatusLocked, ErrorResponse{Message: "Account temporarily locked"}
	case errors.Is(err, notevault.ErrMFARateLimited),
		errors.Is(err, notevault.ErrLoginRateLimited),
		errors.Is(err, notevault.ErrSignupRateLimited):
		return http.StatusTooManyRequests, ErrorResponse{Message: "Too many attempts, please try again later"}
	case errors.Is(err, notevault.ErrSaltAlreadySet):
		return http.StatusConflict, ErrorResponse{Message: "Encryption salt is already set"}
	case errors.Is(err, notevault.ErrUserNotFound):
		return http.StatusNotFound, ErrorResponse{Message: "User not found"}
	case errors.Is(err, notes.ErrNotFound):
		return http.StatusNotFound, ErrorResponse{Message: "Note not found"}
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if s, ok := he.Message.(string); ok {
			msg = s
		}
		return he.Code, ErrorResponse{Message: msg}
	}

	return http.StatusInternalServerError, ErrorResponse{Message: "Internal server error"}
}

// errorHandler is installed as echo's HTTPErrorHandler.
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, body := mapError(err)
	if status >= http.StatusInternalServerError {
		logging.WithContext(c.Request().Context(), s.log).Error("request failed",
			zap.String("method", c.Request().Method),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, body)
	}
	if err != nil {
		s.log.Warn("write error response", zap.Error(err))
	}
}
