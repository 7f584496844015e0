package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Token
	ErrCodeTokenExpired     ErrorCode = "TOKEN_EXPIRED"
	ErrCodeTokenMalformed   ErrorCode = "TOKEN_MALFORMED"
	ErrCodeSignatureInvalid ErrorCode = "SIGNATURE_INVALID"

	// Session
	ErrCodeSessionNotFound ErrorCode = "SESSION_NOT_FOUND"

	// Encryption
	ErrCodeMalformedCiphertext ErrorCode = "MALFORMED_CIPHERTEXT"
	ErrCodeDecryptionFailure   ErrorCode = "DECRYPTION_FAILURE"

	// Pairing
	ErrCodePairingExpired  ErrorCode = "PAIRING_EXPIRED"
	ErrCodePairingNotFound ErrorCode = "PAIRING_NOT_FOUND"

	// Orchestration
	ErrCodeUnauthenticated ErrorCode = "UNAUTHENTICATED"
	ErrCodeUserNotFound    ErrorCode = "USER_NOT_FOUND"

	// Authorization
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"

	// Validation
	ErrCodeValidation      ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrCodeMissingRequired ErrorCode = "MISSING_REQUIRED"

	// Resource
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	ErrCodeConflict ErrorCode = "CONFLICT"

	// Rate Limiting
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Internal
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	ErrCodeDatabase ErrorCode = "DATABASE_ERROR"
)

// AppError is a structured error that can be returned to clients
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.cause
}

// Is reports whether target is an AppError with the same code, so callers can
// write errors.Is(err, apperrors.TokenExpired()).
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

// WithCause adds a cause to the error
func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError
func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Common error constructors

func TokenExpired() *AppError {
	return New(ErrCodeTokenExpired, "Token has expired")
}

func TokenMalformed() *AppError {
	return New(ErrCodeTokenMalformed, "Token is malformed")
}

func SignatureInvalid() *AppError {
	return New(ErrCodeSignatureInvalid, "Token signature is invalid")
}

func SessionNotFound() *AppError {
	return New(ErrCodeSessionNotFound, "Session not found or no longer active")
}

func MalformedCiphertext(reason string) *AppError {
	return New(ErrCodeMalformedCiphertext, fmt.Sprintf("Malformed ciphertext: %s", reason))
}

func DecryptionFailure() *AppError {
	return New(ErrCodeDecryptionFailure, "Unable to decrypt value")
}

func PairingExpired() *AppError {
	return New(ErrCodePairingExpired, "Pairing code has expired or was already used")
}

func PairingNotFound() *AppError {
	return New(ErrCodePairingNotFound, "Pairing code not found")
}

func Unauthenticated() *AppError {
	return New(ErrCodeUnauthenticated, "Not authenticated")
}

func UserNotFound() *AppError {
	return New(ErrCodeUserNotFound, "User not found")
}

func Unauthorized(message string) *AppError {
	return New(ErrCodeUnauthorized, message)
}

func Forbidden(message string) *AppError {
	return New(ErrCodeForbidden, message)
}

func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

func Conflict(message string) *AppError {
	return New(ErrCodeConflict, message)
}

func ValidationError(message string) *AppError {
	return New(ErrCodeValidation, message)
}

func InvalidInput(field string, reason string) *AppError {
	return New(ErrCodeInvalidInput, fmt.Sprintf("Invalid %s: %s", field, reason))
}

func MissingRequired(field string) *AppError {
	return New(ErrCodeMissingRequired, fmt.Sprintf("%s is required", field))
}

func RateLimitExceeded() *AppError {
	return New(ErrCodeRateLimitExceeded, "Rate limit exceeded")
}

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
}

func Database(cause error) *AppError {
	return Wrap(ErrCodeDatabase, "Database error", cause)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetCode returns the error code if the error is an AppError, otherwise returns ErrCodeInternal
func GetCode(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}

// IsAuthFailure reports whether err is any credential verification failure.
// Callers collapse all of these into a single unauthenticated outcome.
func IsAuthFailure(err error) bool {
	switch GetCode(err) {
	case ErrCodeTokenExpired,
		ErrCodeTokenMalformed,
		ErrCodeSignatureInvalid,
		ErrCodeSessionNotFound,
		ErrCodeUnauthenticated:
		return true
	}
	return false
}
