package auth

import (
	"fmt"
	"math"
	"time"
)

// Code identifies an authentication failure kind. Codes are stable and
// safe to expose to clients.
type Code string

const (
	CodeInvalidCredentials    Code = "INVALID_CREDENTIALS"
	CodeAccountLocked         Code = "ACCOUNT_LOCKED"
	CodeWeakPassword          Code = "WEAK_PASSWORD"
	CodeDuplicateAccount      Code = "DUPLICATE_ACCOUNT"
	CodeInvalidOrExpiredToken Code = "INVALID_OR_EXPIRED_TOKEN"
	CodeForbidden             Code = "FORBIDDEN"
	CodeInvalidInput          Code = "INVALID_INPUT"
	CodeInvalidRole           Code = "INVALID_ROLE"
)

// Error is a client-facing authentication error.
type Error struct {
	Code    Code
	Message string
	// RetryAfter is set for ACCOUNT_LOCKED.
	RetryAfter time.Duration
	// Rules lists every unmet password rule for WEAK_PASSWORD.
	Rules []string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any *Error with the same code, so errors.Is(err, ErrAccountLocked)
// holds for locked errors carrying a RetryAfter.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrInvalidCredentials    = &Error{Code: CodeInvalidCredentials, Message: "Invalid credentials"}
	ErrAccountLocked         = &Error{Code: CodeAccountLocked, Message: "Account temporarily locked. Please try again later."}
	ErrWeakPassword          = &Error{Code: CodeWeakPassword, Message: "Password does not meet requirements"}
	ErrDuplicateAccount      = &Error{Code: CodeDuplicateAccount, Message: "User already exists"}
	ErrInvalidOrExpiredToken = &Error{Code: CodeInvalidOrExpiredToken, Message: "Invalid or expired token"}
	ErrForbidden             = &Error{Code: CodeForbidden, Message: "You do not have permission to perform this action"}
	ErrInvalidInput          = &Error{Code: CodeInvalidInput, Message: "Invalid input"}
	ErrInvalidRole           = &Error{Code: CodeInvalidRole, Message: "Invalid role"}
)

func lockedError(retryAfter time.Duration) *Error {
	if retryAfter < time.Second {
		retryAfter = time.Second
	}
	minutes := int(math.Ceil(retryAfter.Minutes()))
	return &Error{
		Code:       CodeAccountLocked,
		Message:    fmt.Sprintf("Account temporarily locked. Try again in %d minute(s).", minutes),
		RetryAfter: retryAfter,
	}
}

func weakPasswordError(rules []string) *Error {
	return &Error{
		Code:    CodeWeakPassword,
		Message: ErrWeakPassword.Message,
		Rules:   rules,
	}
}

func invalidInput(msg string) *Error {
	return &Error{Code: CodeInvalidInput, Message: msg}
}
