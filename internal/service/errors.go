package service

import (
	"errors"
	"fmt"
)

// Error kinds. Handlers map a kind to a transport status; callers test with
// errors.Is against either the kind or the specific error.
var (
	ErrValidation     = errors.New("validation error")
	ErrAuthentication = errors.New("authentication failed")
	ErrStorage        = errors.New("storage error")
	ErrNotification   = errors.New("notification failed")
)

// Error is an auth failure of a known kind
type Error struct {
	kind error
	msg  string
}

func (e *Error) Error() string { return e.msg }
func (e *Error) Unwrap() error { return e.kind }

var (
	ErrInvalidOrExpiredAttempt = &Error{kind: ErrAuthentication, msg: "invalid or expired authentication attempt"}
	ErrKeyExpired              = &Error{kind: ErrAuthentication, msg: "authentication key expired"}
	ErrInvalidKey              = &Error{kind: ErrAuthentication, msg: "invalid authentication key"}
	ErrInvalidCode             = &Error{kind: ErrAuthentication, msg: "invalid verification code"}
	ErrCodeExpired             = &Error{kind: ErrAuthentication, msg: "verification code expired"}
	ErrInvalidSession          = &Error{kind: ErrAuthentication, msg: "invalid session"}
)

func validationErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func storageError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStorage, op, err)
}
