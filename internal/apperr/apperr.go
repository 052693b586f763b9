// Package apperr is the closed error taxonomy shared by every layer. Store
// implementations translate driver failures into it at the boundary, and the
// HTTP layer maps each kind to a status code and a single user-facing message.
package apperr

import "errors"

// Kind classifies an error.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindAuth          Kind = "auth"
	KindAuthorization Kind = "authorization"
	KindRoomFull      Kind = "room_full"
	KindNotFound      Kind = "not_found"
	KindPersistence   Kind = "persistence"
)

// Error is the domain error type.
type Error struct {
	Kind    Kind
	Message string // user-facing
	Cause   error
}

func (e *Error) Error() string {
	switch {
	case e.Cause == nil:
		return e.Message
	case e.Message == "":
		return e.Cause.Error()
	default:
		return e.Message + ": " + e.Cause.Error()
	}
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches the per-kind sentinels below, so errors.Is(err, ErrRoomFull)
// holds for any room_full error. Sentinels carry no message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Cause == nil && t.Kind == e.Kind
}

var (
	ErrValidation    = &Error{Kind: KindValidation}
	ErrAuth          = &Error{Kind: KindAuth}
	ErrAuthorization = &Error{Kind: KindAuthorization}
	ErrRoomFull      = &Error{Kind: KindRoomFull}
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrPersistence   = &Error{Kind: KindPersistence}
)

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Persistence wraps a raw store failure. Nil in, nil out.
func Persistence(op string, cause error) error {
	if cause == nil {
		return nil
	}
	var e *Error
	if errors.As(cause, &e) {
		return cause
	}
	return Wrap(KindPersistence, op, cause)
}

// KindOf returns the kind of the first *Error in err's chain, or "" when
// there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Message returns the human-readable text for err. Persistence failures and
// foreign errors get a generic message so driver details never reach users.
func Message(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "Something went wrong, please try again."
	}
	if e.Kind == KindPersistence {
		return "The server could not save your changes, please try again."
	}
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}
