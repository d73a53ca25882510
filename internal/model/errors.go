package model

import "errors"

type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindNotFound   ErrorKind = "not_found"
	KindForbidden  ErrorKind = "forbidden"
	KindConflict   ErrorKind = "conflict"
	KindTransport  ErrorKind = "transport"
	KindUnexpected ErrorKind = "unexpected"
)

// Error is a domain failure carrying a stable kind so the HTTP layer can map
// it to a status code without inspecting the message.
type Error struct {
	Kind    ErrorKind
	Field   string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

var (
	ErrSessionNotFound  = &Error{Kind: KindNotFound, Message: "session not found"}
	ErrGuildNotFound    = &Error{Kind: KindNotFound, Message: "guild not found"}
	ErrSessionFull      = &Error{Kind: KindConflict, Message: "session is full"}
	ErrAlreadyJoined    = &Error{Kind: KindConflict, Message: "user has already joined this session"}
	ErrGuildMismatch    = &Error{Kind: KindForbidden, Message: "session does not belong to this guild"}
	ErrNotGuildMember   = &Error{Kind: KindForbidden, Message: "user is not a member of this guild"}
	ErrInsufficientRole = &Error{Kind: KindForbidden, Message: "only the session creator or a guild admin can do this"}
)

func NewValidationError(field, message string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: message}
}

func NewTransportError(message string) *Error {
	return &Error{Kind: KindTransport, Message: message}
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindUnexpected for anything else.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}
