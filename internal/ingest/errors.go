package ingest

import (
	"errors"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	KindSchema       Kind = "SchemaError"
	KindEmpty        Kind = "EmptyDatasetError"
	KindTypeCoercion Kind = "TypeCoercionError"
	KindBusinessRule Kind = "BusinessRuleError"
	KindPersistence  Kind = "PersistenceError"
	KindRead         Kind = "ReadError"
	KindUnexpected   Kind = "UnexpectedError"
)

// Error is a classified pipeline failure. Msg is the human-readable text
// recorded in the upload audit.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Err }

func newError(k Kind, msg string, err error) *Error { return &Error{Kind: k, Msg: msg, Err: err} }

// KindOf reports the Kind of err, or KindUnexpected when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}
