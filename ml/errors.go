package ml

import (
	"errors"
	"fmt"
)

// Persistence error kinds. Match them with errors.Is.
var (
	ErrSave   = errors.New("could not save model")
	ErrRead   = errors.New("could not read file")
	ErrDecode = errors.New("could not decode binary")
)

// ErrInvalidConfig is returned by Train before any work is done.
var ErrInvalidConfig = errors.New("invalid training config")

// PersistError reports a failed save, read or decode.
type PersistError struct {
	Kind   error  // ErrSave, ErrRead or ErrDecode
	Detail string // human readable context
	Err    error  // underlying cause, if any
}

func (e *PersistError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Detail)
}

// Is matches the error kind.
func (e *PersistError) Is(target error) bool {
	return target == e.Kind
}

func (e *PersistError) Unwrap() error {
	return e.Err
}

func decodeErrorf(format string, args ...any) error {
	return &PersistError{Kind: ErrDecode, Detail: fmt.Sprintf(format, args...)}
}
