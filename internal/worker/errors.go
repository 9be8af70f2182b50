package worker

import (
	"errors"
	"fmt"
)

// PermanentError marks a handler failure that another attempt cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err as a permanent failure. A nil err stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

func IsPermanent(err error) bool {
	var perm *PermanentError
	return errors.As(err, &perm)
}

type Class string

const (
	ClassRetryable Class = "retryable"
	ClassPermanent Class = "permanent"
)

// Classify applies the default heuristic: errors marked Permanent are
// permanent, everything else (timeouts, network errors, unknown) is
// retryable.
func Classify(err error) Class {
	if err == nil {
		return ""
	}
	if IsPermanent(err) {
		return ClassPermanent
	}
	return ClassRetryable
}

// panicError carries a recovered handler panic.
type panicError struct {
	value any
}

func (e panicError) Error() string {
	return fmt.Sprintf("handler panic: %v", e.value)
}
