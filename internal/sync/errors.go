package sync

import (
	"errors"
	"fmt"
)

// ErrInconsistent indicates the remote state contradicts a write that the
// remote just acknowledged.
var ErrInconsistent = errors.New("inconsistent remote state")

// ValidationError reports a bad argument. It is always returned before
// any remote call is made.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// IsValidationError reports whether err (or any error in its chain) is a
// ValidationError.
func IsValidationError(err error) bool {
	var vErr *ValidationError
	return errors.As(err, &vErr)
}

// OpError wraps a failed remote call with the store operation that issued
// it. Its message is what the store exposes as its error state.
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}
