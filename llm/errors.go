// Error taxonomy for Reasoning Service failures.
//
// A TransientError means the service was unreachable, timed out, or returned
// a non-success status: the current turn must abort with a generic fallback.
// A MalformedError means the service answered but its structured output did
// not parse: the caller continues with zero-value content.

package llm

import (
	"errors"
	"fmt"
)

// ErrTransient marks failures of the service itself (timeout, transport,
// non-200 status). Never retried automatically within a turn.
var ErrTransient = errors.New("reasoning service unavailable")

// ErrMalformed marks responses that arrived but failed schema decoding.
var ErrMalformed = errors.New("malformed reasoning service response")

// TransientError wraps err as a transient service failure.
func TransientError(err error) error {
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// MalformedError wraps err as a malformed-response failure.
func MalformedError(err error) error {
	return fmt.Errorf("%w: %w", ErrMalformed, err)
}

// IsTransient reports whether err is a transient service failure.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsMalformed reports whether err is a malformed-response failure.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformed)
}
