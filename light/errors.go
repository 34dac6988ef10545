package light

import (
	"fmt"
)

// ErrInvalidCommit means the commit failed shape validation or signature
// verification against the validator set at its height.
type ErrInvalidCommit struct {
	Reason error
}

func (e ErrInvalidCommit) Error() string {
	return fmt.Sprintf("invalid commit: %v", e.Reason)
}

// Unwrap returns the underlying reason.
func (e ErrInvalidCommit) Unwrap() error { return e.Reason }

// ErrNoValidatorSet means the provider could not serve a validator set for
// the requested height.
type ErrNoValidatorSet struct {
	Height uint64
	Reason error
}

func (e ErrNoValidatorSet) Error() string {
	return fmt.Sprintf("no validator set for height %d: %v", e.Height, e.Reason)
}

// Unwrap returns the underlying reason.
func (e ErrNoValidatorSet) Unwrap() error { return e.Reason }
