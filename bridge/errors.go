package bridge

import (
	"fmt"

	tmbytes "github.com/oprelay/oprelay/libs/bytes"
)

// All verification failures are synchronous, atomic aborts: an operation
// that returns one of these errors has made no change to the store, the
// escrow, or the host bank.

// ErrTipConflict is returned when a submission does not extend the current
// tip, or when its header hash is already present in the store.
type ErrTipConflict struct {
	Tip        tmbytes.HexBytes // current tip
	ParentHash tmbytes.HexBytes // parent named by the rejected submission
	HeaderHash tmbytes.HexBytes // set when the header hash is a duplicate
}

func (e ErrTipConflict) Error() string {
	if len(e.HeaderHash) > 0 {
		return fmt.Sprintf("tip conflict: header %X already submitted", e.HeaderHash)
	}
	return fmt.Sprintf("tip conflict: parent %X is not the current tip %X", e.ParentHash, e.Tip)
}

// ErrStaleParent is returned when a caller-supplied submission copy does not
// match the stored record it claims to be, which usually means the caller
// read state that has since changed.
type ErrStaleParent struct {
	Expected tmbytes.HexBytes // commitment of the stored record
	Got      tmbytes.HexBytes // commitment of the supplied copy
}

func (e ErrStaleParent) Error() string {
	return fmt.Sprintf("stale submission copy: commitment %X does not match stored %X", e.Got, e.Expected)
}

// ErrHeightMismatch is returned when a submission's height does not fit
// where the operation needs it: a child must sit exactly one above its
// parent, and a fraud target must sit at or below the tip.
type ErrHeightMismatch struct {
	Expected uint64
	Actual   uint64
}

func (e ErrHeightMismatch) Error() string {
	return fmt.Sprintf("wrong submission height: expected %d, got %d", e.Expected, e.Actual)
}

// ErrBadBondAmount is returned when the attached bond is not exactly the
// protocol bond amount.
type ErrBadBondAmount struct {
	Want uint64
	Got  uint64
}

func (e ErrBadBondAmount) Error() string {
	return fmt.Sprintf("wrong bond amount: want %d, got %d", e.Want, e.Got)
}

// ErrMalformedCommit is returned when submitted or evidence commit bytes do
// not form the canonical commit the operation needs: structural validation
// failures on submit, and evidence that does not hash to the recorded
// last-commit hash on fraud proofs.
type ErrMalformedCommit struct {
	Reason error
}

func (e ErrMalformedCommit) Error() string {
	return fmt.Sprintf("malformed commit: %v", e.Reason)
}

func (e ErrMalformedCommit) Unwrap() error { return e.Reason }

// ErrUnknownOrFinalizedSubmission is returned when the target of an
// operation is absent from the store, already finalized, or does not match
// the caller's copy. The three cases are indistinguishable to a caller:
// deleted and never-submitted records look the same.
type ErrUnknownOrFinalizedSubmission struct {
	HeaderHash tmbytes.HexBytes
}

func (e ErrUnknownOrFinalizedSubmission) Error() string {
	return fmt.Sprintf("no pending submission for header %X", e.HeaderHash)
}

// ErrFraudNotProven is returned when fraud evidence turns out to be a valid
// remote commit. The submission stays untouched.
type ErrFraudNotProven struct {
	HeaderHash tmbytes.HexBytes
}

func (e ErrFraudNotProven) Error() string {
	return fmt.Sprintf("commit for header %X verified, fraud not proven", e.HeaderHash)
}

// ErrTimeoutNotElapsed is returned when a submission is finalized before
// its fraud window has closed.
type ErrTimeoutNotElapsed struct {
	SubmittedAt uint64 // host height at submission
	FraudPeriod uint64
	HostHeight  uint64
}

func (e ErrTimeoutNotElapsed) Error() string {
	return fmt.Sprintf("fraud window still open: submitted at host height %d with period %d, current host height %d",
		e.SubmittedAt, e.FraudPeriod, e.HostHeight)
}

// ErrParentNotOrphaned is returned when a prune target's parent record
// still exists: only descendants of deleted submissions may be pruned.
type ErrParentNotOrphaned struct {
	HeaderHash tmbytes.HexBytes
	ParentHash tmbytes.HexBytes
}

func (e ErrParentNotOrphaned) Error() string {
	return fmt.Sprintf("parent %X of %X is still in the store", e.ParentHash, e.HeaderHash)
}

// ErrMismatchedBatch is returned when a batch operation is called with
// different numbers of hashes and submission copies.
type ErrMismatchedBatch struct {
	Hashes      int
	Submissions int
}

func (e ErrMismatchedBatch) Error() string {
	return fmt.Sprintf("mismatched batch: %d hashes, %d submissions", e.Hashes, e.Submissions)
}
