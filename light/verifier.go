// Package light verifies remote commits against the remote chain's
// validator set. It implements the fraud-verification boundary of the
// bridge: a commit offered as fraud evidence is valid only if more than
// 2/3 of the validator set's voting power at its height signed the claimed
// block id.
package light

import (
	"context"

	"github.com/oprelay/oprelay/bridge"
	tmbytes "github.com/oprelay/oprelay/libs/bytes"
	"github.com/oprelay/oprelay/types"
)

// Verifier checks remote commits. It ensures that:
//
//	a) the commit passes stateless shape validation (if not,
//	   ErrInvalidCommit is returned)
//	b) the provider serves a validator set for the commit height (if not,
//	   ErrNoValidatorSet is returned)
//	c) the commit's height and block id match the requested ones and more
//	   than 2/3 of the set's voting power signed, every carried signature
//	   verifying (if not, ErrInvalidCommit is returned).
type Verifier struct {
	chainID  string
	provider ValidatorProvider
}

var _ bridge.CommitVerifier = (*Verifier)(nil)

// NewVerifier returns a Verifier for the remote chain with the given id,
// fetching validator sets from the provider.
func NewVerifier(chainID string, provider ValidatorProvider) *Verifier {
	return &Verifier{chainID: chainID, provider: provider}
}

// VerifyCommit implements bridge.CommitVerifier.
func (v *Verifier) VerifyCommit(ctx context.Context, commit *types.Commit, blockID tmbytes.HexBytes, height uint64) error {
	if err := commit.ValidateBasic(); err != nil {
		return ErrInvalidCommit{Reason: err}
	}

	vals, err := v.provider.ValidatorSet(ctx, height)
	if err != nil {
		return ErrNoValidatorSet{Height: height, Reason: err}
	}

	if err := vals.VerifyCommit(v.chainID, blockID, height, commit); err != nil {
		return ErrInvalidCommit{Reason: err}
	}
	return nil
}
