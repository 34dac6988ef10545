package bridge

import (
	"context"

	tmbytes "github.com/oprelay/oprelay/libs/bytes"
	"github.com/oprelay/oprelay/types"
)

// CommitVerifier checks remote commits against the remote validator set.
//
// VerifyCommit returns nil iff commit is a valid commit for blockID at the
// given remote height: more than 2/3 of the set's voting power signed commit
// votes for blockID. Any error means the commit does not prove the block.
//
// Implementations must be total (return an error rather than panic, whatever
// the input) and must not read or write bridge state.
type CommitVerifier interface {
	VerifyCommit(ctx context.Context, commit *types.Commit, blockID tmbytes.HexBytes, height uint64) error
}

// CommitVerifierFunc adapts a plain function to the CommitVerifier interface.
type CommitVerifierFunc func(ctx context.Context, commit *types.Commit, blockID tmbytes.HexBytes, height uint64) error

// VerifyCommit implements CommitVerifier by calling f.
func (f CommitVerifierFunc) VerifyCommit(ctx context.Context, commit *types.Commit, blockID tmbytes.HexBytes, height uint64) error {
	return f(ctx, commit, blockID, height)
}
