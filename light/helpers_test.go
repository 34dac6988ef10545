package light_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oprelay/oprelay/crypto"
	"github.com/oprelay/oprelay/crypto/ed25519"
	tmbytes "github.com/oprelay/oprelay/libs/bytes"
	"github.com/oprelay/oprelay/types"
)

// privKeys is a helper type for testing.
//
// It lets us simulate signing with many keys: create a set, turn it into
// validators with ToValidators, and sign commits with any subset.
type privKeys []crypto.PrivKey

// genPrivKeys produces an array of private keys to generate commits.
func genPrivKeys(n int) privKeys {
	res := make(privKeys, n)
	for i := range res {
		res[i] = ed25519.GenPrivKey()
	}
	return res
}

// ToValidators produces a valset from the set of keys.
// The first key has weight `init` and it increases by `inc` every step
// so we can have all the same weight, or a simple linear distribution
// (should be enough for testing).
func (pkz privKeys) ToValidators(init, inc int64) *types.ValidatorSet {
	res := make([]*types.Validator, len(pkz))
	for i, k := range pkz {
		res[i] = types.NewValidator(k.PubKey(), init+int64(i)*inc)
	}
	return types.NewValidatorSet(res)
}

// signCommit returns a commit for blockID at the given height, signed by
// the keys from first to last exclusive. The other validators are marked
// absent. The set's canonical order decides each signature's slot, so the
// keys need not be aligned with it.
func (pkz privKeys) signCommit(t testing.TB, chainID string, vset *types.ValidatorSet,
	blockID tmbytes.HexBytes, height uint64, first, last int) *types.Commit {
	t.Helper()

	sigs := make([]types.CommitSig, vset.Size())
	for i := range sigs {
		sigs[i] = types.NewCommitSigAbsent()
	}
	commit := types.NewCommit(height, 1, blockID, sigs)

	// Fill in the votes we want before signing anything; the sign bytes
	// cover the vote timestamps.
	for i := first; i < last && i < len(pkz); i++ {
		addr := pkz[i].PubKey().Address()
		idx, val := vset.GetByAddress(addr)
		require.NotNil(t, val, "key %d is not in the validator set", i)
		commit.Signatures[idx] = types.CommitSig{
			BlockIDFlag:      types.BlockIDFlagCommit,
			ValidatorAddress: addr,
			Timestamp:        height,
		}
	}
	for i := first; i < last && i < len(pkz); i++ {
		idx, _ := vset.GetByAddress(pkz[i].PubKey().Address())
		sig, err := pkz[i].Sign(commit.VoteSignBytes(chainID, idx))
		require.NoError(t, err)
		commit.Signatures[idx].Signature = sig
	}
	return commit
}
