package types

import (
	"fmt"
	"time"

	"github.com/oprelay/oprelay/crypto"
	"github.com/oprelay/oprelay/crypto/ed25519"
	tmbytes "github.com/oprelay/oprelay/libs/bytes"
)

// RandValidatorSet returns a validator set of numValidators random ed25519
// validators, all with the given voting power, together with their private
// keys aligned to the set's canonical order.
func RandValidatorSet(numValidators int, votingPower int64) (*ValidatorSet, []crypto.PrivKey) {
	keyByAddress := make(map[string]crypto.PrivKey, numValidators)
	vals := make([]*Validator, numValidators)
	for i := 0; i < numValidators; i++ {
		key := ed25519.GenPrivKey()
		val := NewValidator(key.PubKey(), votingPower)
		keyByAddress[val.Address.String()] = key
		vals[i] = val
	}
	vset := NewValidatorSet(vals)

	// NewValidatorSet sorts, so realign the keys with the set order.
	keys := make([]crypto.PrivKey, numValidators)
	for i, val := range vset.Validators {
		keys[i] = keyByAddress[val.Address.String()]
	}
	return vset, keys
}

// MakeCommit returns a commit for blockID at the given height, carrying one
// signature per validator in vset. keys must be aligned with vset.Validators;
// every validator votes for the block.
func MakeCommit(
	chainID string,
	blockID tmbytes.HexBytes,
	height uint64,
	round uint32,
	vset *ValidatorSet,
	keys []crypto.PrivKey,
	ts uint64,
) (*Commit, error) {
	if len(keys) != vset.Size() {
		return nil, fmt.Errorf("%d keys for %d validators", len(keys), vset.Size())
	}

	sigs := make([]CommitSig, vset.Size())
	for i := range sigs {
		sigs[i] = CommitSig{
			BlockIDFlag:      BlockIDFlagCommit,
			ValidatorAddress: vset.Validators[i].Address,
			Timestamp:        ts + uint64(i),
		}
	}
	commit := NewCommit(height, round, blockID, sigs)

	// Sign after the timestamps are fixed; they are part of the sign bytes.
	for i := range commit.Signatures {
		sig, err := keys[i].Sign(commit.VoteSignBytes(chainID, int32(i)))
		if err != nil {
			return nil, err
		}
		commit.Signatures[i].Signature = sig
	}
	return commit, nil
}

// MakeHeader returns a header at the given height with the remaining hash
// fields derived deterministically, so tests get distinct but reproducible
// headers per height.
func MakeHeader(height uint64, lastHeaderHash, lastCommitHash tmbytes.HexBytes, proposer crypto.Address) *Header {
	return &Header{
		Height:          height,
		Time:            height * uint64(time.Second),
		LastHeaderHash:  lastHeaderHash,
		LastCommitHash:  lastCommitHash,
		ConsensusHash:   crypto.Checksum([]byte("consensus_params")),
		AppHash:         crypto.Checksum(appendUint64([]byte("app"), height)),
		DataHash:        crypto.Checksum(appendUint64([]byte("data"), height)),
		ProposerAddress: proposer,
	}
}

// MakeLightBlock assembles a fully signed light block at height >= 2 whose
// commit proves parentHash at height-1. The proposer rotates through vset.
func MakeLightBlock(
	chainID string,
	height uint64,
	parentHash tmbytes.HexBytes,
	vset *ValidatorSet,
	keys []crypto.PrivKey,
) (*LightBlock, error) {
	commit, err := MakeCommit(chainID, parentHash, height-1, 0, vset, keys, height*uint64(time.Second))
	if err != nil {
		return nil, err
	}
	proposer := vset.Validators[int(height)%vset.Size()].Address
	return &LightBlock{
		Header:     MakeHeader(height, parentHash, commit.Hash(), proposer),
		LastCommit: commit,
	}, nil
}
