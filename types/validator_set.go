package types

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/oprelay/oprelay/crypto/batch"
	"github.com/oprelay/oprelay/crypto/merkle"
	tmbytes "github.com/oprelay/oprelay/libs/bytes"
)

// MaxTotalVotingPower - the maximum allowed total voting power. It needs to
// be sufficiently small to avoid overflow in the 2/3 threshold arithmetic.
const MaxTotalVotingPower = int64(math.MaxInt64) / 8

// ValidatorSet represents the set of remote validators at a given height.
//
// The validators are sorted by voting power (descending), secondary index
// the address (ascending), and the commit signatures have a 1-to-1
// correspondence with this order.
//
// NOTE: Not goroutine-safe.
// NOTE: All get/set to validators should copy the value for safety.
type ValidatorSet struct {
	Validators []*Validator `json:"validators"`

	// cached (unexported)
	totalVotingPower int64
}

// NewValidatorSet initializes a ValidatorSet by copying over the values
// from valz, a list of Validators.
//
// The addresses of validators in valz must be unique, their powers
// nonnegative, and the total power within MaxTotalVotingPower, otherwise
// the function panics.
func NewValidatorSet(valz []*Validator) *ValidatorSet {
	vals := &ValidatorSet{}
	if err := vals.setValidators(valz); err != nil {
		panic(fmt.Sprintf("Cannot create validator set: %v", err))
	}
	return vals
}

func (vals *ValidatorSet) setValidators(valz []*Validator) error {
	validators := make([]*Validator, len(valz))
	seen := make(map[string]struct{}, len(valz))
	for i, val := range valz {
		if err := val.ValidateBasic(); err != nil {
			return fmt.Errorf("invalid validator #%d: %w", i, err)
		}
		if _, ok := seen[string(val.Address)]; ok {
			return fmt.Errorf("duplicate validator address %X", val.Address)
		}
		seen[string(val.Address)] = struct{}{}
		validators[i] = val.Copy()
	}
	sort.Sort(ValidatorsByVotingPower(validators))

	vals.Validators = validators
	vals.totalVotingPower = 0
	vals.updateTotalVotingPower()
	return nil
}

// ValidateBasic performs basic validation.
func (vals *ValidatorSet) ValidateBasic() error {
	if vals.IsNilOrEmpty() {
		return errors.New("validator set is nil or empty")
	}
	for idx, val := range vals.Validators {
		if err := val.ValidateBasic(); err != nil {
			return fmt.Errorf("invalid validator #%d: %w", idx, err)
		}
	}
	return nil
}

// IsNilOrEmpty returns true if validator set is nil or empty.
func (vals *ValidatorSet) IsNilOrEmpty() bool {
	return vals == nil || len(vals.Validators) == 0
}

// Copy each validator into the validator set.
func (vals *ValidatorSet) Copy() *ValidatorSet {
	if vals == nil {
		return nil
	}
	validators := make([]*Validator, len(vals.Validators))
	for i, val := range vals.Validators {
		validators[i] = val.Copy()
	}
	return &ValidatorSet{
		Validators:       validators,
		totalVotingPower: vals.totalVotingPower,
	}
}

// HasAddress returns true if address is in the validator set.
func (vals *ValidatorSet) HasAddress(address []byte) bool {
	for _, val := range vals.Validators {
		if bytes.Equal(val.Address, address) {
			return true
		}
	}
	return false
}

// GetByAddress returns an index of the validator with address and validator
// itself (copy) if found. Otherwise, -1 and nil are returned.
func (vals *ValidatorSet) GetByAddress(address []byte) (index int32, val *Validator) {
	for idx, v := range vals.Validators {
		if bytes.Equal(v.Address, address) {
			return int32(idx), v.Copy()
		}
	}
	return -1, nil
}

// Size returns the length of the validator set.
func (vals *ValidatorSet) Size() int {
	return len(vals.Validators)
}

// Forces recalculation of the set's total voting power.
// Panics if the total voting power is bigger than MaxTotalVotingPower.
func (vals *ValidatorSet) updateTotalVotingPower() {
	sum := int64(0)
	for _, val := range vals.Validators {
		sum += val.VotingPower
		if sum < 0 || sum > MaxTotalVotingPower {
			panic(fmt.Sprintf(
				"Total voting power should be guarded to not exceed %v; got: %v",
				MaxTotalVotingPower, sum))
		}
	}
	vals.totalVotingPower = sum
}

// TotalVotingPower returns the sum of the voting powers of all validators.
// It recomputes the total voting power if required.
func (vals *ValidatorSet) TotalVotingPower() int64 {
	if vals.totalVotingPower == 0 {
		vals.updateTotalVotingPower()
	}
	return vals.totalVotingPower
}

// Hash returns the Merkle root hash built using validators (as leaves) in
// the set.
func (vals *ValidatorSet) Hash() tmbytes.HexBytes {
	bzs := make([][]byte, len(vals.Validators))
	for i, val := range vals.Validators {
		bzs[i] = val.Bytes()
	}
	return merkle.HashFromByteSlices(bzs)
}

// VerifyCommit verifies that more than 2/3 of the set's voting power signed
// the given commit for blockID at the given height.
//
// It checks all the signatures, not just enough to cross the threshold: a
// commit carrying even one forged signature is not a valid remote commit,
// whatever its tally.
func (vals *ValidatorSet) VerifyCommit(chainID string, blockID tmbytes.HexBytes,
	height uint64, commit *Commit) error {
	if vals.IsNilOrEmpty() {
		return errors.New("nil or empty validator set")
	}
	if commit == nil {
		return errors.New("nil commit")
	}

	if vals.Size() != len(commit.Signatures) {
		return NewErrInvalidCommitSignatures(vals.Size(), len(commit.Signatures))
	}

	// Validate Height and BlockID.
	if height != commit.Height {
		return NewErrInvalidCommitHeight(height, commit.Height)
	}
	if !bytes.Equal(blockID, commit.BlockID) {
		return fmt.Errorf("invalid commit -- wrong block ID: want %X, got %X",
			blockID, commit.BlockID)
	}

	// The vals and commit have a 1-to-1 correspondence; every non-absent
	// signature must carry the matching validator's address.
	for idx, commitSig := range commit.Signatures {
		if commitSig.Absent() {
			continue
		}
		if !bytes.Equal(commitSig.ValidatorAddress, vals.Validators[idx].Address) {
			return fmt.Errorf("wrong validator address (#%d): want %X, got %X",
				idx, vals.Validators[idx].Address, commitSig.ValidatorAddress)
		}
	}

	votingPowerNeeded := vals.TotalVotingPower() * 2 / 3
	var (
		talliedVotingPower int64 = 0
		cacheSignBytes           = make(map[string][]byte, len(commit.Signatures))
	)

	bv, ok := batch.CreateBatchVerifier(vals.Validators[0].PubKey)
	if ok && len(commit.Signatures) > 1 {
		for idx, commitSig := range commit.Signatures {
			if commitSig.Absent() {
				continue // OK, some signatures can be absent.
			}

			val := vals.Validators[idx]

			// cache the signBytes in case batch verification fails
			voteSignBytes := commit.VoteSignBytes(chainID, int32(idx))
			cacheSignBytes[string(val.PubKey.Bytes())] = voteSignBytes

			// add the key, sig and message to the verifier
			if err := bv.Add(val.PubKey, voteSignBytes, commitSig.Signature); err != nil {
				return err
			}

			if commitSig.ForBlock() {
				talliedVotingPower += val.VotingPower
			}
		}

		// ensure that we have batched together enough signatures to exceed
		// the voting power needed before doing the expensive part
		if got, needed := talliedVotingPower, votingPowerNeeded; got <= needed {
			return ErrNotEnoughVotingPowerSigned{Got: got, Needed: needed}
		}

		// attempt to verify the batch. If this fails, fall back to single
		// verification to identify the invalid signature
		if ok, _ := bv.Verify(); ok {
			return nil
		}
	}

	return verifyCommitSingle(chainID, vals, commit, votingPowerNeeded, cacheSignBytes)
}

// verifyCommitSingle verifies each signature in turn. It is used when a key
// type does not support batch verification, or when batch verification
// fails and the offending signature must be identified.
func verifyCommitSingle(chainID string, vals *ValidatorSet, commit *Commit,
	votingPowerNeeded int64, cachedVals map[string][]byte) error {
	var talliedVotingPower int64 = 0
	for idx, commitSig := range commit.Signatures {
		if commitSig.Absent() {
			continue // OK, some signatures can be absent.
		}

		var voteSignBytes []byte
		val := vals.Validators[idx]

		// Check if we have the sign bytes in the cache
		if cached, ok := cachedVals[string(val.PubKey.Bytes())]; !ok {
			voteSignBytes = commit.VoteSignBytes(chainID, int32(idx))
		} else {
			voteSignBytes = cached
		}

		if !val.PubKey.VerifySignature(voteSignBytes, commitSig.Signature) {
			return fmt.Errorf("wrong signature (#%d): %X", idx, commitSig.Signature)
		}

		if commitSig.ForBlock() {
			talliedVotingPower += val.VotingPower
		}
	}

	if got, needed := talliedVotingPower, votingPowerNeeded; got <= needed {
		return ErrNotEnoughVotingPowerSigned{Got: got, Needed: needed}
	}

	return nil
}

//-----------------

// IsErrNotEnoughVotingPowerSigned returns true if err is
// ErrNotEnoughVotingPowerSigned.
func IsErrNotEnoughVotingPowerSigned(err error) bool {
	return errors.As(err, &ErrNotEnoughVotingPowerSigned{})
}

// ErrNotEnoughVotingPowerSigned is returned when not enough validators
// signed a commit.
type ErrNotEnoughVotingPowerSigned struct {
	Got    int64
	Needed int64
}

func (e ErrNotEnoughVotingPowerSigned) Error() string {
	return fmt.Sprintf("invalid commit -- insufficient voting power: got %d, needed more than %d", e.Got, e.Needed)
}

// NewErrInvalidCommitHeight returns an error about a commit with an
// unexpected height.
func NewErrInvalidCommitHeight(expected, actual uint64) ErrInvalidCommitHeight {
	return ErrInvalidCommitHeight{Expected: expected, Actual: actual}
}

// ErrInvalidCommitHeight is returned when we encounter a commit with an
// unexpected height.
type ErrInvalidCommitHeight struct {
	Expected uint64
	Actual   uint64
}

func (e ErrInvalidCommitHeight) Error() string {
	return fmt.Sprintf("invalid commit -- wrong height: %d vs %d", e.Expected, e.Actual)
}

// NewErrInvalidCommitSignatures returns an error about a commit with the
// wrong number of signatures.
func NewErrInvalidCommitSignatures(expected, actual int) ErrInvalidCommitSignatures {
	return ErrInvalidCommitSignatures{Expected: expected, Actual: actual}
}

// ErrInvalidCommitSignatures is returned when we encounter a commit where
// the number of signatures doesn't match the number of validators.
type ErrInvalidCommitSignatures struct {
	Expected int
	Actual   int
}

func (e ErrInvalidCommitSignatures) Error() string {
	return fmt.Sprintf("invalid commit -- wrong set size: %d vs %d", e.Expected, e.Actual)
}

//----------------

// String returns a string representation of ValidatorSet.
//
// See StringIndented.
func (vals *ValidatorSet) String() string {
	return vals.StringIndented("")
}

// StringIndented returns an indented String.
//
// See Validator#String.
func (vals *ValidatorSet) StringIndented(indent string) string {
	if vals == nil {
		return "nil-ValidatorSet"
	}
	valStrings := make([]string, 0, len(vals.Validators))
	for _, val := range vals.Validators {
		valStrings = append(valStrings, val.String())
	}
	return fmt.Sprintf(`ValidatorSet{
%s  Validators:
%s    %v
%s}`,
		indent, indent, strings.Join(valStrings, "\n"+indent+"    "), indent)
}
