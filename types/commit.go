package types

import (
	"fmt"

	"github.com/oprelay/oprelay/crypto"
	"github.com/oprelay/oprelay/crypto/ed25519"
	tmbytes "github.com/oprelay/oprelay/libs/bytes"
)

// SignatureSize is the only signature size the remote chain produces.
const SignatureSize = ed25519.SignatureSize

// BlockIDFlag indicates which block the commit signature is for.
type BlockIDFlag byte

const (
	// BlockIDFlagAbsent - no vote was received from the validator.
	BlockIDFlagAbsent BlockIDFlag = iota + 1
	// BlockIDFlagCommit - voted for the Commit.BlockID.
	BlockIDFlagCommit
	// BlockIDFlagNil - voted for nil.
	BlockIDFlagNil
)

// CommitSig is a part of the Commit signed by a single validator.
type CommitSig struct {
	BlockIDFlag      BlockIDFlag    `json:"block_id_flag"`
	ValidatorAddress crypto.Address `json:"validator_address"`
	Timestamp        uint64         `json:"timestamp,string"` // unix nanoseconds
	Signature        []byte         `json:"signature"`
}

// NewCommitSigAbsent returns a CommitSig for a validator that did not vote.
func NewCommitSigAbsent() CommitSig {
	return CommitSig{BlockIDFlag: BlockIDFlagAbsent}
}

// Absent returns true if the validator did not vote.
func (cs CommitSig) Absent() bool {
	return cs.BlockIDFlag == BlockIDFlagAbsent
}

// ForBlock returns true if the vote was for the commit's block.
func (cs CommitSig) ForBlock() bool {
	return cs.BlockIDFlag == BlockIDFlagCommit
}

// ValidateBasic performs stateless validation.
func (cs CommitSig) ValidateBasic() error {
	switch cs.BlockIDFlag {
	case BlockIDFlagAbsent, BlockIDFlagCommit, BlockIDFlagNil:
	default:
		return fmt.Errorf("unknown BlockIDFlag: %v", cs.BlockIDFlag)
	}

	if cs.Absent() {
		if len(cs.ValidatorAddress) != 0 {
			return fmt.Errorf("validator address is present")
		}
		if cs.Timestamp != 0 {
			return fmt.Errorf("time is present")
		}
		if len(cs.Signature) != 0 {
			return fmt.Errorf("signature is present")
		}
		return nil
	}

	if len(cs.ValidatorAddress) != crypto.AddressSize {
		return fmt.Errorf("expected ValidatorAddress size to be %d bytes, got %d bytes",
			crypto.AddressSize, len(cs.ValidatorAddress))
	}
	if len(cs.Signature) != SignatureSize {
		return fmt.Errorf("expected signature size to be %d bytes, got %d bytes",
			SignatureSize, len(cs.Signature))
	}
	return nil
}

func (cs CommitSig) String() string {
	return fmt.Sprintf("CommitSig{%X by %X on %v}", tmbytes.Fingerprint(cs.Signature),
		tmbytes.Fingerprint(cs.ValidatorAddress), cs.BlockIDFlag)
}

// ErrSignatureCountMismatch is returned when a commit declares a signature
// count different from the length of its signature list.
type ErrSignatureCountMismatch struct {
	Declared uint32
	Actual   int
}

func (e ErrSignatureCountMismatch) Error() string {
	return fmt.Sprintf("commit declares %d signatures but carries %d", e.Declared, e.Actual)
}

// Commit contains the evidence that a remote block was committed by a set
// of validators. The declared SignatureCount is part of the struct and of
// the wire form; it must always equal len(Signatures).
type Commit struct {
	Height         uint64           `json:"height,string"`
	Round          uint32           `json:"round"`
	BlockID        tmbytes.HexBytes `json:"block_id"`
	SignatureCount uint32           `json:"signature_count"`
	Signatures     []CommitSig      `json:"signatures"`
}

// NewCommit returns a new Commit with the signature count filled in.
func NewCommit(height uint64, round uint32, blockID tmbytes.HexBytes, commitSigs []CommitSig) *Commit {
	return &Commit{
		Height:         height,
		Round:          round,
		BlockID:        blockID,
		SignatureCount: uint32(len(commitSigs)),
		Signatures:     commitSigs,
	}
}

// ValidateBasic performs stateless validation. It does not check the
// cryptographic signatures.
func (commit *Commit) ValidateBasic() error {
	if commit == nil {
		return fmt.Errorf("nil commit")
	}
	if commit.Height == 0 {
		return fmt.Errorf("commit height cannot be zero")
	}
	if len(commit.BlockID) != crypto.HashSize {
		return fmt.Errorf("wrong block_id: expected size to be %d bytes, got %d bytes",
			crypto.HashSize, len(commit.BlockID))
	}
	if int(commit.SignatureCount) != len(commit.Signatures) {
		return ErrSignatureCountMismatch{Declared: commit.SignatureCount, Actual: len(commit.Signatures)}
	}
	if len(commit.Signatures) == 0 {
		return fmt.Errorf("no signatures in commit")
	}
	for i, commitSig := range commit.Signatures {
		if err := commitSig.ValidateBasic(); err != nil {
			return fmt.Errorf("wrong CommitSig #%d: %w", i, err)
		}
	}
	return nil
}

// Hash returns the sha256 of the canonical commit encoding, or nil if the
// commit is invalid. Submissions record this hash as their LastCommitHash;
// fraud evidence must reproduce it byte for byte.
func (commit *Commit) Hash() tmbytes.HexBytes {
	bz, err := EncodeCommit(commit)
	if err != nil {
		return nil
	}
	return crypto.Checksum(bz)
}

// VoteSignBytes returns the canonical bytes the validator at valIdx signed:
// the chain id (length-prefixed), the commit height and round, the voted
// block id (zeros for a nil vote) and the vote timestamp. Returns nil for
// an absent vote.
func (commit *Commit) VoteSignBytes(chainID string, valIdx int32) []byte {
	cs := commit.Signatures[valIdx]

	var blockID tmbytes.HexBytes
	switch cs.BlockIDFlag {
	case BlockIDFlagCommit:
		blockID = commit.BlockID
	case BlockIDFlagNil:
		blockID = make([]byte, crypto.HashSize)
	default:
		return nil
	}

	bz := make([]byte, 0, 4+len(chainID)+8+4+crypto.HashSize+8)
	bz = appendUint32(bz, uint32(len(chainID)))
	bz = append(bz, chainID...)
	bz = appendUint64(bz, commit.Height)
	bz = appendUint32(bz, commit.Round)
	bz = append(bz, blockID...)
	bz = appendUint64(bz, cs.Timestamp)
	return bz
}

// Size returns the number of signatures in the commit.
func (commit *Commit) Size() int {
	if commit == nil {
		return 0
	}
	return len(commit.Signatures)
}

func (commit *Commit) String() string {
	if commit == nil {
		return "nil-Commit"
	}
	return fmt.Sprintf("Commit{%d/%d %X sigs=%d}", commit.Height, commit.Round,
		tmbytes.Fingerprint(commit.BlockID), len(commit.Signatures))
}
