package types

import (
	"fmt"

	"github.com/oprelay/oprelay/crypto"
	tmbytes "github.com/oprelay/oprelay/libs/bytes"
)

// Submission is the host-side record kept per accepted header. It is keyed
// in the store by the header hash; the record itself never stores that
// hash. Finalized submissions are reduced to a residue via Clear.
type Submission struct {
	Height         uint64           `json:"height,string"`
	ParentHash     tmbytes.HexBytes `json:"parent_hash"`
	Submitter      crypto.Address   `json:"submitter"`
	SubmittedAt    uint64           `json:"submitted_at,string"` // host height at submission
	LastCommitHash tmbytes.HexBytes `json:"last_commit_hash"`
	Finalized      bool             `json:"finalized"`
}

// ValidateBasic performs stateless validation of the record shape.
func (s *Submission) ValidateBasic() error {
	if s == nil {
		return fmt.Errorf("nil submission")
	}
	if s.Height == 0 {
		return fmt.Errorf("submission height cannot be zero")
	}
	if len(s.ParentHash) != crypto.HashSize {
		return fmt.Errorf("wrong parent_hash: expected size to be %d bytes, got %d bytes",
			crypto.HashSize, len(s.ParentHash))
	}
	if len(s.Submitter) != crypto.AddressSize {
		return fmt.Errorf("wrong submitter: expected size to be %d bytes, got %d bytes",
			crypto.AddressSize, len(s.Submitter))
	}
	if len(s.LastCommitHash) != crypto.HashSize {
		return fmt.Errorf("wrong last_commit_hash: expected size to be %d bytes, got %d bytes",
			crypto.HashSize, len(s.LastCommitHash))
	}
	return nil
}

// Commitment returns the sha256 of the canonical submission encoding, or
// nil if the record is malformed. Callers pass copies of records across the
// API boundary; the commitment is how the state machine checks a copy still
// matches what it has.
func (s *Submission) Commitment() tmbytes.HexBytes {
	bz, err := EncodeSubmission(s)
	if err != nil {
		return nil
	}
	return crypto.Checksum(bz)
}

// Clear returns the finalized residue of the submission: the height is
// retained (descendants need it for parent checks forever), every other
// field is zeroed at its fixed width, and Finalized is set. The residue has
// a commitment of its own, distinct from the live record's.
func (s *Submission) Clear() *Submission {
	return &Submission{
		Height:         s.Height,
		ParentHash:     make([]byte, crypto.HashSize),
		Submitter:      make([]byte, crypto.AddressSize),
		SubmittedAt:    0,
		LastCommitHash: make([]byte, crypto.HashSize),
		Finalized:      true,
	}
}

// Copy returns a deep copy of the submission.
func (s *Submission) Copy() *Submission {
	if s == nil {
		return nil
	}
	return &Submission{
		Height:         s.Height,
		ParentHash:     s.ParentHash.Copy(),
		Submitter:      append(crypto.Address(nil), s.Submitter...),
		SubmittedAt:    s.SubmittedAt,
		LastCommitHash: s.LastCommitHash.Copy(),
		Finalized:      s.Finalized,
	}
}

func (s *Submission) String() string {
	if s == nil {
		return "nil-Submission"
	}
	if s.Finalized {
		return fmt.Sprintf("Submission{%d finalized}", s.Height)
	}
	return fmt.Sprintf("Submission{%d parent=%X by %X at host %d}",
		s.Height, tmbytes.Fingerprint(s.ParentHash), tmbytes.Fingerprint(s.Submitter), s.SubmittedAt)
}
