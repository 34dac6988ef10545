package types

import (
	"fmt"

	"github.com/oprelay/oprelay/crypto"
	tmbytes "github.com/oprelay/oprelay/libs/bytes"
)

// Header is the fixed view of a remote block header that the bridge tracks.
// Field order is load-bearing: the canonical encoding concatenates the
// fields in declaration order.
type Header struct {
	Height uint64 `json:"height,string"`
	Time   uint64 `json:"time,string"` // unix nanoseconds

	// hashes of the parent block
	LastHeaderHash tmbytes.HexBytes `json:"last_header_hash"`
	LastCommitHash tmbytes.HexBytes `json:"last_commit_hash"`

	// hashes of this block's contents
	ConsensusHash tmbytes.HexBytes `json:"consensus_hash"`
	AppHash       tmbytes.HexBytes `json:"app_hash"`
	DataHash      tmbytes.HexBytes `json:"data_hash"`

	ProposerAddress crypto.Address `json:"proposer_address"`
}

// ValidateBasic performs stateless validation of the header shape.
func (h *Header) ValidateBasic() error {
	if h == nil {
		return fmt.Errorf("nil header")
	}
	if h.Height == 0 {
		return fmt.Errorf("header height cannot be zero")
	}
	for _, check := range []struct {
		name string
		h    tmbytes.HexBytes
	}{
		{"last_header_hash", h.LastHeaderHash},
		{"last_commit_hash", h.LastCommitHash},
		{"consensus_hash", h.ConsensusHash},
		{"app_hash", h.AppHash},
		{"data_hash", h.DataHash},
	} {
		if len(check.h) != crypto.HashSize {
			return fmt.Errorf("wrong %s: expected size to be %d bytes, got %d bytes",
				check.name, crypto.HashSize, len(check.h))
		}
	}
	if len(h.ProposerAddress) != crypto.AddressSize {
		return fmt.Errorf("wrong proposer_address: expected size to be %d bytes, got %d bytes",
			crypto.AddressSize, len(h.ProposerAddress))
	}
	return nil
}

// Hash returns the sha256 of the canonical header encoding. This is the
// header's identity everywhere in the system: store key, child linkage,
// event key. Returns nil for an invalid header.
func (h *Header) Hash() tmbytes.HexBytes {
	bz, err := EncodeHeader(h)
	if err != nil {
		return nil
	}
	return crypto.Checksum(bz)
}

func (h *Header) String() string {
	if h == nil {
		return "nil-Header"
	}
	return fmt.Sprintf("Header{%d %X parent=%X}", h.Height, h.Hash(), h.LastHeaderHash)
}
