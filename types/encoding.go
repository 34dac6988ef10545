package types

import (
	"encoding/binary"
	"fmt"

	"github.com/oprelay/oprelay/crypto"
)

// Canonical binary encoding for the remote-chain and submission types.
//
// The encoding is deterministic and injective: fixed-width big-endian
// integers and fixed-width hashes/addresses are concatenated in struct
// declaration order, and the only variable-length fields (the signature
// list and the signatures themselves) carry explicit counts and length
// prefixes. Two distinct values can therefore never share an encoding,
// and no encoding is a prefix of another's field region. Every hash and
// commitment in the system is a sha256 over these bytes.

const (
	headerSize     = 8 + 8 + 5*crypto.HashSize + crypto.AddressSize
	commitCoreSize = 8 + 4 + crypto.HashSize + 4
	commitSigCore  = 1 + crypto.AddressSize + 8 + 4
	submissionSize = 8 + crypto.HashSize + crypto.AddressSize + 8 + crypto.HashSize + 1
)

// EncodeHeader returns the canonical encoding of h.
// The header must pass ValidateBasic.
func EncodeHeader(h *Header) ([]byte, error) {
	if h == nil {
		return nil, fmt.Errorf("encode header: nil header")
	}
	if err := h.ValidateBasic(); err != nil {
		return nil, fmt.Errorf("encode header: %w", err)
	}

	bz := make([]byte, 0, headerSize)
	bz = appendUint64(bz, h.Height)
	bz = appendUint64(bz, h.Time)
	bz = append(bz, h.LastHeaderHash...)
	bz = append(bz, h.LastCommitHash...)
	bz = append(bz, h.ConsensusHash...)
	bz = append(bz, h.AppHash...)
	bz = append(bz, h.DataHash...)
	bz = append(bz, h.ProposerAddress...)
	return bz, nil
}

// DecodeHeader parses a canonical header encoding. Trailing bytes are
// rejected.
func DecodeHeader(bz []byte) (*Header, error) {
	if len(bz) != headerSize {
		return nil, fmt.Errorf("decode header: wrong size: want %d, got %d", headerSize, len(bz))
	}

	h := &Header{
		Height:          binary.BigEndian.Uint64(bz[0:8]),
		Time:            binary.BigEndian.Uint64(bz[8:16]),
		LastHeaderHash:  copyBytes(bz[16:48]),
		LastCommitHash:  copyBytes(bz[48:80]),
		ConsensusHash:   copyBytes(bz[80:112]),
		AppHash:         copyBytes(bz[112:144]),
		DataHash:        copyBytes(bz[144:176]),
		ProposerAddress: copyBytes(bz[176:196]),
	}
	if err := h.ValidateBasic(); err != nil {
		return nil, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}

// EncodeCommit returns the canonical encoding of c. The declared
// SignatureCount must match the signature list; mismatches fail with
// ErrSignatureCountMismatch (via ValidateBasic).
func EncodeCommit(c *Commit) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("encode commit: nil commit")
	}
	if err := c.ValidateBasic(); err != nil {
		return nil, fmt.Errorf("encode commit: %w", err)
	}

	size := commitCoreSize
	for _, cs := range c.Signatures {
		size += commitSigCore + len(cs.Signature)
	}

	bz := make([]byte, 0, size)
	bz = appendUint64(bz, c.Height)
	bz = appendUint32(bz, c.Round)
	bz = append(bz, c.BlockID...)
	bz = appendUint32(bz, c.SignatureCount)
	for _, cs := range c.Signatures {
		bz = append(bz, byte(cs.BlockIDFlag))
		if cs.Absent() {
			// absent votes carry no address; the wire form keeps the
			// fixed width with zeros
			bz = append(bz, make([]byte, crypto.AddressSize)...)
		} else {
			bz = append(bz, cs.ValidatorAddress...)
		}
		bz = appendUint64(bz, cs.Timestamp)
		bz = appendUint32(bz, uint32(len(cs.Signature)))
		bz = append(bz, cs.Signature...)
	}
	return bz, nil
}

// DecodeCommit parses a canonical commit encoding. The embedded signature
// count determines the list length; trailing bytes are rejected.
func DecodeCommit(bz []byte) (*Commit, error) {
	if len(bz) < commitCoreSize {
		return nil, fmt.Errorf("decode commit: truncated: %d bytes", len(bz))
	}

	c := &Commit{
		Height:  binary.BigEndian.Uint64(bz[0:8]),
		Round:   binary.BigEndian.Uint32(bz[8:12]),
		BlockID: copyBytes(bz[12:44]),
	}
	c.SignatureCount = binary.BigEndian.Uint32(bz[44:48])
	if int64(c.SignatureCount) > int64(len(bz)-commitCoreSize)/commitSigCore {
		return nil, fmt.Errorf("decode commit: declared %d signatures in %d bytes", c.SignatureCount, len(bz))
	}

	off := commitCoreSize
	c.Signatures = make([]CommitSig, 0, c.SignatureCount)
	for i := uint32(0); i < c.SignatureCount; i++ {
		if len(bz)-off < commitSigCore {
			return nil, fmt.Errorf("decode commit: signature %d truncated", i)
		}
		cs := CommitSig{BlockIDFlag: BlockIDFlag(bz[off])}
		off++
		addr := copyBytes(bz[off : off+crypto.AddressSize])
		off += crypto.AddressSize
		cs.Timestamp = binary.BigEndian.Uint64(bz[off : off+8])
		off += 8
		sigLen := binary.BigEndian.Uint32(bz[off : off+4])
		off += 4
		if uint32(len(bz)-off) < sigLen {
			return nil, fmt.Errorf("decode commit: signature %d truncated", i)
		}
		if sigLen > 0 {
			cs.Signature = copyBytes(bz[off : off+int(sigLen)])
			off += int(sigLen)
		}
		if cs.Absent() {
			// the zero padding is the only canonical absent-vote address
			for _, b := range addr {
				if b != 0 {
					return nil, fmt.Errorf("decode commit: absent signature %d has an address", i)
				}
			}
		} else {
			cs.ValidatorAddress = addr
		}
		c.Signatures = append(c.Signatures, cs)
	}
	if off != len(bz) {
		return nil, fmt.Errorf("decode commit: %d trailing bytes", len(bz)-off)
	}
	if err := c.ValidateBasic(); err != nil {
		return nil, fmt.Errorf("decode commit: %w", err)
	}
	return c, nil
}

// EncodeLightBlock returns the canonical encoding of lb: the header
// encoding followed by the last-commit encoding.
func EncodeLightBlock(lb *LightBlock) ([]byte, error) {
	if lb == nil {
		return nil, fmt.Errorf("encode light block: nil light block")
	}
	if err := lb.ValidateBasic(); err != nil {
		return nil, fmt.Errorf("encode light block: %w", err)
	}

	hbz, err := EncodeHeader(lb.Header)
	if err != nil {
		return nil, err
	}
	cbz, err := EncodeCommit(lb.LastCommit)
	if err != nil {
		return nil, err
	}
	return append(hbz, cbz...), nil
}

// DecodeLightBlock parses a canonical light-block encoding.
func DecodeLightBlock(bz []byte) (*LightBlock, error) {
	if len(bz) < headerSize {
		return nil, fmt.Errorf("decode light block: truncated: %d bytes", len(bz))
	}
	h, err := DecodeHeader(bz[:headerSize])
	if err != nil {
		return nil, err
	}
	c, err := DecodeCommit(bz[headerSize:])
	if err != nil {
		return nil, err
	}
	lb := &LightBlock{Header: h, LastCommit: c}
	if err := lb.ValidateBasic(); err != nil {
		return nil, fmt.Errorf("decode light block: %w", err)
	}
	return lb, nil
}

// EncodeSubmission returns the canonical encoding of s. Cleared residues
// encode with zero-valued fixed-width fields, so the encoding of every
// submission, live or finalized, is exactly submissionSize bytes.
func EncodeSubmission(s *Submission) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("encode submission: nil submission")
	}
	if err := s.ValidateBasic(); err != nil {
		return nil, fmt.Errorf("encode submission: %w", err)
	}

	bz := make([]byte, 0, submissionSize)
	bz = appendUint64(bz, s.Height)
	bz = append(bz, s.ParentHash...)
	bz = append(bz, s.Submitter...)
	bz = appendUint64(bz, s.SubmittedAt)
	bz = append(bz, s.LastCommitHash...)
	if s.Finalized {
		bz = append(bz, 1)
	} else {
		bz = append(bz, 0)
	}
	return bz, nil
}

// DecodeSubmission parses a canonical submission encoding.
func DecodeSubmission(bz []byte) (*Submission, error) {
	if len(bz) != submissionSize {
		return nil, fmt.Errorf("decode submission: wrong size: want %d, got %d", submissionSize, len(bz))
	}

	s := &Submission{
		Height:         binary.BigEndian.Uint64(bz[0:8]),
		ParentHash:     copyBytes(bz[8:40]),
		Submitter:      copyBytes(bz[40:60]),
		SubmittedAt:    binary.BigEndian.Uint64(bz[60:68]),
		LastCommitHash: copyBytes(bz[68:100]),
	}
	switch bz[100] {
	case 0:
	case 1:
		s.Finalized = true
	default:
		return nil, fmt.Errorf("decode submission: bad finalized byte %#x", bz[100])
	}
	if err := s.ValidateBasic(); err != nil {
		return nil, fmt.Errorf("decode submission: %w", err)
	}
	return s, nil
}

func appendUint64(bz []byte, v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return append(bz, buf[:]...)
}

func appendUint32(bz []byte, v uint32) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	return append(bz, buf[:]...)
}

func copyBytes(bz []byte) []byte {
	c := make([]byte, len(bz))
	copy(c, bz)
	return c
}
