package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oprelay/oprelay/crypto"
	tmbytes "github.com/oprelay/oprelay/libs/bytes"
)

func testHash(s string) tmbytes.HexBytes {
	return crypto.Checksum([]byte(s))
}

func testAddr(s string) crypto.Address {
	return crypto.AddressHash([]byte(s))
}

func TestEncodeDecodeHeader(t *testing.T) {
	h := MakeHeader(7, testHash("parent"), testHash("last_commit"), testAddr("proposer"))

	bz, err := EncodeHeader(h)
	require.NoError(t, err)
	require.Len(t, bz, headerSize)

	h2, err := DecodeHeader(bz)
	require.NoError(t, err)
	require.Equal(t, h, h2)

	// trailing and missing bytes are both rejected
	_, err = DecodeHeader(append(bz, 0))
	require.Error(t, err)
	_, err = DecodeHeader(bz[:len(bz)-1])
	require.Error(t, err)

	// the decoder validates what it parsed
	bad := make([]byte, headerSize)
	copy(bad, bz)
	for i := 0; i < 8; i++ {
		bad[i] = 0 // zero height
	}
	_, err = DecodeHeader(bad)
	require.Error(t, err)

	_, err = EncodeHeader(nil)
	require.Error(t, err)
	_, err = EncodeHeader(&Header{Height: 1})
	require.Error(t, err)
}

func TestEncodeDecodeCommit(t *testing.T) {
	vset, keys := RandValidatorSet(4, 10)
	commit, err := MakeCommit("test-chain", testHash("block"), 9, 1, vset, keys, 1000)
	require.NoError(t, err)

	// one validator did not vote
	commit.Signatures[2] = NewCommitSigAbsent()

	bz, err := EncodeCommit(commit)
	require.NoError(t, err)

	commit2, err := DecodeCommit(bz)
	require.NoError(t, err)
	require.Equal(t, commit, commit2)
	require.True(t, commit2.Signatures[2].Absent())
	require.Nil(t, commit2.Signatures[2].ValidatorAddress)
	require.Nil(t, commit2.Signatures[2].Signature)

	_, err = EncodeCommit(nil)
	require.Error(t, err)
}

func TestEncodeCommitCountMismatch(t *testing.T) {
	vset, keys := RandValidatorSet(2, 10)
	commit, err := MakeCommit("test-chain", testHash("block"), 3, 0, vset, keys, 0)
	require.NoError(t, err)

	commit.SignatureCount = 3
	_, err = EncodeCommit(commit)
	require.Error(t, err)

	var countErr ErrSignatureCountMismatch
	require.ErrorAs(t, err, &countErr)
	assert.EqualValues(t, 3, countErr.Declared)
	assert.EqualValues(t, 2, countErr.Actual)
}

func TestDecodeCommitMalformed(t *testing.T) {
	vset, keys := RandValidatorSet(1, 10)
	commit, err := MakeCommit("test-chain", testHash("block"), 9, 0, vset, keys, 1000)
	require.NoError(t, err)
	valid, err := EncodeCommit(commit)
	require.NoError(t, err)

	absentCommit := NewCommit(9, 0, testHash("block"), []CommitSig{NewCommitSigAbsent()})
	validAbsent, err := EncodeCommit(absentCommit)
	require.NoError(t, err)

	// sig entries start after the fixed core: flag, address, timestamp,
	// signature length, signature
	const (
		flagOff   = commitCoreSize
		addrOff   = flagOff + 1
		tsOff     = addrOff + crypto.AddressSize
		sigLenOff = tsOff + 8
	)

	testCases := []struct {
		name     string
		malleate func() []byte
	}{
		{"TruncatedCore", func() []byte { return valid[:commitCoreSize-1] }},
		{"TruncatedSignatureEntry", func() []byte { return valid[:commitCoreSize+10] }},
		{"TrailingBytes", func() []byte { return append(append([]byte{}, valid...), 0) }},
		{"ImpossibleDeclaredCount", func() []byte {
			bz := append([]byte{}, valid...)
			bz[44], bz[45], bz[46], bz[47] = 0xff, 0xff, 0xff, 0xff
			return bz
		}},
		{"SignatureLengthPastEnd", func() []byte {
			bz := append([]byte{}, valid...)
			bz[sigLenOff+3] = 0xff // declares 255 bytes, 64 remain
			return bz
		}},
		{"UnknownFlag", func() []byte {
			bz := append([]byte{}, valid...)
			bz[flagOff] = 9
			return bz
		}},
		{"AbsentWithAddress", func() []byte {
			bz := append([]byte{}, validAbsent...)
			bz[addrOff] = 1
			return bz
		}},
		{"AbsentWithTimestamp", func() []byte {
			bz := append([]byte{}, validAbsent...)
			bz[tsOff+7] = 1
			return bz
		}},
		{"Empty", func() []byte { return nil }},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeCommit(tc.malleate())
			require.Error(t, err)
		})
	}

	// untouched encodings still decode
	_, err = DecodeCommit(valid)
	require.NoError(t, err)
	_, err = DecodeCommit(validAbsent)
	require.NoError(t, err)
}

func TestEncodeDecodeLightBlock(t *testing.T) {
	vset, keys := RandValidatorSet(3, 10)
	lb, err := MakeLightBlock("test-chain", 5, testHash("parent"), vset, keys)
	require.NoError(t, err)

	bz, err := EncodeLightBlock(lb)
	require.NoError(t, err)

	lb2, err := DecodeLightBlock(bz)
	require.NoError(t, err)
	require.Equal(t, lb, lb2)

	// a commit that does not bind to the header's parent cannot encode
	lb.LastCommit.BlockID = testHash("other")
	_, err = EncodeLightBlock(lb)
	require.Error(t, err)

	_, err = DecodeLightBlock(bz[:headerSize-1])
	require.Error(t, err)
}

func TestEncodeDecodeSubmission(t *testing.T) {
	s := &Submission{
		Height:         8,
		ParentHash:     testHash("parent"),
		Submitter:      testAddr("submitter"),
		SubmittedAt:    42,
		LastCommitHash: testHash("commit"),
	}

	bz, err := EncodeSubmission(s)
	require.NoError(t, err)
	require.Len(t, bz, submissionSize)

	s2, err := DecodeSubmission(bz)
	require.NoError(t, err)
	require.Equal(t, s, s2)

	// finalized residues use the same fixed-width form
	residue := s.Clear()
	rbz, err := EncodeSubmission(residue)
	require.NoError(t, err)
	require.Len(t, rbz, submissionSize)
	r2, err := DecodeSubmission(rbz)
	require.NoError(t, err)
	require.Equal(t, residue, r2)
	require.True(t, r2.Finalized)

	bad := append([]byte{}, bz...)
	bad[100] = 2
	_, err = DecodeSubmission(bad)
	require.Error(t, err)

	_, err = DecodeSubmission(bz[:100])
	require.Error(t, err)
	_, err = DecodeSubmission(append(bz, 0))
	require.Error(t, err)
}

// Distinct values must never share an encoding; commitments and header
// hashes key the whole store.
func TestEncodingInjective(t *testing.T) {
	h1 := MakeHeader(7, testHash("parent"), testHash("commit"), testAddr("p"))
	h2 := *h1
	h2.Time++
	bz1, err := EncodeHeader(h1)
	require.NoError(t, err)
	bz2, err := EncodeHeader(&h2)
	require.NoError(t, err)
	assert.NotEqual(t, bz1, bz2)
	assert.NotEqual(t, h1.Hash(), (&h2).Hash())

	vset, keys := RandValidatorSet(2, 10)
	c1, err := MakeCommit("test-chain", testHash("block"), 3, 0, vset, keys, 50)
	require.NoError(t, err)
	c2, err := MakeCommit("test-chain", testHash("block"), 3, 0, vset, keys, 51)
	require.NoError(t, err)
	assert.NotEqual(t, c1.Hash(), c2.Hash())

	live := &Submission{
		Height:         4,
		ParentHash:     testHash("parent"),
		Submitter:      testAddr("submitter"),
		SubmittedAt:    1,
		LastCommitHash: testHash("commit"),
	}
	assert.NotEqual(t, live.Commitment(), live.Clear().Commitment())

	other := *live
	other.SubmittedAt = 2
	assert.NotEqual(t, live.Commitment(), (&other).Commitment())
}
