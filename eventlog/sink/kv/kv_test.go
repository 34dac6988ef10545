package kv_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	dbm "github.com/tendermint/tm-db"

	"github.com/oprelay/oprelay/crypto"
	"github.com/oprelay/oprelay/eventlog"
	"github.com/oprelay/oprelay/eventlog/sink/kv"
	tmbytes "github.com/oprelay/oprelay/libs/bytes"
	"github.com/oprelay/oprelay/types"
)

const testChainID = "test-relay"

func testHash(s string) tmbytes.HexBytes {
	return crypto.Checksum([]byte(s))
}

func testAddr(s string) crypto.Address {
	return crypto.AddressHash([]byte(s))
}

// submissionEvent builds a fully signed submission event at the given
// height on top of parent.
func submissionEvent(t *testing.T, height uint64, parent tmbytes.HexBytes, vset *types.ValidatorSet, keys []crypto.PrivKey) types.EventDataSubmission {
	t.Helper()

	lb, err := types.MakeLightBlock(testChainID, height, parent, vset, keys)
	require.NoError(t, err)

	return types.EventDataSubmission{
		HeaderHash: lb.Header.Hash(),
		Height:     height,
		Submission: &types.Submission{
			Height:         height,
			ParentHash:     parent.Copy(),
			Submitter:      testAddr("submitter"),
			SubmittedAt:    height + 10,
			LastCommitHash: lb.Header.LastCommitHash.Copy(),
		},
		LightBlock: lb,
	}
}

func TestType(t *testing.T) {
	sink := kv.NewEventSink(dbm.NewMemDB())
	assert.Equal(t, eventlog.KV, sink.Type())
	require.NoError(t, sink.Stop())
}

func TestIndexSubmissionRoundTrip(t *testing.T) {
	sink := kv.NewEventSink(dbm.NewMemDB())
	vset, keys := types.RandValidatorSet(3, 10)

	ev := submissionEvent(t, 2, testHash("genesis"), vset, keys)
	require.NoError(t, sink.IndexSubmission(ev))

	got, err := sink.SubmissionByHash(ev.HeaderHash)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, ev.HeaderHash, got.HeaderHash)
	assert.Equal(t, ev.Height, got.Height)
	assert.Equal(t, ev.Submission, got.Submission)
	if diff := cmp.Diff(ev.LightBlock, got.LightBlock); diff != "" {
		t.Errorf("light block changed on round trip: (-want, +got)\n%s", diff)
	}

	// the full commit survives, so fraud evidence can be rebuilt from the
	// sink alone
	require.NoError(t, got.LightBlock.LastCommit.ValidateBasic())
	assert.Equal(t, ev.LightBlock.Header.Hash(), got.LightBlock.Header.Hash())

	status, err := sink.SubmissionStatus(ev.HeaderHash)
	require.NoError(t, err)
	assert.Equal(t, "", status)

	// unknown hashes are not an error
	missing, err := sink.SubmissionByHash(testHash("unknown"))
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestIndexSubmissionValidation(t *testing.T) {
	sink := kv.NewEventSink(dbm.NewMemDB())
	vset, keys := types.RandValidatorSet(1, 10)

	ev := submissionEvent(t, 2, testHash("genesis"), vset, keys)

	short := ev
	short.HeaderHash = []byte("too short")
	require.Error(t, sink.IndexSubmission(short))

	noSub := ev
	noSub.Submission = nil
	require.Error(t, sink.IndexSubmission(noSub))

	noBlock := ev
	noBlock.LightBlock = nil
	require.Error(t, sink.IndexSubmission(noBlock))

	_, err := sink.SubmissionByHash([]byte("too short"))
	require.Error(t, err)

	// nothing was written
	evs, err := sink.SubmissionsByHeight(2)
	require.NoError(t, err)
	assert.Empty(t, evs)
}

func TestSubmissionsByHeight(t *testing.T) {
	sink := kv.NewEventSink(dbm.NewMemDB())
	vset, keys := types.RandValidatorSet(3, 10)

	// two competing records at height 2 plus one at height 3
	evA := submissionEvent(t, 2, testHash("genesis"), vset, keys)
	evB := submissionEvent(t, 2, testHash("other parent"), vset, keys)
	evC := submissionEvent(t, 3, evA.HeaderHash, vset, keys)
	require.NotEqual(t, evA.HeaderHash, evB.HeaderHash)

	for _, ev := range []types.EventDataSubmission{evA, evB, evC} {
		require.NoError(t, sink.IndexSubmission(ev))
	}

	evs, err := sink.SubmissionsByHeight(2)
	require.NoError(t, err)
	require.Len(t, evs, 2)
	found := map[string]bool{}
	for _, ev := range evs {
		assert.EqualValues(t, 2, ev.Height)
		found[ev.HeaderHash.String()] = true
	}
	assert.True(t, found[evA.HeaderHash.String()])
	assert.True(t, found[evB.HeaderHash.String()])

	evs, err = sink.SubmissionsByHeight(3)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, evC.HeaderHash, evs[0].HeaderHash)

	evs, err = sink.SubmissionsByHeight(99)
	require.NoError(t, err)
	assert.Empty(t, evs)
}

func TestSubmissionStatus(t *testing.T) {
	sink := kv.NewEventSink(dbm.NewMemDB())
	vset, keys := types.RandValidatorSet(3, 10)

	ev := submissionEvent(t, 2, testHash("genesis"), vset, keys)
	require.NoError(t, sink.IndexSubmission(ev))

	require.NoError(t, sink.IndexFinalize(types.EventDataFinalize{
		HeaderHash: ev.HeaderHash,
		Height:     ev.Height,
		Submitter:  testAddr("submitter"),
		Released:   100,
	}))
	status, err := sink.SubmissionStatus(ev.HeaderHash)
	require.NoError(t, err)
	assert.Equal(t, types.EventFinalizeValue, status)

	// fraud on a sibling the sink never saw a submission for still records
	other := submissionEvent(t, 2, testHash("other parent"), vset, keys)
	require.NoError(t, sink.IndexFraud(types.EventDataFraud{
		HeaderHash: other.HeaderHash,
		Height:     other.Height,
		NewTip:     testHash("genesis"),
		Challenger: testAddr("challenger"),
		Slashed:    100,
	}))
	status, err = sink.SubmissionStatus(other.HeaderHash)
	require.NoError(t, err)
	assert.Equal(t, types.EventFraudValue, status)

	// a resubmission of the frauded hash starts with a clean status
	require.NoError(t, sink.IndexSubmission(other))
	status, err = sink.SubmissionStatus(other.HeaderHash)
	require.NoError(t, err)
	assert.Equal(t, "", status)

	require.NoError(t, sink.IndexPrune(types.EventDataPrune{
		HeaderHash: other.HeaderHash,
		Height:     other.Height,
		Pruner:     testAddr("pruner"),
		Paid:       50,
	}))
	status, err = sink.SubmissionStatus(other.HeaderHash)
	require.NoError(t, err)
	assert.Equal(t, types.EventPruneValue, status)
}
