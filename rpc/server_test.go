package rpc_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	dbm "github.com/tendermint/tm-db"

	"github.com/oprelay/oprelay/bridge"
	"github.com/oprelay/oprelay/config"
	"github.com/oprelay/oprelay/crypto"
	"github.com/oprelay/oprelay/eventbus"
	"github.com/oprelay/oprelay/eventlog"
	"github.com/oprelay/oprelay/eventlog/sink/kv"
	tmbytes "github.com/oprelay/oprelay/libs/bytes"
	"github.com/oprelay/oprelay/libs/log"
	"github.com/oprelay/oprelay/rpc"
	"github.com/oprelay/oprelay/types"
	"github.com/oprelay/oprelay/version"
)

const testChainID = "test-relay"

func testHash(s string) tmbytes.HexBytes {
	return crypto.Checksum([]byte(s))
}

func testAddr(s string) crypto.Address {
	return crypto.AddressHash([]byte(s))
}

// errBody mirrors the JSON error envelope of non-2xx responses.
type errBody struct {
	Code  int    `json:"code"`
	Error string `json:"error"`
}

type testEnv struct {
	srv *httptest.Server

	bridge  *bridge.Bridge
	genesis tmbytes.HexBytes
	params  types.Params

	vals *types.ValidatorSet
	keys []crypto.PrivKey

	submitter  crypto.Address
	challenger crypto.Address
	pruner     crypto.Address
}

// setupServer wires the whole pipeline a node runs: bridge over a memdb
// store, event bus, event log with a kv sink, and the HTTP handler on an
// httptest server.
func setupServer(t *testing.T, verifier bridge.CommitVerifier) *testEnv {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	logger := log.NewTestingLogger(t)

	bus := eventbus.NewDefault(logger)
	require.NoError(t, bus.Start(ctx))
	t.Cleanup(func() {
		if bus.IsRunning() {
			require.NoError(t, bus.Stop())
		}
		bus.Wait()
	})

	evSink := kv.NewEventSink(dbm.NewMemDB())
	svc := eventlog.NewService(eventlog.ServiceArgs{
		Sinks:    []eventlog.EventSink{evSink},
		EventBus: bus,
		Logger:   logger,
	})
	require.NoError(t, svc.Start(ctx))
	t.Cleanup(func() {
		if svc.IsRunning() {
			require.NoError(t, svc.Stop())
		}
		svc.Wait()
	})

	store, err := bridge.NewStore(dbm.NewMemDB())
	require.NoError(t, err)

	te := &testEnv{
		genesis:    testHash("genesis"),
		params:     types.Params{BondAmount: 100, FraudPeriod: 10},
		submitter:  testAddr("submitter"),
		challenger: testAddr("challenger"),
		pruner:     testAddr("pruner"),
	}
	te.vals, te.keys = types.RandValidatorSet(3, 10)

	bank := bridge.NewMapBank()
	bank.Deposit(te.submitter, 10_000)
	escrow := bridge.NewEscrow(bank, testAddr("bridge-escrow"), testAddr("retention"))

	te.bridge, err = bridge.New(logger, store, escrow, verifier, te.params,
		bridge.WithEventPublisher(bus))
	require.NoError(t, err)
	require.NoError(t, te.bridge.InitGenesis(te.genesis))
	require.NoError(t, te.bridge.AdvanceHost(1))

	env := &rpc.Environment{
		Logger: logger,
		Bridge: te.bridge,
		GenDoc: &types.GenesisDoc{
			ChainID:     testChainID,
			GenesisHash: te.genesis,
			Params:      te.params,
		},
		EventSinks: []eventlog.EventSink{evSink},
		Moniker:    "test-node",
	}
	te.srv = httptest.NewServer(env.Handler(config.TestRPCConfig()))
	t.Cleanup(te.srv.Close)
	return te
}

func rejectAllVerifier() bridge.CommitVerifier {
	return bridge.CommitVerifierFunc(func(context.Context, *types.Commit, tmbytes.HexBytes, uint64) error {
		return errors.New("invalid commit")
	})
}

func acceptAllVerifier() bridge.CommitVerifier {
	return bridge.CommitVerifierFunc(func(context.Context, *types.Commit, tmbytes.HexBytes, uint64) error {
		return nil
	})
}

func (te *testEnv) post(t *testing.T, path string, body interface{}) *http.Response {
	t.Helper()
	bz, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(te.srv.URL+path, "application/json", bytes.NewReader(bz))
	require.NoError(t, err)
	return resp
}

func (te *testEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(te.srv.URL + path)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

// requireStatus asserts the HTTP status and, for errors, that the JSON body
// repeats the code.
func requireStatus(t *testing.T, resp *http.Response, code int) {
	t.Helper()
	require.Equal(t, code, resp.StatusCode)
	if code < 400 {
		resp.Body.Close()
		return
	}
	var eb errBody
	decodeBody(t, resp, &eb)
	assert.Equal(t, code, eb.Code)
	assert.NotEmpty(t, eb.Error)
}

func (te *testEnv) tip(t *testing.T) rpc.TipResponse {
	t.Helper()
	resp := te.get(t, "/v1/tip")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var tr rpc.TipResponse
	decodeBody(t, resp, &tr)
	return tr
}

func (te *testEnv) lightBlockAt(t *testing.T, height uint64, parentHash tmbytes.HexBytes) *types.LightBlock {
	t.Helper()
	lb, err := types.MakeLightBlock(testChainID, height, parentHash, te.vals, te.keys)
	require.NoError(t, err)
	return lb
}

func (te *testEnv) submitRequest(t *testing.T, lb *types.LightBlock, parent *types.Submission, bond uint64) rpc.SubmitRequest {
	t.Helper()
	bz, err := types.EncodeLightBlock(lb)
	require.NoError(t, err)
	return rpc.SubmitRequest{
		LightBlock:    bz,
		ClaimedParent: parent,
		Submitter:     te.submitter,
		Bond:          bond,
	}
}

// submit drives a block through POST /v1/submit and returns its header hash.
func (te *testEnv) submit(t *testing.T, lb *types.LightBlock) tmbytes.HexBytes {
	t.Helper()
	resp := te.post(t, "/v1/submit", te.submitRequest(t, lb, te.tip(t).Submission, te.params.BondAmount))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sr rpc.SubmitResponse
	decodeBody(t, resp, &sr)
	return sr.HeaderHash
}

func TestSubmitAndQuery(t *testing.T) {
	te := setupServer(t, rejectAllVerifier())

	tip := te.tip(t)
	assert.Equal(t, te.genesis, tip.HeaderHash)
	assert.EqualValues(t, 1, tip.Submission.Height)
	assert.EqualValues(t, 1, tip.HostHeight)

	lb := te.lightBlockAt(t, 2, te.genesis)
	hash := te.submit(t, lb)
	assert.Equal(t, lb.Header.Hash(), hash)

	tip = te.tip(t)
	assert.Equal(t, hash, tip.HeaderHash)
	assert.EqualValues(t, 2, tip.Submission.Height)

	// the event log indexes asynchronously; poll until the canonical light
	// block shows up on the submission endpoint
	path := fmt.Sprintf("/v1/submission?hash=%s", hash)
	var sr rpc.SubmissionResponse
	require.Eventually(t, func() bool {
		resp := te.get(t, path)
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return false
		}
		sr = rpc.SubmissionResponse{}
		decodeBody(t, resp, &sr)
		return len(sr.LightBlock) > 0
	}, time.Second, 10*time.Millisecond)

	got, err := types.DecodeLightBlock(sr.LightBlock)
	require.NoError(t, err)
	assert.Equal(t, hash, got.Header.Hash())
	assert.EqualValues(t, 2, sr.Submission.Height)

	requireStatus(t, te.get(t, fmt.Sprintf("/v1/submission?hash=%s", testHash("nope"))), http.StatusNotFound)

	var st rpc.StatusResponse
	resp := te.get(t, "/v1/status")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &st)
	assert.Equal(t, "test-node", st.Moniker)
	assert.Equal(t, version.Version, st.Version)
	assert.Equal(t, testChainID, st.ChainID)
	assert.Equal(t, te.genesis, st.GenesisHash)
	assert.Equal(t, hash, st.TipHash)
	assert.EqualValues(t, 2, st.TipHeight)
	assert.EqualValues(t, 1, st.PendingSubmissions)
	assert.True(t, st.LookupEnabled)

	var gr rpc.GenesisResponse
	resp = te.get(t, "/v1/genesis")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &gr)
	assert.Equal(t, testChainID, gr.Genesis.ChainID)

	var pr rpc.ParamsResponse
	resp = te.get(t, "/v1/params")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &pr)
	assert.Equal(t, te.params, pr.Params)

	requireStatus(t, te.get(t, "/healthz"), http.StatusOK)
}

func TestSubmitErrors(t *testing.T) {
	te := setupServer(t, rejectAllVerifier())
	tip := te.tip(t)

	t.Run("BadBond", func(t *testing.T) {
		lb := te.lightBlockAt(t, 2, te.genesis)
		resp := te.post(t, "/v1/submit", te.submitRequest(t, lb, tip.Submission, 50))
		requireStatus(t, resp, http.StatusBadRequest)
	})

	t.Run("TipConflict", func(t *testing.T) {
		lb := te.lightBlockAt(t, 2, testHash("not-the-tip"))
		resp := te.post(t, "/v1/submit", te.submitRequest(t, lb, tip.Submission, te.params.BondAmount))
		requireStatus(t, resp, http.StatusConflict)
	})

	t.Run("StaleParent", func(t *testing.T) {
		stale := tip.Submission.Copy()
		stale.SubmittedAt++
		lb := te.lightBlockAt(t, 2, te.genesis)
		resp := te.post(t, "/v1/submit", te.submitRequest(t, lb, stale, te.params.BondAmount))
		requireStatus(t, resp, http.StatusConflict)
	})

	t.Run("MalformedBody", func(t *testing.T) {
		resp, err := http.Post(te.srv.URL+"/v1/submit", "application/json", bytes.NewReader([]byte("{nope")))
		require.NoError(t, err)
		requireStatus(t, resp, http.StatusBadRequest)
	})

	t.Run("MalformedLightBlock", func(t *testing.T) {
		req := te.submitRequest(t, te.lightBlockAt(t, 2, te.genesis), tip.Submission, te.params.BondAmount)
		req.LightBlock = []byte{0xde, 0xad, 0xbe, 0xef}
		resp := te.post(t, "/v1/submit", req)
		requireStatus(t, resp, http.StatusBadRequest)
	})

	t.Run("WrongMethod", func(t *testing.T) {
		requireStatus(t, te.get(t, "/v1/submit"), http.StatusMethodNotAllowed)
	})

	// nothing got through
	assert.Equal(t, te.genesis, te.tip(t).HeaderHash)
}

func TestFraudLifecycle(t *testing.T) {
	te := setupServer(t, rejectAllVerifier())

	lbA := te.lightBlockAt(t, 2, te.genesis)
	hashA := te.submit(t, lbA)
	recordA := te.tip(t).Submission

	lbB := te.lightBlockAt(t, 3, hashA)
	hashB := te.submit(t, lbB)
	recordB := te.tip(t).Submission

	evidence, err := types.EncodeCommit(lbA.LastCommit)
	require.NoError(t, err)

	fraud := rpc.ProveFraudRequest{
		HeaderHash: hashA,
		Submission: recordA,
		Tip:        recordB,
		Evidence:   evidence,
		Challenger: te.challenger,
	}
	resp := te.post(t, "/v1/prove_fraud", fraud)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var fr rpc.ProveFraudResponse
	decodeBody(t, resp, &fr)
	assert.Equal(t, te.genesis, fr.NewTip)

	// the offender is gone, fraud against it again finds nothing
	requireStatus(t, te.post(t, "/v1/prove_fraud", fraud), http.StatusNotFound)

	// the orphan cannot finalize: its parent mapping was deleted
	finalize := rpc.FinalizeRequest{
		HeaderHashes: []tmbytes.HexBytes{hashB},
		Submissions:  []*types.Submission{recordB},
	}
	requireStatus(t, te.post(t, "/v1/finalize", finalize), http.StatusNotFound)

	// pruning the orphan succeeds and removes the record
	prune := rpc.PruneRequest{
		HeaderHashes: []tmbytes.HexBytes{hashB},
		Submissions:  []*types.Submission{recordB},
		Pruner:       te.pruner,
	}
	requireStatus(t, te.post(t, "/v1/prune", prune), http.StatusOK)
	requireStatus(t, te.get(t, fmt.Sprintf("/v1/submission?hash=%s", hashB)), http.StatusNotFound)
}

func TestFraudNotProven(t *testing.T) {
	te := setupServer(t, acceptAllVerifier())

	lbA := te.lightBlockAt(t, 2, te.genesis)
	hashA := te.submit(t, lbA)
	recordA := te.tip(t).Submission

	evidence, err := types.EncodeCommit(lbA.LastCommit)
	require.NoError(t, err)

	resp := te.post(t, "/v1/prove_fraud", rpc.ProveFraudRequest{
		HeaderHash: hashA,
		Submission: recordA,
		Tip:        recordA,
		Evidence:   evidence,
		Challenger: te.challenger,
	})
	requireStatus(t, resp, http.StatusConflict)

	// the submission is untouched
	assert.Equal(t, hashA, te.tip(t).HeaderHash)
}

func TestFinalizeAndAdvanceHost(t *testing.T) {
	te := setupServer(t, rejectAllVerifier())

	lbA := te.lightBlockAt(t, 2, te.genesis)
	hashA := te.submit(t, lbA)
	recordA := te.tip(t).Submission

	finalize := rpc.FinalizeRequest{
		HeaderHashes: []tmbytes.HexBytes{hashA},
		Submissions:  []*types.Submission{recordA},
	}

	// the fraud window is still open
	requireStatus(t, te.post(t, "/v1/finalize", finalize), http.StatusConflict)

	resp := te.post(t, "/v1/advance_host", rpc.AdvanceHostRequest{Height: 12})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ar rpc.AdvanceHostResponse
	decodeBody(t, resp, &ar)
	assert.EqualValues(t, 12, ar.HostHeight)

	// the host height may repeat but never decrease
	requireStatus(t, te.post(t, "/v1/advance_host", rpc.AdvanceHostRequest{Height: 3}), http.StatusConflict)

	requireStatus(t, te.post(t, "/v1/finalize", finalize), http.StatusOK)

	// a second finalize finds no pending record
	requireStatus(t, te.post(t, "/v1/finalize", finalize), http.StatusNotFound)
}
