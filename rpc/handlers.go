package rpc

import (
	"fmt"
	"net/http"

	"github.com/oprelay/oprelay/crypto"
	"github.com/oprelay/oprelay/eventlog"
	tmbytes "github.com/oprelay/oprelay/libs/bytes"
	"github.com/oprelay/oprelay/types"
	"github.com/oprelay/oprelay/version"
)

// SubmitRequest carries a new light block for the tracked chain. The light
// block and all other chain objects travel in their canonical encoding,
// hex-armored by HexBytes; record copies travel as JSON.
type SubmitRequest struct {
	LightBlock    tmbytes.HexBytes  `json:"light_block"`
	ClaimedParent *types.Submission `json:"claimed_parent"`
	Submitter     crypto.Address    `json:"submitter"`
	Bond          uint64            `json:"bond,string"`
}

type SubmitResponse struct {
	HeaderHash tmbytes.HexBytes `json:"header_hash"`
	Height     uint64           `json:"height,string"`
}

type ProveFraudRequest struct {
	HeaderHash tmbytes.HexBytes  `json:"header_hash"`
	Submission *types.Submission `json:"submission"`
	Tip        *types.Submission `json:"tip"`
	Evidence   tmbytes.HexBytes  `json:"evidence"` // canonical commit encoding
	Challenger crypto.Address    `json:"challenger"`
}

type ProveFraudResponse struct {
	NewTip tmbytes.HexBytes `json:"new_tip"`
}

type FinalizeRequest struct {
	HeaderHashes []tmbytes.HexBytes  `json:"header_hashes"`
	Submissions  []*types.Submission `json:"submissions"`
}

type PruneRequest struct {
	HeaderHashes []tmbytes.HexBytes  `json:"header_hashes"`
	Submissions  []*types.Submission `json:"submissions"`
	Pruner       crypto.Address      `json:"pruner"`
}

type AdvanceHostRequest struct {
	Height uint64 `json:"height,string"`
}

type AdvanceHostResponse struct {
	HostHeight uint64 `json:"host_height,string"`
}

type TipResponse struct {
	HeaderHash tmbytes.HexBytes  `json:"header_hash"`
	Submission *types.Submission `json:"submission"`
	HostHeight uint64            `json:"host_height,string"`
}

// SubmissionResponse is the stored record for a header hash. LightBlock is
// the canonical light-block encoding when a lookup-enabled event sink has
// it, so challengers can reconstruct fraud evidence from this endpoint.
type SubmissionResponse struct {
	HeaderHash tmbytes.HexBytes  `json:"header_hash"`
	Submission *types.Submission `json:"submission"`
	LightBlock tmbytes.HexBytes  `json:"light_block,omitempty"`
}

type GenesisResponse struct {
	Genesis *types.GenesisDoc `json:"genesis"`
}

type ParamsResponse struct {
	Params types.Params `json:"params"`
}

type StatusResponse struct {
	Moniker            string           `json:"moniker"`
	Version            string           `json:"version"`
	ChainID            string           `json:"chain_id"`
	GenesisHash        tmbytes.HexBytes `json:"genesis_hash"`
	TipHash            tmbytes.HexBytes `json:"tip_hash"`
	TipHeight          uint64           `json:"tip_height,string"`
	HostHeight         uint64           `json:"host_height,string"`
	PendingSubmissions int64            `json:"pending_submissions,string"`
	LookupEnabled      bool             `json:"lookup_enabled"`
}

func (env *Environment) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	lb, err := types.DecodeLightBlock(req.LightBlock)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("malformed light block: %w", err))
		return
	}
	hash, err := env.Bridge.Submit(r.Context(), lb, req.ClaimedParent, req.Submitter, req.Bond)
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	writeJSON(w, SubmitResponse{HeaderHash: hash, Height: lb.Header.Height})
}

func (env *Environment) handleProveFraud(w http.ResponseWriter, r *http.Request) {
	var req ProveFraudRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	evidence, err := types.DecodeCommit(req.Evidence)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("malformed evidence: %w", err))
		return
	}
	err = env.Bridge.ProveFraud(r.Context(), req.HeaderHash, req.Submission, req.Tip, evidence, req.Challenger)
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	writeJSON(w, ProveFraudResponse{NewTip: env.Bridge.Tip()})
}

func (env *Environment) handleFinalize(w http.ResponseWriter, r *http.Request) {
	var req FinalizeRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := env.Bridge.FinalizeBlocks(r.Context(), req.HeaderHashes, req.Submissions); err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	writeJSON(w, struct{}{})
}

func (env *Environment) handlePrune(w http.ResponseWriter, r *http.Request) {
	var req PruneRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := env.Bridge.PruneBlocks(r.Context(), req.HeaderHashes, req.Submissions, req.Pruner); err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	writeJSON(w, struct{}{})
}

func (env *Environment) handleAdvanceHost(w http.ResponseWriter, r *http.Request) {
	var req AdvanceHostRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	// The only rejection AdvanceHost knows is a decreasing height.
	if err := env.Bridge.AdvanceHost(req.Height); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, AdvanceHostResponse{HostHeight: env.Bridge.HostHeight()})
}

func (env *Environment) handleTip(w http.ResponseWriter, r *http.Request) {
	sub, err := env.Bridge.TipSubmission()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, TipResponse{
		HeaderHash: env.Bridge.Tip(),
		Submission: sub,
		HostHeight: env.Bridge.HostHeight(),
	})
}

func (env *Environment) handleSubmission(w http.ResponseWriter, r *http.Request) {
	hash, err := hashParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sub, err := env.Bridge.Submission(hash)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if sub == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("no submission for header %X", hash))
		return
	}
	lbz, err := env.lookupLightBlock(hash)
	if err != nil {
		env.Logger.Error("event log lookup failed", "hash", hash, "err", err)
		lbz = nil
	}
	writeJSON(w, SubmissionResponse{HeaderHash: hash, Submission: sub, LightBlock: lbz})
}

func (env *Environment) handleGenesis(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, GenesisResponse{Genesis: env.GenDoc})
}

func (env *Environment) handleParams(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, ParamsResponse{Params: env.Bridge.Params()})
}

func (env *Environment) handleStatus(w http.ResponseWriter, r *http.Request) {
	var tipHeight uint64
	tip := env.Bridge.Tip()
	if sub, err := env.Bridge.TipSubmission(); err == nil {
		tipHeight = sub.Height
	}
	writeJSON(w, StatusResponse{
		Moniker:            env.Moniker,
		Version:            version.Version,
		ChainID:            env.GenDoc.ChainID,
		GenesisHash:        env.Bridge.GenesisHash(),
		TipHash:            tip,
		TipHeight:          tipHeight,
		HostHeight:         env.Bridge.HostHeight(),
		PendingSubmissions: env.Bridge.PendingCount(),
		LookupEnabled:      eventlog.LookupEnabled(env.EventSinks),
	})
}

func (env *Environment) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, struct{}{})
}
