// Package rpc exposes the bridge lifecycle over JSON on HTTP. Mutating
// operations are POSTs under /v1/, reads are GETs; rejected operations
// carry their lifecycle error as a JSON body with a 4xx status.
package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/cors"

	"github.com/oprelay/oprelay/bridge"
	"github.com/oprelay/oprelay/config"
	"github.com/oprelay/oprelay/eventlog"
	tmbytes "github.com/oprelay/oprelay/libs/bytes"
	"github.com/oprelay/oprelay/libs/log"
	"github.com/oprelay/oprelay/types"
)

// Environment contains the objects and interfaces served by the RPC. It is
// expected to be set up once during node startup.
type Environment struct {
	Logger log.Logger

	Bridge     *bridge.Bridge
	GenDoc     *types.GenesisDoc // cache of the genesis document
	EventSinks []eventlog.EventSink

	Moniker string
}

// Handler returns the routed RPC handler, wrapped with CORS middleware when
// the configuration enables it.
func (env *Environment) Handler(cfg *config.RPCConfig) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/submit", post(env.handleSubmit))
	mux.HandleFunc("/v1/prove_fraud", post(env.handleProveFraud))
	mux.HandleFunc("/v1/finalize", post(env.handleFinalize))
	mux.HandleFunc("/v1/prune", post(env.handlePrune))
	mux.HandleFunc("/v1/advance_host", post(env.handleAdvanceHost))
	mux.HandleFunc("/v1/tip", get(env.handleTip))
	mux.HandleFunc("/v1/submission", get(env.handleSubmission))
	mux.HandleFunc("/v1/genesis", get(env.handleGenesis))
	mux.HandleFunc("/v1/params", get(env.handleParams))
	mux.HandleFunc("/v1/status", get(env.handleStatus))
	mux.HandleFunc("/healthz", get(env.handleHealth))

	var root http.Handler = mux
	if cfg.IsCorsEnabled() {
		root = cors.New(cors.Options{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			AllowedMethods: cfg.CORSAllowedMethods,
			AllowedHeaders: cfg.CORSAllowedHeaders,
		}).Handler(mux)
	}
	return root
}

func post(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
			return
		}
		h(w, r)
	}
}

func get(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
			return
		}
		h(w, r)
	}
}

func decodeRequest(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("malformed request body: %w", err)
	}
	return nil
}

func hashParam(r *http.Request) (tmbytes.HexBytes, error) {
	s := r.URL.Query().Get("hash")
	if s == "" {
		return nil, fmt.Errorf("missing hash parameter")
	}
	bz, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("malformed hash parameter: %w", err)
	}
	return bz, nil
}

// lookupLightBlock returns the canonical light-block bytes the event log
// indexed for headerHash, or nil when no configured sink supports lookups
// or none of them has the record.
func (env *Environment) lookupLightBlock(headerHash tmbytes.HexBytes) ([]byte, error) {
	for _, s := range env.EventSinks {
		rec, err := s.SubmissionByHash(headerHash)
		if errors.Is(err, eventlog.ErrLookupUnsupported) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if rec == nil || rec.LightBlock == nil {
			return nil, nil
		}
		return types.EncodeLightBlock(rec.LightBlock)
	}
	return nil, nil
}
