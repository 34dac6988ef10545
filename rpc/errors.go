package rpc

import (
	"encoding/json"
	"net/http"

	"github.com/oprelay/oprelay/bridge"
)

// errorResponse is the JSON body of every non-2xx response.
type errorResponse struct {
	Code  int    `json:"code"`
	Error string `json:"error"`
}

// statusOf maps lifecycle errors onto HTTP statuses: requests the chain can
// never accept are 400, targets that do not exist are 404, requests that
// lost a race with current chain state are 409. Everything unrecognized is
// an internal error.
func statusOf(err error) int {
	switch err.(type) {
	case bridge.ErrMalformedCommit,
		bridge.ErrBadBondAmount,
		bridge.ErrMismatchedBatch,
		bridge.ErrInsufficientFunds:
		return http.StatusBadRequest

	case bridge.ErrUnknownOrFinalizedSubmission:
		return http.StatusNotFound

	case bridge.ErrTipConflict,
		bridge.ErrStaleParent,
		bridge.ErrHeightMismatch,
		bridge.ErrTimeoutNotElapsed,
		bridge.ErrParentNotOrphaned,
		bridge.ErrFraudNotProven:
		return http.StatusConflict

	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(errorResponse{Code: code, Error: err.Error()})
}
