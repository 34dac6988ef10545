// Package eventlog indexes bridge lifecycle events into pluggable sinks.
//
// The bridge itself keeps only commitments for pending submissions, so the
// event log is the durable record of header and commit content: fraud
// evidence is reconstructed from the indexed submission events. Deployments
// that want that capability run at least one sink with lookup support.
package eventlog

import (
	"errors"

	tmbytes "github.com/oprelay/oprelay/libs/bytes"
	"github.com/oprelay/oprelay/types"
)

// EventSinkType identifies a sink implementation.
type EventSinkType string

const (
	NULL EventSinkType = "null"
	KV   EventSinkType = "kv"
	PSQL EventSinkType = "psql"
)

// ErrLookupUnsupported is returned by sinks that index events without
// serving queries over them.
var ErrLookupUnsupported = errors.New("lookup is not supported by this event sink")

// EventSink is the interface the eventlog service indexes through. Index
// calls for one event arrive at every configured sink; a sink failure is
// logged and does not stop the others.
type EventSink interface {
	// IndexSubmission records an accepted submission, including the full
	// light block.
	IndexSubmission(types.EventDataSubmission) error

	// IndexFraud records a proven fraud.
	IndexFraud(types.EventDataFraud) error

	// IndexFinalize records a finalized submission.
	IndexFinalize(types.EventDataFinalize) error

	// IndexPrune records a pruned orphan.
	IndexPrune(types.EventDataPrune) error

	// SubmissionByHash returns the indexed submission event for the given
	// header hash, or nil if none is indexed. Sinks without lookup support
	// return ErrLookupUnsupported.
	SubmissionByHash(headerHash tmbytes.HexBytes) (*types.EventDataSubmission, error)

	// SubmissionsByHeight returns the indexed submission events for the
	// given remote height, ordered by header hash. A height can hold more
	// than one record once a fraud has forced a resubmission. Sinks
	// without lookup support return ErrLookupUnsupported.
	SubmissionsByHeight(height uint64) ([]*types.EventDataSubmission, error)

	// Type checks the eventsink structure type.
	Type() EventSinkType

	// Stop closes the data store connection, if the sink supports it.
	Stop() error
}

// LookupEnabled reports whether any of the sinks serves lookups.
func LookupEnabled(sinks []EventSink) bool {
	for _, sink := range sinks {
		if sink.Type() == KV {
			return true
		}
	}
	return false
}
