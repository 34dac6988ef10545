// Package null declares a no-op event sink.
package null

import (
	"github.com/oprelay/oprelay/eventlog"
	tmbytes "github.com/oprelay/oprelay/libs/bytes"
	"github.com/oprelay/oprelay/types"
)

var _ eventlog.EventSink = (*EventSink)(nil)

// EventSink implements an eventlog.EventSink that discards everything.
type EventSink struct{}

// NewEventSink returns a no-op event sink.
func NewEventSink() eventlog.EventSink { return &EventSink{} }

// Type implements eventlog.EventSink.
func (nes *EventSink) Type() eventlog.EventSinkType { return eventlog.NULL }

// IndexSubmission implements eventlog.EventSink.
func (nes *EventSink) IndexSubmission(types.EventDataSubmission) error { return nil }

// IndexFraud implements eventlog.EventSink.
func (nes *EventSink) IndexFraud(types.EventDataFraud) error { return nil }

// IndexFinalize implements eventlog.EventSink.
func (nes *EventSink) IndexFinalize(types.EventDataFinalize) error { return nil }

// IndexPrune implements eventlog.EventSink.
func (nes *EventSink) IndexPrune(types.EventDataPrune) error { return nil }

// SubmissionByHash implements eventlog.EventSink.
func (nes *EventSink) SubmissionByHash(tmbytes.HexBytes) (*types.EventDataSubmission, error) {
	return nil, eventlog.ErrLookupUnsupported
}

// SubmissionsByHeight implements eventlog.EventSink.
func (nes *EventSink) SubmissionsByHeight(uint64) ([]*types.EventDataSubmission, error) {
	return nil, eventlog.ErrLookupUnsupported
}

// Stop implements eventlog.EventSink.
func (nes *EventSink) Stop() error { return nil }
