package types

import (
	"github.com/oprelay/oprelay/crypto"
	tmbytes "github.com/oprelay/oprelay/libs/bytes"
)

// Reserved event types (alphabetically sorted).
const (
	EventFinalizeValue   = "finalize"
	EventFraudValue      = "fraud"
	EventPruneValue      = "prune"
	EventSubmissionValue = "submission"
)

// EventData is satisfied by types that can be published on the event bus
// and indexed by the event log.
type EventData interface {
	// TypeTag returns the discriminator the bus and sinks key on.
	TypeTag() string
}

// EventDataSubmission is emitted when a light block is accepted. It carries
// the full light block: the event log is the only durable record of the
// header and commit content, and fraud evidence is reconstructed from it.
type EventDataSubmission struct {
	HeaderHash tmbytes.HexBytes `json:"header_hash"`
	Height     uint64           `json:"height,string"`
	Submission *Submission      `json:"submission"`
	LightBlock *LightBlock      `json:"light_block"`
}

// TypeTag implements EventData.
func (EventDataSubmission) TypeTag() string { return EventSubmissionValue }

// EventDataFraud is emitted when a fraud proof succeeds and the tip rolls
// back.
type EventDataFraud struct {
	HeaderHash tmbytes.HexBytes `json:"header_hash"`
	Height     uint64           `json:"height,string"`
	NewTip     tmbytes.HexBytes `json:"new_tip"`
	Challenger crypto.Address   `json:"challenger"`
	Slashed    uint64           `json:"slashed,string"`
}

// TypeTag implements EventData.
func (EventDataFraud) TypeTag() string { return EventFraudValue }

// EventDataFinalize is emitted per submission finalized, after its bond has
// been released in full to the submitter.
type EventDataFinalize struct {
	HeaderHash tmbytes.HexBytes `json:"header_hash"`
	Height     uint64           `json:"height,string"`
	Submitter  crypto.Address   `json:"submitter"`
	Released   uint64           `json:"released,string"`
}

// TypeTag implements EventData.
func (EventDataFinalize) TypeTag() string { return EventFinalizeValue }

// EventDataPrune is emitted per orphan pruned.
type EventDataPrune struct {
	HeaderHash tmbytes.HexBytes `json:"header_hash"`
	Height     uint64           `json:"height,string"`
	Pruner     crypto.Address   `json:"pruner"`
	Paid       uint64           `json:"paid,string"`
}

// TypeTag implements EventData.
func (EventDataPrune) TypeTag() string { return EventPruneValue }

// EventPublisher publishes bridge lifecycle events. The bridge publishes
// only after an operation's effects have committed; an event bus implements
// this interface.
type EventPublisher interface {
	PublishEventSubmission(EventDataSubmission) error
	PublishEventFraud(EventDataFraud) error
	PublishEventFinalize(EventDataFinalize) error
	PublishEventPrune(EventDataPrune) error
}
