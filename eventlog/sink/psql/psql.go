// Package psql implements an event sink backed by a PostgreSQL database.
package psql

import (
	"database/sql"
	"fmt"
	"time"

	// Register the Postgres database driver.
	_ "github.com/lib/pq"

	"github.com/oprelay/oprelay/crypto"
	"github.com/oprelay/oprelay/eventlog"
	tmbytes "github.com/oprelay/oprelay/libs/bytes"
	"github.com/oprelay/oprelay/types"
)

const (
	tableSubmissions = "submissions"
	tableEvents      = "events"
	driverName       = "postgres"
)

var _ eventlog.EventSink = (*EventSink)(nil)

// EventSink is an append-only audit log of lifecycle events, stored in a
// PostgreSQL database using the schema defined in
// eventlog/sink/psql/schema.sql. Rows are never updated or deleted: a
// resubmission after fraud appends a second row for the same header hash.
//
// The sink does not serve lookups. Deployments that need fraud evidence
// reconstruction pair it with the kv sink.
type EventSink struct {
	store   *sql.DB
	chainID string
}

// NewEventSink constructs an event sink associated with the PostgreSQL
// database specified by connStr. Events written to the sink are attributed
// to the specified chainID.
func NewEventSink(connStr, chainID string) (*EventSink, error) {
	store, err := sql.Open(driverName, connStr)
	if err != nil {
		return nil, err
	}
	return &EventSink{store: store, chainID: chainID}, nil
}

// DB returns the underlying Postgres connection used by the sink. This is
// exported to support testing.
func (es *EventSink) DB() *sql.DB { return es.store }

// Type implements eventlog.EventSink.
func (es *EventSink) Type() eventlog.EventSinkType { return eventlog.PSQL }

// IndexSubmission implements eventlog.EventSink. Each accepted submission
// appends one row carrying the canonical light-block encoding.
func (es *EventSink) IndexSubmission(ev types.EventDataSubmission) error {
	if ev.Submission == nil {
		return fmt.Errorf("submission event %X has no submission record", ev.HeaderHash)
	}
	if ev.LightBlock == nil {
		return fmt.Errorf("submission event %X has no light block", ev.HeaderHash)
	}
	lbBz, err := types.EncodeLightBlock(ev.LightBlock)
	if err != nil {
		return err
	}

	_, err = es.store.Exec(`
INSERT INTO `+tableSubmissions+` (chain_id, header_hash, height, submitter, submitted_at, light_block, created_at)
  VALUES ($1, $2, $3, $4, $5, $6, $7);`,
		es.chainID, ev.HeaderHash.String(), int64(ev.Height),
		ev.Submission.Submitter.String(), int64(ev.Submission.SubmittedAt),
		lbBz, time.Now().UTC())
	return err
}

// IndexFraud implements eventlog.EventSink.
func (es *EventSink) IndexFraud(ev types.EventDataFraud) error {
	return es.insertEvent(ev.TypeTag(), ev.HeaderHash, ev.Height, ev.Challenger, ev.Slashed, ev.NewTip)
}

// IndexFinalize implements eventlog.EventSink.
func (es *EventSink) IndexFinalize(ev types.EventDataFinalize) error {
	return es.insertEvent(ev.TypeTag(), ev.HeaderHash, ev.Height, ev.Submitter, ev.Released, nil)
}

// IndexPrune implements eventlog.EventSink.
func (es *EventSink) IndexPrune(ev types.EventDataPrune) error {
	return es.insertEvent(ev.TypeTag(), ev.HeaderHash, ev.Height, ev.Pruner, ev.Paid, nil)
}

// insertEvent appends one lifecycle event row. The actor is the address the
// event paid out to; new_tip is NULL except for fraud events.
func (es *EventSink) insertEvent(event string, headerHash tmbytes.HexBytes, height uint64, actor crypto.Address, amount uint64, newTip tmbytes.HexBytes) error {
	var tip interface{}
	if newTip != nil {
		tip = newTip.String()
	}
	_, err := es.store.Exec(`
INSERT INTO `+tableEvents+` (chain_id, event, header_hash, height, actor, amount, new_tip, created_at)
  VALUES ($1, $2, $3, $4, $5, $6, $7, $8);`,
		es.chainID, event, headerHash.String(), int64(height),
		actor.String(), int64(amount), tip, time.Now().UTC())
	return err
}

// SubmissionByHash is not implemented by this sink, and reports an error for
// all queries.
func (es *EventSink) SubmissionByHash(tmbytes.HexBytes) (*types.EventDataSubmission, error) {
	return nil, eventlog.ErrLookupUnsupported
}

// SubmissionsByHeight is not implemented by this sink, and reports an error
// for all queries.
func (es *EventSink) SubmissionsByHeight(uint64) ([]*types.EventDataSubmission, error) {
	return nil, eventlog.ErrLookupUnsupported
}

// Stop closes the underlying PostgreSQL database.
func (es *EventSink) Stop() error { return es.store.Close() }
