// Package kv implements an event sink backed by an embedded key/value
// database. It stores the canonical encoding of every accepted submission,
// so fraud evidence can be rebuilt from the sink alone, and it serves the
// lookup side of the eventlog API.
package kv

import (
	"encoding/json"
	"fmt"

	"github.com/google/orderedcode"
	dbm "github.com/tendermint/tm-db"

	"github.com/oprelay/oprelay/crypto"
	"github.com/oprelay/oprelay/eventlog"
	tmbytes "github.com/oprelay/oprelay/libs/bytes"
	"github.com/oprelay/oprelay/types"
)

// prefixes are unique across the eventlog db
const (
	prefixSubmission = int64(0)
	prefixBlock      = int64(1)
	prefixHeight     = int64(2)
	prefixStatus     = int64(3)
)

var _ eventlog.EventSink = (*EventSink)(nil)

// EventSink is an indexer backed by a key/value store. Each accepted
// submission is stored under its header hash together with its canonical
// light-block encoding, plus a height index entry. Fraud, finalize and
// prune events overwrite a per-hash status record; the latest terminal
// event wins, so a resubmission after fraud starts with a clean status.
type EventSink struct {
	store dbm.DB
}

// NewEventSink returns a sink writing to the given database. The sink owns
// the database handle and closes it on Stop.
func NewEventSink(store dbm.DB) *EventSink {
	return &EventSink{store: store}
}

// Type implements eventlog.EventSink.
func (kes *EventSink) Type() eventlog.EventSinkType { return eventlog.KV }

// IndexSubmission implements eventlog.EventSink. Indexing the same header
// hash again replaces the previous record and clears any terminal status.
func (kes *EventSink) IndexSubmission(ev types.EventDataSubmission) error {
	if err := validateHash(ev.HeaderHash); err != nil {
		return err
	}
	if ev.Submission == nil {
		return fmt.Errorf("submission event %X has no submission record", ev.HeaderHash)
	}
	if ev.LightBlock == nil {
		return fmt.Errorf("submission event %X has no light block", ev.HeaderHash)
	}

	subBz, err := types.EncodeSubmission(ev.Submission)
	if err != nil {
		return err
	}
	lbBz, err := types.EncodeLightBlock(ev.LightBlock)
	if err != nil {
		return err
	}

	b := kes.store.NewBatch()
	defer b.Close()
	if err := b.Set(submissionKey(ev.HeaderHash), subBz); err != nil {
		return err
	}
	if err := b.Set(blockKey(ev.HeaderHash), lbBz); err != nil {
		return err
	}
	if err := b.Set(heightKey(ev.Height, ev.HeaderHash), []byte{}); err != nil {
		return err
	}
	if err := b.Delete(statusKey(ev.HeaderHash)); err != nil {
		return err
	}
	return b.WriteSync()
}

// IndexFraud implements eventlog.EventSink.
func (kes *EventSink) IndexFraud(ev types.EventDataFraud) error {
	return kes.setStatus(ev.HeaderHash, ev.TypeTag(), ev)
}

// IndexFinalize implements eventlog.EventSink.
func (kes *EventSink) IndexFinalize(ev types.EventDataFinalize) error {
	return kes.setStatus(ev.HeaderHash, ev.TypeTag(), ev)
}

// IndexPrune implements eventlog.EventSink.
func (kes *EventSink) IndexPrune(ev types.EventDataPrune) error {
	return kes.setStatus(ev.HeaderHash, ev.TypeTag(), ev)
}

// SubmissionByHash implements eventlog.EventSink. It returns nil with no
// error if the hash has not been indexed.
func (kes *EventSink) SubmissionByHash(headerHash tmbytes.HexBytes) (*types.EventDataSubmission, error) {
	if err := validateHash(headerHash); err != nil {
		return nil, err
	}
	return kes.getSubmission(headerHash)
}

// SubmissionsByHeight implements eventlog.EventSink.
func (kes *EventSink) SubmissionsByHeight(height uint64) ([]*types.EventDataSubmission, error) {
	start, err := orderedcode.Append(nil, prefixHeight, height)
	if err != nil {
		panic(err)
	}
	end, err := orderedcode.Append(nil, prefixHeight, height, orderedcode.Infinity)
	if err != nil {
		panic(err)
	}

	it, err := kes.store.Iterator(start, end)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var evs []*types.EventDataSubmission
	for ; it.Valid(); it.Next() {
		hash, err := parseHeightKey(it.Key())
		if err != nil {
			return nil, err
		}
		ev, err := kes.getSubmission(hash)
		if err != nil {
			return nil, err
		}
		if ev == nil {
			return nil, fmt.Errorf("height index points at unknown submission %X", hash)
		}
		evs = append(evs, ev)
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	return evs, nil
}

// SubmissionStatus returns the terminal event indexed for the given header
// hash: types.EventFraudValue, types.EventFinalizeValue or
// types.EventPruneValue, or "" while the submission is still pending.
func (kes *EventSink) SubmissionStatus(headerHash tmbytes.HexBytes) (string, error) {
	if err := validateHash(headerHash); err != nil {
		return "", err
	}
	bz, err := kes.store.Get(statusKey(headerHash))
	if err != nil {
		return "", err
	}
	if bz == nil {
		return "", nil
	}
	var rec statusRecord
	if err := json.Unmarshal(bz, &rec); err != nil {
		return "", fmt.Errorf("corrupt status record for %X: %w", headerHash, err)
	}
	return rec.Event, nil
}

// Stop implements eventlog.EventSink.
func (kes *EventSink) Stop() error { return kes.store.Close() }

// statusRecord is the stored form of a terminal lifecycle event. The full
// event payload rides along so the record is inspectable without the bridge
// db.
type statusRecord struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func (kes *EventSink) setStatus(headerHash tmbytes.HexBytes, event string, data interface{}) error {
	if err := validateHash(headerHash); err != nil {
		return err
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	bz, err := json.Marshal(statusRecord{Event: event, Data: payload})
	if err != nil {
		return err
	}
	return kes.store.SetSync(statusKey(headerHash), bz)
}

func (kes *EventSink) getSubmission(headerHash tmbytes.HexBytes) (*types.EventDataSubmission, error) {
	subBz, err := kes.store.Get(submissionKey(headerHash))
	if err != nil {
		return nil, err
	}
	if subBz == nil {
		return nil, nil
	}
	sub, err := types.DecodeSubmission(subBz)
	if err != nil {
		return nil, err
	}

	lbBz, err := kes.store.Get(blockKey(headerHash))
	if err != nil {
		return nil, err
	}
	if lbBz == nil {
		return nil, fmt.Errorf("submission %X has no stored light block", headerHash)
	}
	lb, err := types.DecodeLightBlock(lbBz)
	if err != nil {
		return nil, err
	}

	return &types.EventDataSubmission{
		HeaderHash: headerHash.Copy(),
		Height:     sub.Height,
		Submission: sub,
		LightBlock: lb,
	}, nil
}

func validateHash(headerHash tmbytes.HexBytes) error {
	if len(headerHash) != crypto.HashSize {
		return fmt.Errorf("header hash must be %d bytes, got %d", crypto.HashSize, len(headerHash))
	}
	return nil
}

func submissionKey(headerHash []byte) []byte {
	return hashKey(prefixSubmission, headerHash)
}

func blockKey(headerHash []byte) []byte {
	return hashKey(prefixBlock, headerHash)
}

func statusKey(headerHash []byte) []byte {
	return hashKey(prefixStatus, headerHash)
}

func hashKey(prefix int64, headerHash []byte) []byte {
	key, err := orderedcode.Append(nil, prefix, string(headerHash))
	if err != nil {
		panic(err)
	}
	return key
}

func heightKey(height uint64, headerHash []byte) []byte {
	key, err := orderedcode.Append(nil, prefixHeight, height, string(headerHash))
	if err != nil {
		panic(err)
	}
	return key
}

func parseHeightKey(key []byte) (tmbytes.HexBytes, error) {
	var (
		prefix int64
		height uint64
		hash   string
	)
	remaining, err := orderedcode.Parse(string(key), &prefix, &height, &hash)
	if err != nil {
		return nil, err
	}
	if remaining != "" {
		return nil, fmt.Errorf("unexpected remainder in height key: %s", remaining)
	}
	if prefix != prefixHeight {
		return nil, fmt.Errorf("incorrect prefix: expected %v, got %v", prefixHeight, prefix)
	}
	return tmbytes.HexBytes(hash), nil
}
