package bridge

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/google/orderedcode"
	"github.com/pkg/errors"
	dbm "github.com/tendermint/tm-db"

	"github.com/oprelay/oprelay/crypto"
	tmbytes "github.com/oprelay/oprelay/libs/bytes"
	"github.com/oprelay/oprelay/types"
)

/*
Store is the persistent header-chain store.

There are four kinds of information stored:
 - Submission:   one record per accepted header, keyed by header hash
 - Height index: submission commitment -> height, so a claimed parent's
                 height can be checked before its child's hash exists
 - Tip pointer:  header hash of the current chain tip
 - Genesis hash + persisted host height

Multi-key updates go through a batch committed with WriteSync, so every
mutation is all-or-nothing. Write failures panic: a half-applied batch
would mean db corruption. Read failures return wrapped errors, except for
records that fail to decode, which also indicate corruption.

Safe for concurrent use by multiple goroutines.
*/
type Store struct {
	db dbm.DB

	mtx     sync.RWMutex
	tip     tmbytes.HexBytes
	genesis tmbytes.HexBytes
	size    int64
	pending int64
}

const (
	// prefixes are unique across the bridge db
	prefixSubmission = int64(0)
	prefixHeight     = int64(1)
	prefixTip        = int64(2)
	prefixGenesis    = int64(3)
	prefixHostHeight = int64(4)
)

func submissionKey(headerHash []byte) []byte {
	key, err := orderedcode.Append(nil, prefixSubmission, string(headerHash))
	if err != nil {
		panic(err)
	}
	return key
}

func decodeSubmissionKey(key []byte) (tmbytes.HexBytes, error) {
	var (
		prefix int64
		hash   string
	)
	remaining, err := orderedcode.Parse(string(key), &prefix, &hash)
	if err != nil {
		return nil, err
	}
	if len(remaining) != 0 {
		return nil, fmt.Errorf("expected complete key but got remainder: %s", remaining)
	}
	if prefix != prefixSubmission {
		return nil, fmt.Errorf("incorrect prefix: expected %v, got %v", prefixSubmission, prefix)
	}
	return []byte(hash), nil
}

func heightKey(commitment []byte) []byte {
	key, err := orderedcode.Append(nil, prefixHeight, string(commitment))
	if err != nil {
		panic(err)
	}
	return key
}

func tipKey() []byte {
	return prefixKey(prefixTip)
}

func genesisKey() []byte {
	return prefixKey(prefixGenesis)
}

func hostHeightKey() []byte {
	return prefixKey(prefixHostHeight)
}

func prefixKey(prefix int64) []byte {
	key, err := orderedcode.Append(nil, prefix)
	if err != nil {
		panic(err)
	}
	return key
}

// NewStore opens a store over db, restoring the tip and genesis caches and
// recounting the stored records.
func NewStore(db dbm.DB) (*Store, error) {
	s := &Store{db: db}

	genesis, err := db.Get(genesisKey())
	if err != nil {
		return nil, errors.Wrap(err, "load genesis hash")
	}
	if len(genesis) > 0 {
		s.genesis = genesis
	}
	tip, err := db.Get(tipKey())
	if err != nil {
		return nil, errors.Wrap(err, "load tip")
	}
	if len(tip) > 0 {
		s.tip = tip
	}
	if (len(s.genesis) == 0) != (len(s.tip) == 0) {
		return nil, fmt.Errorf("store has genesis %X but tip %X", s.genesis, s.tip)
	}

	err = s.forEach(func(headerHash tmbytes.HexBytes, sub *types.Submission) error {
		s.size++
		if !sub.Finalized {
			s.pending++
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "count submissions")
	}
	return s, nil
}

// Init writes the genesis residue: the genesis hash, a finalized record at
// height 1 under it, its height index entry, and the tip pointing at it.
// Initializing twice with the same hash is a no-op; a different hash is an
// error.
func (s *Store) Init(genesisHash tmbytes.HexBytes) error {
	if len(genesisHash) != crypto.HashSize {
		return fmt.Errorf("genesis hash must be %d bytes, got %d", crypto.HashSize, len(genesisHash))
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	if len(s.genesis) > 0 {
		if s.genesis.Equal(genesisHash) {
			return nil
		}
		return fmt.Errorf("store already initialized for genesis %X", s.genesis)
	}

	residue := (&types.Submission{Height: 1}).Clear()
	bz, err := types.EncodeSubmission(residue)
	if err != nil {
		return errors.Wrap(err, "marshalling genesis residue")
	}

	b := s.db.NewBatch()
	mustBatchSet(b, genesisKey(), genesisHash)
	mustBatchSet(b, submissionKey(genesisHash), bz)
	mustBatchSet(b, heightKey(residue.Commitment()), encodeHeight(residue.Height))
	mustBatchSet(b, tipKey(), genesisHash)
	mustWrite(b)

	s.genesis = genesisHash.Copy()
	s.tip = genesisHash.Copy()
	s.size = 1
	s.pending = 0
	return nil
}

// Get loads the submission stored under headerHash. Absent records return
// nil with no error; the lifecycle layer maps absence to its own errors.
func (s *Store) Get(headerHash tmbytes.HexBytes) (*types.Submission, error) {
	bz, err := s.db.Get(submissionKey(headerHash))
	if err != nil {
		return nil, errors.Wrap(err, "get submission")
	}
	if len(bz) == 0 {
		return nil, nil
	}
	return mustDecodeSubmission(bz), nil
}

// Tip returns the header hash of the current chain tip, or nil before Init.
func (s *Store) Tip() tmbytes.HexBytes {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.tip.Copy()
}

// GenesisHash returns the remote genesis header hash, or nil before Init.
func (s *Store) GenesisHash() tmbytes.HexBytes {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.genesis.Copy()
}

// HeightByCommitment returns the height recorded for a submission
// commitment, or 0 if the commitment is unknown.
func (s *Store) HeightByCommitment(commitment tmbytes.HexBytes) (uint64, error) {
	bz, err := s.db.Get(heightKey(commitment))
	if err != nil {
		return 0, errors.Wrap(err, "get height index")
	}
	if len(bz) == 0 {
		return 0, nil
	}
	if len(bz) != 8 {
		panic(fmt.Sprintf("corrupt height index entry: %d bytes", len(bz)))
	}
	return binary.BigEndian.Uint64(bz), nil
}

// HostHeight returns the persisted host chain height.
func (s *Store) HostHeight() (uint64, error) {
	bz, err := s.db.Get(hostHeightKey())
	if err != nil {
		return 0, errors.Wrap(err, "get host height")
	}
	if len(bz) == 0 {
		return 0, nil
	}
	if len(bz) != 8 {
		panic(fmt.Sprintf("corrupt host height entry: %d bytes", len(bz)))
	}
	return binary.BigEndian.Uint64(bz), nil
}

// SetHostHeight persists the host chain height.
func (s *Store) SetHostHeight(height uint64) {
	if err := s.db.SetSync(hostHeightKey(), encodeHeight(height)); err != nil {
		panic(err)
	}
}

// InsertAndAdvance stores a new submission under headerHash, records its
// height under its commitment, and advances the tip to headerHash, all in
// one batch. A record already stored under headerHash fails with
// ErrTipConflict.
func (s *Store) InsertAndAdvance(headerHash tmbytes.HexBytes, sub *types.Submission) error {
	bz, err := types.EncodeSubmission(sub)
	if err != nil {
		return errors.Wrap(err, "marshalling submission")
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	ok, err := s.db.Has(submissionKey(headerHash))
	if err != nil {
		return errors.Wrap(err, "check submission")
	}
	if ok {
		return ErrTipConflict{HeaderHash: headerHash.Copy()}
	}

	b := s.db.NewBatch()
	mustBatchSet(b, submissionKey(headerHash), bz)
	mustBatchSet(b, heightKey(sub.Commitment()), encodeHeight(sub.Height))
	mustBatchSet(b, tipKey(), headerHash)
	mustWrite(b)

	s.tip = headerHash.Copy()
	s.size++
	s.pending++
	return nil
}

// FinalizeAll overwrites every record with its cleared residue and moves
// each height index entry from the live commitment to the residue's, all in
// one batch. No record may be absent or already finalized.
func (s *Store) FinalizeAll(headerHashes []tmbytes.HexBytes) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	subs := make([]*types.Submission, len(headerHashes))
	for i, hash := range headerHashes {
		bz, err := s.db.Get(submissionKey(hash))
		if err != nil {
			return errors.Wrap(err, "get submission")
		}
		if len(bz) == 0 {
			return fmt.Errorf("no submission for header %X", hash)
		}
		subs[i] = mustDecodeSubmission(bz)
		if subs[i].Finalized {
			return fmt.Errorf("submission %X is already finalized", hash)
		}
	}

	b := s.db.NewBatch()
	for i, hash := range headerHashes {
		residue := subs[i].Clear()
		rbz, err := types.EncodeSubmission(residue)
		if err != nil {
			panic(fmt.Errorf("marshalling residue for %X: %w", hash, err))
		}
		mustBatchSet(b, submissionKey(hash), rbz)
		mustBatchDelete(b, heightKey(subs[i].Commitment()))
		mustBatchSet(b, heightKey(residue.Commitment()), encodeHeight(residue.Height))
	}
	mustWrite(b)

	s.pending -= int64(len(headerHashes))
	return nil
}

// Remove deletes the record under headerHash and its height index entry in
// one batch. When rollbackTipTo is non-nil the same batch rewrites the tip,
// which is how fraud rolls the chain back; prune passes nil, the tip is
// never on an orphaned branch.
func (s *Store) Remove(headerHash, rollbackTipTo tmbytes.HexBytes) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	bz, err := s.db.Get(submissionKey(headerHash))
	if err != nil {
		return errors.Wrap(err, "get submission")
	}
	if len(bz) == 0 {
		return fmt.Errorf("no submission for header %X", headerHash)
	}
	sub := mustDecodeSubmission(bz)

	b := s.db.NewBatch()
	mustBatchDelete(b, submissionKey(headerHash))
	mustBatchDelete(b, heightKey(sub.Commitment()))
	if len(rollbackTipTo) > 0 {
		mustBatchSet(b, tipKey(), rollbackTipTo)
	}
	mustWrite(b)

	s.size--
	if !sub.Finalized {
		s.pending--
	}
	if len(rollbackTipTo) > 0 {
		s.tip = rollbackTipTo.Copy()
	}
	return nil
}

// RemoveAll deletes every record and its height index entry in one batch.
// The tip is left alone: batch removal serves pruning, and the tip is never
// on an orphaned branch. No record may be absent.
func (s *Store) RemoveAll(headerHashes []tmbytes.HexBytes) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	subs := make([]*types.Submission, len(headerHashes))
	for i, hash := range headerHashes {
		bz, err := s.db.Get(submissionKey(hash))
		if err != nil {
			return errors.Wrap(err, "get submission")
		}
		if len(bz) == 0 {
			return fmt.Errorf("no submission for header %X", hash)
		}
		subs[i] = mustDecodeSubmission(bz)
	}

	b := s.db.NewBatch()
	for i, hash := range headerHashes {
		mustBatchDelete(b, submissionKey(hash))
		mustBatchDelete(b, heightKey(subs[i].Commitment()))
	}
	mustWrite(b)

	for _, sub := range subs {
		s.size--
		if !sub.Finalized {
			s.pending--
		}
	}
	return nil
}

// Size returns the number of stored records, finalized residues included.
func (s *Store) Size() int64 {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.size
}

// PendingCount returns the number of records not yet finalized.
func (s *Store) PendingCount() int64 {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.pending
}

// Base returns the lowest stored height, or 0 for an empty store.
func (s *Store) Base() uint64 {
	base := uint64(0)
	err := s.forEach(func(_ tmbytes.HexBytes, sub *types.Submission) error {
		if base == 0 || sub.Height < base {
			base = sub.Height
		}
		return nil
	})
	if err != nil {
		panic(err)
	}
	return base
}

// ForEachSubmission calls fn for every stored record, in header hash order.
// A non-nil error from fn stops the walk and is returned.
func (s *Store) ForEachSubmission(fn func(headerHash tmbytes.HexBytes, sub *types.Submission) error) error {
	return s.forEach(fn)
}

func (s *Store) forEach(fn func(headerHash tmbytes.HexBytes, sub *types.Submission) error) error {
	iter, err := s.db.Iterator(prefixKey(prefixSubmission), prefixKey(prefixSubmission+1))
	if err != nil {
		return errors.Wrap(err, "iterate submissions")
	}
	defer iter.Close()

	for ; iter.Valid(); iter.Next() {
		headerHash, err := decodeSubmissionKey(iter.Key())
		if err != nil {
			panic(fmt.Errorf("corrupt submission key %X: %w", iter.Key(), err))
		}
		if err := fn(headerHash, mustDecodeSubmission(iter.Value())); err != nil {
			return err
		}
	}
	return iter.Error()
}

func encodeHeight(height uint64) []byte {
	bz := make([]byte, 8)
	binary.BigEndian.PutUint64(bz, height)
	return bz
}

// mustDecodeSubmission decodes a stored record. Records are written
// canonically, so a record that fails to decode indicates db corruption.
func mustDecodeSubmission(bz []byte) *types.Submission {
	sub, err := types.DecodeSubmission(bz)
	if err != nil {
		panic(fmt.Errorf("corrupt submission record: %w", err))
	}
	return sub
}

func mustBatchSet(b dbm.Batch, key, value []byte) {
	if err := b.Set(key, value); err != nil {
		panic(err)
	}
}

func mustBatchDelete(b dbm.Batch, key []byte) {
	if err := b.Delete(key); err != nil {
		panic(err)
	}
}

func mustWrite(b dbm.Batch) {
	err := b.WriteSync()
	if cerr := b.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		panic(err)
	}
}
