// Package bridge implements the optimistic header relay. Bonded
// submissions extend a tracked remote chain one block at a time, fraud
// proofs roll the tip back to the offender's parent, and submissions whose
// fraud window has closed finalize and release their bond. Orphans left
// behind by a rollback are pruned for half their bond.
package bridge

import (
	"context"
	"fmt"
	"sync"

	"github.com/oprelay/oprelay/crypto"
	tmbytes "github.com/oprelay/oprelay/libs/bytes"
	"github.com/oprelay/oprelay/libs/log"
	"github.com/oprelay/oprelay/types"
)

// Bridge is the submission lifecycle over a Store, an Escrow, and a
// CommitVerifier. A submission is Pending from acceptance until it is
// finalized (cleared to a residue, bond released) or removed by a fraud
// proof or a prune (observable afterwards only as absence).
//
// Callers pass their own copies of the records they act on; a copy that no
// longer matches the stored record means the caller raced another writer
// and the call is rejected before anything moves.
type Bridge struct {
	logger   log.Logger
	metrics  *Metrics
	eventBus types.EventPublisher

	store    *Store
	escrow   *Escrow
	verifier CommitVerifier
	params   types.Params

	// mtx serializes all state-changing calls. Each one validates
	// completely before its first effect, and effects run bank, then store
	// batch, then events: every returned error is a no-op.
	mtx        sync.Mutex
	hostHeight uint64
}

// Option sets an optional parameter on the Bridge.
type Option func(*Bridge)

// WithMetrics sets the metrics recorder.
func WithMetrics(m *Metrics) Option {
	return func(b *Bridge) { b.metrics = m }
}

// WithEventPublisher sets the publisher that receives lifecycle events
// after each successful operation.
func WithEventPublisher(p types.EventPublisher) Option {
	return func(b *Bridge) { b.eventBus = p }
}

// New returns a Bridge over the given store, escrow, and commit verifier,
// restoring the persisted host height.
func New(
	logger log.Logger,
	store *Store,
	escrow *Escrow,
	verifier CommitVerifier,
	params types.Params,
	options ...Option,
) (*Bridge, error) {
	if err := params.ValidateBasic(); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	hostHeight, err := store.HostHeight()
	if err != nil {
		return nil, err
	}

	// Every pending submission holds exactly one bond. Restore the entries
	// the process lost on restart; the module account still has the funds.
	err = store.ForEachSubmission(func(hash tmbytes.HexBytes, sub *types.Submission) error {
		if sub.Finalized || escrow.Outstanding(hash) != 0 {
			return nil
		}
		return escrow.Restore(hash, params.BondAmount)
	})
	if err != nil {
		return nil, err
	}

	b := &Bridge{
		logger:     logger,
		metrics:    NopMetrics(),
		store:      store,
		escrow:     escrow,
		verifier:   verifier,
		params:     params,
		hostHeight: hostHeight,
	}
	for _, option := range options {
		option(b)
	}

	b.metrics.HostHeight.Set(float64(hostHeight))
	b.updateGauges()
	return b, nil
}

// InitGenesis records the remote genesis header hash and seeds the chain
// with its finalized residue at height 1, unbonded, with the tip on it.
// Initializing again with the same hash is a no-op, so restarts are safe; a
// different hash is an error.
func (b *Bridge) InitGenesis(genesisHash tmbytes.HexBytes) error {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	if err := b.store.Init(genesisHash); err != nil {
		return err
	}
	b.updateGauges()
	return nil
}

// Submit accepts a light block that extends the current tip, locks the
// attached bond, and advances the tip to the new header. claimedParent is
// the submitter's copy of the tip record; bond must equal the protocol bond
// amount. Returns the header hash the submission is stored under.
func (b *Bridge) Submit(
	ctx context.Context,
	lb *types.LightBlock,
	claimedParent *types.Submission,
	submitter crypto.Address,
	bond uint64,
) (tmbytes.HexBytes, error) {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	if err := lb.ValidateBasic(); err != nil {
		return nil, b.reject("submit", ErrMalformedCommit{Reason: err})
	}
	if len(submitter) != crypto.AddressSize {
		return nil, fmt.Errorf("wrong submitter: expected size to be %d bytes, got %d bytes",
			crypto.AddressSize, len(submitter))
	}
	headerHash := lb.Header.Hash()

	tip := b.store.Tip()
	if !lb.Header.LastHeaderHash.Equal(tip) {
		return nil, b.reject("submit", ErrTipConflict{Tip: tip, ParentHash: lb.Header.LastHeaderHash.Copy()})
	}
	existing, err := b.store.Get(headerHash)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, b.reject("submit", ErrTipConflict{HeaderHash: headerHash})
	}

	tipStored, err := b.store.Get(tip)
	if err != nil {
		return nil, err
	}
	if tipStored == nil {
		panic(fmt.Sprintf("tip %X has no record", tip))
	}
	tipCommitment := tipStored.Commitment()
	if claimedParent == nil || !tipCommitment.Equal(claimedParent.Commitment()) {
		var got tmbytes.HexBytes
		if claimedParent != nil {
			got = claimedParent.Commitment()
		}
		return nil, b.reject("submit", ErrStaleParent{Expected: tipCommitment, Got: got})
	}

	parentHeight, err := b.store.HeightByCommitment(tipCommitment)
	if err != nil {
		return nil, err
	}
	if parentHeight == 0 || lb.Header.Height != parentHeight+1 {
		return nil, b.reject("submit", ErrHeightMismatch{Expected: parentHeight + 1, Actual: lb.Header.Height})
	}

	if bond != b.params.BondAmount {
		return nil, b.reject("submit", ErrBadBondAmount{Want: b.params.BondAmount, Got: bond})
	}

	lastCommitHash := lb.LastCommit.Hash()
	if lastCommitHash == nil {
		return nil, b.reject("submit", ErrMalformedCommit{Reason: fmt.Errorf("commit does not encode canonically")})
	}
	sub := &types.Submission{
		Height:         lb.Header.Height,
		ParentHash:     lb.Header.LastHeaderHash.Copy(),
		Submitter:      submitter.Copy(),
		SubmittedAt:    b.hostHeight,
		LastCommitHash: lastCommitHash,
	}

	if err := b.escrow.Lock(submitter, headerHash, bond); err != nil {
		return nil, b.reject("submit", err)
	}
	if err := b.store.InsertAndAdvance(headerHash, sub); err != nil {
		// unwind the escrow lock
		if _, rerr := b.escrow.Release(headerHash, submitter); rerr != nil {
			panic(fmt.Sprintf("cannot refund bond for header %X: %v", headerHash, rerr))
		}
		return nil, err
	}

	b.metrics.Submissions.Add(1)
	b.updateGauges()
	b.publishSubmission(types.EventDataSubmission{
		HeaderHash: headerHash,
		Height:     sub.Height,
		Submission: sub.Copy(),
		LightBlock: lb,
	})
	b.logger.Info("accepted submission",
		"hash", headerHash,
		"height", sub.Height,
		"submitter", submitter,
		"bond", bond)
	return headerHash, nil
}

// ProveFraud removes the submission under headerHash and rolls the tip back
// to its parent, if the challenger can show that the commit the submitter
// vouched for is not a valid remote commit. evidence must be the exact
// commit the submission committed to; the verifier accepting it fails the
// call with ErrFraudNotProven. The slashed bond is split between the
// challenger and the retention address.
//
// The target must sit at or below the tip: descendants of a removed
// submission are prune targets, not fraud targets.
func (b *Bridge) ProveFraud(
	ctx context.Context,
	headerHash tmbytes.HexBytes,
	submission, tipSubmission *types.Submission,
	evidence *types.Commit,
	challenger crypto.Address,
) error {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	stored, err := b.store.Get(headerHash)
	if err != nil {
		return err
	}
	if stored == nil || stored.Finalized || submission == nil ||
		!stored.Commitment().Equal(submission.Commitment()) {
		return b.reject("prove_fraud", ErrUnknownOrFinalizedSubmission{HeaderHash: headerHash.Copy()})
	}

	tip := b.store.Tip()
	tipStored, err := b.store.Get(tip)
	if err != nil {
		return err
	}
	if tipStored == nil {
		panic(fmt.Sprintf("tip %X has no record", tip))
	}
	tipCommitment := tipStored.Commitment()
	if tipSubmission == nil || !tipCommitment.Equal(tipSubmission.Commitment()) {
		var got tmbytes.HexBytes
		if tipSubmission != nil {
			got = tipSubmission.Commitment()
		}
		return b.reject("prove_fraud", ErrStaleParent{Expected: tipCommitment, Got: got})
	}

	if stored.Height > tipStored.Height {
		return b.reject("prove_fraud", ErrHeightMismatch{Expected: tipStored.Height, Actual: stored.Height})
	}

	evidenceHash := evidence.Hash()
	if evidenceHash == nil || !evidenceHash.Equal(stored.LastCommitHash) {
		return b.reject("prove_fraud", ErrMalformedCommit{
			Reason: fmt.Errorf("evidence does not hash to the recorded last commit hash %X", stored.LastCommitHash),
		})
	}

	verr := b.verifier.VerifyCommit(ctx, evidence, stored.ParentHash, stored.Height-1)
	if verr == nil {
		return b.reject("prove_fraud", ErrFraudNotProven{HeaderHash: headerHash.Copy()})
	}

	toCaller, retained, err := b.escrow.Split(headerHash, challenger)
	if err != nil {
		return err
	}
	if err := b.store.Remove(headerHash, stored.ParentHash); err != nil {
		panic(fmt.Sprintf("cannot remove submission %X after payout: %v", headerHash, err))
	}

	b.metrics.FraudsProven.Add(1)
	b.updateGauges()
	b.publishFraud(types.EventDataFraud{
		HeaderHash: headerHash.Copy(),
		Height:     stored.Height,
		NewTip:     stored.ParentHash,
		Challenger: challenger,
		Slashed:    toCaller + retained,
	})
	b.logger.Info("fraud proven",
		"hash", headerHash,
		"height", stored.Height,
		"new_tip", stored.ParentHash,
		"challenger", challenger,
		"slashed", toCaller+retained,
		"reason", verr)
	return nil
}

// FinalizeBlocks finalizes the given submissions, releasing each bond in
// full to its original submitter. The call is atomic: every entry is
// validated against current state, with earlier entries of the same call
// already counted as finalized, before anything moves. Finalization is
// parent before child, so the batch must be listed in that order and a
// submission whose ancestor was removed by fraud can never finalize. An
// empty batch is a no-op.
func (b *Bridge) FinalizeBlocks(ctx context.Context, headerHashes []tmbytes.HexBytes, subs []*types.Submission) error {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	if len(headerHashes) != len(subs) {
		return b.reject("finalize", ErrMismatchedBatch{Hashes: len(headerHashes), Submissions: len(subs)})
	}
	if len(headerHashes) == 0 {
		return nil
	}

	stored := make([]*types.Submission, len(headerHashes))
	finalized := make(map[string]bool, len(headerHashes))
	for i, hash := range headerHashes {
		rec, err := b.store.Get(hash)
		if err != nil {
			return err
		}
		if rec == nil || rec.Finalized || finalized[string(hash)] || subs[i] == nil ||
			!rec.Commitment().Equal(subs[i].Commitment()) {
			return b.reject("finalize", ErrUnknownOrFinalizedSubmission{HeaderHash: hash.Copy()})
		}

		parent, err := b.store.Get(rec.ParentHash)
		if err != nil {
			return err
		}
		if parent == nil || (!parent.Finalized && !finalized[string(rec.ParentHash)]) {
			return b.reject("finalize", ErrUnknownOrFinalizedSubmission{HeaderHash: rec.ParentHash})
		}

		if b.hostHeight <= rec.SubmittedAt+b.params.FraudPeriod {
			return b.reject("finalize", ErrTimeoutNotElapsed{
				SubmittedAt: rec.SubmittedAt,
				FraudPeriod: b.params.FraudPeriod,
				HostHeight:  b.hostHeight,
			})
		}

		stored[i] = rec
		finalized[string(hash)] = true
	}

	recipients := make([]crypto.Address, len(headerHashes))
	for i := range stored {
		recipients[i] = stored[i].Submitter
	}
	amounts, err := b.escrow.ReleaseAll(headerHashes, recipients)
	if err != nil {
		return err
	}
	if err := b.store.FinalizeAll(headerHashes); err != nil {
		panic(fmt.Sprintf("cannot finalize submissions after payout: %v", err))
	}

	b.metrics.FinalizedBlocks.Add(float64(len(headerHashes)))
	b.updateGauges()
	for i, hash := range headerHashes {
		b.publishFinalize(types.EventDataFinalize{
			HeaderHash: hash.Copy(),
			Height:     stored[i].Height,
			Submitter:  stored[i].Submitter,
			Released:   amounts[i],
		})
		b.logger.Info("finalized submission",
			"hash", hash,
			"height", stored[i].Height,
			"submitter", stored[i].Submitter,
			"released", amounts[i])
	}
	return nil
}

// PruneBlocks removes orphaned submissions, paying half of each bond to the
// pruner and retaining the rest. A target qualifies only while Pending and
// only once its parent record is gone, removed by fraud or by an earlier
// entry of the same call, so batches are listed parent before child. The
// call is atomic and an empty batch is a no-op. The tip is never on an
// orphaned branch, so pruning never moves it.
func (b *Bridge) PruneBlocks(ctx context.Context, headerHashes []tmbytes.HexBytes, subs []*types.Submission, pruner crypto.Address) error {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	if len(headerHashes) != len(subs) {
		return b.reject("prune", ErrMismatchedBatch{Hashes: len(headerHashes), Submissions: len(subs)})
	}
	if len(headerHashes) == 0 {
		return nil
	}

	stored := make([]*types.Submission, len(headerHashes))
	deleted := make(map[string]bool, len(headerHashes))
	for i, hash := range headerHashes {
		rec, err := b.store.Get(hash)
		if err != nil {
			return err
		}
		if rec == nil || rec.Finalized || deleted[string(hash)] || subs[i] == nil ||
			!rec.Commitment().Equal(subs[i].Commitment()) {
			return b.reject("prune", ErrUnknownOrFinalizedSubmission{HeaderHash: hash.Copy()})
		}

		if !deleted[string(rec.ParentHash)] {
			parent, err := b.store.Get(rec.ParentHash)
			if err != nil {
				return err
			}
			if parent != nil {
				return b.reject("prune", ErrParentNotOrphaned{HeaderHash: hash.Copy(), ParentHash: rec.ParentHash})
			}
		}

		stored[i] = rec
		deleted[string(hash)] = true
	}

	callerAmounts, retainedAmounts, err := b.escrow.SplitAll(headerHashes, pruner)
	if err != nil {
		return err
	}
	if err := b.store.RemoveAll(headerHashes); err != nil {
		panic(fmt.Sprintf("cannot remove orphans after payout: %v", err))
	}

	b.metrics.PrunedBlocks.Add(float64(len(headerHashes)))
	b.updateGauges()
	for i, hash := range headerHashes {
		b.publishPrune(types.EventDataPrune{
			HeaderHash: hash.Copy(),
			Height:     stored[i].Height,
			Pruner:     pruner,
			Paid:       callerAmounts[i],
		})
		b.logger.Info("pruned orphan",
			"hash", hash,
			"height", stored[i].Height,
			"paid", callerAmounts[i],
			"retained", retainedAmounts[i])
	}
	return nil
}

// AdvanceHost moves the host chain height forward and persists it, so
// restarts keep fraud-window arithmetic coherent. The height may repeat but
// never decrease.
func (b *Bridge) AdvanceHost(height uint64) error {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	if height < b.hostHeight {
		return fmt.Errorf("host height may not decrease: have %d, got %d", b.hostHeight, height)
	}
	if height == b.hostHeight {
		return nil
	}
	b.store.SetHostHeight(height)
	b.hostHeight = height
	b.metrics.HostHeight.Set(float64(height))
	return nil
}

// Tip returns the header hash of the current chain tip, nil before
// InitGenesis.
func (b *Bridge) Tip() tmbytes.HexBytes {
	return b.store.Tip()
}

// TipSubmission returns the record addressed by the tip.
func (b *Bridge) TipSubmission() (*types.Submission, error) {
	tip := b.store.Tip()
	if len(tip) == 0 {
		return nil, fmt.Errorf("bridge is not initialized")
	}
	sub, err := b.store.Get(tip)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		panic(fmt.Sprintf("tip %X has no record", tip))
	}
	return sub, nil
}

// GenesisHash returns the remote genesis header hash, nil before
// InitGenesis.
func (b *Bridge) GenesisHash() tmbytes.HexBytes {
	return b.store.GenesisHash()
}

// Submission returns the stored record for headerHash, nil if absent.
func (b *Bridge) Submission(headerHash tmbytes.HexBytes) (*types.Submission, error) {
	return b.store.Get(headerHash)
}

// HostHeight returns the current host chain height.
func (b *Bridge) HostHeight() uint64 {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	return b.hostHeight
}

// Params returns the protocol parameters.
func (b *Bridge) Params() types.Params {
	return b.params
}

// PendingCount returns the number of submissions awaiting finalization.
func (b *Bridge) PendingCount() int64 {
	return b.store.PendingCount()
}

// caller must hold b.mtx
func (b *Bridge) updateGauges() {
	tip := b.store.Tip()
	if len(tip) > 0 {
		if sub, err := b.store.Get(tip); err == nil && sub != nil {
			b.metrics.TipHeight.Set(float64(sub.Height))
		}
	}
	b.metrics.PendingSubmissions.Set(float64(b.store.PendingCount()))
	b.metrics.EscrowedBond.Set(float64(b.escrow.TotalLocked()))
}

func (b *Bridge) reject(op string, err error) error {
	b.metrics.RejectedOps.With("op", op, "reason", rejectReason(err)).Add(1)
	return err
}

func rejectReason(err error) string {
	switch err.(type) {
	case ErrBadBondAmount:
		return "bad_bond_amount"
	case ErrTipConflict:
		return "tip_conflict"
	case ErrStaleParent:
		return "stale_parent"
	case ErrHeightMismatch:
		return "height_mismatch"
	case ErrMalformedCommit:
		return "malformed_commit"
	case ErrUnknownOrFinalizedSubmission:
		return "unknown_or_finalized"
	case ErrFraudNotProven:
		return "fraud_not_proven"
	case ErrTimeoutNotElapsed:
		return "timeout_not_elapsed"
	case ErrParentNotOrphaned:
		return "parent_not_orphaned"
	case ErrMismatchedBatch:
		return "mismatched_batch"
	case ErrInsufficientFunds:
		return "insufficient_funds"
	default:
		return "other"
	}
}

func (b *Bridge) publishSubmission(ev types.EventDataSubmission) {
	if b.eventBus == nil {
		return
	}
	if err := b.eventBus.PublishEventSubmission(ev); err != nil {
		b.logger.Error("failed publishing submission event", "err", err)
	}
}

func (b *Bridge) publishFraud(ev types.EventDataFraud) {
	if b.eventBus == nil {
		return
	}
	if err := b.eventBus.PublishEventFraud(ev); err != nil {
		b.logger.Error("failed publishing fraud event", "err", err)
	}
}

func (b *Bridge) publishFinalize(ev types.EventDataFinalize) {
	if b.eventBus == nil {
		return
	}
	if err := b.eventBus.PublishEventFinalize(ev); err != nil {
		b.logger.Error("failed publishing finalize event", "err", err)
	}
}

func (b *Bridge) publishPrune(ev types.EventDataPrune) {
	if b.eventBus == nil {
		return
	}
	if err := b.eventBus.PublishEventPrune(ev); err != nil {
		b.logger.Error("failed publishing prune event", "err", err)
	}
}
