// Package service hosts the background workers that keep the document store
// consistent with the external ledger.
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Coded483-max/smartvote-node/log"
	"github.com/Coded483-max/smartvote-node/storage"
	"github.com/Coded483-max/smartvote-node/types"
	"github.com/Coded483-max/smartvote-node/web3"
)

// seenTxCacheSize bounds the in-memory fast path of already reconciled
// transaction hashes. The ledger_votes collection stays authoritative; the
// cache only skips repeat store lookups within a process lifetime.
const seenTxCacheSize = 4096

// ReconcilerStore is the slice of the document store the reconciler writes
// through. Implemented by *storage.Storage.
type ReconcilerStore interface {
	ElectionByLedgerID(ctx context.Context, ledgerID uint64) (*types.Election, error)
	RecordLedgerVote(ctx context.Context, lv *types.LedgerVote) error
	ConfirmVoteByNullifier(ctx context.Context, ledgerElectionID uint64, nullifierHash, txHash string, blockNumber uint64) error
}

// Reconciler consumes VoteCast events from the ledger monitor and writes
// them back into the document store. Every event is processed exactly once
// per transaction hash; duplicate deliveries (restart replays, overlapping
// filter windows) are absorbed by the unique ledger_votes insert.
type Reconciler struct {
	store  ReconcilerStore
	seenTx *lru.Cache[string, struct{}]

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewReconciler creates a reconciler over the given store.
func NewReconciler(store ReconcilerStore) *Reconciler {
	seen, err := lru.New[string, struct{}](seenTxCacheSize)
	if err != nil {
		panic(err) // only fails on non-positive size
	}
	return &Reconciler{store: store, seenTx: seen}
}

// Start consumes events from ch until it is closed or ctx is cancelled.
func (r *Reconciler) Start(ctx context.Context, ch <-chan *web3.VoteCastEvent) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-ch:
				if !ok {
					return
				}
				if err := r.Handle(ctx, event); err != nil {
					log.Warnw("failed to reconcile vote cast event",
						"tx", event.TxHash, "ledgerElectionId", event.LedgerElectionID,
						"error", err.Error())
				}
			}
		}
	}()
}

// Close stops the consumer loop and waits for it.
func (r *Reconciler) Close() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

// Handle reconciles one event. Idempotent by transaction hash: the LRU
// fast path short-circuits repeats seen by this process, and the unique
// insert into ledger_votes is the authoritative duplicate filter across
// restarts.
func (r *Reconciler) Handle(ctx context.Context, event *web3.VoteCastEvent) error {
	if _, seen := r.seenTx.Get(event.TxHash); seen {
		return nil
	}

	e, err := r.store.ElectionByLedgerID(ctx, event.LedgerElectionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// An event for an election this node never created. Not an
			// error: another node may share the contract.
			log.Debugw("ignoring vote cast event for unknown election",
				"ledgerElectionId", event.LedgerElectionID, "tx", event.TxHash)
			r.seenTx.Add(event.TxHash, struct{}{})
			return nil
		}
		return err
	}

	lv := &types.LedgerVote{
		TxHash:           event.TxHash,
		LedgerElectionID: event.LedgerElectionID,
		ElectionID:       e.ID,
		CandidateField:   event.CandidateField.String(),
		NullifierHash:    event.NullifierHash.String(),
		CommitmentHash:   event.CommitmentHash.String(),
		BlockNumber:      event.BlockNumber,
		ReconciledAt:     time.Now().UTC(),
	}
	if err := r.store.RecordLedgerVote(ctx, lv); err != nil && !errors.Is(err, storage.ErrLedgerVoteExists) {
		return err
	}

	// Attach the confirmation to the matching vote record. This runs even
	// when the ledger_votes insert hit a duplicate: a replayed event may be
	// retrying a confirmation that failed after the insert succeeded. A
	// miss is fine: the vote may have been submitted by the synchronous
	// path, which already confirmed it, or cast directly on-chain.
	err = r.store.ConfirmVoteByNullifier(ctx,
		event.LedgerElectionID, event.NullifierHash.String(), event.TxHash, event.BlockNumber)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	r.seenTx.Add(event.TxHash, struct{}{})
	log.Infow("reconciled vote cast event",
		"election", e.ID, "tx", event.TxHash, "block", event.BlockNumber)
	return nil
}
