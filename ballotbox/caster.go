package ballotbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Coded483-max/smartvote-node/log"
	"github.com/Coded483-max/smartvote-node/storage"
	"github.com/Coded483-max/smartvote-node/types"
)

// ledgerSubmitTimeout bounds the asynchronous on-chain submission of one
// accepted cast, including transaction mining.
const ledgerSubmitTimeout = 2 * time.Minute

// Box coordinates the full cast pipeline. Safe for concurrent use.
type Box struct {
	store    DocumentStore
	cache    VoteCache
	prover   ProofPipeline
	ledger   LedgerSubmitter
	notifier Notifier

	wg sync.WaitGroup
}

// NewBox wires the cast pipeline. cache, ledger and notifier may be nil.
func NewBox(store DocumentStore, cache VoteCache, prover ProofPipeline, ledger LedgerSubmitter, notifier Notifier) *Box {
	return &Box{
		store:    store,
		cache:    cache,
		prover:   prover,
		ledger:   ledger,
		notifier: notifier,
	}
}

// Close waits for in-flight ledger submissions to finish.
func (b *Box) Close() {
	b.wg.Wait()
}

// Cast validates and persists a complete ballot. The operation is
// all-or-nothing: a failure at any step before durable persistence leaves no
// trace of the attempt. On success the ledger submission is dispatched
// asynchronously and the returned record carries ledger status "pending".
func (b *Box) Cast(ctx context.Context, req *CastRequest) (*CastResult, error) {
	req.normalize()
	if req.ElectionID == "" || req.VoterID == "" {
		return nil, &ValidationError{Issues: []ValidationIssue{
			{Message: "electionId and voterId are required"},
		}}
	}

	e, err := b.store.Election(ctx, req.ElectionID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if !e.AcceptingVotes(now) {
		return nil, &WindowError{
			Status:    e.Status,
			VoteStart: e.VoteStart,
			VoteEnd:   e.VoteEnd,
			Now:       now,
		}
	}

	// The cache only accelerates rejection. A cache miss, or a cached
	// "not voted", always falls through to the store.
	if b.cache != nil {
		if voted, hit := b.cache.HasVoted(ctx, req.ElectionID, req.VoterID); hit && voted {
			return nil, ErrAlreadyVoted
		}
	}
	voted, err := b.store.HasVoted(ctx, req.ElectionID, req.VoterID)
	if err != nil {
		return nil, err
	}
	if voted {
		if b.cache != nil {
			b.cache.SetHasVoted(ctx, req.ElectionID, req.VoterID, true)
		}
		return nil, ErrAlreadyVoted
	}

	if verr := ValidateSelections(e, req.Selections); verr != nil {
		return nil, verr
	}

	// Generate every proof before writing anything. A single failure
	// aborts the whole ballot.
	entries := make([]types.VoteEntry, 0, len(req.Selections))
	for _, sel := range req.Selections {
		proof, err := b.prover.Generate(ctx, req.VoterID, sel.CandidateID, req.ElectionID)
		if err != nil {
			return nil, fmt.Errorf("proof generation failed for position %q: %w", sel.PositionID, err)
		}
		entries = append(entries, types.VoteEntry{
			PositionID:  sel.PositionID,
			CandidateID: sel.CandidateID,
			Proof:       proof,
			Timestamp:   now.UTC(),
		})
	}
	// Every proof of a ballot binds the same (voter, election) pair, so
	// they all carry the same nullifier.
	nullifier := entries[0].Proof.NullifierHash.String()

	// The persistence unit is detached from the request context: a client
	// abandoning the request between the two writes must not leave a vote
	// record without its nullifier.
	pctx := context.WithoutCancel(ctx)

	rec := &types.VoteRecord{
		VoterID:      req.VoterID,
		Votes:        entries,
		Timestamp:    now.UTC(),
		LedgerStatus: types.LedgerStatusPending,
	}
	if err := b.store.AppendVoteRecord(pctx, req.ElectionID, rec); err != nil {
		if errors.Is(err, storage.ErrAlreadyVoted) {
			return nil, ErrAlreadyVoted
		}
		return nil, err
	}
	if err := b.store.AddNullifier(pctx, &types.Nullifier{
		Hash:       nullifier,
		ElectionID: req.ElectionID,
		VoterID:    req.VoterID,
		Timestamp:  now.UTC(),
	}); err != nil {
		// The record went in but the nullifier did not: undo the record
		// so the failed cast leaves no trace.
		if rerr := b.store.RemoveVoteRecord(pctx, req.ElectionID, req.VoterID); rerr != nil {
			log.Errorw(rerr, "failed to roll back vote record after nullifier conflict")
		}
		if errors.Is(err, storage.ErrNullifierExists) {
			return nil, ErrAlreadyVoted
		}
		return nil, err
	}

	// Cache writes happen only after both documents are durable. The
	// namespace wipe runs first: the voter flag lives under the election
	// namespace and must survive the invalidation.
	if b.cache != nil {
		b.cache.InvalidateElection(pctx, req.ElectionID)
		b.cache.SetHasVoted(pctx, req.ElectionID, req.VoterID, true)
	}

	log.Infow("ballot accepted",
		"election", req.ElectionID, "positions", len(entries), "nullifier", nullifier)

	if b.ledger != nil {
		b.wg.Add(1)
		go b.submitToLedger(e.LedgerElectionID, req.ElectionID, req.VoterID, entries)
	}
	if b.notifier != nil {
		b.notifier.VoteCast(pctx, req.VoterID, req.ElectionID, nullifier, len(entries))
	}

	return &CastResult{
		ElectionID:    req.ElectionID,
		VoterID:       req.VoterID,
		NullifierHash: nullifier,
		Record:        rec,
	}, nil
}

// submitToLedger pushes one accepted ballot on-chain, one vote transaction
// per selection. It runs detached from the request: a failure marks the
// record "unconfirmed" so the event reconciler can repair it later, and is
// never surfaced to the voter.
func (b *Box) submitToLedger(ledgerElectionID uint64, electionID, voterID string, entries []types.VoteEntry) {
	defer b.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), ledgerSubmitTimeout)
	defer cancel()

	var firstTxHash string
	var firstBlock uint64
	for i := range entries {
		txHash, blockNumber, err := b.ledger.SubmitVote(ctx,
			ledgerElectionID, entries[i].CandidateID, entries[i].Proof)
		if err != nil {
			log.Warnw("ledger submission failed, marking vote unconfirmed",
				"election", electionID, "position", entries[i].PositionID,
				"error", err.Error())
			// Fresh context: ctx may be the expired deadline that failed
			// the submission in the first place.
			sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer scancel()
			if serr := b.store.SetLedgerStatus(sctx, electionID, voterID, types.LedgerStatusUnconfirmed); serr != nil {
				log.Errorw(serr, "failed to mark vote unconfirmed")
			}
			return
		}
		if firstTxHash == "" {
			firstTxHash, firstBlock = txHash, blockNumber
		}
	}
	if err := b.store.SetLedgerResult(ctx, electionID, voterID, firstTxHash, firstBlock); err != nil {
		log.Errorw(err, "failed to attach ledger result to vote record")
		return
	}
	if b.cache != nil {
		b.cache.InvalidateElection(ctx, electionID)
		b.cache.SetHasVoted(ctx, electionID, voterID, true)
	}
	log.Infow("vote confirmed on ledger",
		"election", electionID, "votes", len(entries), "txHash", firstTxHash, "block", firstBlock)
}
