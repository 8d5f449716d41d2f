package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/Coded483-max/smartvote-node/types"
)

// HasVoted reports whether a vote record for the voter exists in the
// election document. This is the authoritative fallback behind the cache
// fast path.
func (s *Storage) HasVoted(ctx context.Context, electionID, voterID string) (bool, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	n, err := s.elections.CountDocuments(ctx,
		bson.M{"_id": electionID, "votes.voterId": voterID})
	if err != nil {
		return false, fmt.Errorf("failed to check existing vote: %w", err)
	}
	return n > 0, nil
}

// AppendVoteRecord appends a vote record to the election document with a
// single atomic update. The filter requires that no record for the voter is
// present yet, so two concurrent casts from the same voter cannot both
// succeed even if every cache check raced.
func (s *Storage) AppendVoteRecord(ctx context.Context, electionID string, rec *types.VoteRecord) error {
	s.snapshots.Remove(electionID)

	ctx, cancel := opCtx(ctx)
	defer cancel()

	res, err := s.elections.UpdateOne(ctx,
		bson.M{"_id": electionID, "votes.voterId": bson.M{"$ne": rec.VoterID}},
		bson.M{
			"$push": bson.M{"votes": rec},
			"$set":  bson.M{"updatedAt": time.Now().UTC()},
		})
	if err != nil {
		return fmt.Errorf("failed to append vote record: %w", err)
	}
	if res.MatchedCount == 0 {
		n, err := s.elections.CountDocuments(ctx, bson.M{"_id": electionID})
		if err != nil {
			return fmt.Errorf("failed to check election existence: %w", err)
		}
		if n == 0 {
			return ErrNotFound
		}
		return ErrAlreadyVoted
	}
	return nil
}

// RemoveVoteRecord pulls a voter's record back out of the election document.
// This is strictly the cast-path rollback for a nullifier insertion failure;
// a confirmed vote record is never removed.
func (s *Storage) RemoveVoteRecord(ctx context.Context, electionID, voterID string) error {
	s.snapshots.Remove(electionID)

	ctx, cancel := opCtx(ctx)
	defer cancel()

	_, err := s.elections.UpdateOne(ctx,
		bson.M{"_id": electionID},
		bson.M{"$pull": bson.M{"votes": bson.M{"voterId": voterID}}})
	if err != nil {
		return fmt.Errorf("failed to remove vote record: %w", err)
	}
	return nil
}

// VoteRecord returns the vote record cast by the voter in the election.
func (s *Storage) VoteRecord(ctx context.Context, electionID, voterID string) (*types.VoteRecord, error) {
	e, err := s.Election(ctx, electionID)
	if err != nil {
		return nil, err
	}
	if rec := e.VoteFrom(voterID); rec != nil {
		return rec, nil
	}
	return nil, ErrNotFound
}

// SetLedgerResult enriches a voter's record with the transaction hash and
// block number once the ledger submission confirms. The enrichment is
// append-only; the vote entries themselves are never touched.
func (s *Storage) SetLedgerResult(
	ctx context.Context,
	electionID, voterID, txHash string,
	blockNumber uint64,
) error {
	s.snapshots.Remove(electionID)

	ctx, cancel := opCtx(ctx)
	defer cancel()

	res, err := s.elections.UpdateOne(ctx,
		bson.M{"_id": electionID, "votes.voterId": voterID},
		bson.M{"$set": bson.M{
			"votes.$.txHash":       txHash,
			"votes.$.blockNumber":  blockNumber,
			"votes.$.ledgerStatus": types.LedgerStatusConfirmed,
		}})
	if err != nil {
		return fmt.Errorf("failed to set ledger result: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// SetLedgerStatus updates only the ledger status of a voter's record, used
// to mark a record "unconfirmed" when the submission fails or times out.
func (s *Storage) SetLedgerStatus(
	ctx context.Context,
	electionID, voterID string,
	status types.LedgerStatus,
) error {
	s.snapshots.Remove(electionID)

	ctx, cancel := opCtx(ctx)
	defer cancel()

	res, err := s.elections.UpdateOne(ctx,
		bson.M{"_id": electionID, "votes.voterId": voterID},
		bson.M{"$set": bson.M{"votes.$.ledgerStatus": status}})
	if err != nil {
		return fmt.Errorf("failed to set ledger status: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ConfirmVoteByNullifier attaches a reconciled transaction to the vote
// record whose proof carries the given nullifier hash. Used by the ledger
// event reconciler, which does not know voter identities.
func (s *Storage) ConfirmVoteByNullifier(
	ctx context.Context,
	ledgerElectionID uint64,
	nullifierHash, txHash string,
	blockNumber uint64,
) error {
	e, err := s.ElectionByLedgerID(ctx, ledgerElectionID)
	if err != nil {
		return err
	}
	s.snapshots.Remove(e.ID)

	ctx, cancel := opCtx(ctx)
	defer cancel()

	res, err := s.elections.UpdateOne(ctx,
		bson.M{
			"_id":                               e.ID,
			"votes.votes.zkProof.nullifierHash": nullifierHash,
		},
		bson.M{"$set": bson.M{
			"votes.$.txHash":       txHash,
			"votes.$.blockNumber":  blockNumber,
			"votes.$.ledgerStatus": types.LedgerStatusConfirmed,
		}})
	if err != nil {
		return fmt.Errorf("failed to confirm vote by nullifier: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Results loads the election and tallies its embedded vote records.
func (s *Storage) Results(ctx context.Context, electionID string) (*types.ElectionResults, error) {
	// Bypass the snapshot: tallies must reflect the stored votes.
	s.snapshots.Remove(electionID)

	ctx, cancel := opCtx(ctx)
	defer cancel()

	e := new(types.Election)
	if err := s.elections.FindOne(ctx, bson.M{"_id": electionID}).Decode(e); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load election for results: %w", err)
	}
	return e.Results(), nil
}
