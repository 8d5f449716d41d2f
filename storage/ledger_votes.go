package storage

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/Coded483-max/smartvote-node/types"
)

// RecordLedgerVote writes a vote reconciled from the ledger's event stream.
// The transaction hash is the document id, so replaying the same event twice
// yields ErrLedgerVoteExists and the reconciler can skip it.
func (s *Storage) RecordLedgerVote(ctx context.Context, lv *types.LedgerVote) error {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	if _, err := s.ledgerVotes.InsertOne(ctx, lv); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrLedgerVoteExists
		}
		return fmt.Errorf("failed to insert ledger vote: %w", err)
	}
	return nil
}

// HasLedgerVote reports whether a ledger vote with the given transaction
// hash has already been reconciled.
func (s *Storage) HasLedgerVote(ctx context.Context, txHash string) (bool, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	n, err := s.ledgerVotes.CountDocuments(ctx, bson.M{"_id": txHash})
	if err != nil {
		return false, fmt.Errorf("failed to check ledger vote: %w", err)
	}
	return n > 0, nil
}

// LedgerVote loads a reconciled ledger vote by transaction hash.
func (s *Storage) LedgerVote(ctx context.Context, txHash string) (*types.LedgerVote, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	lv := new(types.LedgerVote)
	if err := s.ledgerVotes.FindOne(ctx, bson.M{"_id": txHash}).Decode(lv); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load ledger vote: %w", err)
	}
	return lv, nil
}
