package storage

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/Coded483-max/smartvote-node/types"
)

// AddNullifier records a consumed (voter, election) proof. The unique
// compound index on (hash, electionId) makes the later of two racing writes
// fail with ErrNullifierExists; the caller must treat that as a double-vote
// rejection, never as a soft warning. Nullifiers are never deleted or
// updated.
func (s *Storage) AddNullifier(ctx context.Context, n *types.Nullifier) error {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	if _, err := s.nullifiers.InsertOne(ctx, n); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrNullifierExists
		}
		return fmt.Errorf("failed to insert nullifier: %w", err)
	}
	return nil
}

// NullifierExists reports whether the (hash, electionId) pair has already
// been consumed.
func (s *Storage) NullifierExists(ctx context.Context, electionID, hash string) (bool, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	n, err := s.nullifiers.CountDocuments(ctx,
		bson.M{"hash": hash, "electionId": electionID})
	if err != nil {
		return false, fmt.Errorf("failed to check nullifier: %w", err)
	}
	return n > 0, nil
}
