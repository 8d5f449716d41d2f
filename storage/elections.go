package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Coded483-max/smartvote-node/types"
)

// CreateElection inserts a new election document. The election id and the
// ledger election id are assigned by the caller and never reused.
func (s *Storage) CreateElection(ctx context.Context, e *types.Election) error {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	now := time.Now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now
	if e.Votes == nil {
		e.Votes = []types.VoteRecord{}
	}
	if e.StatusHistory == nil {
		e.StatusHistory = []types.StatusChange{}
	}
	if _, err := s.elections.InsertOne(ctx, e); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("election %s already exists", e.ID)
		}
		return fmt.Errorf("failed to insert election: %w", err)
	}
	return nil
}

// Election loads an election document by id. A small read-through LRU
// snapshot avoids re-decoding hot documents; every write path in this
// package drops the snapshot first, and the snapshot never backs any
// correctness decision on the cast path.
func (s *Storage) Election(ctx context.Context, id string) (*types.Election, error) {
	if raw, ok := s.snapshots.Get(id); ok {
		e := new(types.Election)
		if err := bson.Unmarshal(raw, e); err == nil {
			return e, nil
		}
		s.snapshots.Remove(id)
	}

	ctx, cancel := opCtx(ctx)
	defer cancel()

	e := new(types.Election)
	if err := s.elections.FindOne(ctx, bson.M{"_id": id}).Decode(e); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load election: %w", err)
	}
	if raw, err := bson.Marshal(e); err == nil {
		s.snapshots.Add(id, raw)
	}
	return e, nil
}

// ElectionByLedgerID loads the election with the given on-ledger identifier.
func (s *Storage) ElectionByLedgerID(ctx context.Context, ledgerID uint64) (*types.Election, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	e := new(types.Election)
	err := s.elections.FindOne(ctx, bson.M{"ledgerElectionId": ledgerID}).Decode(e)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load election by ledger id: %w", err)
	}
	return e, nil
}

// ListElections returns every election, with the embedded votes projected out
// (the lifecycle sweep only needs status and phase boundaries).
func (s *Storage) ListElections(ctx context.Context) ([]*types.Election, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	cursor, err := s.elections.Find(ctx, bson.M{},
		options.Find().SetProjection(bson.M{"votes": 0}))
	if err != nil {
		return nil, fmt.Errorf("failed to list elections: %w", err)
	}
	defer func() {
		if err := cursor.Close(ctx); err != nil {
			return
		}
	}()

	var elections []*types.Election
	for cursor.Next(ctx) {
		e := new(types.Election)
		if err := cursor.Decode(e); err != nil {
			return nil, fmt.Errorf("failed to decode election: %w", err)
		}
		elections = append(elections, e)
	}
	return elections, cursor.Err()
}

// UpdateElectionStatus atomically moves an election from one status to
// another and appends the audit entry to the status history. It fails with
// ErrStatusConflict if the stored status no longer matches from (a
// concurrent transition won the race), and ErrNotFound if the election does
// not exist.
func (s *Storage) UpdateElectionStatus(
	ctx context.Context,
	id string,
	from, to types.ElectionStatus,
	change types.StatusChange,
) error {
	s.snapshots.Remove(id)

	ctx, cancel := opCtx(ctx)
	defer cancel()

	res, err := s.elections.UpdateOne(ctx,
		bson.M{"_id": id, "status": from},
		bson.M{
			"$set":  bson.M{"status": to, "updatedAt": time.Now().UTC()},
			"$push": bson.M{"statusHistory": change},
		})
	if err != nil {
		return fmt.Errorf("failed to update election status: %w", err)
	}
	if res.MatchedCount == 0 {
		// Disambiguate missing election from a lost race.
		n, err := s.elections.CountDocuments(ctx, bson.M{"_id": id})
		if err != nil {
			return fmt.Errorf("failed to check election existence: %w", err)
		}
		if n == 0 {
			return ErrNotFound
		}
		return ErrStatusConflict
	}
	return nil
}
