/*
Package storage provides the persistent document store of the voting node,
backed by MongoDB.

# Collections

  - elections    : election documents with embedded votes and status history
  - nullifiers   : consumed (voter, election) proofs; unique compound index
    on (hash, electionId) — the authoritative double-vote guard
  - ledger_votes : votes reconciled from the external ledger's event stream,
    keyed by transaction hash (the reconciliation idempotency key)

Election documents embed their own votes (denormalized), so appending a vote
record is a single atomic document update and concurrent voters on the same
election cannot lose updates.
*/
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Coded483-max/smartvote-node/log"
)

var (
	// ErrNotFound is returned when a requested document does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyVoted is returned when a vote record for the voter already
	// exists in the election document.
	ErrAlreadyVoted = errors.New("voter has already cast a vote for this election")
	// ErrNullifierExists is returned on a (hash, electionId) uniqueness
	// violation. This is the backstop of last resort against double votes
	// and must never be treated as a soft warning.
	ErrNullifierExists = errors.New("nullifier already exists for this election")
	// ErrLedgerVoteExists is returned when a ledger vote with the same
	// transaction hash has already been reconciled.
	ErrLedgerVoteExists = errors.New("ledger vote already reconciled")
	// ErrStatusConflict is returned when a status update does not match the
	// stored status anymore (a concurrent transition won).
	ErrStatusConflict = errors.New("election status changed concurrently")
)

const (
	electionsCol   = "elections"
	nullifiersCol  = "nullifiers"
	ledgerVotesCol = "ledger_votes"

	defaultOpTimeout = 10 * time.Second
	snapshotCacheLen = 256
)

// Storage is the MongoDB-backed document store. All mutations of an election
// document are single atomic updates.
type Storage struct {
	client      *mongo.Client
	elections   *mongo.Collection
	nullifiers  *mongo.Collection
	ledgerVotes *mongo.Collection

	// snapshots is a small read-through cache of election documents. It is
	// invalidated on every write that goes through this Storage; it never
	// substitutes for the on-disk state in correctness checks.
	snapshots *lru.Cache[string, []byte]
}

// New connects to MongoDB at the given URI and prepares the collections and
// indexes. The unique compound index on (hash, electionId) in the nullifiers
// collection is created here; it must exist before any vote is accepted.
func New(ctx context.Context, uri, dbName string) (*Storage, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}
	db := client.Database(dbName)

	snapshots, err := lru.New[string, []byte](snapshotCacheLen)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot cache: %w", err)
	}
	s := &Storage{
		client:      client,
		elections:   db.Collection(electionsCol),
		nullifiers:  db.Collection(nullifiersCol),
		ledgerVotes: db.Collection(ledgerVotesCol),
		snapshots:   snapshots,
	}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	log.Infow("document store ready", "db", dbName)
	return s, nil
}

func (s *Storage) ensureIndexes(ctx context.Context) error {
	_, err := s.nullifiers.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "hash", Value: 1}, {Key: "electionId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create nullifier uniqueness index: %w", err)
	}
	_, err = s.elections.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "ledgerElectionId", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create ledger election id index: %w", err)
	}
	return nil
}

// Close disconnects from MongoDB.
func (s *Storage) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// opCtx derives a bounded context for a single store operation.
func opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, defaultOpTimeout)
}
