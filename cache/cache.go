// Package cache is the best-effort TTL fast path in front of the document
// store. Entries may be absent, stale or evicted at any time; every consumer
// must fall back to the store on a miss and must never use a cache hit as
// the sole gate for a correctness decision.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/go-redis/redis/v8"

	"github.com/Coded483-max/smartvote-node/log"
	"github.com/Coded483-max/smartvote-node/types"
)

const (
	// HasVotedTTL bounds the lifetime of the per-voter fast-path flag.
	HasVotedTTL = time.Hour
	// SnapshotTTL bounds the lifetime of cached election snapshots and
	// results.
	SnapshotTTL = 5 * time.Minute

	dialTimeout = 5 * time.Second
)

// Cache wraps a redis client. Every operation degrades gracefully: an
// unreachable or failing redis is reported as a cache miss and logged at
// debug level, never surfaced as an error to the caller.
type Cache struct {
	client *redis.Client
}

// New creates a cache against the given redis address. A failed initial ping
// is logged but not fatal; the node keeps running on direct document-store
// reads until redis comes back.
func New(addr, password string, db int) *Cache {
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: dialTimeout,
	})
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warnw("cache unreachable, degrading to document-store reads", "addr", addr, "error", err.Error())
	}
	return &Cache{client: client}
}

// Close releases the redis client.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Key layout: everything belonging to an election lives under the
// "election:<id>:" namespace so a single pattern scan can invalidate it.

func electionKey(electionID, suffix string) string {
	return fmt.Sprintf("election:%s:%s", electionID, suffix)
}

func voterKey(electionID, voterID string) string {
	return fmt.Sprintf("election:%s:voter:%s", electionID, voterID)
}

// HasVoted returns (voted, hit). A miss (or any redis failure) means the
// caller must consult the document store.
func (c *Cache) HasVoted(ctx context.Context, electionID, voterID string) (voted, hit bool) {
	val, err := c.client.Get(ctx, voterKey(electionID, voterID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Debugw("cache read failed", "key", voterKey(electionID, voterID), "error", err.Error())
		}
		return false, false
	}
	return val == "1", true
}

// SetHasVoted writes the per-voter fast-path flag with HasVotedTTL. Callers
// must only set it to true after the vote record and nullifier are durably
// persisted; setting it earlier reopens the double-vote window.
func (c *Cache) SetHasVoted(ctx context.Context, electionID, voterID string, voted bool) {
	val := "0"
	if voted {
		val = "1"
	}
	if err := c.client.Set(ctx, voterKey(electionID, voterID), val, HasVotedTTL).Err(); err != nil {
		log.Debugw("cache write failed", "key", voterKey(electionID, voterID), "error", err.Error())
	}
}

// ElectionSnapshot returns a cached election document, if present.
func (c *Cache) ElectionSnapshot(ctx context.Context, electionID string) (*types.Election, bool) {
	raw, err := c.client.Get(ctx, electionKey(electionID, "snapshot")).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Debugw("cache read failed", "key", electionKey(electionID, "snapshot"), "error", err.Error())
		}
		return nil, false
	}
	e := new(types.Election)
	if err := cbor.Unmarshal(raw, e); err != nil {
		log.Debugw("cache entry corrupted, dropping", "key", electionKey(electionID, "snapshot"), "error", err.Error())
		c.client.Del(ctx, electionKey(electionID, "snapshot"))
		return nil, false
	}
	return e, true
}

// SetElectionSnapshot caches an election document with SnapshotTTL.
func (c *Cache) SetElectionSnapshot(ctx context.Context, e *types.Election) {
	raw, err := cbor.Marshal(e)
	if err != nil {
		log.Debugw("failed to encode election snapshot", "election", e.ID, "error", err.Error())
		return
	}
	if err := c.client.Set(ctx, electionKey(e.ID, "snapshot"), raw, SnapshotTTL).Err(); err != nil {
		log.Debugw("cache write failed", "key", electionKey(e.ID, "snapshot"), "error", err.Error())
	}
}

// Results returns cached election results, if present.
func (c *Cache) Results(ctx context.Context, electionID string) (*types.ElectionResults, bool) {
	raw, err := c.client.Get(ctx, electionKey(electionID, "results")).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Debugw("cache read failed", "key", electionKey(electionID, "results"), "error", err.Error())
		}
		return nil, false
	}
	res := new(types.ElectionResults)
	if err := cbor.Unmarshal(raw, res); err != nil {
		c.client.Del(ctx, electionKey(electionID, "results"))
		return nil, false
	}
	return res, true
}

// SetResults caches election results with SnapshotTTL.
func (c *Cache) SetResults(ctx context.Context, res *types.ElectionResults) {
	raw, err := cbor.Marshal(res)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, electionKey(res.ElectionID, "results"), raw, SnapshotTTL).Err(); err != nil {
		log.Debugw("cache write failed", "key", electionKey(res.ElectionID, "results"), "error", err.Error())
	}
}

// InvalidateElection deletes every entry under the election's namespace,
// including voter flags. Called after any write to the election document so
// subsequent snapshot and tally reads are recomputed from the store.
func (c *Cache) InvalidateElection(ctx context.Context, electionID string) {
	pattern := electionKey(electionID, "*")
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		log.Debugw("cache scan failed", "pattern", pattern, "error", err.Error())
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		log.Debugw("cache invalidation failed", "pattern", pattern, "error", err.Error())
	}
}
