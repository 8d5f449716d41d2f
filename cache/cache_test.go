package cache

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/Coded483-max/smartvote-node/types"
)

// newTestCache connects to the redis instance pointed at by REDIS_URL. Tests
// are skipped when the variable is unset; a unique key prefix per test run is
// achieved by using uniquely named elections.
func newTestCache(t *testing.T) *Cache {
	t.Helper()
	addr := os.Getenv("REDIS_URL")
	if addr == "" {
		t.Skip("REDIS_URL not set, skipping cache integration tests")
	}
	c := New(addr, "", 0)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func uniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

func TestHasVotedFlag(t *testing.T) {
	c := qt.New(t)
	cc := newTestCache(t)
	ctx := context.Background()
	electionID := uniqueID("election")

	// cold cache is a miss, not a negative
	voted, hit := cc.HasVoted(ctx, electionID, "voter-1")
	c.Assert(hit, qt.IsFalse)
	c.Assert(voted, qt.IsFalse)

	cc.SetHasVoted(ctx, electionID, "voter-1", true)
	voted, hit = cc.HasVoted(ctx, electionID, "voter-1")
	c.Assert(hit, qt.IsTrue)
	c.Assert(voted, qt.IsTrue)

	cc.SetHasVoted(ctx, electionID, "voter-2", false)
	voted, hit = cc.HasVoted(ctx, electionID, "voter-2")
	c.Assert(hit, qt.IsTrue)
	c.Assert(voted, qt.IsFalse)
}

func TestElectionSnapshot(t *testing.T) {
	c := qt.New(t)
	cc := newTestCache(t)
	ctx := context.Background()

	e := &types.Election{
		ID:     uniqueID("election"),
		Title:  "Departmental Elections",
		Status: types.ElectionStatusVoting,
		Positions: []types.Position{
			{ID: "president", Name: "President", Candidates: []string{"alice", "bob"}},
		},
		LedgerElectionID: 42,
	}

	_, hit := cc.ElectionSnapshot(ctx, e.ID)
	c.Assert(hit, qt.IsFalse)

	cc.SetElectionSnapshot(ctx, e)
	got, hit := cc.ElectionSnapshot(ctx, e.ID)
	c.Assert(hit, qt.IsTrue)
	c.Assert(got.Title, qt.Equals, e.Title)
	c.Assert(got.Status, qt.Equals, types.ElectionStatusVoting)
	c.Assert(got.Positions, qt.HasLen, 1)
	c.Assert(got.LedgerElectionID, qt.Equals, uint64(42))
}

func TestResults(t *testing.T) {
	c := qt.New(t)
	cc := newTestCache(t)
	ctx := context.Background()

	res := &types.ElectionResults{
		ElectionID: uniqueID("election"),
		Status:     types.ElectionStatusCompleted,
		TotalVotes: 3,
		Tallies: map[string]map[string]int{
			"president": {"alice": 2, "bob": 1},
		},
	}

	_, hit := cc.Results(ctx, res.ElectionID)
	c.Assert(hit, qt.IsFalse)

	cc.SetResults(ctx, res)
	got, hit := cc.Results(ctx, res.ElectionID)
	c.Assert(hit, qt.IsTrue)
	c.Assert(got.TotalVotes, qt.Equals, 3)
	c.Assert(got.Tallies["president"]["alice"], qt.Equals, 2)
}

func TestInvalidateElection(t *testing.T) {
	c := qt.New(t)
	cc := newTestCache(t)
	ctx := context.Background()
	electionID := uniqueID("election")

	cc.SetHasVoted(ctx, electionID, "voter-1", true)
	cc.SetElectionSnapshot(ctx, &types.Election{ID: electionID, Title: "t"})
	cc.SetResults(ctx, &types.ElectionResults{ElectionID: electionID})

	// an unrelated election must survive the invalidation
	otherID := uniqueID("other")
	cc.SetHasVoted(ctx, otherID, "voter-1", true)

	cc.InvalidateElection(ctx, electionID)

	_, hit := cc.HasVoted(ctx, electionID, "voter-1")
	c.Assert(hit, qt.IsFalse)
	_, hit = cc.ElectionSnapshot(ctx, electionID)
	c.Assert(hit, qt.IsFalse)
	_, hit = cc.Results(ctx, electionID)
	c.Assert(hit, qt.IsFalse)

	_, hit = cc.HasVoted(ctx, otherID, "voter-1")
	c.Assert(hit, qt.IsTrue)
}

func TestCorruptedSnapshotDropped(t *testing.T) {
	c := qt.New(t)
	cc := newTestCache(t)
	ctx := context.Background()
	electionID := uniqueID("election")

	err := cc.client.Set(ctx, electionKey(electionID, "snapshot"), "not-cbor", time.Minute).Err()
	c.Assert(err, qt.IsNil)

	_, hit := cc.ElectionSnapshot(ctx, electionID)
	c.Assert(hit, qt.IsFalse)

	// the corrupted entry was deleted, not kept around
	n, err := cc.client.Exists(ctx, electionKey(electionID, "snapshot")).Result()
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, int64(0))
}
