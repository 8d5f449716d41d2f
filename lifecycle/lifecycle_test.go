package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/Coded483-max/smartvote-node/storage"
	"github.com/Coded483-max/smartvote-node/types"
)

type fakeStore struct {
	mu        sync.Mutex
	elections map[string]*types.Election
}

func newFakeStore(elections ...*types.Election) *fakeStore {
	fs := &fakeStore{elections: map[string]*types.Election{}}
	for _, e := range elections {
		fs.elections[e.ID] = e
	}
	return fs
}

func (fs *fakeStore) ListElections(_ context.Context) ([]*types.Election, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	var out []*types.Election
	for _, e := range fs.elections {
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

func (fs *fakeStore) Election(_ context.Context, id string) (*types.Election, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	e, ok := fs.elections[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (fs *fakeStore) UpdateElectionStatus(_ context.Context, id string, from, to types.ElectionStatus, change types.StatusChange) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	e, ok := fs.elections[id]
	if !ok {
		return storage.ErrNotFound
	}
	if e.Status != from {
		return storage.ErrStatusConflict
	}
	e.Status = to
	e.StatusHistory = append(e.StatusHistory, change)
	return nil
}

type fakeInvalidator struct {
	mu  sync.Mutex
	ids []string
}

func (fi *fakeInvalidator) InvalidateElection(_ context.Context, electionID string) {
	fi.mu.Lock()
	defer fi.mu.Unlock()
	fi.ids = append(fi.ids, electionID)
}

func (fi *fakeInvalidator) invalidated() []string {
	fi.mu.Lock()
	defer fi.mu.Unlock()
	return append([]string(nil), fi.ids...)
}

func phasedElection(id string, status types.ElectionStatus, now time.Time) *types.Election {
	return &types.Election{
		ID:                id,
		Title:             "student council",
		Status:            status,
		CandidateRegStart: now.Add(-4 * time.Hour),
		CandidateRegEnd:   now.Add(-3 * time.Hour),
		CampaignStart:     now.Add(-3 * time.Hour),
		CampaignEnd:       now.Add(-2 * time.Hour),
		VoteStart:         now.Add(-1 * time.Hour),
		VoteEnd:           now.Add(1 * time.Hour),
	}
}

func TestScheduledStatus(t *testing.T) {
	c := qt.New(t)
	now := time.Now()

	e := phasedElection("e1", types.ElectionStatusDraft, now)
	c.Assert(ScheduledStatus(e, now), qt.Equals, types.ElectionStatusVoting)

	// Before any boundary nothing is implied.
	early := now.Add(-5 * time.Hour)
	c.Assert(ScheduledStatus(e, early), qt.Equals, types.ElectionStatusDraft)

	// After the voting window the election completes.
	late := now.Add(2 * time.Hour)
	c.Assert(ScheduledStatus(e, late), qt.Equals, types.ElectionStatusCompleted)

	// The campaign gap between CampaignEnd and VoteStart keeps campaign.
	gap := now.Add(-90 * time.Minute)
	c.Assert(ScheduledStatus(e, gap), qt.Equals, types.ElectionStatusCampaign)
}

func TestReconcileAdvancesStatus(t *testing.T) {
	c := qt.New(t)
	now := time.Now()
	fs := newFakeStore(phasedElection("e1", types.ElectionStatusCampaign, now))
	fi := &fakeInvalidator{}
	s := NewScheduler(fs, fi)

	err := s.Reconcile(context.Background(), "e1", now)
	c.Assert(err, qt.IsNil)

	e, err := fs.Election(context.Background(), "e1")
	c.Assert(err, qt.IsNil)
	c.Assert(e.Status, qt.Equals, types.ElectionStatusVoting)
	c.Assert(e.StatusHistory, qt.HasLen, 1)
	c.Assert(e.StatusHistory[0].ChangedBy, qt.Equals, "scheduler")
	c.Assert(e.StatusHistory[0].PreviousStatus, qt.Equals, types.ElectionStatusCampaign)
	c.Assert(fi.invalidated(), qt.DeepEquals, []string{"e1"})
}

func TestReconcileSkipsManualStatuses(t *testing.T) {
	c := qt.New(t)
	now := time.Now()
	for _, status := range []types.ElectionStatus{
		types.ElectionStatusCancelled,
		types.ElectionStatusCompleted,
		types.ElectionStatusSuspended,
	} {
		fs := newFakeStore(phasedElection("e1", status, now))
		s := NewScheduler(fs, nil)
		c.Assert(s.Reconcile(context.Background(), "e1", now), qt.IsNil)
		e, err := fs.Election(context.Background(), "e1")
		c.Assert(err, qt.IsNil)
		c.Assert(e.Status, qt.Equals, status, qt.Commentf("status %s must not be swept", status))
		c.Assert(e.StatusHistory, qt.HasLen, 0)
	}
}

func TestReconcileAllSweepsEveryElection(t *testing.T) {
	c := qt.New(t)
	now := time.Now()
	fs := newFakeStore(
		phasedElection("e1", types.ElectionStatusCampaign, now),
		phasedElection("e2", types.ElectionStatusVoting, now),
		phasedElection("e3", types.ElectionStatusCancelled, now),
	)
	s := NewScheduler(fs, nil)
	s.ReconcileAll(context.Background(), now.Add(2*time.Hour))

	statuses := map[string]types.ElectionStatus{}
	list, err := fs.ListElections(context.Background())
	c.Assert(err, qt.IsNil)
	for _, e := range list {
		statuses[e.ID] = e.Status
	}
	c.Assert(statuses["e1"], qt.Equals, types.ElectionStatusCompleted)
	c.Assert(statuses["e2"], qt.Equals, types.ElectionStatusCompleted)
	c.Assert(statuses["e3"], qt.Equals, types.ElectionStatusCancelled)
}

func TestOndemandChannel(t *testing.T) {
	c := qt.New(t)
	now := time.Now()
	fs := newFakeStore(phasedElection("e1", types.ElectionStatusCampaign, now))
	s := NewScheduler(fs, nil)
	s.Start(context.Background(), time.Hour)
	defer s.Close()

	s.OndemandCh <- "e1"

	deadline := time.Now().Add(2 * time.Second)
	for {
		e, err := fs.Election(context.Background(), "e1")
		c.Assert(err, qt.IsNil)
		if e.Status == types.ElectionStatusVoting {
			break
		}
		if time.Now().After(deadline) {
			c.Fatalf("on-demand reconciliation did not run, status still %s", e.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestAdminTransitionAllowList(t *testing.T) {
	c := qt.New(t)
	now := time.Now()
	fs := newFakeStore(phasedElection("e1", types.ElectionStatusDraft, now))
	fi := &fakeInvalidator{}
	s := NewScheduler(fs, fi)

	// draft -> voting is not on the allow-list even inside the window.
	err := s.AdminTransition(context.Background(), "e1", types.ElectionStatusVoting, "admin", "")
	var terr *TransitionError
	c.Assert(err, qt.ErrorAs, &terr)
	c.Assert(terr.Current, qt.Equals, types.ElectionStatusDraft)
	c.Assert(terr.Requested, qt.Equals, types.ElectionStatusVoting)
	c.Assert(terr.Allowed, qt.DeepEquals, []types.ElectionStatus{
		types.ElectionStatusCandidateReg,
		types.ElectionStatusCancelled,
	})
	c.Assert(fi.invalidated(), qt.HasLen, 0)

	// draft -> cancelled is allowed.
	err = s.AdminTransition(context.Background(), "e1", types.ElectionStatusCancelled, "admin", "venue flooded")
	c.Assert(err, qt.IsNil)
	e, err := fs.Election(context.Background(), "e1")
	c.Assert(err, qt.IsNil)
	c.Assert(e.Status, qt.Equals, types.ElectionStatusCancelled)
	c.Assert(e.StatusHistory[0].Note, qt.Equals, "venue flooded")
	c.Assert(fi.invalidated(), qt.DeepEquals, []string{"e1"})

	// Terminal statuses allow nothing.
	err = s.AdminTransition(context.Background(), "e1", types.ElectionStatusDraft, "admin", "")
	c.Assert(err, qt.ErrorAs, &terr)
	c.Assert(terr.Allowed, qt.HasLen, 0)
}

func TestAdminTransitionPreconditions(t *testing.T) {
	c := qt.New(t)
	now := time.Now()

	// Entering voting outside the window is rejected.
	e := phasedElection("e1", types.ElectionStatusCampaign, now)
	e.VoteStart = now.Add(1 * time.Hour)
	e.VoteEnd = now.Add(2 * time.Hour)
	fs := newFakeStore(e)
	s := NewScheduler(fs, nil)
	err := s.AdminTransition(context.Background(), "e1", types.ElectionStatusVoting, "admin", "")
	var terr *TransitionError
	c.Assert(err, qt.ErrorAs, &terr)
	c.Assert(terr.Reason, qt.Contains, "voting window")

	// Resuming candidate registration after its deadline is rejected.
	e2 := phasedElection("e2", types.ElectionStatusSuspended, now)
	fs2 := newFakeStore(e2)
	s2 := NewScheduler(fs2, nil)
	err = s2.AdminTransition(context.Background(), "e2", types.ElectionStatusCandidateReg, "admin", "")
	c.Assert(err, qt.ErrorAs, &terr)
	c.Assert(terr.Reason, qt.Contains, "registration closed")

	// Resuming voting inside the window succeeds.
	err = s2.AdminTransition(context.Background(), "e2", types.ElectionStatusVoting, "admin", "resumed")
	c.Assert(err, qt.IsNil)
}

func TestAdminTransitionUnknownStatus(t *testing.T) {
	c := qt.New(t)
	fs := newFakeStore(phasedElection("e1", types.ElectionStatusDraft, time.Now()))
	s := NewScheduler(fs, nil)
	err := s.AdminTransition(context.Background(), "e1", types.ElectionStatus("paused"), "admin", "")
	c.Assert(err, qt.ErrorMatches, `unknown election status.*`)
}
