// Package lifecycle drives the election state machine. Two drivers feed it:
// a periodic sweep that recomputes the status implied by the current time
// for every election, and explicit administrative transition requests
// validated against a fixed allow-list.
package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Coded483-max/smartvote-node/log"
	"github.com/Coded483-max/smartvote-node/types"
)

// sweepConcurrency bounds how many elections a single sweep reconciles in
// parallel.
const sweepConcurrency = 4

// DefaultSweepInterval is how often the periodic sweep recomputes election
// statuses when the caller does not override it.
const DefaultSweepInterval = 5 * time.Minute

// Store is the slice of the document store the state machine needs.
type Store interface {
	ListElections(ctx context.Context) ([]*types.Election, error)
	Election(ctx context.Context, id string) (*types.Election, error)
	UpdateElectionStatus(ctx context.Context, id string, from, to types.ElectionStatus, change types.StatusChange) error
}

// Invalidator drops every cache entry under an election's namespace. May be
// nil when no cache layer is wired.
type Invalidator interface {
	InvalidateElection(ctx context.Context, electionID string)
}

// Scheduler runs the periodic sweep and serves on-demand reconciliation
// requests. Reconciliation is idempotent, so it is safe to call it both on
// the fixed interval and synchronously after an administrative write.
type Scheduler struct {
	store Store
	cache Invalidator

	// OndemandCh accepts election ids to reconcile outside the sweep.
	OndemandCh chan string

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewScheduler creates a lifecycle scheduler. cache may be nil.
func NewScheduler(store Store, cache Invalidator) *Scheduler {
	return &Scheduler{
		store:      store,
		cache:      cache,
		OndemandCh: make(chan string, 10),
	}
}

// Start launches the on-demand worker and, if interval > 0, the periodic
// sweep.
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case id := <-s.OndemandCh:
				if err := s.Reconcile(ctx, id, time.Now()); err != nil {
					log.Errorw(err, fmt.Sprintf("reconciling election %s", id))
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	if interval > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					s.ReconcileAll(ctx, time.Now())
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	log.Infow("lifecycle scheduler started", "interval", interval.String())
}

// Close stops the scheduler and waits for its goroutines to exit.
func (s *Scheduler) Close() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.cancel = nil
	s.wg.Wait()
}

// ReconcileAll sweeps every election, overwriting each stored status with
// the status implied by now when they differ.
func (s *Scheduler) ReconcileAll(ctx context.Context, now time.Time) {
	elections, err := s.store.ListElections(ctx)
	if err != nil {
		log.Errorw(err, "lifecycle sweep failed to list elections")
		return
	}
	g := new(errgroup.Group)
	g.SetLimit(sweepConcurrency)
	for _, e := range elections {
		e := e
		g.Go(func() error {
			if err := s.reconcileElection(ctx, e, now); err != nil {
				log.Warnw("lifecycle sweep failed to reconcile election",
					"election", e.ID, "error", err.Error())
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Reconcile recomputes a single election's status. Idempotent: applying it
// twice with the same clock yields the same stored state.
func (s *Scheduler) Reconcile(ctx context.Context, electionID string, now time.Time) error {
	e, err := s.store.Election(ctx, electionID)
	if err != nil {
		return err
	}
	return s.reconcileElection(ctx, e, now)
}

func (s *Scheduler) reconcileElection(ctx context.Context, e *types.Election, now time.Time) error {
	if !sweepable(e.Status) {
		return nil
	}
	implied := ScheduledStatus(e, now)
	if implied == e.Status {
		return nil
	}
	change := types.StatusChange{
		PreviousStatus: e.Status,
		NewStatus:      implied,
		ChangedBy:      "scheduler",
		ChangedAt:      now.UTC(),
		Note:           "periodic schedule reconciliation",
	}
	if err := s.store.UpdateElectionStatus(ctx, e.ID, e.Status, implied, change); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.InvalidateElection(ctx, e.ID)
	}
	log.Infow("election status reconciled",
		"election", e.ID, "old", e.Status.String(), "new", implied.String())
	return nil
}

// sweepable reports whether the periodic sweep may overwrite the status.
// Terminal states stay terminal and an administrative suspension is never
// undone by the timer.
func sweepable(s types.ElectionStatus) bool {
	switch s {
	case types.ElectionStatusDraft, types.ElectionStatusCandidateReg,
		types.ElectionStatusCampaign, types.ElectionStatusVoting:
		return true
	}
	return false
}

// ScheduledStatus computes the status implied by now against the election's
// phase boundaries, applying the fixed priority order draft →
// candidate_registration → campaign → voting → completed.
func ScheduledStatus(e *types.Election, now time.Time) types.ElectionStatus {
	status := types.ElectionStatusDraft
	if !e.CandidateRegStart.IsZero() && !now.Before(e.CandidateRegStart) {
		status = types.ElectionStatusCandidateReg
	}
	if !e.CampaignStart.IsZero() && !now.Before(e.CampaignStart) {
		status = types.ElectionStatusCampaign
	}
	if !e.VoteStart.IsZero() && !now.Before(e.VoteStart) {
		status = types.ElectionStatusVoting
	}
	if !e.VoteEnd.IsZero() && now.After(e.VoteEnd) {
		status = types.ElectionStatusCompleted
	}
	return status
}
