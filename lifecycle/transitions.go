package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/Coded483-max/smartvote-node/log"
	"github.com/Coded483-max/smartvote-node/types"
)

// transitionAllowList fixes, per current status, which statuses an
// administrator may request. Completed and cancelled are terminal.
var transitionAllowList = map[types.ElectionStatus][]types.ElectionStatus{
	types.ElectionStatusDraft: {
		types.ElectionStatusCandidateReg,
		types.ElectionStatusCancelled,
	},
	types.ElectionStatusCandidateReg: {
		types.ElectionStatusCampaign,
		types.ElectionStatusCancelled,
		types.ElectionStatusSuspended,
	},
	types.ElectionStatusCampaign: {
		types.ElectionStatusVoting,
		types.ElectionStatusCancelled,
		types.ElectionStatusSuspended,
	},
	types.ElectionStatusVoting: {
		types.ElectionStatusCompleted,
		types.ElectionStatusCancelled,
		types.ElectionStatusSuspended,
	},
	types.ElectionStatusSuspended: {
		types.ElectionStatusCandidateReg,
		types.ElectionStatusCampaign,
		types.ElectionStatusVoting,
		types.ElectionStatusCancelled,
	},
	types.ElectionStatusCompleted: {},
	types.ElectionStatusCancelled: {},
}

// AllowedTransitions returns the administrative transitions permitted from
// the given status.
func AllowedTransitions(from types.ElectionStatus) []types.ElectionStatus {
	return transitionAllowList[from]
}

// TransitionError explains a rejected administrative transition: the current
// status, the requested one, the allowed set and the failed precondition, if
// any. A rejected request has no side effects.
type TransitionError struct {
	Current   types.ElectionStatus
	Requested types.ElectionStatus
	Allowed   []types.ElectionStatus
	Reason    string
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("transition from %q to %q not allowed (allowed: %v)",
		e.Current, e.Requested, e.Allowed)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func allowed(from, to types.ElectionStatus) bool {
	for _, s := range transitionAllowList[from] {
		if s == to {
			return true
		}
	}
	return false
}

// AdminTransition validates and applies an explicit administrative status
// change. Preconditions beyond the allow-list: entering "voting" requires
// the current time to lie within the voting window, and entering
// "candidate_registration" requires the registration deadline not to have
// passed.
func (s *Scheduler) AdminTransition(ctx context.Context, electionID string, to types.ElectionStatus, changedBy, note string) error {
	if !to.Valid() {
		return fmt.Errorf("unknown election status %q", to)
	}
	e, err := s.store.Election(ctx, electionID)
	if err != nil {
		return err
	}
	now := time.Now()
	if terr := checkTransition(e, to, now); terr != nil {
		return terr
	}
	change := types.StatusChange{
		PreviousStatus: e.Status,
		NewStatus:      to,
		ChangedBy:      changedBy,
		ChangedAt:      now.UTC(),
		Note:           note,
	}
	if err := s.store.UpdateElectionStatus(ctx, e.ID, e.Status, to, change); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.InvalidateElection(ctx, e.ID)
	}
	log.Infow("administrative status change applied",
		"election", e.ID, "old", e.Status.String(), "new", to.String(), "by", changedBy)
	return nil
}

func checkTransition(e *types.Election, to types.ElectionStatus, now time.Time) *TransitionError {
	if !allowed(e.Status, to) {
		return &TransitionError{
			Current:   e.Status,
			Requested: to,
			Allowed:   AllowedTransitions(e.Status),
		}
	}
	switch to {
	case types.ElectionStatusVoting:
		if !e.VotingWindowOpen(now) {
			return &TransitionError{
				Current:   e.Status,
				Requested: to,
				Allowed:   AllowedTransitions(e.Status),
				Reason: fmt.Sprintf("current time is outside the voting window [%s, %s]",
					e.VoteStart.Format(time.RFC3339), e.VoteEnd.Format(time.RFC3339)),
			}
		}
	case types.ElectionStatusCandidateReg:
		if !e.CandidateRegEnd.IsZero() && now.After(e.CandidateRegEnd) {
			return &TransitionError{
				Current:   e.Status,
				Requested: to,
				Allowed:   AllowedTransitions(e.Status),
				Reason: fmt.Sprintf("candidate registration closed at %s",
					e.CandidateRegEnd.Format(time.RFC3339)),
			}
		}
	}
	return nil
}
