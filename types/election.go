package types

import (
	"time"
)

// ElectionStatus represents the lifecycle phase of an election. The status
// gates which operations are allowed: votes are only accepted while the
// status is "voting" and the current time lies within the voting window.
type ElectionStatus string

const (
	ElectionStatusDraft        ElectionStatus = "draft"
	ElectionStatusCandidateReg ElectionStatus = "candidate_registration"
	ElectionStatusCampaign     ElectionStatus = "campaign"
	ElectionStatusVoting       ElectionStatus = "voting"
	ElectionStatusCompleted    ElectionStatus = "completed"
	ElectionStatusCancelled    ElectionStatus = "cancelled"
	ElectionStatusSuspended    ElectionStatus = "suspended"
)

// Valid reports whether s is a known election status.
func (s ElectionStatus) Valid() bool {
	switch s {
	case ElectionStatusDraft, ElectionStatusCandidateReg, ElectionStatusCampaign,
		ElectionStatusVoting, ElectionStatusCompleted, ElectionStatusCancelled,
		ElectionStatusSuspended:
		return true
	}
	return false
}

// Terminal reports whether s is terminal for voting purposes. No vote may be
// cast once the status reaches a terminal state.
func (s ElectionStatus) Terminal() bool {
	return s == ElectionStatusCompleted || s == ElectionStatusCancelled
}

func (s ElectionStatus) String() string {
	return string(s)
}

// Position is a single office being contested within an election.
type Position struct {
	ID         string   `json:"id"         bson:"id"`
	Name       string   `json:"name"       bson:"name"`
	Candidates []string `json:"candidates" bson:"candidates"`
	// MaxVotes is the number of selections a voter may make for this
	// position. Zero is interpreted as the default of 1.
	MaxVotes int `json:"maxVotes" bson:"maxVotes"`
}

// MaxSelections returns the effective selection limit for the position.
func (p *Position) MaxSelections() int {
	if p.MaxVotes <= 0 {
		return 1
	}
	return p.MaxVotes
}

// HasCandidate reports whether the candidate id is on the position's roster.
func (p *Position) HasCandidate(candidateID string) bool {
	for _, c := range p.Candidates {
		if c == candidateID {
			return true
		}
	}
	return false
}

// StatusChange is one append-only audit entry in an election's status history.
type StatusChange struct {
	PreviousStatus ElectionStatus `json:"previousStatus" bson:"previousStatus"`
	NewStatus      ElectionStatus `json:"newStatus"      bson:"newStatus"`
	ChangedBy      string         `json:"changedBy"      bson:"changedBy"`
	ChangedAt      time.Time      `json:"changedAt"      bson:"changedAt"`
	Note           string         `json:"note,omitempty" bson:"note,omitempty"`
}

// Election is the central document of the system. Votes are embedded
// (denormalized) so that appending a VoteRecord is a single atomic document
// update.
type Election struct {
	ID     string         `json:"id"     bson:"_id"`
	Title  string         `json:"title"  bson:"title"`
	Status ElectionStatus `json:"status" bson:"status"`

	CandidateRegStart time.Time `json:"candidateRegStart" bson:"candidateRegStart"`
	CandidateRegEnd   time.Time `json:"candidateRegEnd"   bson:"candidateRegEnd"`
	CampaignStart     time.Time `json:"campaignStart"     bson:"campaignStart"`
	CampaignEnd       time.Time `json:"campaignEnd"       bson:"campaignEnd"`
	VoteStart         time.Time `json:"voteStart"         bson:"voteStart"`
	VoteEnd           time.Time `json:"voteEnd"           bson:"voteEnd"`

	Positions     []Position     `json:"positions"     bson:"positions"`
	Votes         []VoteRecord   `json:"votes"         bson:"votes"`
	StatusHistory []StatusChange `json:"statusHistory" bson:"statusHistory"`

	// LedgerElectionID is the election's identifier on the external
	// distributed ledger. Assigned once at creation, never reused.
	LedgerElectionID uint64 `json:"ledgerElectionId" bson:"ledgerElectionId"`

	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// Position returns the position with the given id, or nil if not present.
func (e *Election) Position(positionID string) *Position {
	for i := range e.Positions {
		if e.Positions[i].ID == positionID {
			return &e.Positions[i]
		}
	}
	return nil
}

// VotingWindowOpen reports whether now lies within [VoteStart, VoteEnd].
func (e *Election) VotingWindowOpen(now time.Time) bool {
	return !now.Before(e.VoteStart) && !now.After(e.VoteEnd)
}

// AcceptingVotes reports whether the election can accept a vote at the given
// time: the status must be "voting" and the voting window must be open.
func (e *Election) AcceptingVotes(now time.Time) bool {
	return e.Status == ElectionStatusVoting && e.VotingWindowOpen(now)
}

// VoteFrom returns the vote record cast by the given voter, or nil.
func (e *Election) VoteFrom(voterID string) *VoteRecord {
	for i := range e.Votes {
		if e.Votes[i].VoterID == voterID {
			return &e.Votes[i]
		}
	}
	return nil
}

// ElectionResults aggregates the embedded vote records into per-position,
// per-candidate tallies.
type ElectionResults struct {
	ElectionID string                    `json:"electionId"`
	Status     ElectionStatus            `json:"status"`
	TotalVotes int                       `json:"totalVotes"`
	Tallies    map[string]map[string]int `json:"tallies"` // positionID -> candidateID -> count
}

// Results tallies the election's embedded vote records.
func (e *Election) Results() *ElectionResults {
	res := &ElectionResults{
		ElectionID: e.ID,
		Status:     e.Status,
		TotalVotes: len(e.Votes),
		Tallies:    make(map[string]map[string]int, len(e.Positions)),
	}
	for i := range e.Positions {
		res.Tallies[e.Positions[i].ID] = make(map[string]int)
	}
	for i := range e.Votes {
		for _, entry := range e.Votes[i].Votes {
			tally, ok := res.Tallies[entry.PositionID]
			if !ok {
				tally = make(map[string]int)
				res.Tallies[entry.PositionID] = tally
			}
			tally[entry.CandidateID]++
		}
	}
	return res
}
