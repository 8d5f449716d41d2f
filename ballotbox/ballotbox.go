// Package ballotbox implements the vote casting pipeline: request
// validation, double-vote detection, zero-knowledge proof generation for
// every selection, atomic persistence of the vote record together with its
// nullifier, and the best-effort hand-off to the external ledger.
//
// The document store is the single source of truth for "has this voter
// already voted". The cache only short-circuits the rejection path; a cast
// is never accepted on cache evidence alone.
package ballotbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Coded483-max/smartvote-node/types"
)

var (
	// ErrNotAcceptingVotes is returned when the election status or the
	// voting window rejects the cast before any selection is inspected.
	ErrNotAcceptingVotes = errors.New("election is not accepting votes")
	// ErrAlreadyVoted is returned when the voter has a vote record or a
	// nullifier already registered for the election.
	ErrAlreadyVoted = errors.New("voter has already voted in this election")
)

// DocumentStore is the authoritative persistence layer the ballot box
// writes through. Implemented by *storage.Storage.
type DocumentStore interface {
	Election(ctx context.Context, id string) (*types.Election, error)
	HasVoted(ctx context.Context, electionID, voterID string) (bool, error)
	AppendVoteRecord(ctx context.Context, electionID string, rec *types.VoteRecord) error
	RemoveVoteRecord(ctx context.Context, electionID, voterID string) error
	AddNullifier(ctx context.Context, n *types.Nullifier) error
	SetLedgerResult(ctx context.Context, electionID, voterID, txHash string, blockNumber uint64) error
	SetLedgerStatus(ctx context.Context, electionID, voterID string, status types.LedgerStatus) error
}

// VoteCache is the optional read-path accelerator. Implemented by
// *cache.Cache; may be nil.
type VoteCache interface {
	HasVoted(ctx context.Context, electionID, voterID string) (voted, hit bool)
	SetHasVoted(ctx context.Context, electionID, voterID string, voted bool)
	InvalidateElection(ctx context.Context, electionID string)
}

// ProofPipeline produces and checks Groth16 proofs. Implemented by
// *prover.Pipeline.
type ProofPipeline interface {
	Generate(ctx context.Context, voterID, candidateID, electionID string) (*types.ZKProof, error)
	Verify(proof *types.ZKProof) error
}

// LedgerSubmitter pushes one accepted selection to the external ledger.
// Implemented by *web3.Contracts; may be nil when no ledger is configured.
type LedgerSubmitter interface {
	SubmitVote(ctx context.Context, ledgerElectionID uint64, candidateID string, proof *types.ZKProof) (txHash string, blockNumber uint64, err error)
}

// Notifier receives a best-effort notification once a cast has been
// durably persisted; selections is the number of entries in the ballot.
// Failures are logged and never affect the cast.
type Notifier interface {
	VoteCast(ctx context.Context, voterID, electionID, nullifierHash string, selections int)
}

// Selection is one (position, candidate) pair in a cast request.
type Selection struct {
	PositionID  string `json:"positionId"`
	CandidateID string `json:"candidateId"`
}

// PositionSelection groups a voter's candidate choices for one position, the
// grouped wire form of a ballot.
type PositionSelection struct {
	PositionID   string   `json:"positionId"`
	CandidateIDs []string `json:"candidateIds"`
}

// CastRequest is a voter's complete ballot for one election. All selections
// are cast together or not at all. Clients may send the flat Selections form
// or the grouped Votes form; Selections wins when both are present.
type CastRequest struct {
	ElectionID string              `json:"electionId"`
	VoterID    string              `json:"voterId"`
	Selections []Selection         `json:"selections,omitempty"`
	Votes      []PositionSelection `json:"votes,omitempty"`
}

// normalize flattens the grouped Votes form into Selections.
func (r *CastRequest) normalize() {
	if len(r.Selections) > 0 {
		return
	}
	for _, pv := range r.Votes {
		for _, cid := range pv.CandidateIDs {
			r.Selections = append(r.Selections, Selection{
				PositionID:  pv.PositionID,
				CandidateID: cid,
			})
		}
	}
}

// CastResult reports an accepted cast. The ledger fields stay empty until
// the asynchronous submission completes.
type CastResult struct {
	ElectionID    string            `json:"electionId"`
	VoterID       string            `json:"voterId"`
	NullifierHash string            `json:"nullifierHash"`
	Record        *types.VoteRecord `json:"record"`
}

// ValidationIssue describes one rejected selection. Validation is
// exhaustive: a request with several invalid selections reports all of them
// at once.
type ValidationIssue struct {
	PositionID  string `json:"positionId,omitempty"`
	CandidateID string `json:"candidateId,omitempty"`
	Message     string `json:"message"`
}

// ValidationError carries the complete set of issues found in a request.
type ValidationError struct {
	Issues []ValidationIssue
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Issues))
	for i, iss := range e.Issues {
		msgs[i] = iss.Message
	}
	return fmt.Sprintf("invalid ballot: %s", strings.Join(msgs, "; "))
}

// WindowError explains a phase-gate rejection with the data the voter needs
// to understand it.
type WindowError struct {
	Status    types.ElectionStatus
	VoteStart time.Time
	VoteEnd   time.Time
	Now       time.Time
}

func (e *WindowError) Error() string {
	if e.Status != types.ElectionStatusVoting {
		return fmt.Sprintf("%v: status is %q", ErrNotAcceptingVotes, e.Status)
	}
	return fmt.Sprintf("%v: voting window is [%s, %s], current time %s",
		ErrNotAcceptingVotes,
		e.VoteStart.Format(time.RFC3339), e.VoteEnd.Format(time.RFC3339),
		e.Now.Format(time.RFC3339))
}

func (e *WindowError) Unwrap() error { return ErrNotAcceptingVotes }
