package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Coded483-max/smartvote-node/lifecycle"
	"github.com/Coded483-max/smartvote-node/log"
	"github.com/Coded483-max/smartvote-node/storage"
	"github.com/Coded483-max/smartvote-node/types"
)

// CreateElectionRequest defines a new election. Positions without an id are
// assigned one at creation.
type CreateElectionRequest struct {
	Title             string           `json:"title"`
	CandidateRegStart time.Time        `json:"candidateRegStart"`
	CandidateRegEnd   time.Time        `json:"candidateRegEnd"`
	CampaignStart     time.Time        `json:"campaignStart"`
	CampaignEnd       time.Time        `json:"campaignEnd"`
	VoteStart         time.Time        `json:"voteStart"`
	VoteEnd           time.Time        `json:"voteEnd"`
	Positions         []types.Position `json:"positions"`
}

// createElection registers a new election and assigns its ledger id.
// POST /elections
func (a *API) createElection(w http.ResponseWriter, r *http.Request) {
	req := &CreateElectionRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	if req.Title == "" {
		ErrMalformedBody.With("title is required").Write(w)
		return
	}
	if !req.VoteEnd.After(req.VoteStart) {
		ErrMalformedBody.With("voteEnd must be after voteStart").Write(w)
		return
	}
	for i := range req.Positions {
		if req.Positions[i].ID == "" {
			req.Positions[i].ID = uuid.New().String()
		}
		if len(req.Positions[i].Candidates) == 0 {
			ErrMalformedBody.Withf("position %q has no candidates", req.Positions[i].Name).Write(w)
			return
		}
	}

	e := &types.Election{
		ID:                uuid.New().String(),
		Title:             req.Title,
		Status:            types.ElectionStatusDraft,
		CandidateRegStart: req.CandidateRegStart,
		CandidateRegEnd:   req.CandidateRegEnd,
		CampaignStart:     req.CampaignStart,
		CampaignEnd:       req.CampaignEnd,
		VoteStart:         req.VoteStart,
		VoteEnd:           req.VoteEnd,
		Positions:         req.Positions,
		// Monotonic and never reused across the contract's lifetime.
		LedgerElectionID: uint64(time.Now().UnixNano()),
	}
	if err := a.store.CreateElection(r.Context(), e); err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}

	// Registering on the ledger is best-effort at creation time: votes are
	// not accepted until the voting phase anyway.
	if a.ledger != nil {
		if _, err := a.ledger.CreateElection(r.Context(), e.LedgerElectionID, e.Title, e.VoteStart, e.VoteEnd); err != nil {
			log.Warnw("failed to register election on ledger",
				"election", e.ID, "error", err.Error())
		}
	}
	httpWriteJSONStatus(w, http.StatusCreated, e)
}

// election returns the election snapshot without the embedded vote records.
// GET /elections/{electionId}
func (a *API) election(w http.ResponseWriter, r *http.Request) {
	electionID := chi.URLParam(r, ElectionURLParam)
	if a.cache != nil {
		if e, ok := a.cache.ElectionSnapshot(r.Context(), electionID); ok {
			httpWriteJSON(w, publicElection(e))
			return
		}
	}
	e, err := a.store.Election(r.Context(), electionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			ErrElectionNotFound.Write(w)
			return
		}
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	if a.cache != nil {
		a.cache.SetElectionSnapshot(r.Context(), e)
	}
	httpWriteJSON(w, publicElection(e))
}

// publicElection strips the embedded votes from the wire representation.
func publicElection(e *types.Election) *types.Election {
	cp := *e
	cp.Votes = nil
	return &cp
}

// SetStatusRequest is an administrative status transition.
type SetStatusRequest struct {
	Status    types.ElectionStatus `json:"status"`
	ChangedBy string               `json:"changedBy"`
	Note      string               `json:"note,omitempty"`
}

// setElectionStatus applies an explicit administrative transition.
// POST /elections/{electionId}/status
func (a *API) setElectionStatus(w http.ResponseWriter, r *http.Request) {
	electionID := chi.URLParam(r, ElectionURLParam)
	req := &SetStatusRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	if !req.Status.Valid() {
		ErrMalformedBody.Withf("unknown status %q", req.Status).Write(w)
		return
	}
	if req.ChangedBy == "" {
		req.ChangedBy = "admin"
	}
	err := a.scheduler.AdminTransition(r.Context(), electionID, req.Status, req.ChangedBy, req.Note)
	if err != nil {
		var terr *lifecycle.TransitionError
		switch {
		case errors.Is(err, storage.ErrNotFound):
			ErrElectionNotFound.Write(w)
		case errors.As(err, &terr):
			ErrInvalidStatusTransition.WithErr(terr).Write(w)
		case errors.Is(err, storage.ErrStatusConflict):
			ErrInvalidStatusTransition.With("election status changed concurrently, retry").Write(w)
		default:
			ErrGenericInternalServerError.WithErr(err).Write(w)
		}
		return
	}
	e, err := a.store.Election(r.Context(), electionID)
	if err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, publicElection(e))
}
