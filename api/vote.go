package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Coded483-max/smartvote-node/ballotbox"
	"github.com/Coded483-max/smartvote-node/storage"
	"github.com/Coded483-max/smartvote-node/types"
)

// newVote casts a complete ballot.
// POST /votes
func (a *API) newVote(w http.ResponseWriter, r *http.Request) {
	req := &ballotbox.CastRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	res, err := a.box.Cast(r.Context(), req)
	if err != nil {
		writeCastError(w, err)
		return
	}
	httpWriteJSONStatus(w, http.StatusCreated, res)
}

// writeCastError maps ballot box failures onto the error taxonomy.
func writeCastError(w http.ResponseWriter, err error) {
	var verr *ballotbox.ValidationError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		ErrElectionNotFound.Write(w)
	case errors.Is(err, ballotbox.ErrAlreadyVoted):
		ErrAlreadyVoted.Write(w)
	case errors.Is(err, ballotbox.ErrNotAcceptingVotes):
		ErrElectionNotAcceptingVotes.WithErr(err).Write(w)
	case errors.As(err, &verr):
		ErrInvalidBallot.WithErr(verr).Write(w)
	default:
		ErrGenericInternalServerError.WithErr(err).Write(w)
	}
}

// VerifyVoteResponse is the public status of a vote transaction. Status is
// "pending" until the transaction mines, then "confirmed" or "failed".
type VerifyVoteResponse struct {
	TxHash      string `json:"txHash"`
	Status      string `json:"status"`
	BlockNumber uint64 `json:"blockNumber,omitempty"`
	GasUsed     uint64 `json:"gasUsed,omitempty"`
}

// verifyVote reports the on-chain status of a vote transaction.
// GET /votes/verify/{txHash}
func (a *API) verifyVote(w http.ResponseWriter, r *http.Request) {
	txHash := chi.URLParam(r, TxHashURLParam)
	if txHash == "" {
		ErrMalformedParam.With("empty transaction hash").Write(w)
		return
	}
	if a.ledger == nil {
		ErrLedgerUnavailable.Write(w)
		return
	}
	status, err := a.ledger.TransactionStatus(r.Context(), txHash)
	if err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	if !status.Found {
		ErrTransactionNotFound.Withf("tx %s", txHash).Write(w)
		return
	}
	res := &VerifyVoteResponse{
		TxHash:      status.TxHash,
		Status:      "pending",
		BlockNumber: status.BlockNumber,
		GasUsed:     status.GasUsed,
	}
	if status.Mined {
		res.Status = "failed"
		if status.Success {
			res.Status = "confirmed"
		}
	}
	httpWriteJSON(w, res)
}

// GenerateProofRequest asks for a standalone proof without casting a vote.
type GenerateProofRequest struct {
	VoterID     string `json:"voterId"`
	CandidateID string `json:"candidateId"`
	ElectionID  string `json:"electionId"`
}

// generateProof produces a proof for the given identities.
// POST /votes/generate-proof
func (a *API) generateProof(w http.ResponseWriter, r *http.Request) {
	req := &GenerateProofRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	if req.VoterID == "" || req.CandidateID == "" || req.ElectionID == "" {
		ErrMalformedBody.With("voterId, candidateId and electionId are required").Write(w)
		return
	}
	proof, err := a.prover.Generate(r.Context(), req.VoterID, req.CandidateID, req.ElectionID)
	if err != nil {
		ErrProofGenerationFailed.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, proof)
}

// VerifyProofResponse reports a standalone proof check.
type VerifyProofResponse struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// verifyProof checks a previously generated proof.
// POST /votes/verify-proof
func (a *API) verifyProof(w http.ResponseWriter, r *http.Request) {
	proof := &types.ZKProof{}
	if err := json.NewDecoder(r.Body).Decode(proof); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	if proof.Proof == nil {
		ErrInvalidProof.With("missing proof data").Write(w)
		return
	}
	if err := a.prover.Verify(proof); err != nil {
		httpWriteJSON(w, &VerifyProofResponse{Valid: false, Error: err.Error()})
		return
	}
	httpWriteJSON(w, &VerifyProofResponse{Valid: true})
}

// electionResults returns the tallies of an election. Before completion the
// tallies are only visible to privileged callers.
// GET /votes/election-results/{electionId}
func (a *API) electionResults(w http.ResponseWriter, r *http.Request) {
	electionID := chi.URLParam(r, ElectionURLParam)
	e, err := a.store.Election(r.Context(), electionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			ErrElectionNotFound.Write(w)
			return
		}
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	if e.Status != types.ElectionStatusCompleted && !a.isPrivileged(r) {
		ErrResultsNotAvailable.Withf("election status is %q", e.Status).Write(w)
		return
	}
	if a.cache != nil {
		if res, ok := a.cache.Results(r.Context(), electionID); ok {
			httpWriteJSON(w, res)
			return
		}
	}
	res, err := a.store.Results(r.Context(), electionID)
	if err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	if a.cache != nil {
		a.cache.SetResults(r.Context(), res)
	}
	httpWriteJSON(w, res)
}
