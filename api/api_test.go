package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/Coded483-max/smartvote-node/ballotbox"
	"github.com/Coded483-max/smartvote-node/lifecycle"
	"github.com/Coded483-max/smartvote-node/storage"
	"github.com/Coded483-max/smartvote-node/types"
	"github.com/Coded483-max/smartvote-node/web3"
)

type fakeStore struct {
	elections map[string]*types.Election
	created   []*types.Election
}

func newFakeStore(elections ...*types.Election) *fakeStore {
	fs := &fakeStore{elections: map[string]*types.Election{}}
	for _, e := range elections {
		fs.elections[e.ID] = e
	}
	return fs
}

func (fs *fakeStore) CreateElection(_ context.Context, e *types.Election) error {
	fs.elections[e.ID] = e
	fs.created = append(fs.created, e)
	return nil
}

func (fs *fakeStore) Election(_ context.Context, id string) (*types.Election, error) {
	e, ok := fs.elections[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return e, nil
}

func (fs *fakeStore) Results(_ context.Context, electionID string) (*types.ElectionResults, error) {
	e, ok := fs.elections[electionID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return e.Results(), nil
}

type fakeBox struct {
	err error
	res *ballotbox.CastResult
}

func (fb *fakeBox) Cast(_ context.Context, req *ballotbox.CastRequest) (*ballotbox.CastResult, error) {
	if fb.err != nil {
		return nil, fb.err
	}
	if fb.res != nil {
		return fb.res, nil
	}
	return &ballotbox.CastResult{
		ElectionID:    req.ElectionID,
		VoterID:       req.VoterID,
		NullifierHash: "12345",
		Record:        &types.VoteRecord{VoterID: req.VoterID, LedgerStatus: types.LedgerStatusPending},
	}, nil
}

type fakeScheduler struct {
	err     error
	applied []types.ElectionStatus
	store   *fakeStore
}

func (fsch *fakeScheduler) AdminTransition(_ context.Context, electionID string, to types.ElectionStatus, _, _ string) error {
	if fsch.err != nil {
		return fsch.err
	}
	if e, ok := fsch.store.elections[electionID]; ok {
		e.Status = to
	} else {
		return storage.ErrNotFound
	}
	fsch.applied = append(fsch.applied, to)
	return nil
}

type fakeProofService struct {
	genErr    error
	verifyErr error
}

func (fp *fakeProofService) Generate(_ context.Context, _, _, _ string) (*types.ZKProof, error) {
	if fp.genErr != nil {
		return nil, fp.genErr
	}
	return &types.ZKProof{
		Proof:         &types.ProofData{Protocol: "groth16"},
		NullifierHash: new(types.BigInt).SetUint64(111),
		Verified:      true,
	}, nil
}

func (fp *fakeProofService) Verify(_ *types.ZKProof) error { return fp.verifyErr }

type fakeLedger struct {
	status *web3.TxStatus
}

func (fl *fakeLedger) CreateElection(_ context.Context, _ uint64, _ string, _, _ time.Time) (string, error) {
	return "0xcreate", nil
}

func (fl *fakeLedger) TransactionStatus(_ context.Context, txHash string) (*web3.TxStatus, error) {
	if fl.status != nil {
		return fl.status, nil
	}
	return &web3.TxStatus{TxHash: txHash, Found: false}, nil
}

func testAPI(store *fakeStore) *API {
	a := &API{
		store:     store,
		box:       &fakeBox{},
		scheduler: &fakeScheduler{store: store},
		prover:    &fakeProofService{},
		ledger:    &fakeLedger{},
		limiter:   NewTokenBucketLimiter(time.Millisecond, 1000),
	}
	a.initRouter()
	return a
}

func completedElection(id string) *types.Election {
	return &types.Election{
		ID:     id,
		Title:  "club board",
		Status: types.ElectionStatusCompleted,
		Positions: []types.Position{
			{ID: "chair", Name: "Chair", Candidates: []string{"alice", "bob"}},
		},
		Votes: []types.VoteRecord{
			{VoterID: "v1", Votes: []types.VoteEntry{{PositionID: "chair", CandidateID: "alice"}}},
			{VoterID: "v2", Votes: []types.VoteEntry{{PositionID: "chair", CandidateID: "alice"}}},
		},
	}
}

func doJSON(t *testing.T, a *API, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.Router().ServeHTTP(rec, req)
	return rec
}

func TestPing(t *testing.T) {
	c := qt.New(t)
	a := testAPI(newFakeStore())
	rec := doJSON(t, a, http.MethodGet, PingEndpoint, nil)
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
}

func TestNewVote(t *testing.T) {
	c := qt.New(t)
	a := testAPI(newFakeStore())

	rec := doJSON(t, a, http.MethodPost, VotesEndpoint, &ballotbox.CastRequest{
		ElectionID: "e1",
		VoterID:    "v1",
		Selections: []ballotbox.Selection{{PositionID: "chair", CandidateID: "alice"}},
	})
	c.Assert(rec.Code, qt.Equals, http.StatusCreated)

	var res ballotbox.CastResult
	c.Assert(json.Unmarshal(rec.Body.Bytes(), &res), qt.IsNil)
	c.Assert(res.NullifierHash, qt.Equals, "12345")
	c.Assert(res.Record.LedgerStatus, qt.Equals, types.LedgerStatusPending)
}

func TestNewVoteErrorTaxonomy(t *testing.T) {
	c := qt.New(t)
	cases := []struct {
		name     string
		err      error
		wantHTTP int
		wantCode int
	}{
		{"unknown election", storage.ErrNotFound, http.StatusNotFound, ErrElectionNotFound.Code},
		{"already voted", ballotbox.ErrAlreadyVoted, http.StatusConflict, ErrAlreadyVoted.Code},
		{"not accepting", &ballotbox.WindowError{Status: types.ElectionStatusDraft}, http.StatusBadRequest, ErrElectionNotAcceptingVotes.Code},
		{"invalid ballot", &ballotbox.ValidationError{Issues: []ballotbox.ValidationIssue{{Message: "bad"}}}, http.StatusBadRequest, ErrInvalidBallot.Code},
		{"internal", fmt.Errorf("mongo down"), http.StatusInternalServerError, ErrGenericInternalServerError.Code},
	}
	for _, tc := range cases {
		a := testAPI(newFakeStore())
		a.box = &fakeBox{err: tc.err}
		rec := doJSON(t, a, http.MethodPost, VotesEndpoint, &ballotbox.CastRequest{ElectionID: "e1", VoterID: "v1"})
		c.Assert(rec.Code, qt.Equals, tc.wantHTTP, qt.Commentf("case %s", tc.name))
		var apiErr struct {
			Code int `json:"code"`
		}
		c.Assert(json.Unmarshal(rec.Body.Bytes(), &apiErr), qt.IsNil)
		c.Assert(apiErr.Code, qt.Equals, tc.wantCode, qt.Commentf("case %s", tc.name))
	}
}

func TestNewVoteMalformedBody(t *testing.T) {
	c := qt.New(t)
	a := testAPI(newFakeStore())
	req := httptest.NewRequest(http.MethodPost, VotesEndpoint, bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	a.Router().ServeHTTP(rec, req)
	c.Assert(rec.Code, qt.Equals, http.StatusBadRequest)
}

func TestVerifyVote(t *testing.T) {
	c := qt.New(t)
	a := testAPI(newFakeStore())
	a.ledger = &fakeLedger{status: &web3.TxStatus{TxHash: "0xabc", Found: true, Mined: true, Success: true, BlockNumber: 10, GasUsed: 21000}}

	rec := doJSON(t, a, http.MethodGet, "/votes/verify/0xabc", nil)
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	var res VerifyVoteResponse
	c.Assert(json.Unmarshal(rec.Body.Bytes(), &res), qt.IsNil)
	c.Assert(res.Status, qt.Equals, "confirmed")
	c.Assert(res.BlockNumber, qt.Equals, uint64(10))
	c.Assert(res.GasUsed, qt.Equals, uint64(21000))

	// A mined-but-reverted transaction reports failed.
	a.ledger = &fakeLedger{status: &web3.TxStatus{TxHash: "0xabc", Found: true, Mined: true, Success: false, BlockNumber: 11}}
	rec = doJSON(t, a, http.MethodGet, "/votes/verify/0xabc", nil)
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	c.Assert(json.Unmarshal(rec.Body.Bytes(), &res), qt.IsNil)
	c.Assert(res.Status, qt.Equals, "failed")

	// A transaction still in the mempool reports pending.
	a.ledger = &fakeLedger{status: &web3.TxStatus{TxHash: "0xabc", Found: true}}
	rec = doJSON(t, a, http.MethodGet, "/votes/verify/0xabc", nil)
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	c.Assert(json.Unmarshal(rec.Body.Bytes(), &res), qt.IsNil)
	c.Assert(res.Status, qt.Equals, "pending")

	// Unknown hash is a 404.
	a.ledger = &fakeLedger{}
	rec = doJSON(t, a, http.MethodGet, "/votes/verify/0xdead", nil)
	c.Assert(rec.Code, qt.Equals, http.StatusNotFound)

	// No ledger configured.
	a.ledger = nil
	rec = doJSON(t, a, http.MethodGet, "/votes/verify/0xdead", nil)
	c.Assert(rec.Code, qt.Equals, http.StatusServiceUnavailable)
}

func TestGenerateProof(t *testing.T) {
	c := qt.New(t)
	a := testAPI(newFakeStore())

	rec := doJSON(t, a, http.MethodPost, GenerateProofEndpoint, &GenerateProofRequest{
		VoterID: "v1", CandidateID: "alice", ElectionID: "e1",
	})
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	var proof types.ZKProof
	c.Assert(json.Unmarshal(rec.Body.Bytes(), &proof), qt.IsNil)
	c.Assert(proof.Verified, qt.IsTrue)

	// Missing fields.
	rec = doJSON(t, a, http.MethodPost, GenerateProofEndpoint, &GenerateProofRequest{VoterID: "v1"})
	c.Assert(rec.Code, qt.Equals, http.StatusBadRequest)
}

func TestVerifyProof(t *testing.T) {
	c := qt.New(t)
	a := testAPI(newFakeStore())

	proof := &types.ZKProof{Proof: &types.ProofData{Protocol: "groth16"}}
	rec := doJSON(t, a, http.MethodPost, VerifyProofEndpoint, proof)
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	var res VerifyProofResponse
	c.Assert(json.Unmarshal(rec.Body.Bytes(), &res), qt.IsNil)
	c.Assert(res.Valid, qt.IsTrue)

	a.prover = &fakeProofService{verifyErr: fmt.Errorf("pairing check failed")}
	rec = doJSON(t, a, http.MethodPost, VerifyProofEndpoint, proof)
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	c.Assert(json.Unmarshal(rec.Body.Bytes(), &res), qt.IsNil)
	c.Assert(res.Valid, qt.IsFalse)
	c.Assert(res.Error, qt.Contains, "pairing")
}

func TestElectionResults(t *testing.T) {
	c := qt.New(t)
	a := testAPI(newFakeStore(completedElection("e1")))

	rec := doJSON(t, a, http.MethodGet, "/votes/election-results/e1", nil)
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	var res types.ElectionResults
	c.Assert(json.Unmarshal(rec.Body.Bytes(), &res), qt.IsNil)
	c.Assert(res.TotalVotes, qt.Equals, 2)
	c.Assert(res.Tallies["chair"]["alice"], qt.Equals, 2)

	rec = doJSON(t, a, http.MethodGet, "/votes/election-results/unknown", nil)
	c.Assert(rec.Code, qt.Equals, http.StatusNotFound)
}

func TestElectionResultsGatedBeforeCompletion(t *testing.T) {
	c := qt.New(t)
	e := completedElection("e1")
	e.Status = types.ElectionStatusVoting
	a := testAPI(newFakeStore(e))
	a.adminToken = "secret"

	rec := doJSON(t, a, http.MethodGet, "/votes/election-results/e1", nil)
	c.Assert(rec.Code, qt.Equals, http.StatusForbidden)

	// A privileged caller sees running tallies.
	req := httptest.NewRequest(http.MethodGet, "/votes/election-results/e1", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rr := httptest.NewRecorder()
	a.Router().ServeHTTP(rr, req)
	c.Assert(rr.Code, qt.Equals, http.StatusOK)
}

func TestCreateElection(t *testing.T) {
	c := qt.New(t)
	fs := newFakeStore()
	a := testAPI(fs)

	now := time.Now()
	rec := doJSON(t, a, http.MethodPost, ElectionsEndpoint, &CreateElectionRequest{
		Title:     "student council",
		VoteStart: now.Add(time.Hour),
		VoteEnd:   now.Add(2 * time.Hour),
		Positions: []types.Position{{Name: "President", Candidates: []string{"alice", "bob"}}},
	})
	c.Assert(rec.Code, qt.Equals, http.StatusCreated)
	var e types.Election
	c.Assert(json.Unmarshal(rec.Body.Bytes(), &e), qt.IsNil)
	c.Assert(e.ID, qt.Not(qt.Equals), "")
	c.Assert(e.Status, qt.Equals, types.ElectionStatusDraft)
	c.Assert(e.Positions[0].ID, qt.Not(qt.Equals), "")
	c.Assert(e.LedgerElectionID, qt.Not(qt.Equals), uint64(0))
	c.Assert(fs.created, qt.HasLen, 1)

	// Missing title.
	rec = doJSON(t, a, http.MethodPost, ElectionsEndpoint, &CreateElectionRequest{
		VoteStart: now, VoteEnd: now.Add(time.Hour),
	})
	c.Assert(rec.Code, qt.Equals, http.StatusBadRequest)

	// Inverted voting window.
	rec = doJSON(t, a, http.MethodPost, ElectionsEndpoint, &CreateElectionRequest{
		Title: "x", VoteStart: now.Add(time.Hour), VoteEnd: now,
	})
	c.Assert(rec.Code, qt.Equals, http.StatusBadRequest)
}

func TestAdminGate(t *testing.T) {
	c := qt.New(t)
	a := testAPI(newFakeStore())
	a.adminToken = "secret"

	rec := doJSON(t, a, http.MethodPost, ElectionsEndpoint, &CreateElectionRequest{Title: "x"})
	c.Assert(rec.Code, qt.Equals, http.StatusNotFound)

	now := time.Now()
	body, err := json.Marshal(&CreateElectionRequest{
		Title:     "student council",
		VoteStart: now,
		VoteEnd:   now.Add(time.Hour),
		Positions: []types.Position{{Name: "Chair", Candidates: []string{"alice"}}},
	})
	c.Assert(err, qt.IsNil)
	req := httptest.NewRequest(http.MethodPost, ElectionsEndpoint, bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer secret")
	rr := httptest.NewRecorder()
	a.Router().ServeHTTP(rr, req)
	c.Assert(rr.Code, qt.Equals, http.StatusCreated)
}

func TestGetElectionStripsVotes(t *testing.T) {
	c := qt.New(t)
	a := testAPI(newFakeStore(completedElection("e1")))

	rec := doJSON(t, a, http.MethodGet, "/elections/e1", nil)
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	var e types.Election
	c.Assert(json.Unmarshal(rec.Body.Bytes(), &e), qt.IsNil)
	c.Assert(e.Votes, qt.HasLen, 0)
	c.Assert(e.Title, qt.Equals, "club board")

	rec = doJSON(t, a, http.MethodGet, "/elections/unknown", nil)
	c.Assert(rec.Code, qt.Equals, http.StatusNotFound)
}

func TestSetElectionStatus(t *testing.T) {
	c := qt.New(t)
	e := completedElection("e1")
	e.Status = types.ElectionStatusDraft
	fs := newFakeStore(e)
	a := testAPI(fs)

	rec := doJSON(t, a, http.MethodPost, "/elections/e1/status", &SetStatusRequest{
		Status: types.ElectionStatusCancelled, ChangedBy: "ops",
	})
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	var out types.Election
	c.Assert(json.Unmarshal(rec.Body.Bytes(), &out), qt.IsNil)
	c.Assert(out.Status, qt.Equals, types.ElectionStatusCancelled)

	// Unknown status value.
	rec = doJSON(t, a, http.MethodPost, "/elections/e1/status", &SetStatusRequest{Status: "paused"})
	c.Assert(rec.Code, qt.Equals, http.StatusBadRequest)

	// Disallowed transition surfaces the full explanation.
	a.scheduler = &fakeScheduler{store: fs, err: &lifecycle.TransitionError{
		Current:   types.ElectionStatusCancelled,
		Requested: types.ElectionStatusVoting,
	}}
	rec = doJSON(t, a, http.MethodPost, "/elections/e1/status", &SetStatusRequest{Status: types.ElectionStatusVoting})
	c.Assert(rec.Code, qt.Equals, http.StatusConflict)
	c.Assert(rec.Body.String(), qt.Contains, "not allowed")
}

func TestRateLimiter(t *testing.T) {
	c := qt.New(t)
	a := testAPI(newFakeStore())
	a.limiter = NewTokenBucketLimiter(time.Hour, 2)

	body := &ballotbox.CastRequest{ElectionID: "e1", VoterID: "v1"}
	for i := 0; i < 2; i++ {
		rec := doJSON(t, a, http.MethodPost, VotesEndpoint, body)
		c.Assert(rec.Code, qt.Equals, http.StatusCreated, qt.Commentf("request %d", i))
	}
	rec := doJSON(t, a, http.MethodPost, VotesEndpoint, body)
	c.Assert(rec.Code, qt.Equals, http.StatusTooManyRequests)

	// A different voter has their own bucket.
	rec = doJSON(t, a, http.MethodPost, VotesEndpoint, &ballotbox.CastRequest{ElectionID: "e1", VoterID: "v2"})
	c.Assert(rec.Code, qt.Equals, http.StatusCreated)
}

func TestTokenBucketRefill(t *testing.T) {
	c := qt.New(t)
	l := NewTokenBucketLimiter(10*time.Millisecond, 1)
	c.Assert(l.Allow("k"), qt.IsTrue)
	c.Assert(l.Allow("k"), qt.IsFalse)
	time.Sleep(25 * time.Millisecond)
	c.Assert(l.Allow("k"), qt.IsTrue)
}
