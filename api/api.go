// Package api exposes the voting node over HTTP: ballot casting, proof
// generation and verification, public vote verification by transaction hash,
// election management and results.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/Coded483-max/smartvote-node/ballotbox"
	"github.com/Coded483-max/smartvote-node/log"
	"github.com/Coded483-max/smartvote-node/types"
	"github.com/Coded483-max/smartvote-node/web3"
)

// ElectionStore is the slice of the document store the HTTP layer reads and
// writes. Implemented by *storage.Storage.
type ElectionStore interface {
	CreateElection(ctx context.Context, e *types.Election) error
	Election(ctx context.Context, id string) (*types.Election, error)
	Results(ctx context.Context, electionID string) (*types.ElectionResults, error)
}

// Caster accepts complete ballots. Implemented by *ballotbox.Box.
type Caster interface {
	Cast(ctx context.Context, req *ballotbox.CastRequest) (*ballotbox.CastResult, error)
}

// StatusChanger applies administrative election transitions. Implemented by
// *lifecycle.Scheduler.
type StatusChanger interface {
	AdminTransition(ctx context.Context, electionID string, to types.ElectionStatus, changedBy, note string) error
}

// ProofService generates and checks standalone proofs. Implemented by
// *prover.Pipeline.
type ProofService interface {
	Generate(ctx context.Context, voterID, candidateID, electionID string) (*types.ZKProof, error)
	Verify(proof *types.ZKProof) error
}

// Ledger is the on-chain surface the HTTP layer needs. Implemented by
// *web3.Contracts; may be nil when no ledger is configured.
type Ledger interface {
	CreateElection(ctx context.Context, ledgerElectionID uint64, title string, startTime, endTime time.Time) (string, error)
	TransactionStatus(ctx context.Context, txHash string) (*web3.TxStatus, error)
}

// SnapshotCache accelerates election reads. Implemented by *cache.Cache; may
// be nil.
type SnapshotCache interface {
	ElectionSnapshot(ctx context.Context, electionID string) (*types.Election, bool)
	SetElectionSnapshot(ctx context.Context, e *types.Election)
	Results(ctx context.Context, electionID string) (*types.ElectionResults, bool)
	SetResults(ctx context.Context, res *types.ElectionResults)
}

// APIConfig represents the configuration for the API HTTP server.
type APIConfig struct {
	Host      string
	Port      int
	Store     ElectionStore
	Cache     SnapshotCache
	Box       Caster
	Scheduler StatusChanger
	Prover    ProofService
	Ledger    Ledger
	// AdminToken gates election management and early results access. Empty
	// disables the check (development mode).
	AdminToken string
	// RateLimiter throttles ballot casting per voter; nil installs the
	// default token bucket.
	RateLimiter RateLimiter
}

// API is the HTTP server of the voting node.
type API struct {
	router    *chi.Mux
	store     ElectionStore
	cache     SnapshotCache
	box       Caster
	scheduler StatusChanger
	prover    ProofService
	ledger    Ledger

	adminToken string
	limiter    RateLimiter
}

// New creates a new API instance with the given configuration and starts the
// HTTP server.
func New(conf *APIConfig) (*API, error) {
	if conf == nil {
		return nil, fmt.Errorf("missing API configuration")
	}
	if conf.Store == nil {
		return nil, fmt.Errorf("missing store instance")
	}
	a := &API{
		store:      conf.Store,
		cache:      conf.Cache,
		box:        conf.Box,
		scheduler:  conf.Scheduler,
		prover:     conf.Prover,
		ledger:     conf.Ledger,
		adminToken: conf.AdminToken,
		limiter:    conf.RateLimiter,
	}
	if a.limiter == nil {
		a.limiter = NewTokenBucketLimiter(DefaultCastRate, DefaultCastBurst)
	}
	a.initRouter()
	go func() {
		log.Infow("starting API server", "host", conf.Host, "port", conf.Port)
		if err := http.ListenAndServe(fmt.Sprintf("%s:%d", conf.Host, conf.Port), a.router); err != nil {
			log.Fatalf("failed to start the API server: %v", err)
		}
	}()
	return a, nil
}

// Router returns the chi router for testing purposes.
func (a *API) Router() *chi.Mux {
	return a.router
}

// registerHandlers registers all the API handlers.
func (a *API) registerHandlers() {
	log.Infow("register handler", "endpoint", PingEndpoint, "method", "GET")
	a.router.Get(PingEndpoint, func(w http.ResponseWriter, _ *http.Request) {
		httpWriteOK(w)
	})
	log.Infow("register handler", "endpoint", VotesEndpoint, "method", "POST")
	a.router.With(a.rateLimitMiddleware).Post(VotesEndpoint, a.newVote)
	log.Infow("register handler", "endpoint", VerifyVoteEndpoint, "method", "GET")
	a.router.Get(VerifyVoteEndpoint, a.verifyVote)
	log.Infow("register handler", "endpoint", GenerateProofEndpoint, "method", "POST")
	a.router.Post(GenerateProofEndpoint, a.generateProof)
	log.Infow("register handler", "endpoint", VerifyProofEndpoint, "method", "POST")
	a.router.Post(VerifyProofEndpoint, a.verifyProof)
	log.Infow("register handler", "endpoint", ElectionResultsEndpoint, "method", "GET")
	a.router.Get(ElectionResultsEndpoint, a.electionResults)
	log.Infow("register handler", "endpoint", ElectionsEndpoint, "method", "POST")
	a.router.With(a.adminMiddleware).Post(ElectionsEndpoint, a.createElection)
	log.Infow("register handler", "endpoint", ElectionEndpoint, "method", "GET")
	a.router.Get(ElectionEndpoint, a.election)
	log.Infow("register handler", "endpoint", ElectionStatusEndpoint, "method", "POST")
	a.router.With(a.adminMiddleware).Post(ElectionStatusEndpoint, a.setElectionStatus)
}

// initRouter creates the router with all the routes and middleware.
func (a *API) initRouter() {
	a.router = chi.NewRouter()
	a.router.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}).Handler)
	a.router.Use(a.loggingMiddleware)
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Throttle(100))
	a.router.Use(middleware.Timeout(45 * time.Second))

	a.registerHandlers()
}
