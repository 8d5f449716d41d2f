package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Coded483-max/smartvote-node/api"
	"github.com/Coded483-max/smartvote-node/ballotbox"
	"github.com/Coded483-max/smartvote-node/cache"
	"github.com/Coded483-max/smartvote-node/lifecycle"
	"github.com/Coded483-max/smartvote-node/log"
	"github.com/Coded483-max/smartvote-node/prover"
	"github.com/Coded483-max/smartvote-node/service"
	"github.com/Coded483-max/smartvote-node/storage"
	"github.com/Coded483-max/smartvote-node/web3"
)

func main() {
	// Load configuration
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Initialize logger
	log.Init(cfg.Log.Level, cfg.Log.Output)
	log.Infow("starting smartvote-node", "version", Version)

	// Validate configuration
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize services
	services, err := setupServices(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to initialize services: %v", err)
	}

	log.Info("smartvote-node is running")

	// Wait for termination signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down...")
	cancel()
	shutdownServices(services)
	log.Info("bye!")
}

// Services holds all running services for graceful shutdown
type Services struct {
	Storage    *storage.Storage
	Cache      *cache.Cache
	Contracts  *web3.Contracts
	Scheduler  *lifecycle.Scheduler
	Box        *ballotbox.Box
	Reconciler *service.Reconciler
	API        *api.API
}

// setupServices initializes all node services in dependency order.
func setupServices(ctx context.Context, cfg *Config) (*Services, error) {
	services := &Services{}

	// Document store
	stg, err := storage.New(ctx, cfg.Mongo.URL, cfg.Mongo.DB)
	if err != nil {
		return nil, err
	}
	services.Storage = stg
	log.Infow("document store ready", "db", cfg.Mongo.DB)

	// Cache (optional)
	var voteCache ballotbox.VoteCache
	var snapshots api.SnapshotCache
	var invalidator lifecycle.Invalidator
	if cfg.Redis.Addr != "" {
		c := cache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		services.Cache = c
		voteCache, snapshots, invalidator = c, c, c
		log.Infow("cache ready", "addr", cfg.Redis.Addr)
	} else {
		log.Warn("no redis address configured, running without cache")
	}

	// Prover artifacts
	artifactsDir := cfg.Prover.Artifacts
	if artifactsDir == "" {
		artifactsDir = filepath.Join(cfg.Datadir, "artifacts")
	}
	artifacts := prover.NewArtifacts(artifactsDir)
	if err := artifacts.LoadAll(); err != nil {
		return nil, err
	}
	pipeline := prover.New(artifacts)
	log.Infow("proof pipeline ready", "artifacts", artifactsDir)

	// Ledger (optional)
	var submitter ballotbox.LedgerSubmitter
	var ledger api.Ledger
	if cfg.Web3.Rpc != "" {
		checkpoints, err := web3.OpenCheckpoints(filepath.Join(cfg.Datadir, "checkpoints"))
		if err != nil {
			return nil, err
		}
		contracts, err := web3.New(ctx, cfg.Web3.Rpc, cfg.Web3.Contract, checkpoints)
		if err != nil {
			return nil, err
		}
		if err := contracts.SetAccountPrivateKey(cfg.Web3.PrivKey); err != nil {
			return nil, err
		}
		services.Contracts = contracts
		submitter, ledger = contracts, contracts
		log.Infow("ledger ready", "chainID", contracts.ChainID, "contract", cfg.Web3.Contract)
	} else {
		log.Warn("no web3 rpc configured, running without the ledger")
	}

	// Lifecycle scheduler
	scheduler := lifecycle.NewScheduler(stg, invalidator)
	scheduler.Start(ctx, cfg.Sweep.Interval)
	services.Scheduler = scheduler

	// Ballot box
	box := ballotbox.NewBox(stg, voteCache, pipeline, submitter, service.NewAuditNotifier())
	services.Box = box

	// On-chain event reconciler
	if services.Contracts != nil {
		events, err := services.Contracts.MonitorVoteCast(ctx, monitorInterval)
		if err != nil {
			return nil, err
		}
		reconciler := service.NewReconciler(stg)
		reconciler.Start(ctx, events)
		services.Reconciler = reconciler
	}

	// API service
	apiService, err := api.New(&api.APIConfig{
		Host:       cfg.API.Host,
		Port:       cfg.API.Port,
		Store:      stg,
		Cache:      snapshots,
		Box:        box,
		Scheduler:  scheduler,
		Prover:     pipeline,
		Ledger:     ledger,
		AdminToken: cfg.API.AdminToken,
	})
	if err != nil {
		return nil, err
	}
	services.API = apiService

	return services, nil
}

// shutdownServices gracefully stops all services in reverse order.
func shutdownServices(services *Services) {
	if services.Reconciler != nil {
		services.Reconciler.Close()
	}
	if services.Box != nil {
		services.Box.Close()
	}
	if services.Scheduler != nil {
		services.Scheduler.Close()
	}
	if services.Contracts != nil {
		// Also closes the checkpoint store it owns.
		services.Contracts.Close()
	}
	if services.Cache != nil {
		if err := services.Cache.Close(); err != nil {
			log.Warnw("failed to close cache", "error", err.Error())
		}
	}
	if services.Storage != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := services.Storage.Close(shutdownCtx); err != nil {
			log.Warnw("failed to close storage", "error", err.Error())
		}
	}
}
