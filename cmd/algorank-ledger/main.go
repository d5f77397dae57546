package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/algorank/algorank-node/config"
	"github.com/algorank/algorank-node/db"
	"github.com/algorank/algorank-node/db/metadb"
	"github.com/algorank/algorank-node/log"
	"github.com/algorank/algorank-node/registry"
	"github.com/algorank/algorank-node/service"
)

// Services holds all the running services
type Services struct {
	DB       db.Database
	Registry *registry.Registry
	API      *service.APIService
}

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	log.Init(cfg.Log.Level, cfg.Log.Output, nil)
	log.Infow("starting algorank-ledger", "version", config.Version)

	if err := validateConfig(cfg); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	services, err := setupServices(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to setup services: %v", err)
	}
	defer shutdownServices(services)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	log.Infow("received signal, shutting down", "signal", sig.String())
}

// setupServices opens the database, loads the registry and starts the API
func setupServices(ctx context.Context, cfg *Config) (*Services, error) {
	services := &Services{}

	dbPath := filepath.Join(cfg.Datadir, "db")
	log.Infow("initializing storage", "datadir", dbPath, "type", cfg.DB.Type)
	database, err := metadb.New(cfg.DB.Type, dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	services.DB = database

	policy := registry.VerifierPolicyLocked
	if !cfg.Registry.LockVerifier {
		policy = registry.VerifierPolicyReassignable
	}
	services.Registry, err = registry.New(database, cfg.App.ID, registry.WithVerifierPolicy(policy))
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to load registry: %w", err)
	}
	gs, err := services.Registry.GlobalState()
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to read registry state: %w", err)
	}
	log.Infow("registry loaded",
		"appID", cfg.App.ID,
		"registered", gs.RegisteredCount,
		"submitted", gs.SubmittedCount,
		"verified", gs.VerifiedCount,
		"aggregate", gs.Aggregate,
		"verifier", gs.Verifier.Mode.String())
	if sum, ok, err := services.Registry.AuditAggregate(); err != nil {
		log.Warnw("aggregate audit failed", "error", err)
	} else if !ok {
		log.Warnw("aggregate does not match the verified contributions",
			"aggregate", gs.Aggregate,
			"contributions", sum)
	}

	log.Infow("starting API service", "host", cfg.API.Host, "port", cfg.API.Port)
	services.API = service.NewAPI(services.Registry, cfg.API.Host, cfg.API.Port, cfg.API.NoRequestLog)
	if err := services.API.Start(ctx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to start API service: %w", err)
	}

	log.Info("algorank-ledger is running, ready to accept ballots!")
	return services, nil
}

// shutdownServices gracefully shuts down all services
func shutdownServices(services *Services) {
	if services == nil {
		return
	}
	if services.API != nil {
		services.API.Stop()
	}
	if services.DB != nil {
		if err := services.DB.Close(); err != nil {
			log.Warnw("failed to close database", "error", err)
		}
	}
}
