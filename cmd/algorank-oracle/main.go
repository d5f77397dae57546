package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/algorank/algorank-node/api/client"
	"github.com/algorank/algorank-node/config"
	"github.com/algorank/algorank-node/crypto/signatures/ethereum"
	"github.com/algorank/algorank-node/ipfs"
	"github.com/algorank/algorank-node/log"
	"github.com/algorank/algorank-node/metrics"
	"github.com/algorank/algorank-node/oracle"
	"github.com/algorank/algorank-node/service"
	"github.com/algorank/algorank-node/verifier"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	log.Init(cfg.Log.Level, cfg.Log.Output, nil)
	log.Infow("starting algorank-oracle", "version", config.Version)

	if err := validateConfig(cfg); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, err := setupOracle(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to setup oracle: %v", err)
	}
	defer svc.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	log.Infow("received signal, shutting down", "signal", sig.String())
}

// loadSigner returns the configured verifier identity, or a fresh one if no
// key was given.
func loadSigner(privKey string) (*ethereum.Signer, error) {
	if privKey == "" {
		signer, err := ethereum.NewSigner()
		if err != nil {
			return nil, err
		}
		log.Warnw("no private key provided, using an ephemeral identity; a restart cannot reclaim a locked verifier role",
			"address", signer.Address().Hex())
		return signer, nil
	}
	return ethereum.NewSignerFromHex(privKey)
}

// setupOracle wires the ledger client, fetcher, verifier client and metrics
// into an oracle and starts its service
func setupOracle(ctx context.Context, cfg *Config) (*service.OracleService, error) {
	signer, err := loadSigner(cfg.Web3.PrivKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load private key: %w", err)
	}
	ledger, err := client.New(cfg.Ledger.URL, cfg.App.ID, signer)
	if err != nil {
		return nil, fmt.Errorf("failed to create ledger client: %w", err)
	}
	if err := ledger.Ping(ctx); err != nil {
		log.Warnw("ledger API not reachable yet", "url", cfg.Ledger.URL, "error", err)
	}
	fetcher, err := ipfs.New(ipfs.Config{
		GatewayURL:  cfg.Gateway.URL,
		Token:       cfg.Gateway.Token,
		MaxAttempts: cfg.Gateway.Attempts,
		BaseDelay:   cfg.Gateway.Backoff,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway fetcher: %w", err)
	}
	if cfg.Gateway.Token == "" {
		log.Warnw("no gateway token configured", "gateway", cfg.Gateway.URL)
	}
	proofVerifier, err := verifier.New(cfg.Verifier.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create verifier client: %w", err)
	}
	policy, err := oracle.ParseCachePolicy(cfg.Oracle.CachePolicy)
	if err != nil {
		return nil, err
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewOracleCollector(promRegistry)
	if cfg.Metrics.Addr != "" {
		metrics.NewServer(cfg.Metrics.Addr, promRegistry).Start(ctx)
	}

	o, err := oracle.New(oracle.Config{
		SetupSeed:    &cfg.Verifier.SetupSeed,
		ProofSeed:    &cfg.Verifier.ProofSeed,
		Workers:      cfg.Oracle.Workers,
		CachePolicy:  policy,
		CacheSize:    cfg.Oracle.CacheSize,
		BallotKey:    cfg.State.BallotKey,
		AggregateKey: cfg.State.AggregateKey,
	}, ledger, fetcher, proofVerifier, collector)
	if err != nil {
		return nil, fmt.Errorf("failed to create oracle: %w", err)
	}

	log.Infow("oracle configured",
		"appID", cfg.App.ID,
		"ledger", cfg.Ledger.URL,
		"gateway", cfg.Gateway.URL,
		"verifier", cfg.Verifier.URL,
		"address", o.Address().Hex(),
		"workers", cfg.Oracle.Workers,
		"cachePolicy", policy.String())

	svc := service.NewOracle(o, cfg.Oracle.Interval)
	if err := svc.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start oracle service: %w", err)
	}
	return svc, nil
}
