package main

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/algorank/algorank-node/config"
	"github.com/algorank/algorank-node/ipfs"
	"github.com/algorank/algorank-node/log"
	"github.com/algorank/algorank-node/oracle"
	"github.com/algorank/algorank-node/service"
	"github.com/algorank/algorank-node/types"
	"github.com/algorank/algorank-node/verifier"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds the oracle configuration
type Config struct {
	App      AppConfig
	Ledger   LedgerConfig
	Oracle   OracleConfig
	State    StateConfig
	Gateway  GatewayConfig
	Verifier VerifierConfig
	Web3     Web3Config
	Metrics  MetricsConfig
	Log      LogConfig
}

// AppConfig selects the application reconciled
type AppConfig struct {
	ID uint64 `mapstructure:"id"`
}

// LedgerConfig holds the ledger API endpoint
type LedgerConfig struct {
	URL string `mapstructure:"url"`
}

// OracleConfig holds the reconciliation loop settings
type OracleConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	Workers     int           `mapstructure:"workers"`
	CachePolicy string        `mapstructure:"cachepolicy"`
	CacheSize   int           `mapstructure:"cachesize"`
}

// StateConfig names the application state keys read by the oracle
type StateConfig struct {
	BallotKey    string `mapstructure:"ballotkey"`
	AggregateKey string `mapstructure:"aggregatekey"`
}

// GatewayConfig holds the IPFS gateway settings
type GatewayConfig struct {
	URL      string        `mapstructure:"url"`
	Token    string        `mapstructure:"token"`
	Attempts int           `mapstructure:"attempts"`
	Backoff  time.Duration `mapstructure:"backoff"`
}

// VerifierConfig holds the proof verification service settings
type VerifierConfig struct {
	URL       string `mapstructure:"url"`
	SetupSeed uint64 `mapstructure:"setupseed"`
	ProofSeed uint64 `mapstructure:"proofseed"`
}

// Web3Config holds the oracle identity
type Web3Config struct {
	PrivKey string `mapstructure:"privkey"`
}

// MetricsConfig holds the prometheus endpoint settings
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Output string `mapstructure:"output"`
}

// loadConfig loads configuration from flags, environment variables, and defaults
func loadConfig(args []string) (*Config, error) {
	v := viper.New()

	v.SetDefault("app.id", config.DefaultAppID)
	v.SetDefault("ledger.url", config.DefaultLedgerURL)
	v.SetDefault("oracle.interval", service.DefaultOracleInterval)
	v.SetDefault("oracle.workers", oracle.DefaultWorkers)
	v.SetDefault("oracle.cachepolicy", oracle.CachePolicyTerminal.String())
	v.SetDefault("oracle.cachesize", oracle.DefaultCacheSize)
	v.SetDefault("state.ballotkey", types.KeyBallotRef)
	v.SetDefault("state.aggregatekey", types.KeyAggregate)
	v.SetDefault("gateway.url", ipfs.DefaultGatewayURL)
	v.SetDefault("gateway.token", "")
	v.SetDefault("gateway.attempts", ipfs.DefaultMaxAttempts)
	v.SetDefault("gateway.backoff", ipfs.DefaultBaseDelay)
	v.SetDefault("verifier.url", verifier.DefaultURL)
	v.SetDefault("verifier.setupseed", verifier.DefaultSetupSeed)
	v.SetDefault("verifier.proofseed", verifier.DefaultProofSeed)
	v.SetDefault("web3.privkey", "")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("log.level", config.DefaultLogLevel)
	v.SetDefault("log.output", config.DefaultLogOutput)

	fs := flag.NewFlagSet("algorank-oracle", flag.ContinueOnError)
	fs.Uint64("app.id", config.DefaultAppID, "application id to reconcile")
	fs.StringP("ledger.url", "u", config.DefaultLedgerURL, "ledger API base URL")
	fs.DurationP("oracle.interval", "i", service.DefaultOracleInterval, "pause between reconciliation cycles")
	fs.Int("oracle.workers", oracle.DefaultWorkers, "parallel artifact fetch and verification workers")
	fs.String("oracle.cachepolicy", oracle.CachePolicyTerminal.String(),
		"outcomes remembered by the observation cache (terminal or all)")
	fs.Int("oracle.cachesize", oracle.DefaultCacheSize, "voters remembered by the observation cache")
	fs.String("state.ballotkey", types.KeyBallotRef, "local state key holding the ballot reference")
	fs.String("state.aggregatekey", types.KeyAggregate, "global state key holding the aggregate")
	fs.StringP("gateway.url", "g", ipfs.DefaultGatewayURL, "IPFS gateway base URL")
	fs.String("gateway.token", "", "IPFS gateway access token")
	fs.Int("gateway.attempts", ipfs.DefaultMaxAttempts, "requests per artifact fetch")
	fs.Duration("gateway.backoff", ipfs.DefaultBaseDelay, "base delay between fetch attempts, grows linearly")
	fs.StringP("verifier.url", "v", verifier.DefaultURL, "proof verification service base URL")
	fs.Uint64("verifier.setupseed", verifier.DefaultSetupSeed, "proving setup seed")
	fs.Uint64("verifier.proofseed", verifier.DefaultProofSeed, "proof transcript seed")
	fs.StringP("web3.privkey", "k", "", "hex private key of the verifier identity (random if empty)")
	fs.String("metrics.addr", "", "address to serve prometheus metrics on (disabled if empty)")
	fs.StringP("log.level", "l", config.DefaultLogLevel, "log level (debug, info, warn, error, fatal)")
	fs.StringP("log.output", "o", config.DefaultLogOutput, "log output (stdout, stderr or filepath)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "algorank-oracle v%s\n\n", config.Version)
		fmt.Fprintf(os.Stderr, "Usage: algorank-oracle [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment variables are also available with the same name as flags,\n")
		fmt.Fprintf(os.Stderr, "  except for dashes (-) and dots (.) which are replaced by underscores (_).\n")
		fmt.Fprintf(os.Stderr, "  For example, %s_WEB3_PRIVKEY or %s_GATEWAY_TOKEN\n", config.EnvPrefix, config.EnvPrefix)
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Reconcile the default application against a local ledger\n")
		fmt.Fprintf(os.Stderr, "  algorank-oracle --web3.privkey=0x123... --gateway.token=...\n\n")
		fmt.Fprintf(os.Stderr, "  # Verify with four workers and never retry rejected ballots\n")
		fmt.Fprintf(os.Stderr, "  algorank-oracle --oracle.workers=4 --oracle.cachepolicy=all\n")
	}

	fs.SortFlags = false
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v.SetEnvPrefix(config.EnvPrefix)
	v.SetEnvKeyReplacer(config.EnvKeyReplacer())
	v.AutomaticEnv()

	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("error binding flags: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return cfg, nil
}

// validateConfig validates the loaded configuration
func validateConfig(cfg *Config) error {
	if cfg.App.ID == 0 {
		return fmt.Errorf("app id must not be zero")
	}
	for name, raw := range map[string]string{
		"ledger":   cfg.Ledger.URL,
		"gateway":  cfg.Gateway.URL,
		"verifier": cfg.Verifier.URL,
	} {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid %s url %q", name, raw)
		}
	}
	if cfg.Oracle.Interval <= 0 {
		return fmt.Errorf("oracle interval must be positive")
	}
	if cfg.Oracle.Workers < 1 {
		return fmt.Errorf("oracle workers must be at least 1")
	}
	if _, err := oracle.ParseCachePolicy(cfg.Oracle.CachePolicy); err != nil {
		return err
	}
	if cfg.Gateway.Attempts < 1 {
		return fmt.Errorf("gateway attempts must be at least 1")
	}
	if cfg.State.BallotKey == "" || cfg.State.AggregateKey == "" {
		return fmt.Errorf("state keys must not be empty")
	}
	if !log.ValidLevel(cfg.Log.Level) {
		return fmt.Errorf("invalid log level %q", cfg.Log.Level)
	}
	return nil
}
