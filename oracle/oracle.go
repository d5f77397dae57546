// Package oracle implements the reconciliation loop that moves ballots from
// submitted to verified. Every cycle enumerates the ledger accounts, fetches
// the artifact of each new ballot reference, checks it against the proof
// verifier and, on acceptance, folds its digest into the ledger aggregate.
package oracle

import (
	"context"
	"errors"
	"fmt"

	"github.com/algorank/algorank-node/ipfs"
	"github.com/algorank/algorank-node/log"
	"github.com/algorank/algorank-node/metrics"
	"github.com/algorank/algorank-node/registry"
	"github.com/algorank/algorank-node/types"
	"github.com/algorank/algorank-node/verifier"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
)

// Default configuration values.
const (
	DefaultWorkers  = 1
	DefaultPageSize = 100
)

// Ledger is the view of the ballot registry used by the oracle. It is
// satisfied by the ledger API client.
type Ledger interface {
	Address() common.Address
	ListAccounts(ctx context.Context, next string, limit int) ([]common.Address, string, error)
	LocalState(ctx context.Context, account common.Address) (types.KeyValues, bool, error)
	GlobalState(ctx context.Context) (types.KeyValues, error)
	SetVerifier(ctx context.Context) (string, error)
	VerifyBallot(ctx context.Context, target common.Address, newAggregate uint64) (string, error)
}

// Fetcher retrieves proof artifacts by content reference.
type Fetcher interface {
	FetchJSON(ctx context.Context, reference string) (*types.ProofArtifact, error)
}

// Verifier checks proof artifacts.
type Verifier interface {
	VerifyArtifact(ctx context.Context, artifact *types.ProofArtifact, setupSeed, proofSeed uint64) verifier.Result
}

// Config holds the oracle tunables. Zero values select the defaults; the
// seeds are pointers so that a zero seed can be configured.
type Config struct {
	SetupSeed    *uint64
	ProofSeed    *uint64
	Workers      int
	CachePolicy  CachePolicy
	CacheSize    int
	PageSize     int
	BallotKey    string
	AggregateKey string
}

func (c *Config) setDefaults() {
	if c.SetupSeed == nil {
		c.SetupSeed = new(uint64)
		*c.SetupSeed = verifier.DefaultSetupSeed
	}
	if c.ProofSeed == nil {
		c.ProofSeed = new(uint64)
		*c.ProofSeed = verifier.DefaultProofSeed
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.CacheSize <= 0 {
		c.CacheSize = DefaultCacheSize
	}
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.BallotKey == "" {
		c.BallotKey = types.KeyBallotRef
	}
	if c.AggregateKey == "" {
		c.AggregateKey = types.KeyAggregate
	}
}

// Oracle holds the state of one reconciliation loop. Instances are
// independent; RunCycle must not be called concurrently on the same one.
type Oracle struct {
	conf     Config
	ledger   Ledger
	fetcher  Fetcher
	verifier Verifier
	cache    *ObservationCache
	metrics  *metrics.OracleCollector
}

// New creates an oracle. If collector is nil the metrics are registered on a
// private registry and discarded.
func New(conf Config, ledger Ledger, fetcher Fetcher, v Verifier, collector *metrics.OracleCollector) (*Oracle, error) {
	if ledger == nil || fetcher == nil || v == nil {
		return nil, fmt.Errorf("oracle requires a ledger, a fetcher and a verifier")
	}
	conf.setDefaults()
	cache, err := NewObservationCache(conf.CacheSize)
	if err != nil {
		return nil, err
	}
	if collector == nil {
		collector = metrics.NewOracleCollector(prometheus.NewRegistry())
	}
	return &Oracle{
		conf:     conf,
		ledger:   ledger,
		fetcher:  fetcher,
		verifier: v,
		cache:    cache,
		metrics:  collector,
	}, nil
}

// Address returns the identity the oracle submits verifications with.
func (o *Oracle) Address() common.Address {
	return o.ledger.Address()
}

// Cache returns the observation cache of the oracle.
func (o *Oracle) Cache() *ObservationCache {
	return o.cache
}

// AssertVerifier claims the verifier role on the ledger. A role locked to
// another identity is returned as an error, since no submission of this oracle
// can succeed. Any other failure is logged and ignored.
func (o *Oracle) AssertVerifier(ctx context.Context) error {
	status, err := o.ledger.SetVerifier(ctx)
	switch {
	case err == nil:
		log.Infow("verifier set", "address", o.Address().Hex(), "status", status)
	case errors.Is(err, registry.ErrVerifierLocked):
		return fmt.Errorf("%s cannot claim the verifier role: %w", o.Address().Hex(), err)
	default:
		log.Warnw("could not set verifier", "address", o.Address().Hex(), "status", status, "error", err)
	}
	return nil
}

// Enumerate returns every account opted into the application, paging the
// ledger until the cursor is exhausted.
func (o *Oracle) Enumerate(ctx context.Context) ([]common.Address, error) {
	var (
		accounts []common.Address
		next     string
	)
	for {
		page, cursor, err := o.ledger.ListAccounts(ctx, next, o.conf.PageSize)
		if err != nil {
			return nil, fmt.Errorf("list accounts: %w", err)
		}
		accounts = append(accounts, page...)
		if cursor == "" {
			return accounts, nil
		}
		if cursor == next {
			return nil, fmt.Errorf("list accounts: cursor %q did not advance", cursor)
		}
		next = cursor
	}
}

// aggregate reads the current aggregate from the ledger global state.
func (o *Oracle) aggregate(ctx context.Context) (uint64, error) {
	kv, err := o.ledger.GlobalState(ctx)
	if err != nil {
		return 0, fmt.Errorf("read global state: %w", err)
	}
	v, ok := kv[o.conf.AggregateKey]
	if !ok || v.Type != types.StateValueUint {
		return 0, fmt.Errorf("global state has no %q counter", o.conf.AggregateKey)
	}
	return v.Uint, nil
}

// fetchErrorKind returns the label of a failed fetch.
func fetchErrorKind(err error) string {
	var fe *ipfs.FetchError
	if errors.As(err, &fe) {
		return fe.Kind.String()
	}
	return "other"
}
