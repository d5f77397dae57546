package oracle

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of voters remembered by the cache.
const DefaultCacheSize = 10000

// CachePolicy decides which outcomes are remembered by the observation cache.
// A remembered reference is not processed again until it changes.
type CachePolicy int

const (
	// CachePolicyTerminal remembers a reference once its outcome cannot
	// change: verified here, verified on the ledger, or content that can
	// never verify. Rejections and transient failures are retried.
	CachePolicyTerminal CachePolicy = iota
	// CachePolicyAllOutcomes remembers accepted and rejected references
	// alike, so a rejected ballot is never reconsidered by this process. An
	// unavailable verification service counts as a rejection under it.
	CachePolicyAllOutcomes
)

func (p CachePolicy) String() string {
	switch p {
	case CachePolicyTerminal:
		return "terminal"
	case CachePolicyAllOutcomes:
		return "all"
	default:
		return fmt.Sprintf("unknown(%d)", int(p))
	}
}

// ParseCachePolicy parses "terminal" or "all".
func ParseCachePolicy(s string) (CachePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "terminal":
		return CachePolicyTerminal, nil
	case "all":
		return CachePolicyAllOutcomes, nil
	default:
		return 0, fmt.Errorf("unknown cache policy %q (terminal|all)", s)
	}
}

// Caches reports whether an outcome is remembered under the policy.
func (p CachePolicy) Caches(o Outcome) bool {
	switch o {
	case OutcomeVerified, OutcomeLedgerVerified:
		return true
	case OutcomeInvalidContent:
		return p == CachePolicyTerminal
	case OutcomeRejected:
		return p == CachePolicyAllOutcomes
	default:
		return false
	}
}

// Observation is the last reference processed for a voter and its outcome.
type Observation struct {
	Reference []byte
	Outcome   Outcome
}

// ObservationCache maps voters to their last processed reference. It is a
// bounded in-memory LRU: an evicted voter is simply processed again, which
// the ledger guards make harmless.
type ObservationCache struct {
	entries *lru.Cache[common.Address, Observation]
}

// NewObservationCache returns a cache holding up to size voters.
func NewObservationCache(size int) (*ObservationCache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	entries, err := lru.New[common.Address, Observation](size)
	if err != nil {
		return nil, fmt.Errorf("create observation cache: %w", err)
	}
	return &ObservationCache{entries: entries}, nil
}

// Seen reports whether voter was last observed with exactly reference.
func (c *ObservationCache) Seen(voter common.Address, reference []byte) bool {
	obs, ok := c.entries.Get(voter)
	return ok && bytes.Equal(obs.Reference, reference)
}

// Get returns the last observation of voter.
func (c *ObservationCache) Get(voter common.Address) (Observation, bool) {
	return c.entries.Get(voter)
}

// Record remembers reference as processed for voter.
func (c *ObservationCache) Record(voter common.Address, reference []byte, outcome Outcome) {
	c.entries.Add(voter, Observation{Reference: append([]byte(nil), reference...), Outcome: outcome})
}

// Len returns the number of cached voters.
func (c *ObservationCache) Len() int {
	return c.entries.Len()
}
