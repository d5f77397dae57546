package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/algorank/algorank-node/accumulator"
	"github.com/algorank/algorank-node/ipfs"
	"github.com/algorank/algorank-node/log"
	"github.com/algorank/algorank-node/metrics"
	"github.com/algorank/algorank-node/registry"
	"github.com/algorank/algorank-node/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Outcome is the result of processing one voter in a cycle.
type Outcome int

const (
	// OutcomeNoBallot means the voter has not submitted a reference.
	OutcomeNoBallot Outcome = iota
	// OutcomeCached means the reference was already processed.
	OutcomeCached
	// OutcomeLedgerVerified means the ledger already holds the ballot as
	// verified.
	OutcomeLedgerVerified
	// OutcomeVerified means the proof was accepted and the aggregate updated.
	OutcomeVerified
	// OutcomeRejected means the proof verifier refused the artifact.
	OutcomeRejected
	// OutcomeInvalidContent means the reference can never yield a valid
	// artifact: malformed, missing or not matching its hash.
	OutcomeInvalidContent
	// OutcomeFailed means the voter could not be settled this cycle and is
	// retried on the next one.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNoBallot:
		return "no-ballot"
	case OutcomeCached:
		return "cached"
	case OutcomeLedgerVerified:
		return "ledger-verified"
	case OutcomeVerified:
		return "verified"
	case OutcomeRejected:
		return "rejected"
	case OutcomeInvalidContent:
		return "invalid-content"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(o))
	}
}

func (o Outcome) metricLabel() string {
	switch o {
	case OutcomeVerified:
		return metrics.OutcomeVerified
	case OutcomeRejected, OutcomeInvalidContent:
		return metrics.OutcomeRejected
	case OutcomeFailed:
		return metrics.OutcomeFailed
	default:
		return metrics.OutcomeSkipped
	}
}

// CycleReport summarizes one reconciliation cycle.
type CycleReport struct {
	ID       string
	Started  time.Time
	Duration time.Duration
	Accounts int
	Outcomes map[common.Address]Outcome
	// Aggregate is the last aggregate submitted by the cycle, zero if none.
	Aggregate uint64
}

// Count returns the number of voters that ended the cycle with outcome.
func (r *CycleReport) Count(outcome Outcome) int {
	n := 0
	for _, o := range r.Outcomes {
		if o == outcome {
			n++
		}
	}
	return n
}

type candidate struct {
	voter     common.Address
	reference []byte
}

type verification struct {
	candidate
	artifact *types.ProofArtifact
	outcome  Outcome
	reason   string
	err      error
}

// RunCycle runs one reconciliation cycle. Fetch and verification of new
// references run on up to Workers goroutines while submissions are made one
// at a time, each on top of the aggregate read right before it. Ledger errors
// abort the cycle and are returned together with the partial report; voters
// settled before the failure keep their result.
func (o *Oracle) RunCycle(ctx context.Context) (report *CycleReport, err error) {
	report = &CycleReport{
		ID:       uuid.NewString(),
		Started:  time.Now(),
		Outcomes: make(map[common.Address]Outcome),
	}
	defer func() {
		report.Duration = time.Since(report.Started)
		o.metrics.CycleFinished(report.Duration.Seconds(), err != nil)
		if err != nil {
			return
		}
		log.Debugw("cycle finished",
			"cycle", report.ID,
			"accounts", report.Accounts,
			"verified", report.Count(OutcomeVerified),
			"rejected", report.Count(OutcomeRejected),
			"failed", report.Count(OutcomeFailed),
			"took", report.Duration.String())
	}()

	accounts, err := o.Enumerate(ctx)
	if err != nil {
		return report, err
	}
	report.Accounts = len(accounts)

	var pending []candidate
	for _, account := range accounts {
		c, outcome, err := o.inspect(ctx, report, account)
		if err != nil {
			return report, err
		}
		if c == nil {
			report.Outcomes[account] = outcome
			continue
		}
		pending = append(pending, *c)
	}
	if len(pending) == 0 {
		return report, nil
	}
	return report, o.process(ctx, report, pending)
}

// inspect reads the local state of voter and returns a candidate if its
// reference needs processing.
func (o *Oracle) inspect(ctx context.Context, report *CycleReport, voter common.Address) (*candidate, Outcome, error) {
	kv, registered, err := o.ledger.LocalState(ctx, voter)
	if err != nil {
		return nil, OutcomeFailed, fmt.Errorf("read local state of %s: %w", voter.Hex(), err)
	}
	ref, ok := kv[o.conf.BallotKey]
	if !registered || !ok || ref.Type != types.StateValueBytes || len(ref.Bytes) == 0 {
		return nil, OutcomeNoBallot, nil
	}
	if v, ok := kv[types.KeyVerified]; ok && v.Type == types.StateValueUint && v.Uint == 1 {
		if !o.cache.Seen(voter, ref.Bytes) {
			o.cache.Record(voter, ref.Bytes, OutcomeLedgerVerified)
			o.metrics.BallotProcessed(OutcomeLedgerVerified.metricLabel())
		}
		return nil, OutcomeLedgerVerified, nil
	}
	if o.cache.Seen(voter, ref.Bytes) {
		return nil, OutcomeCached, nil
	}
	o.metrics.BallotDiscovered()
	log.Debugw("ballot discovered", "cycle", report.ID, "voter", voter.Hex(), "reference", string(ref.Bytes))
	return &candidate{voter: voter, reference: ref.Bytes}, OutcomeNoBallot, nil
}

// process checks the pending candidates in parallel and settles the results
// sequentially, in the order they complete.
func (o *Oracle) process(ctx context.Context, report *CycleReport, pending []candidate) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan verification)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.conf.Workers)
	go func() {
		defer close(results)
		for _, c := range pending {
			if gctx.Err() != nil {
				break
			}
			g.Go(func() error {
				r := o.check(gctx, c)
				select {
				case results <- r:
				case <-gctx.Done():
				}
				return nil
			})
		}
		_ = g.Wait()
	}()

	var err error
	for r := range results {
		if err != nil {
			continue
		}
		if err = o.settle(ctx, report, r); err != nil {
			cancel()
		}
	}
	if err != nil {
		return err
	}
	return ctx.Err()
}

// check fetches and verifies the artifact of a candidate.
func (o *Oracle) check(ctx context.Context, c candidate) verification {
	res := verification{candidate: c}
	artifact, err := o.fetcher.FetchJSON(ctx, string(c.reference))
	if err != nil {
		o.metrics.FetchFailed(fetchErrorKind(err))
		res.err = err
		res.outcome = OutcomeFailed
		if ipfs.IsTerminal(err) {
			res.outcome = OutcomeInvalidContent
		}
		return res
	}
	o.metrics.ArtifactFetched()
	log.Debugw("artifact fetched", "voter", c.voter.Hex(), "reference", string(c.reference), "log2n", artifact.Log2N)

	result := o.verifier.VerifyArtifact(ctx, artifact, *o.conf.SetupSeed, *o.conf.ProofSeed)
	switch {
	case result.Accepted:
		res.artifact = artifact
		res.outcome = OutcomeVerified
	case result.Unavailable && o.conf.CachePolicy != CachePolicyAllOutcomes:
		res.outcome = OutcomeFailed
		res.err = errors.New(result.Message)
	default:
		res.outcome = OutcomeRejected
		res.reason = result.Message
	}
	return res
}

// settle applies the result of a check. Only ledger errors are returned.
func (o *Oracle) settle(ctx context.Context, report *CycleReport, r verification) error {
	ref := string(r.reference)
	switch r.outcome {
	case OutcomeVerified:
		return o.submit(ctx, report, r)
	case OutcomeRejected:
		log.Infow("ballot rejected", "cycle", report.ID, "voter", r.voter.Hex(), "reference", ref, "reason", r.reason)
	case OutcomeInvalidContent:
		log.Warnw("ballot content unusable", "cycle", report.ID, "voter", r.voter.Hex(), "reference", ref, "error", r.err)
	default:
		log.Warnw("ballot check postponed", "cycle", report.ID, "voter", r.voter.Hex(), "reference", ref, "error", r.err)
	}
	o.finish(report, r.candidate, r.outcome)
	return nil
}

// submit folds the artifact digest into the current aggregate and records
// the ballot as verified on the ledger.
func (o *Oracle) submit(ctx context.Context, report *CycleReport, r verification) error {
	current, err := o.aggregate(ctx)
	if err != nil {
		return err
	}
	digest := accumulator.Digest(r.artifact)
	next := accumulator.CombineAggregate(current, digest)
	status, err := o.ledger.VerifyBallot(ctx, r.voter, next)
	switch {
	case err == nil:
	case errors.Is(err, registry.ErrAlreadyVerified):
		log.Infow("ballot already verified", "cycle", report.ID, "voter", r.voter.Hex(), "status", status)
		o.finish(report, r.candidate, OutcomeLedgerVerified)
		return nil
	case errors.Is(err, registry.ErrUnauthorized):
		return fmt.Errorf("verify ballot of %s: %s is not the verifier: %w", r.voter.Hex(), o.Address().Hex(), err)
	case registry.IsGuardError(err):
		log.Warnw("ballot verification refused", "cycle", report.ID, "voter", r.voter.Hex(), "status", status, "error", err)
		o.finish(report, r.candidate, OutcomeFailed)
		return nil
	default:
		return fmt.Errorf("verify ballot of %s: %w", r.voter.Hex(), err)
	}
	report.Aggregate = next
	o.metrics.AggregateSubmitted(next)
	log.Infow("ballot verified",
		"cycle", report.ID,
		"voter", r.voter.Hex(),
		"reference", string(r.reference),
		"digest", digest,
		"aggregate", next)
	o.finish(report, r.candidate, OutcomeVerified)
	return nil
}

func (o *Oracle) finish(report *CycleReport, c candidate, outcome Outcome) {
	report.Outcomes[c.voter] = outcome
	o.metrics.BallotProcessed(outcome.metricLabel())
	if o.conf.CachePolicy.Caches(outcome) {
		o.cache.Record(c.voter, c.reference, outcome)
	}
}
