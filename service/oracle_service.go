package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/algorank/algorank-node/log"
	"github.com/algorank/algorank-node/oracle"
)

// DefaultOracleInterval is the pause between two reconciliation cycles.
const DefaultOracleInterval = 5 * time.Second

// OracleService runs the reconciliation loop in the background: an initial
// cycle on start and then one cycle per interval until stopped.
type OracleService struct {
	Oracle   *oracle.Oracle
	interval time.Duration
	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewOracle creates a new OracleService around o.
func NewOracle(o *oracle.Oracle, interval time.Duration) *OracleService {
	if interval <= 0 {
		interval = DefaultOracleInterval
	}
	return &OracleService{
		Oracle:   o,
		interval: interval,
	}
}

// Start claims the verifier role and starts the loop. It returns an error if
// the service is already running or the role is locked to another identity.
func (ors *OracleService) Start(ctx context.Context) error {
	ors.mu.Lock()
	defer ors.mu.Unlock()

	if ors.cancel != nil {
		return fmt.Errorf("service already running")
	}
	if err := ors.Oracle.AssertVerifier(ctx); err != nil {
		return err
	}
	ctx, ors.cancel = context.WithCancel(ctx)
	ors.done = make(chan struct{})
	go ors.run(ctx, ors.done)
	return nil
}

// Stop halts the loop and waits for the running cycle to return.
func (ors *OracleService) Stop() {
	ors.mu.Lock()
	defer ors.mu.Unlock()

	if ors.cancel == nil {
		return
	}
	ors.cancel()
	<-ors.done
	ors.cancel = nil
	ors.done = nil
}

func (ors *OracleService) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	log.Infow("oracle started",
		"address", ors.Oracle.Address().Hex(),
		"interval", ors.interval.String())

	ors.cycle(ctx)

	ticker := time.NewTicker(ors.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Infow("oracle stopped")
			return
		case <-ticker.C:
			ors.cycle(ctx)
		}
	}
}

func (ors *OracleService) cycle(ctx context.Context) {
	report, err := ors.Oracle.RunCycle(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Warnw("reconciliation cycle failed", "cycle", report.ID, "error", err)
		}
		return
	}
	processed := report.Count(oracle.OutcomeVerified) + report.Count(oracle.OutcomeRejected) +
		report.Count(oracle.OutcomeInvalidContent) + report.Count(oracle.OutcomeFailed)
	if processed == 0 {
		return
	}
	log.Monitor("oracle cycle", map[string]any{
		"cycle":          report.ID,
		"accounts":       report.Accounts,
		"verified":       report.Count(oracle.OutcomeVerified),
		"rejected":       report.Count(oracle.OutcomeRejected),
		"invalidContent": report.Count(oracle.OutcomeInvalidContent),
		"failed":         report.Count(oracle.OutcomeFailed),
		"cached":         report.Count(oracle.OutcomeCached) + report.Count(oracle.OutcomeLedgerVerified),
		"took":           report.Duration.String(),
	})
}
