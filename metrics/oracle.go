// Package metrics holds the prometheus collectors of the oracle and the HTTP
// server exposing them.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespaceOracle = "algorank_oracle"

// Outcome labels of processed voters.
const (
	OutcomeVerified = "verified"
	OutcomeRejected = "rejected"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
)

// OracleCollector implements metric collection for the reconciliation loop.
type OracleCollector struct {
	cycles        prometheus.Counter
	cycleFailures prometheus.Counter
	cycleDuration prometheus.Histogram
	discovered    prometheus.Counter
	fetched       prometheus.Counter
	fetchErrors   *prometheus.CounterVec
	outcomes      *prometheus.CounterVec
	aggregate     prometheus.Gauge
}

// NewOracleCollector creates the oracle collectors and registers them.
func NewOracleCollector(registerer prometheus.Registerer) *OracleCollector {
	m := &OracleCollector{
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceOracle,
			Name:      "cycles_total",
			Help:      "the number of reconciliation cycles run",
		}),
		cycleFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceOracle,
			Name:      "cycle_failures_total",
			Help:      "the number of reconciliation cycles aborted by a ledger error",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespaceOracle,
			Name:      "cycle_duration_seconds",
			Help:      "the duration of reconciliation cycles",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
		discovered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceOracle,
			Name:      "ballots_discovered_total",
			Help:      "the number of new ballot references seen on the ledger",
		}),
		fetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceOracle,
			Name:      "artifacts_fetched_total",
			Help:      "the number of proof artifacts fetched from the gateway",
		}),
		fetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespaceOracle,
			Name:      "fetch_errors_total",
			Help:      "the number of failed artifact fetches by kind",
		}, []string{"kind"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespaceOracle,
			Name:      "ballots_processed_total",
			Help:      "the number of processed ballots by outcome",
		}, []string{"outcome"}),
		aggregate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespaceOracle,
			Name:      "aggregate",
			Help:      "the last aggregate submitted to the ledger, as float",
		}),
	}
	registerer.MustRegister(m.cycles, m.cycleFailures, m.cycleDuration, m.discovered,
		m.fetched, m.fetchErrors, m.outcomes, m.aggregate)
	return m
}

// CycleFinished records a finished cycle and its duration in seconds.
func (m *OracleCollector) CycleFinished(seconds float64, failed bool) {
	m.cycles.Inc()
	m.cycleDuration.Observe(seconds)
	if failed {
		m.cycleFailures.Inc()
	}
}

// BallotDiscovered records a ballot reference not seen before.
func (m *OracleCollector) BallotDiscovered() {
	m.discovered.Inc()
}

// ArtifactFetched records a successfully fetched artifact.
func (m *OracleCollector) ArtifactFetched() {
	m.fetched.Inc()
}

// FetchFailed records a failed fetch of the given kind.
func (m *OracleCollector) FetchFailed(kind string) {
	m.fetchErrors.WithLabelValues(kind).Inc()
}

// BallotProcessed records the outcome of a processed ballot.
func (m *OracleCollector) BallotProcessed(outcome string) {
	m.outcomes.WithLabelValues(outcome).Inc()
}

// AggregateSubmitted records the last submitted aggregate.
func (m *OracleCollector) AggregateSubmitted(aggregate uint64) {
	m.aggregate.Set(float64(aggregate))
}
