// Package metrics exposes staking activity to Prometheus.
package metrics

import (
	"math/big"
	"net/http"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every staking metric name.
const Namespace = "hive_staking"

// Callback outcomes.
const (
	OutcomeRequested = "requested"
	OutcomeVerified  = "verified"
	OutcomeRejected  = "rejected"
)

// External calls.
const (
	CallDescribe       = "describe_item"
	CallTransferTokens = "transfer_tokens"
	CallTransferItems  = "transfer_items"
)

// Metrics holds every staking meter. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	distributions    prometheus.Counter
	claims           prometheus.Counter
	unstakes         prometheus.Counter
	stakes           prometheus.Counter
	callbacks        *prometheus.CounterVec
	externalFailures *prometheus.CounterVec
	poolAvailable    prometheus.Gauge
}

// New creates the meters on a dedicated registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		distributions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "distributions_total",
			Help:      "Distribution passes applied to the ledger.",
		}),
		claims: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "claims_total",
			Help:      "Successful reward claims.",
		}),
		unstakes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "unstakes_total",
			Help:      "Stakes removed after their lockup.",
		}),
		stakes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "stakes_total",
			Help:      "Stakes opened after verification.",
		}),
		callbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "callbacks_total",
			Help:      "Registry replies by resulting verification state.",
		}, []string{"outcome"}),
		externalFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "external_failures_total",
			Help:      "Failed calls to the item registry or token ledger.",
		}, []string{"call"}),
		poolAvailable: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "reward_pool_available",
			Help:      "Reward pool balance, approximated as a float.",
		}),
	}
	m.registry.MustRegister(
		m.distributions,
		m.claims,
		m.unstakes,
		m.stakes,
		m.callbacks,
		m.externalFailures,
		m.poolAvailable,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Register adds collectors owned by other packages, such as the database
// pool gauges.
func (m *Metrics) Register(cs ...prometheus.Collector) error {
	for _, c := range cs {
		if err := m.registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Distribution() {
	if m != nil {
		m.distributions.Inc()
	}
}

func (m *Metrics) Claim() {
	if m != nil {
		m.claims.Inc()
	}
}

func (m *Metrics) Unstake() {
	if m != nil {
		m.unstakes.Inc()
	}
}

func (m *Metrics) Stake() {
	if m != nil {
		m.stakes.Inc()
	}
}

func (m *Metrics) Callback(outcome string) {
	if m != nil {
		m.callbacks.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) ExternalFailure(call string) {
	if m != nil {
		m.externalFailures.WithLabelValues(call).Inc()
	}
}

// PoolAvailable sets the pool gauge. Amounts beyond float64 precision are
// rounded.
func (m *Metrics) PoolAvailable(amount *uint256.Int) {
	if m != nil && amount != nil {
		f, _ := new(big.Float).SetInt(amount.ToBig()).Float64()
		m.poolAvailable.Set(f)
	}
}
