package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestMetrics_Counters(t *testing.T) {
	m := New()
	m.Distribution()
	m.Claim()
	m.Claim()
	m.Unstake()
	m.Stake()
	m.Callback(OutcomeVerified)
	m.Callback(OutcomeRejected)
	m.Callback(OutcomeRejected)
	m.ExternalFailure(CallTransferTokens)

	assert.Equal(t, 1.0, counterValue(t, m.distributions))
	assert.Equal(t, 2.0, counterValue(t, m.claims))
	assert.Equal(t, 1.0, counterValue(t, m.unstakes))
	assert.Equal(t, 1.0, counterValue(t, m.stakes))
	assert.Equal(t, 2.0, counterValue(t, m.callbacks.WithLabelValues(OutcomeRejected)))
	assert.Equal(t, 1.0, counterValue(t, m.externalFailures.WithLabelValues(CallTransferTokens)))
}

func TestMetrics_PoolGauge(t *testing.T) {
	m := New()
	m.PoolAvailable(uint256.NewInt(12345))

	var out dto.Metric
	require.NoError(t, m.poolAvailable.Write(&out))
	assert.Equal(t, 12345.0, out.GetGauge().GetValue())
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Distribution()
		m.Claim()
		m.Callback(OutcomeVerified)
		m.PoolAvailable(uint256.NewInt(1))
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.Claim()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "hive_staking_claims_total 1"))
}

func TestMetrics_RegisterExternal(t *testing.T) {
	m := New()
	g := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "db_total_conns",
		Help:      "test",
	}, func() float64 { return 3 })
	require.NoError(t, m.Register(g))
	assert.Error(t, m.Register(g))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "hive_staking_db_total_conns 3")
}
