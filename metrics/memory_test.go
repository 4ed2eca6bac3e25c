package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-resource/logger"
	"github.com/saiset-co/sai-resource/types"
	"github.com/saiset-co/sai-resource/utils"
)

func newTestMemoryMetrics(t *testing.T, prefix string) types.MetricsManager {
	t.Helper()
	m, err := NewMemoryMetrics(context.Background(), logger.NewZapWrapper(zap.NewNop()), &types.MetricsConfig{
		Enabled: true,
		Prefix:  prefix,
	})
	require.NoError(t, err)
	return m
}

func TestMemoryCounterAccumulates(t *testing.T) {
	m := newTestMemoryMetrics(t, "")

	counter := m.Counter("requests_total", map[string]string{"result": "hit"})
	counter.Inc()
	counter.Add(2)

	same := m.Counter("requests_total", map[string]string{"result": "hit"})
	same.Inc()

	other := m.Counter("requests_total", map[string]string{"result": "miss"})
	other.Inc()

	raw, err := m.GetMetrics()
	require.NoError(t, err)

	var out map[string]float64
	require.NoError(t, utils.Unmarshal(raw, &out))
	assert.Equal(t, float64(4), out["requests_total|result=hit"])
	assert.Equal(t, float64(1), out["requests_total|result=miss"])
}

func TestMemoryGaugeSetIncDec(t *testing.T) {
	m := newTestMemoryMetrics(t, "")

	gauge := m.Gauge("inflight", nil)
	gauge.Set(5)
	gauge.Inc()
	gauge.Dec()
	gauge.Dec()

	raw, err := m.GetMetrics()
	require.NoError(t, err)

	var out map[string]float64
	require.NoError(t, utils.Unmarshal(raw, &out))
	assert.Equal(t, float64(4), out["inflight"])
}

func TestMemoryHistogramSumAndCount(t *testing.T) {
	m := newTestMemoryMetrics(t, "app")

	histogram := m.Histogram("latency_seconds", []float64{0.1, 1}, nil)
	histogram.Observe(0.05)
	histogram.Observe(0.5)
	histogram.Observe(5)

	raw, err := m.GetMetrics()
	require.NoError(t, err)

	var out map[string]float64
	require.NoError(t, utils.Unmarshal(raw, &out))
	assert.Equal(t, float64(3), out["app_latency_seconds:count"])
	assert.InDelta(t, 5.55, out["app_latency_seconds:sum"], 0.001)
}

func TestNewMetricsManagerDisabledIsNoop(t *testing.T) {
	m, err := NewMetricsManager(context.Background(), nil, logger.NewZapWrapper(zap.NewNop()))
	require.NoError(t, err)

	m.Counter("ignored", nil).Inc()
	raw, err := m.GetMetrics()
	require.NoError(t, err)
	assert.NotNil(t, raw)
}

func TestNewMetricsManagerUnknownType(t *testing.T) {
	_, err := NewMetricsManager(context.Background(), &types.MetricsConfig{
		Enabled: true,
		Type:    "statsd",
	}, logger.NewZapWrapper(zap.NewNop()))
	require.Error(t, err)
	assert.True(t, types.IsError(err, types.ErrMetricsTypeUnknown))
}
