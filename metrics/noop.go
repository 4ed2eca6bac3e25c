package metrics

import (
	"time"

	"github.com/saiset-co/sai-resource/types"
)

// NoopMetrics satisfies types.MetricsManager while recording nothing. It is
// the backend used when metrics are disabled.
type NoopMetrics struct{}

func NewNoopMetrics() types.MetricsManager { return &NoopMetrics{} }

func (n *NoopMetrics) Start() error    { return nil }
func (n *NoopMetrics) Stop() error     { return nil }
func (n *NoopMetrics) IsRunning() bool { return true }

func (n *NoopMetrics) Counter(string, map[string]string) types.Counter { return noopCounter{} }
func (n *NoopMetrics) Gauge(string, map[string]string) types.Gauge     { return noopGauge{} }
func (n *NoopMetrics) Histogram(string, []float64, map[string]string) types.Histogram {
	return noopHistogram{}
}
func (n *NoopMetrics) GetMetrics() ([]byte, error) { return []byte("{}"), nil }

type noopCounter struct{}

func (noopCounter) Inc()         {}
func (noopCounter) Add(float64)  {}
func (noopCounter) Get() float64 { return 0 }

type noopGauge struct{}

func (noopGauge) Set(float64) {}
func (noopGauge) Inc()        {}
func (noopGauge) Dec()        {}
func (noopGauge) Get() float64 {
	return 0
}

type noopHistogram struct{}

func (noopHistogram) Observe(float64)           {}
func (noopHistogram) ObserveDuration(time.Time) {}
func (noopHistogram) GetCount() uint64          { return 0 }
func (noopHistogram) GetSum() float64           { return 0 }
