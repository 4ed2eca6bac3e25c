package metrics

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/saiset-co/sai-resource/types"
	"github.com/saiset-co/sai-resource/utils"
)

type MemoryMetrics struct {
	ctx        context.Context
	logger     types.Logger
	prefix     string
	counters   map[string]*MemoryCounter
	gauges     map[string]*MemoryGauge
	histograms map[string]*MemoryHistogram
	running    atomic.Bool
	mu         sync.RWMutex
}

func NewMemoryMetrics(ctx context.Context, logger types.Logger, config *types.MetricsConfig) (types.MetricsManager, error) {
	return &MemoryMetrics{
		ctx:        ctx,
		logger:     logger,
		prefix:     config.Prefix,
		counters:   make(map[string]*MemoryCounter),
		gauges:     make(map[string]*MemoryGauge),
		histograms: make(map[string]*MemoryHistogram),
	}, nil
}

func (m *MemoryMetrics) Start() error {
	m.running.Store(true)
	return nil
}

func (m *MemoryMetrics) Stop() error {
	m.running.Store(false)
	return nil
}

func (m *MemoryMetrics) IsRunning() bool {
	return m.running.Load()
}

func (m *MemoryMetrics) Counter(name string, labels map[string]string) types.Counter {
	key := m.metricKey(name, labels)

	m.mu.RLock()
	counter, exists := m.counters[key]
	m.mu.RUnlock()
	if exists {
		return counter
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if counter, exists = m.counters[key]; exists {
		return counter
	}
	counter = &MemoryCounter{}
	m.counters[key] = counter
	return counter
}

func (m *MemoryMetrics) Gauge(name string, labels map[string]string) types.Gauge {
	key := m.metricKey(name, labels)

	m.mu.RLock()
	gauge, exists := m.gauges[key]
	m.mu.RUnlock()
	if exists {
		return gauge
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if gauge, exists = m.gauges[key]; exists {
		return gauge
	}
	gauge = &MemoryGauge{}
	m.gauges[key] = gauge
	return gauge
}

func (m *MemoryMetrics) Histogram(name string, buckets []float64, labels map[string]string) types.Histogram {
	key := m.metricKey(name, labels)

	m.mu.RLock()
	histogram, exists := m.histograms[key]
	m.mu.RUnlock()
	if exists {
		return histogram
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if histogram, exists = m.histograms[key]; exists {
		return histogram
	}
	histogram = NewMemoryHistogram(buckets)
	m.histograms[key] = histogram
	return histogram
}

func (m *MemoryMetrics) GetMetrics() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]float64, len(m.counters)+len(m.gauges))
	for key, counter := range m.counters {
		out[key] = counter.Get()
	}
	for key, gauge := range m.gauges {
		out[key] = gauge.Get()
	}
	for key, histogram := range m.histograms {
		out[key+":sum"] = histogram.GetSum()
		out[key+":count"] = float64(histogram.GetCount())
	}

	return utils.Marshal(out)
}

func (m *MemoryMetrics) metricKey(name string, labels map[string]string) string {
	var sb strings.Builder
	if m.prefix != "" {
		sb.WriteString(m.prefix)
		sb.WriteByte('_')
	}
	sb.WriteString(name)

	if len(labels) > 0 {
		keys := make([]string, 0, len(labels))
		for k := range labels {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			sb.WriteByte('|')
			sb.WriteString(k)
			sb.WriteByte('=')
			sb.WriteString(labels[k])
		}
	}

	return sb.String()
}

type MemoryCounter struct {
	bits atomic.Uint64
}

func (c *MemoryCounter) Inc() { c.Add(1) }

func (c *MemoryCounter) Add(value float64) {
	for {
		old := c.bits.Load()
		updated := math.Float64bits(math.Float64frombits(old) + value)
		if c.bits.CompareAndSwap(old, updated) {
			return
		}
	}
}

func (c *MemoryCounter) Get() float64 {
	return math.Float64frombits(c.bits.Load())
}

type MemoryGauge struct {
	bits atomic.Uint64
}

func (g *MemoryGauge) Set(value float64) {
	g.bits.Store(math.Float64bits(value))
}

func (g *MemoryGauge) Inc() { g.add(1) }
func (g *MemoryGauge) Dec() { g.add(-1) }

func (g *MemoryGauge) add(value float64) {
	for {
		old := g.bits.Load()
		updated := math.Float64bits(math.Float64frombits(old) + value)
		if g.bits.CompareAndSwap(old, updated) {
			return
		}
	}
}

func (g *MemoryGauge) Get() float64 {
	return math.Float64frombits(g.bits.Load())
}

type MemoryHistogram struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
	mu      sync.Mutex
}

func NewMemoryHistogram(buckets []float64) *MemoryHistogram {
	sorted := make([]float64, len(buckets))
	copy(sorted, buckets)
	sort.Float64s(sorted)

	return &MemoryHistogram{
		buckets: sorted,
		counts:  make([]uint64, len(sorted)+1),
	}
}

func (h *MemoryHistogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sum += value
	h.count++

	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
			return
		}
	}
	h.counts[len(h.buckets)]++
}

func (h *MemoryHistogram) ObserveDuration(start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

func (h *MemoryHistogram) GetCount() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

func (h *MemoryHistogram) GetSum() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sum
}
