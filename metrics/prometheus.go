package metrics

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-resource/types"
	"github.com/saiset-co/sai-resource/utils"
)

type PrometheusConfig struct {
	Namespace string            `yaml:"namespace" json:"namespace"`
	Subsystem string            `yaml:"subsystem" json:"subsystem"`
	Labels    map[string]string `yaml:"labels" json:"labels"`
}

type PrometheusMetrics struct {
	ctx        context.Context
	logger     types.Logger
	config     *PrometheusConfig
	registry   *prometheus.Registry
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
	mu         sync.Mutex
	running    int32
}

func NewPrometheusMetrics(ctx context.Context, logger types.Logger, config *types.MetricsConfig) (types.MetricsManager, error) {
	var promConfig = &PrometheusConfig{
		Namespace: "sai_resource",
		Labels:    make(map[string]string),
	}

	if config.Config != nil {
		err := utils.UnmarshalConfig(config.Config, promConfig)
		if err != nil {
			return nil, types.WrapError(err, "failed to unmarshal prometheus config")
		}
	}

	metrics := &PrometheusMetrics{
		ctx:        ctx,
		logger:     logger,
		config:     promConfig,
		registry:   prometheus.NewRegistry(),
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}

	logger.Debug("Prometheus metrics initialized",
		zap.String("namespace", promConfig.Namespace))

	return metrics, nil
}

func (p *PrometheusMetrics) Start() error {
	if !atomic.CompareAndSwapInt32(&p.running, 0, 1) {
		return types.ErrServiceAlreadyRunning
	}
	return nil
}

func (p *PrometheusMetrics) Stop() error {
	if !atomic.CompareAndSwapInt32(&p.running, 1, 0) {
		return types.ErrServiceNotRunning
	}
	return nil
}

func (p *PrometheusMetrics) IsRunning() bool {
	return atomic.LoadInt32(&p.running) == 1
}

func (p *PrometheusMetrics) Counter(name string, labels map[string]string) types.Counter {
	p.mu.Lock()
	defer p.mu.Unlock()

	counter, exists := p.counters[name]
	if !exists {
		counter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   p.config.Namespace,
				Subsystem:   p.config.Subsystem,
				Name:        name,
				Help:        fmt.Sprintf("Counter metric %s", name),
				ConstLabels: p.config.Labels,
			},
			labelNames(labels),
		)
		p.registry.MustRegister(counter)
		p.counters[name] = counter
	}

	return &PrometheusCounter{counter: counter, labels: labels}
}

func (p *PrometheusMetrics) Gauge(name string, labels map[string]string) types.Gauge {
	p.mu.Lock()
	defer p.mu.Unlock()

	gauge, exists := p.gauges[name]
	if !exists {
		gauge = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   p.config.Namespace,
				Subsystem:   p.config.Subsystem,
				Name:        name,
				Help:        fmt.Sprintf("Gauge metric %s", name),
				ConstLabels: p.config.Labels,
			},
			labelNames(labels),
		)
		p.registry.MustRegister(gauge)
		p.gauges[name] = gauge
	}

	return &PrometheusGauge{gauge: gauge, labels: labels}
}

func (p *PrometheusMetrics) Histogram(name string, buckets []float64, labels map[string]string) types.Histogram {
	p.mu.Lock()
	defer p.mu.Unlock()

	histogram, exists := p.histograms[name]
	if !exists {
		histogram = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   p.config.Namespace,
				Subsystem:   p.config.Subsystem,
				Name:        name,
				Help:        fmt.Sprintf("Histogram metric %s", name),
				Buckets:     buckets,
				ConstLabels: p.config.Labels,
			},
			labelNames(labels),
		)
		p.registry.MustRegister(histogram)
		p.histograms[name] = histogram
	}

	return &PrometheusHistogram{histogram: histogram, labels: labels}
}

func (p *PrometheusMetrics) GetMetrics() ([]byte, error) {
	families, err := p.registry.Gather()
	if err != nil {
		return nil, types.WrapError(err, "failed to gather prometheus metrics")
	}

	var buf bytes.Buffer
	encoder := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, family := range families {
		if err := encoder.Encode(family); err != nil {
			return nil, types.WrapError(err, "failed to encode prometheus metrics")
		}
	}

	return buf.Bytes(), nil
}

func labelNames(labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for name := range labels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type PrometheusCounter struct {
	counter *prometheus.CounterVec
	labels  map[string]string
}

func (c *PrometheusCounter) Inc() {
	c.counter.With(c.labels).Inc()
}

func (c *PrometheusCounter) Add(value float64) {
	c.counter.With(c.labels).Add(value)
}

func (c *PrometheusCounter) Get() float64 {
	var metric dto.Metric
	if err := c.counter.With(c.labels).Write(&metric); err != nil {
		return 0
	}
	return metric.GetCounter().GetValue()
}

type PrometheusGauge struct {
	gauge  *prometheus.GaugeVec
	labels map[string]string
}

func (g *PrometheusGauge) Set(value float64) {
	g.gauge.With(g.labels).Set(value)
}

func (g *PrometheusGauge) Inc() {
	g.gauge.With(g.labels).Inc()
}

func (g *PrometheusGauge) Dec() {
	g.gauge.With(g.labels).Dec()
}

func (g *PrometheusGauge) Get() float64 {
	var metric dto.Metric
	if err := g.gauge.With(g.labels).Write(&metric); err != nil {
		return 0
	}
	return metric.GetGauge().GetValue()
}

type PrometheusHistogram struct {
	histogram *prometheus.HistogramVec
	labels    map[string]string
}

func (h *PrometheusHistogram) Observe(value float64) {
	h.histogram.With(h.labels).Observe(value)
}

func (h *PrometheusHistogram) ObserveDuration(start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

func (h *PrometheusHistogram) GetCount() uint64 {
	var metric dto.Metric
	if err := histogramWrite(h.histogram, h.labels, &metric); err != nil {
		return 0
	}
	return metric.GetHistogram().GetSampleCount()
}

func (h *PrometheusHistogram) GetSum() float64 {
	var metric dto.Metric
	if err := histogramWrite(h.histogram, h.labels, &metric); err != nil {
		return 0
	}
	return metric.GetHistogram().GetSampleSum()
}

func histogramWrite(vec *prometheus.HistogramVec, labels map[string]string, metric *dto.Metric) error {
	observer, err := vec.GetMetricWith(labels)
	if err != nil {
		return err
	}
	if writer, ok := observer.(prometheus.Metric); ok {
		return writer.Write(metric)
	}
	return types.NewErrorf("histogram %v does not expose samples", labels)
}
