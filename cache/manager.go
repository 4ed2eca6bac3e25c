package cache

import (
	"context"
	"time"

	"github.com/saiset-co/sai-resource/types"
)

var customStoreCreators = make(map[string]types.CacheStoreCreator)

func RegisterCacheStore(storeName string, creator types.CacheStoreCreator) {
	customStoreCreators[storeName] = creator
}

// NewCacheStore builds the storage backend selected by config and wraps it
// with per-operation metrics.
func NewCacheStore(ctx context.Context, config *types.CacheConfig, logger types.Logger, metrics types.MetricsManager) (types.CacheStore, error) {
	storeName := "memory"
	if config != nil && config.Type != "" {
		storeName = config.Type
	}

	var impl types.CacheStore
	var err error

	switch storeName {
	case "memory":
		impl, err = NewMemoryCache(ctx, logger, config)
	case "redis":
		impl, err = NewRedisCache(ctx, logger, config)
	default:
		if creator, exists := customStoreCreators[storeName]; exists {
			impl, err = creator(config)
		} else {
			return nil, types.Errorf(types.ErrCacheTypeUnknown, "type: %s", storeName)
		}
	}

	if err != nil {
		return nil, err
	}

	return newInstrumentedStore(metrics, impl), nil
}

type instrumentedStore struct {
	impl    types.CacheStore
	metrics types.MetricsManager
}

func newInstrumentedStore(metrics types.MetricsManager, impl types.CacheStore) types.CacheStore {
	return &instrumentedStore{
		impl:    impl,
		metrics: metrics,
	}
}

func (is *instrumentedStore) Get(key string) (*types.CacheEntry, bool) {
	start := time.Now()
	entry, exists := is.impl.Get(key)
	duration := time.Since(start)

	result := "miss"
	if exists {
		result = "hit"
	}

	is.recordMetric("get", result, duration)
	return entry, exists
}

func (is *instrumentedStore) Set(key string, value []byte, ttl time.Duration, tags []string) error {
	start := time.Now()
	err := is.impl.Set(key, value, ttl, tags)
	is.recordMetric("set", resultOf(err), time.Since(start))
	return err
}

func (is *instrumentedStore) Delete(key string) error {
	start := time.Now()
	err := is.impl.Delete(key)
	is.recordMetric("delete", resultOf(err), time.Since(start))
	return err
}

func (is *instrumentedStore) InvalidateTags(tags ...string) error {
	start := time.Now()
	err := is.impl.InvalidateTags(tags...)
	is.recordMetric("invalidate", resultOf(err), time.Since(start))
	return err
}

func (is *instrumentedStore) Clear() error {
	start := time.Now()
	err := is.impl.Clear()
	is.recordMetric("clear", resultOf(err), time.Since(start))
	return err
}

func (is *instrumentedStore) Start() error    { return is.impl.Start() }
func (is *instrumentedStore) Stop() error     { return is.impl.Stop() }
func (is *instrumentedStore) IsRunning() bool { return is.impl.IsRunning() }

func (is *instrumentedStore) recordMetric(operation, result string, duration time.Duration) {
	opCounter := is.metrics.Counter("cache_operations_total", map[string]string{
		"operation": operation,
		"result":    result,
	})
	opCounter.Inc()

	opDuration := is.metrics.Histogram("cache_operation_duration_seconds",
		[]float64{0.0001, 0.001, 0.01, 0.1, 1.0},
		map[string]string{"operation": operation},
	)
	opDuration.Observe(duration.Seconds())
}

func resultOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
