package metrics

import (
	"context"
	"sync"

	"github.com/saiset-co/sai-resource/types"
)

var customMetricsCreators = sync.Map{}

func RegisterMetricsManager(metricsManagerName string, creator types.MetricsManagerCreator) {
	customMetricsCreators.Store(metricsManagerName, creator)
}

// NewMetricsManager builds the metrics backend selected by config. A disabled
// config yields the noop manager so callers never need a nil check.
func NewMetricsManager(ctx context.Context, config *types.MetricsConfig, logger types.Logger) (types.MetricsManager, error) {
	if config == nil || !config.Enabled {
		return NewNoopMetrics(), nil
	}

	switch config.Type {
	case "", "memory":
		return NewMemoryMetrics(ctx, logger, config)
	case "prometheus":
		return NewPrometheusMetrics(ctx, logger, config)
	default:
		if creator, exists := customMetricsCreators.Load(config.Type); exists {
			return creator.(types.MetricsManagerCreator)(config)
		}
		return nil, types.Errorf(types.ErrMetricsTypeUnknown, "type: %s", config.Type)
	}
}
