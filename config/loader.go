package config

import (
	"context"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/saiset-co/sai-resource/types"
)

type Loader struct {
	validator *validator.Validate
}

func NewLoader() *Loader {
	return &Loader{
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (l *Loader) LoadFromFile(configPath string) (*types.ResourceConfig, error) {
	if configPath == "" {
		return nil, types.ErrConfigNotFound
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, types.WrapError(err, "file not found: "+configPath)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	data, err := l.readFileWithTimeout(ctx, configPath)
	if err != nil {
		return nil, types.WrapError(err, "failed to read config file")
	}

	config := l.Defaults()

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, types.WrapError(err, "failed to parse YAML config")
	}

	return config, l.Validate(config)
}

// Validate applies struct validation plus the policy-table compile check, so
// a bad pattern fails at load time rather than on first resolve.
func (l *Loader) Validate(config *types.ResourceConfig) error {
	if err := l.validator.Struct(config); err != nil {
		return types.WrapError(err, "config validation failed")
	}

	if _, err := NewPolicyTable(config.Policies); err != nil {
		return err
	}

	return nil
}

func (l *Loader) readFileWithTimeout(ctx context.Context, filepath string) ([]byte, error) {
	type result struct {
		data []byte
		err  error
	}

	resultChan := make(chan result, 1)

	go func() {
		data, err := os.ReadFile(filepath)
		resultChan <- result{data: data, err: err}
	}()

	select {
	case res := <-resultChan:
		return res.data, res.err
	case <-ctx.Done():
		return nil, types.WrapError(ctx.Err(), "file read timeout")
	}
}

func (l *Loader) Defaults() *types.ResourceConfig {
	return &types.ResourceConfig{
		Name: "sai-resource",
		Client: &types.ClientConfig{
			Timeout: 30 * time.Second,
			CircuitBreaker: &types.CircuitBreakerConfig{
				Enabled: false,
			},
		},
		Logger: &types.LoggerConfig{
			Level: "info",
		},
		Cache: &types.CacheConfig{
			Type:          "memory",
			DefaultTTL:    0,
			ModuleListTTL: 30 * time.Second,
		},
		Metrics: &types.MetricsConfig{
			Enabled: false,
			Type:    "memory",
		},
		Manifest: &types.ManifestConfig{
			TTL: 60 * time.Second,
		},
		Policies: DefaultPolicies(),
	}
}

// DefaultPolicies is the standing cacheability table for the platform API.
// Order matters: the first matching row wins.
func DefaultPolicies() []*types.PolicyConfig {
	return []*types.PolicyConfig{
		{Pattern: `^/modules$`, Methods: []string{"GET"}, TTL: 30 * time.Second},
		{Pattern: `^/modules/[^/]+/manifest$`, Methods: []string{"GET"}, TTL: 60 * time.Second},
		{Pattern: `^/records/[^/]+(/[^/]+)?$`, Methods: []string{"GET"}, TTL: 15 * time.Second},
		{Pattern: `^/bootstrap`, Methods: []string{"GET"}, TTL: 30 * time.Second},
	}
}
