package types

import (
	"time"
)

type ConfigManager interface {
	Load() error
	GetConfig() *ResourceConfig
}

// ResourceConfig is the root configuration of the resource layer.
type ResourceConfig struct {
	Name     string          `yaml:"name" json:"name" validate:"required"`
	Version  string          `yaml:"version" json:"version"`
	Client   *ClientConfig   `yaml:"client" json:"client" validate:"required"`
	Logger   *LoggerConfig   `yaml:"logger" json:"logger"`
	Cache    *CacheConfig    `yaml:"cache" json:"cache"`
	Metrics  *MetricsConfig  `yaml:"metrics" json:"metrics"`
	Policies []*PolicyConfig `yaml:"policies" json:"policies" validate:"dive"`
	Manifest *ManifestConfig `yaml:"manifest" json:"manifest"`
}

type ClientConfig struct {
	BaseURL        string                `yaml:"base_url" json:"base_url" validate:"required"`
	Timeout        time.Duration         `yaml:"timeout" json:"timeout" validate:"min=0"`
	CircuitBreaker *CircuitBreakerConfig `yaml:"circuit_breaker" json:"circuit_breaker"`
}

type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled" json:"enabled"`
	FailureThreshold int           `yaml:"failure_threshold" json:"failure_threshold"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout" json:"recovery_timeout"`
}

type LoggerConfig struct {
	Type   string      `yaml:"type" json:"type"`
	Level  string      `yaml:"level" json:"level"`
	Config interface{} `yaml:"config" json:"config"`
}

type CacheConfig struct {
	Type          string        `yaml:"type" json:"type"`
	Config        interface{}   `yaml:"config" json:"config"`
	DefaultTTL    time.Duration `yaml:"default_ttl" json:"default_ttl" validate:"min=0"`
	ModuleListTTL time.Duration `yaml:"module_list_ttl" json:"module_list_ttl" validate:"min=0"`
}

type MetricsConfig struct {
	Enabled bool        `yaml:"enabled" json:"enabled"`
	Type    string      `yaml:"type" json:"type"`
	Config  interface{} `yaml:"config" json:"config"`
	Prefix  string      `yaml:"prefix" json:"prefix"`
}

// PolicyConfig is one row of the cacheability table: requests whose path
// matches Pattern and whose method is in Methods may be cached for TTL.
// The first matching row in declaration order wins; TTL 0 means never cache.
type PolicyConfig struct {
	Pattern string        `yaml:"pattern" json:"pattern" validate:"required"`
	Methods []string      `yaml:"methods" json:"methods" validate:"required,min=1"`
	TTL     time.Duration `yaml:"ttl" json:"ttl" validate:"min=0"`
}

type ManifestConfig struct {
	TTL time.Duration `yaml:"ttl" json:"ttl" validate:"min=0"`
}
