package sairesource

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-resource/cache"
	"github.com/saiset-co/sai-resource/client"
	"github.com/saiset-co/sai-resource/config"
	"github.com/saiset-co/sai-resource/entityindex"
	"github.com/saiset-co/sai-resource/logger"
	"github.com/saiset-co/sai-resource/manifest"
	"github.com/saiset-co/sai-resource/metrics"
	"github.com/saiset-co/sai-resource/types"
)

const (
	serviceStateStopped int32 = iota
	serviceStateRunning
)

// Service wires the resource layer together: transport, request cache,
// manifest cache and entity index share one configuration and one lifecycle.
type Service struct {
	config  *types.ResourceConfig
	logger  types.Logger
	metrics types.MetricsManager
	store   types.CacheStore

	transport types.Transport
	requests  *cache.RequestCache
	manifests *manifest.Cache
	entities  *entityindex.Cache

	state int32
}

// Option overrides one wired component before construction completes.
type Option func(*options)

type options struct {
	auth      types.AuthProvider
	transport types.Transport
	logger    types.Logger
}

// WithAuthProvider attaches a credential source to the default transport.
func WithAuthProvider(auth types.AuthProvider) Option {
	return func(o *options) { o.auth = auth }
}

// WithTransport replaces the default fasthttp transport entirely.
func WithTransport(transport types.Transport) Option {
	return func(o *options) { o.transport = transport }
}

// WithLogger replaces the logger built from config.
func WithLogger(l types.Logger) Option {
	return func(o *options) { o.logger = l }
}

// NewServiceFromFile loads and validates the YAML config at configPath and
// builds the service from it.
func NewServiceFromFile(ctx context.Context, configPath string, opts ...Option) (*Service, error) {
	cfg, err := config.NewLoader().LoadFromFile(configPath)
	if err != nil {
		return nil, err
	}
	return NewService(ctx, cfg, opts...)
}

// NewService builds a stopped service from an already validated config.
func NewService(ctx context.Context, cfg *types.ResourceConfig, opts ...Option) (*Service, error) {
	if cfg == nil {
		return nil, types.ErrConfigNotFound
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	log := o.logger
	if log == nil {
		var err error
		log, err = logger.NewLogger(cfg.Logger)
		if err != nil {
			return nil, err
		}
	}

	metricsManager, err := metrics.NewMetricsManager(ctx, cfg.Metrics, log)
	if err != nil {
		return nil, err
	}

	store, err := cache.NewCacheStore(ctx, cfg.Cache, log, metricsManager)
	if err != nil {
		return nil, err
	}

	policies, err := config.NewPolicyTable(cfg.Policies)
	if err != nil {
		return nil, err
	}

	transport := o.transport
	if transport == nil {
		transport = client.NewFastHTTPClient(log, cfg.Client, o.auth)
	}

	requests := cache.NewRequestCache(log, transport, store, policies, cfg.Cache)
	manifests := manifest.NewCache(log, requests, cfg.Manifest)
	entities := entityindex.NewCache(log, manifests)

	return &Service{
		config:    cfg,
		logger:    log,
		metrics:   metricsManager,
		store:     store,
		transport: transport,
		requests:  requests,
		manifests: manifests,
		entities:  entities,
	}, nil
}

// Start brings the cache store online. Idempotent start attempts fail with
// ErrServiceAlreadyRunning.
func (s *Service) Start() error {
	if !atomic.CompareAndSwapInt32(&s.state, serviceStateStopped, serviceStateRunning) {
		return types.ErrServiceAlreadyRunning
	}

	if err := s.metrics.Start(); err != nil {
		atomic.StoreInt32(&s.state, serviceStateStopped)
		return types.WrapError(err, "failed to start metrics")
	}

	if err := s.store.Start(); err != nil {
		s.metrics.Stop()
		atomic.StoreInt32(&s.state, serviceStateStopped)
		return types.WrapError(err, "failed to start cache store")
	}

	s.logger.Info("Resource service started",
		zap.String("name", s.config.Name),
		zap.String("version", s.config.Version))
	return nil
}

func (s *Service) Stop() error {
	if !atomic.CompareAndSwapInt32(&s.state, serviceStateRunning, serviceStateStopped) {
		return nil
	}

	err := s.store.Stop()
	s.metrics.Stop()
	s.logger.Info("Resource service stopped", zap.String("name", s.config.Name))
	return err
}

func (s *Service) IsRunning() bool {
	return atomic.LoadInt32(&s.state) == serviceStateRunning
}

// Resolve performs one API exchange through the request cache.
func (s *Service) Resolve(ctx context.Context, method, path string, body interface{}, opts *types.CallOptions) ([]byte, error) {
	return s.requests.Resolve(ctx, method, path, body, opts)
}

// Modules returns the platform module list from its dedicated cache slot.
func (s *Service) Modules(ctx context.Context) ([]types.ModuleInfo, error) {
	return s.requests.Modules(ctx)
}

// GetManifest returns the manifest record for moduleID.
func (s *Service) GetManifest(ctx context.Context, moduleID string) (*manifest.Record, error) {
	return s.manifests.GetManifest(ctx, moduleID)
}

// LoadEntityIndex builds or reuses the cross-module entity index for the
// currently enabled modules.
func (s *Service) LoadEntityIndex(ctx context.Context) (*entityindex.Index, error) {
	modules, err := s.requests.Modules(ctx)
	if err != nil {
		return nil, err
	}
	return s.entities.Load(ctx, modules), nil
}

// InvalidateModulesCache drops the module list slot and module-tagged entries.
func (s *Service) InvalidateModulesCache() {
	s.requests.InvalidateModules()
	s.entities.Invalidate()
}

// InvalidateManifestCache drops the manifest for one module, including the
// raw manifest response held by the request cache, and rebuilds the entity
// index on next load.
func (s *Service) InvalidateManifestCache(moduleID string) {
	s.manifests.Invalidate(moduleID)
	if err := s.requests.InvalidateTags("manifest:" + moduleID); err != nil {
		s.logger.Error("Failed to invalidate manifest response",
			zap.String("module", moduleID),
			zap.Error(err))
	}
	s.entities.Invalidate()
}

// ClearCaches resets every caching layer at once.
func (s *Service) ClearCaches() error {
	s.manifests.Clear()
	s.entities.Invalidate()
	return s.requests.Clear()
}

// Metrics exposes the configured metrics backend, for scraping or debugging.
func (s *Service) Metrics() types.MetricsManager {
	return s.metrics
}
