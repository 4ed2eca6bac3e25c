package types

import (
	"context"
	"time"
)

// Transport performs one JSON-over-HTTP exchange against the platform API.
// It reports transport failures as errors and returns non-2xx responses
// verbatim; interpreting the status code is the caller's concern.
type Transport interface {
	Do(ctx context.Context, method, path string, body []byte, headers map[string]string) (int, []byte, error)
}

// AuthProvider supplies the bearer credential attached to every outbound
// call. The resource layer never caches or refreshes credentials itself.
type AuthProvider interface {
	Token(ctx context.Context) (string, error)
}

// CallOptions tune a single Resolve call.
type CallOptions struct {
	// CacheKey replaces the path+body derived cache key, letting callers
	// collapse semantically identical lookups that differ in payload framing.
	CacheKey string
	// CacheTTL overrides the policy table for this call. Zero means
	// "use the policy"; a negative value disables caching outright.
	CacheTTL time.Duration
	// Timeout attaches a deadline to the underlying network call.
	Timeout time.Duration
	// Headers are merged into the outbound request.
	Headers map[string]string
}

// ModuleInfo is one element of the platform's module list.
type ModuleInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Enabled     bool   `json:"enabled"`
	CurrentHash string `json:"current_hash"`
}
