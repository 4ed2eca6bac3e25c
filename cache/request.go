package cache

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/saiset-co/sai-resource/config"
	"github.com/saiset-co/sai-resource/types"
	"github.com/saiset-co/sai-resource/utils"
)

const moduleListKey = "module-list"

var (
	recordsPathRe  = regexp.MustCompile(`^/records/([^/]+)(?:/([^/]+))?$`)
	modulesPathRe  = regexp.MustCompile(`^/(modules|builder)(/|$)`)
	manifestPathRe = regexp.MustCompile(`^/modules/([^/]+)/manifest$`)
)

// RequestCache decides, per outbound request, whether to serve from cache,
// join an in-flight call, or hit the network; after a successful mutation it
// runs the invalidation cascade before returning control to the caller, so a
// read issued after a mutation never observes pre-invalidation state.
type RequestCache struct {
	logger        types.Logger
	transport     types.Transport
	store         types.CacheStore
	policies      *config.PolicyTable
	defaultTTL    time.Duration
	moduleListTTL time.Duration

	group singleflight.Group

	moduleList   []types.ModuleInfo
	moduleListAt time.Time
	moduleListMu sync.Mutex
}

func NewRequestCache(logger types.Logger, transport types.Transport, store types.CacheStore, policies *config.PolicyTable, cacheConfig *types.CacheConfig) *RequestCache {
	var defaultTTL, moduleListTTL time.Duration
	if cacheConfig != nil {
		defaultTTL = cacheConfig.DefaultTTL
		moduleListTTL = cacheConfig.ModuleListTTL
	}
	if moduleListTTL <= 0 {
		moduleListTTL = 30 * time.Second
	}

	return &RequestCache{
		logger:        logger,
		transport:     transport,
		store:         store,
		policies:      policies,
		defaultTTL:    defaultTTL,
		moduleListTTL: moduleListTTL,
	}
}

// Resolve performs one API exchange with caching, in-flight deduplication
// and mutation-triggered invalidation. The returned bytes are the raw
// response body; error outcomes are never cached.
func (rc *RequestCache) Resolve(ctx context.Context, method, path string, body interface{}, opts *types.CallOptions) ([]byte, error) {
	method = strings.ToUpper(method)

	bodyBytes, err := marshalBody(body)
	if err != nil {
		return nil, types.WrapError(err, "failed to marshal request body")
	}

	key := rc.cacheKey(method, path, bodyBytes, opts)
	ttl := rc.resolveTTL(method, path, opts)

	if ttl > 0 {
		if entry, exists := rc.store.Get(key); exists {
			rc.logger.Debug("Cache hit",
				zap.String("method", method),
				zap.String("path", path))
			return cloneBytes(entry.Value), nil
		}
	}

	result, err, shared := rc.group.Do(key, func() (interface{}, error) {
		return rc.perform(ctx, method, path, bodyBytes, key, ttl, opts)
	})
	if err != nil {
		return nil, err
	}

	if shared {
		rc.logger.Debug("Joined in-flight request",
			zap.String("method", method),
			zap.String("path", path))
	}

	return result.([]byte), nil
}

// perform runs exactly once per in-flight key; every joined caller observes
// its outcome verbatim.
func (rc *RequestCache) perform(ctx context.Context, method, path string, bodyBytes []byte, key string, ttl time.Duration, opts *types.CallOptions) ([]byte, error) {
	callCtx := ctx
	var headers map[string]string
	if opts != nil {
		headers = opts.Headers
		if opts.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
			defer cancel()
		}
	}

	status, respBody, err := rc.transport.Do(callCtx, method, path, bodyBytes, headers)
	if err != nil {
		return nil, err
	}

	if status < 200 || status >= 300 {
		return nil, parseAPIError(status, path, respBody)
	}

	if ttl > 0 {
		// The stored entry owns its own copy; callers are free to mutate the
		// returned bytes.
		if setErr := rc.store.Set(key, cloneBytes(respBody), ttl, tagsForPath(path)); setErr != nil {
			rc.logger.Error("Failed to store cache entry",
				zap.String("key", key),
				zap.Error(setErr))
		}
	}

	if isMutation(method) {
		rc.applyInvalidation(method, path)
	}

	return respBody, nil
}

// Modules returns the platform's module list from its single-value cache,
// fetching when the slot is empty or stale. The slot is dropped by the
// invalidation cascade whenever module configuration mutates.
func (rc *RequestCache) Modules(ctx context.Context) ([]types.ModuleInfo, error) {
	rc.moduleListMu.Lock()
	if rc.moduleList != nil && time.Since(rc.moduleListAt) < rc.moduleListTTL {
		modules := rc.moduleList
		rc.moduleListMu.Unlock()
		return modules, nil
	}
	rc.moduleListMu.Unlock()

	result, err, _ := rc.group.Do(moduleListKey, func() (interface{}, error) {
		status, respBody, err := rc.transport.Do(ctx, "GET", "/modules", nil, nil)
		if err != nil {
			return nil, err
		}
		if status < 200 || status >= 300 {
			return nil, parseAPIError(status, "/modules", respBody)
		}

		var payload struct {
			Modules []types.ModuleInfo `json:"modules"`
		}
		if err := utils.Unmarshal(respBody, &payload); err != nil {
			return nil, types.WrapError(err, "failed to parse module list")
		}

		rc.moduleListMu.Lock()
		rc.moduleList = payload.Modules
		rc.moduleListAt = time.Now()
		rc.moduleListMu.Unlock()

		return payload.Modules, nil
	})
	if err != nil {
		return nil, err
	}

	return result.([]types.ModuleInfo), nil
}

// InvalidateModules drops the module-list slot and every entry tagged as
// module configuration.
func (rc *RequestCache) InvalidateModules() {
	rc.moduleListMu.Lock()
	rc.moduleList = nil
	rc.moduleListAt = time.Time{}
	rc.moduleListMu.Unlock()

	if err := rc.store.InvalidateTags("modules"); err != nil {
		rc.logger.Error("Failed to invalidate module entries", zap.Error(err))
	}
}

// InvalidateTags removes every cached entry carrying any of the given tags.
func (rc *RequestCache) InvalidateTags(tags ...string) error {
	return rc.store.InvalidateTags(tags...)
}

// Clear drops every cached response, including the module-list slot.
func (rc *RequestCache) Clear() error {
	rc.moduleListMu.Lock()
	rc.moduleList = nil
	rc.moduleListAt = time.Time{}
	rc.moduleListMu.Unlock()

	return rc.store.Clear()
}

func (rc *RequestCache) cacheKey(method, path string, bodyBytes []byte, opts *types.CallOptions) string {
	if opts != nil && opts.CacheKey != "" {
		return method + ":" + opts.CacheKey
	}
	if len(bodyBytes) > 0 {
		return method + ":" + path + ":" + utils.BytesToString(bodyBytes)
	}
	return method + ":" + path
}

func (rc *RequestCache) resolveTTL(method, path string, opts *types.CallOptions) time.Duration {
	if opts != nil {
		if opts.CacheTTL > 0 {
			return opts.CacheTTL
		}
		if opts.CacheTTL < 0 {
			return 0
		}
	}

	if rc.policies != nil {
		if ttl, matched := rc.policies.TTLFor(method, path); matched {
			return ttl
		}
	}

	return rc.defaultTTL
}

// applyInvalidation is the cascade run synchronously after every successful
// mutation. Rule 1 covers record resources, rule 2 module configuration.
func (rc *RequestCache) applyInvalidation(method, path string) {
	if match := recordsPathRe.FindStringSubmatch(path); match != nil {
		entity := match[1]
		tags := []string{"records:" + entity, "bootstrap"}
		if match[2] != "" {
			tags = append(tags, "records:"+entity+":"+match[2])
		}

		if err := rc.store.InvalidateTags(tags...); err != nil {
			rc.logger.Error("Invalidation cascade failed",
				zap.String("path", path),
				zap.Error(err))
		}

		rc.logger.Debug("Record mutation invalidated cache",
			zap.String("method", method),
			zap.String("entity", entity),
			zap.Strings("tags", tags))
		return
	}

	if modulesPathRe.MatchString(path) {
		rc.InvalidateModules()

		rc.logger.Debug("Module mutation invalidated cache",
			zap.String("method", method),
			zap.String("path", path))
	}
}

// tagsForPath labels an entry at store time so later mutations can
// invalidate by structured tag instead of key substring.
func tagsForPath(path string) []string {
	if match := recordsPathRe.FindStringSubmatch(path); match != nil {
		tags := []string{"records:" + match[1]}
		if match[2] != "" {
			tags = append(tags, "records:"+match[1]+":"+match[2])
		}
		return tags
	}

	if match := manifestPathRe.FindStringSubmatch(path); match != nil {
		return []string{"modules", "manifest:" + match[1]}
	}

	if modulesPathRe.MatchString(path) {
		return []string{"modules"}
	}

	if strings.HasPrefix(path, "/bootstrap") {
		return []string{"bootstrap"}
	}

	return nil
}

func isMutation(method string) bool {
	switch method {
	case "GET", "HEAD", "OPTIONS":
		return false
	default:
		return true
	}
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func marshalBody(body interface{}) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case string:
		return []byte(b), nil
	default:
		return utils.Marshal(body)
	}
}

// parseAPIError maps a non-2xx response body onto the structured error
// contract. The message falls back through message, error and detail fields;
// a body carrying an errors array contributes its first element.
func parseAPIError(status int, path string, body []byte) *types.APIError {
	type errorItem struct {
		Code     string `json:"code"`
		Message  string `json:"message"`
		ErrorMsg string `json:"error"`
		Detail   string `json:"detail"`
		Path     string `json:"path"`
	}

	var payload struct {
		errorItem
		Errors []errorItem `json:"errors"`
	}

	item := errorItem{}
	if err := utils.Unmarshal(body, &payload); err == nil {
		item = payload.errorItem
		if len(payload.Errors) > 0 {
			item = payload.Errors[0]
		}
	}

	message := item.Message
	if message == "" {
		message = item.ErrorMsg
	}
	if message == "" {
		message = item.Detail
	}
	if message == "" {
		message = strings.TrimSpace(utils.BytesToString(body))
		if len(message) > 200 {
			message = message[:200]
		}
	}

	apiErr := &types.APIError{
		Status:  status,
		Code:    item.Code,
		Message: message,
		Detail:  item.Detail,
		Path:    item.Path,
	}
	if apiErr.Path == "" {
		apiErr.Path = path
	}

	return apiErr
}
