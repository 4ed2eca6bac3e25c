package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-resource/types"
	"github.com/saiset-co/sai-resource/utils"
)

type RedisConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	Password     string        `json:"password"`
	DB           int           `json:"db"`
	PoolSize     int           `json:"pool_size"`
	DialTimeout  time.Duration `json:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	KeyPrefix    string        `json:"key_prefix"`
}

// RedisCache is the optional shared CacheStore. Entries live in redis keyed
// under a prefix; the tag index stays in-process, mirroring how entries are
// only ever written by this process's resolve path.
type RedisCache struct {
	ctx      context.Context
	logger   types.Logger
	config   *RedisConfig
	client   *redis.Client
	tagIndex map[string]map[string]struct{}
	tagMu    sync.Mutex
	started  int32
}

func NewRedisCache(ctx context.Context, logger types.Logger, config *types.CacheConfig) (types.CacheStore, error) {
	var redisConfig = &RedisConfig{
		Host:         "localhost",
		Port:         6379,
		DB:           0,
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		KeyPrefix:    "sai-resource",
	}

	if config != nil && config.Config != nil {
		err := utils.UnmarshalConfig(config.Config, redisConfig)
		if err != nil {
			return nil, types.WrapError(err, "failed to unmarshal redis cache config")
		}
	}

	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", redisConfig.Host, redisConfig.Port),
		Password:     redisConfig.Password,
		DB:           redisConfig.DB,
		PoolSize:     redisConfig.PoolSize,
		DialTimeout:  redisConfig.DialTimeout,
		ReadTimeout:  redisConfig.ReadTimeout,
		WriteTimeout: redisConfig.WriteTimeout,
	})

	return &RedisCache{
		ctx:      ctx,
		logger:   logger,
		config:   redisConfig,
		client:   client,
		tagIndex: make(map[string]map[string]struct{}),
	}, nil
}

func (r *RedisCache) Get(key string) (*types.CacheEntry, bool) {
	if key == "" {
		return nil, false
	}

	result, err := r.client.Get(r.ctx, r.buildFullKey(key)).Result()
	if err != nil {
		if !types.IsError(err, redis.Nil) {
			r.logger.Error("Failed to get cache entry", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}

	var entry types.CacheEntry
	if err := utils.Unmarshal([]byte(result), &entry); err != nil {
		r.logger.Error("Failed to unmarshal cache entry", zap.String("key", key), zap.Error(err))
		r.client.Del(r.ctx, r.buildFullKey(key))
		return nil, false
	}

	if entry.IsExpired(time.Now()) {
		_ = r.Delete(key)
		return nil, false
	}

	return &entry, true
}

func (r *RedisCache) Set(key string, value []byte, ttl time.Duration, tags []string) error {
	if key == "" {
		return types.ErrCacheKeyEmpty
	}

	now := time.Now()
	entry := &types.CacheEntry{
		Key:       key,
		Value:     value,
		TTL:       ttl,
		CreatedAt: now,
		Tags:      tags,
	}
	if ttl > 0 {
		entry.ExpiresAt = now.Add(ttl)
	}

	data, err := utils.Marshal(entry)
	if err != nil {
		return types.WrapError(err, "failed to marshal cache entry")
	}

	if err := r.client.Set(r.ctx, r.buildFullKey(key), data, ttl).Err(); err != nil {
		return types.Errorf(types.ErrCacheOperationFailed, "set %s: %v", key, err)
	}

	r.tagMu.Lock()
	for _, tag := range tags {
		keys := r.tagIndex[tag]
		if keys == nil {
			keys = make(map[string]struct{})
			r.tagIndex[tag] = keys
		}
		keys[key] = struct{}{}
	}
	r.tagMu.Unlock()

	return nil
}

func (r *RedisCache) Delete(key string) error {
	if err := r.client.Del(r.ctx, r.buildFullKey(key)).Err(); err != nil {
		return types.Errorf(types.ErrCacheOperationFailed, "delete %s: %v", key, err)
	}
	return nil
}

func (r *RedisCache) InvalidateTags(tags ...string) error {
	r.tagMu.Lock()
	victims := make([]string, 0)
	for _, tag := range tags {
		for key := range r.tagIndex[tag] {
			victims = append(victims, r.buildFullKey(key))
		}
		delete(r.tagIndex, tag)
	}
	r.tagMu.Unlock()

	if len(victims) == 0 {
		return nil
	}

	if err := r.client.Del(r.ctx, victims...).Err(); err != nil {
		return types.Errorf(types.ErrCacheOperationFailed, "invalidate tags: %v", err)
	}

	r.logger.Debug("Cache entries invalidated by tag",
		zap.Strings("tags", tags),
		zap.Int("removed", len(victims)))

	return nil
}

func (r *RedisCache) Clear() error {
	var cursor uint64
	pattern := r.config.KeyPrefix + ":*"

	for {
		keys, next, err := r.client.Scan(r.ctx, cursor, pattern, 500).Result()
		if err != nil {
			return types.Errorf(types.ErrCacheOperationFailed, "scan: %v", err)
		}
		if len(keys) > 0 {
			if err := r.client.Del(r.ctx, keys...).Err(); err != nil {
				return types.Errorf(types.ErrCacheOperationFailed, "clear: %v", err)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	r.tagMu.Lock()
	r.tagIndex = make(map[string]map[string]struct{})
	r.tagMu.Unlock()

	return nil
}

func (r *RedisCache) Start() error {
	if !atomic.CompareAndSwapInt32(&r.started, 0, 1) {
		return types.ErrServiceAlreadyRunning
	}

	pingCtx, cancel := context.WithTimeout(r.ctx, r.config.DialTimeout)
	defer cancel()

	if err := r.client.Ping(pingCtx).Err(); err != nil {
		atomic.StoreInt32(&r.started, 0)
		return types.WrapError(err, "failed to connect to redis")
	}

	return nil
}

func (r *RedisCache) Stop() error {
	if !atomic.CompareAndSwapInt32(&r.started, 1, 0) {
		return types.ErrServiceNotRunning
	}
	return r.client.Close()
}

func (r *RedisCache) IsRunning() bool {
	return atomic.LoadInt32(&r.started) == 1
}

func (r *RedisCache) buildFullKey(key string) string {
	return r.config.KeyPrefix + ":" + key
}
