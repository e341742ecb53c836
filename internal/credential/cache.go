package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"dream-push-backend/config"
)

// Cache stores minted tokens between passes.
type Cache interface {
	Get(ctx context.Context, key string) (AccessToken, bool, error)
	Set(ctx context.Context, key string, tok AccessToken, ttl time.Duration) error
}

// MemoryCache keeps tokens in process.
type MemoryCache struct {
	c *cache.Cache
}

// NewMemoryCache creates an in-process token cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{c: cache.New(cache.NoExpiration, 10*time.Minute)}
}

// Get implements Cache.
func (m *MemoryCache) Get(_ context.Context, key string) (AccessToken, bool, error) {
	v, ok := m.c.Get(key)
	if !ok {
		return AccessToken{}, false, nil
	}
	tok, ok := v.(AccessToken)
	return tok, ok, nil
}

// Set implements Cache.
func (m *MemoryCache) Set(_ context.Context, key string, tok AccessToken, ttl time.Duration) error {
	m.c.Set(key, tok, ttl)
	return nil
}

// RedisCache shares tokens between processes.
type RedisCache struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisCache connects to redisURL and checks it is reachable.
func NewRedisCache(ctx context.Context, redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 2 * time.Second
	opts.WriteTimeout = 2 * time.Second

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisCache{rdb: rdb, prefix: "pushd:access_token:"}, nil
}

// Get implements Cache.
func (r *RedisCache) Get(ctx context.Context, key string) (AccessToken, bool, error) {
	raw, err := r.rdb.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return AccessToken{}, false, nil
	}
	if err != nil {
		return AccessToken{}, false, fmt.Errorf("redis get: %w", err)
	}
	var tok AccessToken
	if err := json.Unmarshal(raw, &tok); err != nil {
		return AccessToken{}, false, fmt.Errorf("decode cached token: %w", err)
	}
	return tok, true, nil
}

// Set implements Cache.
func (r *RedisCache) Set(ctx context.Context, key string, tok AccessToken, ttl time.Duration) error {
	raw, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	if err := r.rdb.Set(ctx, r.prefix+key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (r *RedisCache) Close() error {
	return r.rdb.Close()
}

// CachedSource serves tokens from a cache and falls back to its source. A
// cached token is never returned within skew of its expiry.
type CachedSource struct {
	source Source
	cache  Cache
	key    string
	skew   time.Duration
	now    func() time.Time
	log    *zap.Logger
}

// NewCachedSource wraps source with cache under key.
func NewCachedSource(source Source, c Cache, key string, skew time.Duration, log *zap.Logger) *CachedSource {
	return &CachedSource{
		source: source,
		cache:  c,
		key:    key,
		skew:   skew,
		now:    time.Now,
		log:    log.Named("credential_cache"),
	}
}

// Token implements Source. Cache failures are logged and bypassed.
func (s *CachedSource) Token(ctx context.Context) (_ AccessToken, err error) {
	defer mon.Task()(&ctx)(&err)

	tok, ok, err := s.cache.Get(ctx, s.key)
	if err != nil {
		s.log.Warn("token cache read failed", zap.Error(err))
	} else if ok && tok.Valid(s.now().Add(s.skew)) {
		mon.Counter("access_token_cache_hit").Inc(1)
		return tok, nil
	}

	tok, err = s.source.Token(ctx)
	if err != nil {
		return AccessToken{}, err
	}
	if ttl := tok.Expiry.Sub(s.now()) - s.skew; ttl > 0 {
		if err := s.cache.Set(ctx, s.key, tok, ttl); err != nil {
			s.log.Warn("token cache write failed", zap.Error(err))
		}
	}
	return tok, nil
}

// NewSource builds the token source selected by cfg. The returned close
// function releases any cache connection.
func NewSource(ctx context.Context, minter *Minter, cfg config.CredentialCacheConfig, log *zap.Logger) (Source, func() error, error) {
	noop := func() error { return nil }
	key := minter.Account().ClientEmail

	switch cfg.Driver {
	case "", "none":
		return minter, noop, nil
	case "memory":
		return NewCachedSource(minter, NewMemoryCache(), key, cfg.Skew, log), noop, nil
	case "redis":
		rc, err := NewRedisCache(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return NewCachedSource(minter, rc, key, cfg.Skew, log), rc.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown credential cache driver %q", cfg.Driver)
}
