package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/goliatone/go-payments/core"
)

const (
	endpointCacheKeyPrefix     = "go-payments::webhook_endpoint::v1"
	endpointListActiveCacheKey = endpointCacheKeyPrefix + "::active"
)

// CachedEndpointStore fronts an EndpointStore with a read-through cache.
// Endpoint rows are read on every event fan-out but change rarely, so reads
// hit the cache and writes invalidate both the row key and the active list.
type CachedEndpointStore struct {
	base  core.EndpointStore
	cache repositorycache.CacheService
}

func NewCachedEndpointStore(base core.EndpointStore, cacheService repositorycache.CacheService) (*CachedEndpointStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base endpoint store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: endpoint cache service is required")
	}
	return &CachedEndpointStore{base: base, cache: cacheService}, nil
}

// EndpointCacheKey returns the cache key contract for a single endpoint row:
// go-payments::webhook_endpoint::v1::<id> with the id URL-path escaped.
func EndpointCacheKey(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("sqlstore: endpoint id is required")
	}
	return endpointCacheKeyPrefix + "::" + url.PathEscape(id), nil
}

func (s *CachedEndpointStore) Register(ctx context.Context, in core.RegisterEndpointInput) (core.WebhookEndpoint, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.WebhookEndpoint{}, fmt.Errorf("sqlstore: cached endpoint store is not configured")
	}
	endpoint, err := s.base.Register(ctx, in)
	if err != nil {
		return core.WebhookEndpoint{}, err
	}
	if err := s.cache.Delete(ctx, endpointListActiveCacheKey); err != nil {
		return core.WebhookEndpoint{}, err
	}
	return endpoint, nil
}

func (s *CachedEndpointStore) Get(ctx context.Context, id string) (core.WebhookEndpoint, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.WebhookEndpoint{}, fmt.Errorf("sqlstore: cached endpoint store is not configured")
	}
	cacheKey, err := EndpointCacheKey(id)
	if err != nil {
		return core.WebhookEndpoint{}, err
	}
	return repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.WebhookEndpoint, error) {
		return s.base.Get(ctx, strings.TrimSpace(id))
	})
}

func (s *CachedEndpointStore) ListActive(ctx context.Context) ([]core.WebhookEndpoint, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return nil, fmt.Errorf("sqlstore: cached endpoint store is not configured")
	}
	return repositorycache.GetOrFetch(ctx, s.cache, endpointListActiveCacheKey, func(ctx context.Context) ([]core.WebhookEndpoint, error) {
		return s.base.ListActive(ctx)
	})
}

func (s *CachedEndpointStore) SetActive(ctx context.Context, id string, active bool) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached endpoint store is not configured")
	}
	if err := s.base.SetActive(ctx, id, active); err != nil {
		return err
	}
	cacheKey, err := EndpointCacheKey(id)
	if err != nil {
		return err
	}
	if err := s.cache.Delete(ctx, cacheKey); err != nil {
		return err
	}
	return s.cache.Delete(ctx, endpointListActiveCacheKey)
}

var _ core.EndpointStore = (*CachedEndpointStore)(nil)
