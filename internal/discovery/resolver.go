package discovery

import (
	"context"
	"strings"
	"time"

	"fedmail/backend/internal/cache"
)

// Resolver 将域名解析为一组候选服务器端点。
//
// 返回空列表表示该域当前不可达；解析失败对调用方而言等价于空列表，
// 由调用方记录日志，不向最初的请求者暴露。
type Resolver interface {
	Resolve(ctx context.Context, domain string) ([]string, error)
}

// StaticResolver 基于配置的静态对端表解析域名。
type StaticResolver struct {
	peers map[string][]string
}

// NewStaticResolver 创建静态解析器。
func NewStaticResolver(peers map[string][]string) *StaticResolver {
	normalized := make(map[string][]string, len(peers))
	for domain, endpoints := range peers {
		normalized[strings.ToLower(domain)] = append([]string(nil), endpoints...)
	}
	return &StaticResolver{peers: normalized}
}

// Resolve 查询静态表；未知域返回空列表。
func (r *StaticResolver) Resolve(_ context.Context, domain string) ([]string, error) {
	endpoints := r.peers[strings.ToLower(domain)]
	return append([]string(nil), endpoints...), nil
}

// CachedResolver 在底层解析器之上叠加一层本地 TTL 缓存。
//
// 只缓存非空结果：空结果意味着对端暂时不可达，短时间内重查的
// 代价可以接受，而缓存住失败会拖长恢复时间。
type CachedResolver struct {
	inner Resolver
	cache *cache.LocalCache
}

// NewCachedResolver 包装底层解析器。
func NewCachedResolver(inner Resolver, ttl time.Duration) *CachedResolver {
	return &CachedResolver{
		inner: inner,
		cache: cache.NewLocalCache(ttl),
	}
}

// RunCleanup 周期清理过期缓存条目，直到 ctx 取消。
func (r *CachedResolver) RunCleanup(ctx context.Context, interval time.Duration) {
	r.cache.RunCleanup(ctx, interval)
}

// Resolve 优先返回缓存的端点列表。
func (r *CachedResolver) Resolve(ctx context.Context, domain string) ([]string, error) {
	key := strings.ToLower(domain)
	if cached, ok := r.cache.Get(key); ok {
		return cached.([]string), nil
	}

	endpoints, err := r.inner.Resolve(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(endpoints) > 0 {
		r.cache.Set(key, endpoints, 0)
	}
	return endpoints, nil
}
