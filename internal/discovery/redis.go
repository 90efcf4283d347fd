package discovery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	registryKeyPrefix = "fedmail:registry:" // fedmail:registry:<domain> -> set of endpoints
	registryTTL       = 90 * time.Second
)

// RedisRegistry 基于共享 Redis 的域名注册表。
//
// 每台服务器周期性地把自己的 domain -> endpoint 映射写入带 TTL 的
// 键，停止心跳后条目自动过期；Resolve 读取目标域当前存活的端点。
type RedisRegistry struct {
	client   *redis.Client
	domain   string
	endpoint string
	logger   *zap.Logger
}

// NewRedisRegistry 创建 Redis 注册表客户端。
//
// domain 为本服务器的域名，endpoint 为其他域访问本服务器的地址。
func NewRedisRegistry(addr, password string, db int, domain, endpoint string, logger *zap.Logger) *RedisRegistry {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisRegistry{
		client:   client,
		domain:   strings.ToLower(domain),
		endpoint: endpoint,
		logger:   logger,
	}
}

// Register 写入一次本服务器的注册条目。
func (r *RedisRegistry) Register(ctx context.Context) error {
	key := registryKeyPrefix + r.domain

	pipe := r.client.TxPipeline()
	pipe.SAdd(ctx, key, r.endpoint)
	pipe.Expire(ctx, key, registryTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("register domain %s: %w", r.domain, err)
	}
	return nil
}

// RunHeartbeat 周期性续期注册条目，直到 ctx 取消。
func (r *RedisRegistry) RunHeartbeat(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := r.Register(ctx); err != nil {
		r.logger.Warn("initial registry heartbeat failed", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Register(ctx); err != nil {
				r.logger.Warn("registry heartbeat failed", zap.Error(err))
			}
		}
	}
}

// Resolve 返回目标域当前注册的端点列表；键不存在时返回空列表。
func (r *RedisRegistry) Resolve(ctx context.Context, domain string) ([]string, error) {
	endpoints, err := r.client.SMembers(ctx, registryKeyPrefix+strings.ToLower(domain)).Result()
	if err != nil {
		return nil, fmt.Errorf("resolve domain %s: %w", domain, err)
	}
	return endpoints, nil
}

// Health 检查与 Redis 的连通性。
func (r *RedisRegistry) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close 关闭 Redis 连接。
func (r *RedisRegistry) Close() error {
	return r.client.Close()
}
