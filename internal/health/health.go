package health

import (
	"context"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"

	"fedmail/backend/internal/discovery"
	"fedmail/backend/internal/storage"
)

// HealthChecker 健康检查器
type HealthChecker struct {
	health healthcheck.Handler
	store  storage.Store
	logger *zap.Logger
}

// NewHealthChecker 创建健康检查器
func NewHealthChecker(store storage.Store, logger *zap.Logger) *HealthChecker {
	hc := &HealthChecker{
		health: healthcheck.NewHandler(),
		store:  store,
		logger: logger,
	}

	hc.health.AddLivenessCheck("storage", func() error {
		return hc.store.Health()
	})

	return hc
}

// AddRegistryCheck 把对端注册表接入就绪检查。
//
// 注册表不可达时本节点仍能服务本地读写，只是跨域转发会失败，
// 因此挂在 readiness 而不是 liveness 上。
func (hc *HealthChecker) AddRegistryCheck(registry *discovery.RedisRegistry) {
	hc.health.AddReadinessCheck("registry", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		return registry.Health(ctx)
	})
}

// LiveEndpoint 存活探针处理函数
func (hc *HealthChecker) LiveEndpoint() http.HandlerFunc {
	return hc.health.LiveEndpoint
}

// ReadyEndpoint 就绪探针处理函数
func (hc *HealthChecker) ReadyEndpoint() http.HandlerFunc {
	return hc.health.ReadyEndpoint
}
