package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"fedmail/backend/internal/discovery"
	"fedmail/backend/internal/domain"
	"fedmail/backend/internal/monitoring"
	"fedmail/backend/internal/pool"
)

// PeerCaller 是对单个对端端点的一次转发调用。
type PeerCaller interface {
	ForwardMessage(ctx context.Context, peerDomain, endpoint string, msg *domain.Message) ([]string, error)
	ForwardDelete(ctx context.Context, peerDomain, endpoint string, id int64) error
}

// PeerForwarder 通过协程池异步地把消息和删除指令转发到对端域。
//
// 每个目标域提交一个任务：先解析该域当前可用的端点，再逐个尝试，
// 首个成功即停。域无法解析或全部端点失败时记录该域当前不可达，
// 不做重试排队，也不影响其他域的任务。
type PeerForwarder struct {
	resolver discovery.Resolver
	peers    PeerCaller
	pool     *pool.WorkerPool
	logger   *zap.Logger
	metrics  *monitoring.Metrics
	timeout  time.Duration
}

// NewPeerForwarder 创建转发器。workers 为 nil 时任务同步执行。
func NewPeerForwarder(resolver discovery.Resolver, peers PeerCaller, workers *pool.WorkerPool, timeout time.Duration, logger *zap.Logger) *PeerForwarder {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PeerForwarder{
		resolver: resolver,
		peers:    peers,
		pool:     workers,
		logger:   logger,
		timeout:  timeout,
	}
}

// SetMetrics 设置监控指标（可选）。
func (f *PeerForwarder) SetMetrics(m *monitoring.Metrics) {
	f.metrics = m
}

// ForwardMessage 向每个目标域各转发一次完整消息。
func (f *PeerForwarder) ForwardMessage(domains []string, msg *domain.Message) {
	for _, d := range domains {
		peerDomain := d
		f.submit(func() { f.forwardMessage(peerDomain, msg) })
	}
}

// ForwardDelete 向每个目标域各下发一次删除指令。
func (f *PeerForwarder) ForwardDelete(domains []string, id int64) {
	for _, d := range domains {
		peerDomain := d
		f.submit(func() { f.forwardDelete(peerDomain, id) })
	}
}

func (f *PeerForwarder) submit(task func()) {
	if f.pool == nil {
		task()
		return
	}
	if !f.pool.TrySubmit(task) {
		f.logger.Warn("forward queue full, running task inline")
		task()
	}
}

func (f *PeerForwarder) forwardMessage(peerDomain string, msg *domain.Message) {
	f.recordAttempt(peerDomain, "message")

	endpoints, ok := f.resolve(peerDomain)
	if !ok {
		f.recordFailure(peerDomain, "message")
		return
	}

	start := time.Now()
	for _, endpoint := range endpoints {
		ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
		failed, err := f.peers.ForwardMessage(ctx, peerDomain, endpoint, msg)
		cancel()
		if err != nil {
			f.logger.Warn("forward attempt failed",
				zap.String("peer_domain", peerDomain),
				zap.String("endpoint", endpoint),
				zap.Int64("id", msg.ID),
				zap.Error(err),
			)
			continue
		}

		if f.metrics != nil {
			f.metrics.ForwardDuration.WithLabelValues(peerDomain).Observe(time.Since(start).Seconds())
		}
		if len(failed) > 0 {
			f.logger.Info("peer reported undeliverable recipients",
				zap.String("peer_domain", peerDomain),
				zap.Int64("id", msg.ID),
				zap.Strings("failed", failed),
			)
		}
		return
	}

	f.logger.Error("domain currently unreachable, message dropped for this domain",
		zap.String("peer_domain", peerDomain),
		zap.Int64("id", msg.ID),
	)
	f.recordFailure(peerDomain, "message")
}

func (f *PeerForwarder) forwardDelete(peerDomain string, id int64) {
	f.recordAttempt(peerDomain, "delete")

	endpoints, ok := f.resolve(peerDomain)
	if !ok {
		f.recordFailure(peerDomain, "delete")
		return
	}

	for _, endpoint := range endpoints {
		ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
		err := f.peers.ForwardDelete(ctx, peerDomain, endpoint, id)
		cancel()
		if err != nil {
			f.logger.Warn("forward delete attempt failed",
				zap.String("peer_domain", peerDomain),
				zap.String("endpoint", endpoint),
				zap.Int64("id", id),
				zap.Error(err),
			)
			continue
		}
		return
	}

	f.logger.Error("domain currently unreachable, delete instruction dropped for this domain",
		zap.String("peer_domain", peerDomain),
		zap.Int64("id", id),
	)
	f.recordFailure(peerDomain, "delete")
}

// resolve 查询对端域当前的候选端点。
func (f *PeerForwarder) resolve(peerDomain string) ([]string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	endpoints, err := f.resolver.Resolve(ctx, peerDomain)
	if err != nil || len(endpoints) == 0 {
		f.logger.Error("peer domain not resolvable",
			zap.String("peer_domain", peerDomain),
			zap.Error(err),
		)
		return nil, false
	}
	return endpoints, true
}

func (f *PeerForwarder) recordAttempt(peerDomain, kind string) {
	if f.metrics != nil {
		f.metrics.ForwardsAttempted.WithLabelValues(peerDomain, kind).Inc()
	}
}

func (f *PeerForwarder) recordFailure(peerDomain, kind string) {
	if f.metrics != nil {
		f.metrics.ForwardsFailed.WithLabelValues(peerDomain, kind).Inc()
	}
}
