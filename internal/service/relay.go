package service

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"fedmail/backend/internal/domain"
	"fedmail/backend/internal/monitoring"
	"fedmail/backend/internal/storage"
)

var (
	// ErrInvalidMessage 表示消息缺少发件人/收件人或地址格式非法，
	// 在任何状态变更之前被拒绝。
	ErrInvalidMessage = errors.New("invalid message")
)

// Forwarder 把消息或删除指令尽力而为地送达一组对端域。
//
// 调用发生在本地变更提交并释放守卫之后；单个域的失败只记录，
// 不影响其他域，也不回传给最初的请求者。
type Forwarder interface {
	ForwardMessage(domains []string, msg *domain.Message)
	ForwardDelete(domains []string, id int64)
}

// Notifier 在本地投递完成后通知收件人（可选，如 WebSocket 推送）。
type Notifier interface {
	NotifyNewMail(user string, msg *domain.Message)
}

// RelayService 是传播引擎：把一次接受的消息或删除指令变成正确的
// 本地收件箱变更与远程转发调用。
//
// 收件人按域名后缀确定性分桶：后缀等于本域名的走本地投递，
// 其余按去重后的远程域各转发一次。
type RelayService struct {
	store    storage.Store
	fwd      Forwarder
	domain   string
	logger   *zap.Logger
	metrics  *monitoring.Metrics
	notifier Notifier
}

// NewRelayService 创建传播引擎。domainName 为本服务器所属域名。
func NewRelayService(store storage.Store, fwd Forwarder, domainName string, logger *zap.Logger) *RelayService {
	return &RelayService{
		store:  store,
		fwd:    fwd,
		domain: strings.ToLower(domainName),
		logger: logger,
	}
}

// SetMetrics 设置监控指标（可选）。
func (s *RelayService) SetMetrics(m *monitoring.Metrics) {
	s.metrics = m
}

// SetNotifier 设置新邮件通知器（可选）。
func (s *RelayService) SetNotifier(n Notifier) {
	s.notifier = n
}

// Domain 返回本服务器所属域名。
func (s *RelayService) Domain() string {
	return s.domain
}

// PostMessageInput 定义投递消息的输入。
type PostMessageInput struct {
	Subject     string
	Body        string
	Destination []string
}

// Post 接受本域已认证用户投递的消息并返回分配的消息 ID。
//
// 校验全部通过后才做任何状态变更；本地投递提交后才发起远程转发，
// 远程失败只记录，不影响 Post 的结果。
func (s *RelayService) Post(sender *domain.User, input PostMessageInput) (int64, error) {
	if sender == nil {
		return 0, fmt.Errorf("%w: missing sender", ErrInvalidMessage)
	}
	if len(input.Destination) == 0 {
		return 0, fmt.Errorf("%w: empty destination", ErrInvalidMessage)
	}

	locals, remoteDomains, err := s.partition(input.Destination)
	if err != nil {
		return 0, err
	}

	msg := &domain.Message{
		Subject:     input.Subject,
		Body:        input.Body,
		Destination: append([]string(nil), input.Destination...),
	}
	id := s.store.AllocateMessage(sender, msg)

	s.logger.Info("message posted",
		zap.Int64("id", id),
		zap.String("sender", sender.Address()),
		zap.Int("local_recipients", len(locals)),
		zap.Int("remote_domains", len(remoteDomains)),
	)
	if s.metrics != nil {
		s.metrics.MessagesPosted.Inc()
	}

	for _, name := range locals {
		s.deliverLocal(name, msg)
	}

	// 远程转发在本地变更提交之后发起；完整消息（含全部收件人）
	// 对每个去重后的远程域只发送一次
	if len(remoteDomains) > 0 {
		s.fwd.ForwardMessage(remoteDomains, msg.Clone())
	}

	return id, nil
}

// Get 返回消息；仅当消息存在且在请求者自己的收件箱中时可见。
func (s *RelayService) Get(user *domain.User, id int64) (*domain.Message, error) {
	return s.store.GetUserMessage(user.Name, id)
}

// List 返回用户收件箱内全部消息 ID；无收件箱时为空。
func (s *RelayService) List(user *domain.User) []int64 {
	return s.store.ListInbox(user.Name)
}

// CreateInbox 为用户显式创建收件箱；幂等。
func (s *RelayService) CreateInbox(user string) {
	s.store.EnsureInbox(user)
}

// RemoveFromInbox 仅移除请求者自己的收件箱条目。
//
// 消息不存在或不在其收件箱中时返回 not-found；消息本体保留，
// 其他收件人不受影响。
func (s *RelayService) RemoveFromInbox(user *domain.User, id int64) error {
	return s.store.DropUserMessage(user.Name, id)
}

// Delete 删除消息。
//
// 调用者自己的收件箱条目无条件移除；只有当调用者是消息的规范
// 发件人时，才清除存储中的消息本体、级联清理本地收件箱，并向
// 每个去重后的远程收件域下发转发删除指令。非发件人静默跳过。
func (s *RelayService) Delete(user *domain.User, id int64) error {
	msg, err := s.store.GetMessage(id)

	s.store.RemoveFromInbox(user.Name, id)

	if err != nil {
		// 消息不存在：只清理了自己的条目
		return nil
	}
	if domain.CanonicalName(msg.Sender) != user.Name {
		// 规范副本的删除是发件人专属的
		return nil
	}

	recipients, ok := s.store.RemoveMessage(id)
	if !ok {
		// 已被并发删除
		return nil
	}

	remoteDomains := s.cascade(recipients, id)

	s.logger.Info("message deleted by sender",
		zap.Int64("id", id),
		zap.String("sender", user.Address()),
		zap.Int("remote_domains", len(remoteDomains)),
	)
	if s.metrics != nil {
		s.metrics.MessagesDeleted.Inc()
	}

	if len(remoteDomains) > 0 {
		s.fwd.ForwardDelete(remoteDomains, id)
	}
	return nil
}

// InboundForward 接受对端域引擎转发来的消息。
//
// 只投递域名后缀等于本域的收件人，其余收件人忽略——本服务器
// 不对非自己发出的消息做传递转发。返回本地投递失败的地址列表，
// 个别投递失败不构成错误，只有输入非法才报错。
func (s *RelayService) InboundForward(msg *domain.Message) ([]string, error) {
	if msg == nil || msg.Sender == "" || len(msg.Destination) == 0 {
		return nil, fmt.Errorf("%w: malformed forwarded message", ErrInvalidMessage)
	}

	type localRecipient struct {
		name string
		addr string
	}
	var locals []localRecipient
	failed := make([]string, 0)

	for _, addr := range msg.Destination {
		local, dom, err := domain.SplitAddress(addr)
		if err != nil || !strings.EqualFold(dom, s.domain) {
			continue
		}
		locals = append(locals, localRecipient{name: local, addr: addr})
	}

	if len(locals) > 0 {
		// 转发只保证至少一次，按原始 ID 幂等写入
		s.store.PutMessage(msg)
	}

	for _, rcpt := range locals {
		if !s.deliverLocal(rcpt.name, msg) {
			failed = append(failed, rcpt.addr)
		}
	}

	s.logger.Info("inbound forward accepted",
		zap.Int64("id", msg.ID),
		zap.String("origin", msg.Origin),
		zap.Int("delivered", len(locals)-len(failed)),
		zap.Int("failed", len(failed)),
	)
	if s.metrics != nil {
		s.metrics.InboundForwards.WithLabelValues("message").Inc()
	}

	return failed, nil
}

// InboundForwardDelete 接受对端域下发的删除指令。
//
// 消息在本地存在时清除并级联清理本地收件箱；未知消息为空操作——
// 转发不保证恰好一次，该操作必须幂等。
func (s *RelayService) InboundForwardDelete(id int64) {
	recipients, ok := s.store.RemoveMessage(id)
	if !ok {
		return
	}

	s.cascade(recipients, id)

	s.logger.Info("inbound forward delete applied", zap.Int64("id", id))
	if s.metrics != nil {
		s.metrics.InboundForwards.WithLabelValues("delete").Inc()
	}
}

// partition 校验并拆分收件人：本地用户名列表 + 去重后的远程域列表。
func (s *RelayService) partition(destination []string) (locals []string, remoteDomains []string, err error) {
	remoteSet := make(map[string]struct{})
	for _, addr := range destination {
		local, dom, splitErr := domain.SplitAddress(addr)
		if splitErr != nil {
			return nil, nil, fmt.Errorf("%w: %q", ErrInvalidMessage, addr)
		}
		if strings.EqualFold(dom, s.domain) {
			locals = append(locals, local)
		} else {
			remoteSet[strings.ToLower(dom)] = struct{}{}
		}
	}

	remoteDomains = make([]string, 0, len(remoteSet))
	for dom := range remoteSet {
		remoteDomains = append(remoteDomains, dom)
	}
	return locals, remoteDomains, nil
}

// deliverLocal 将消息投入本地用户收件箱；账号不存在时投递失败。
func (s *RelayService) deliverLocal(name string, msg *domain.Message) bool {
	if _, err := s.store.GetUserByName(name); err != nil {
		s.logger.Warn("local delivery failed",
			zap.Int64("id", msg.ID),
			zap.String("recipient", name),
			zap.Error(err),
		)
		if s.metrics != nil {
			s.metrics.FailedDeliveries.Inc()
		}
		return false
	}

	s.store.AddToInbox(name, msg.ID)
	if s.metrics != nil {
		s.metrics.LocalDeliveries.Inc()
	}
	if s.notifier != nil {
		s.notifier.NotifyNewMail(name, msg)
	}
	return true
}

// cascade 按收件人列表清理本地收件箱，返回去重后的远程收件域。
func (s *RelayService) cascade(recipients []string, id int64) []string {
	remoteSet := make(map[string]struct{})
	for _, addr := range recipients {
		local, dom, err := domain.SplitAddress(addr)
		if err != nil {
			continue
		}
		if strings.EqualFold(dom, s.domain) {
			s.store.RemoveFromInbox(local, id)
		} else {
			remoteSet[strings.ToLower(dom)] = struct{}{}
		}
	}

	remoteDomains := make([]string, 0, len(remoteSet))
	for dom := range remoteSet {
		remoteDomains = append(remoteDomains, dom)
	}
	return remoteDomains
}
