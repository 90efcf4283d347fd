package memory

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"fedmail/backend/internal/domain"
)

var (
	ErrMessageNotFound = errors.New("message not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrUserExists      = errors.New("user already exists")
)

// Store 使用内存保存消息、收件箱与用户数据。
//
// 消息表与收件箱目录各自由独立的守卫保护；需要联合视图的操作
// 按固定顺序加锁：先 msgMu，后 inboxMu。持有任一守卫期间不做网络 I/O。
type Store struct {
	msgMu    sync.RWMutex
	messages map[int64]*domain.Message // messageID -> message
	rng      *rand.Rand                // 由 msgMu 保护

	inboxMu sync.RWMutex
	inboxes map[string]map[int64]struct{} // user -> 可见消息 ID 集合

	userMu sync.RWMutex
	users  map[string]*domain.User // name -> user

	domain string
}

// NewStore 创建一个内存存储实例。domainName 为本服务器所属的域名。
func NewStore(domainName string) *Store {
	return &Store{
		messages: make(map[int64]*domain.Message),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		inboxes:  make(map[string]map[int64]struct{}),
		users:    make(map[string]*domain.User),
		domain:   domainName,
	}
}

// AllocateMessage 为消息分配一个未被占用的随机 ID 并写入存储。
//
// 发件人字段以认证身份盖章，调用方提供的文本一律不信任。
// 碰撞时在守卫内重试；63 位 ID 空间远大于同时存活的消息数，
// 生日界保证重试次数的期望接近 1，因此不设人为的重试上限。
func (s *Store) AllocateMessage(sender *domain.User, msg *domain.Message) int64 {
	s.msgMu.Lock()
	defer s.msgMu.Unlock()

	id := s.rng.Int63()
	for {
		if _, taken := s.messages[id]; !taken {
			break
		}
		id = s.rng.Int63()
	}

	msg.ID = id
	msg.Sender = sender.CanonicalSender()
	msg.Origin = s.domain
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	s.messages[id] = msg

	return id
}

// PutMessage 以消息自带的 ID 写入存储，用于接收对端域转发来的副本。
//
// 转发只保证至少一次，重复写入同一 ID 必须是无害的。
func (s *Store) PutMessage(msg *domain.Message) {
	s.msgMu.Lock()
	defer s.msgMu.Unlock()

	if _, ok := s.messages[msg.ID]; ok {
		return
	}
	s.messages[msg.ID] = msg
}

// GetMessage 获取单条消息。
func (s *Store) GetMessage(id int64) (*domain.Message, error) {
	s.msgMu.RLock()
	defer s.msgMu.RUnlock()

	msg, ok := s.messages[id]
	if !ok {
		return nil, ErrMessageNotFound
	}
	return msg.Clone(), nil
}

// RemoveMessage 移除消息并返回其收件人列表，供调用方级联清理收件箱。
//
// 移除与收件人列表的读取在同一临界区内完成，避免基于已被并发
// 删除的消息做级联。消息不存在时返回 (nil, false)。
func (s *Store) RemoveMessage(id int64) ([]string, bool) {
	s.msgMu.Lock()
	defer s.msgMu.Unlock()

	msg, ok := s.messages[id]
	if !ok {
		return nil, false
	}
	delete(s.messages, id)

	return append([]string(nil), msg.Destination...), true
}

// MessageCount 返回当前存储的消息数量。
func (s *Store) MessageCount() int {
	s.msgMu.RLock()
	defer s.msgMu.RUnlock()
	return len(s.messages)
}

// GetUserMessage 仅当消息存在且在该用户收件箱中时返回消息。
//
// 联合检查按固定顺序持有两把守卫。
func (s *Store) GetUserMessage(user string, id int64) (*domain.Message, error) {
	s.msgMu.RLock()
	defer s.msgMu.RUnlock()
	s.inboxMu.RLock()
	defer s.inboxMu.RUnlock()

	msg, ok := s.messages[id]
	if !ok {
		return nil, ErrMessageNotFound
	}
	if _, visible := s.inboxes[user][id]; !visible {
		return nil, ErrMessageNotFound
	}
	return msg.Clone(), nil
}

// DropUserMessage 从用户自己的收件箱移除一条可见消息。
//
// 消息不存在或不在该用户收件箱中时返回 ErrMessageNotFound，
// 检查与移除在同一临界区内完成。
func (s *Store) DropUserMessage(user string, id int64) error {
	s.msgMu.RLock()
	defer s.msgMu.RUnlock()
	s.inboxMu.Lock()
	defer s.inboxMu.Unlock()

	if _, ok := s.messages[id]; !ok {
		return ErrMessageNotFound
	}
	inbox, ok := s.inboxes[user]
	if !ok {
		return ErrMessageNotFound
	}
	if _, visible := inbox[id]; !visible {
		return ErrMessageNotFound
	}

	delete(inbox, id)
	return nil
}

// Close 释放存储资源（内存实现为空操作）。
func (s *Store) Close() error {
	return nil
}

// Health 报告存储健康状态（内存实现恒为健康）。
func (s *Store) Health() error {
	return nil
}
