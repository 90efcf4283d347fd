package storage

import (
	"fedmail/backend/internal/domain"
)

// MessageRepository 定义消息存储的数据存取操作。
//
// 所有方法都必须在任意并发调用下保持原子：分配出的 ID 在写入完成前
// 不会被其他分配观察为空闲，移除与读取收件人列表在同一临界区内完成。
type MessageRepository interface {
	AllocateMessage(sender *domain.User, msg *domain.Message) int64
	PutMessage(msg *domain.Message)
	GetMessage(id int64) (*domain.Message, error)
	RemoveMessage(id int64) ([]string, bool)
	MessageCount() int
}

// InboxRepository 定义收件箱目录的数据存取操作。
type InboxRepository interface {
	EnsureInbox(user string)
	AddToInbox(user string, id int64)
	RemoveFromInbox(user string, id int64)
	ListInbox(user string) []int64
	InboxContains(user string, id int64) bool
	HasInbox(user string) bool
}

// VisibilityRepository 定义需要同时观察消息存储与收件箱目录的联合操作。
//
// 实现必须按固定顺序（消息存储在前）持有两把守卫，避免死锁。
type VisibilityRepository interface {
	// GetUserMessage 仅当消息存在且在该用户收件箱中时返回消息。
	GetUserMessage(user string, id int64) (*domain.Message, error)
	// DropUserMessage 仅移除该用户自己的收件箱条目；消息不可见时报错。
	DropUserMessage(user string, id int64) error
}

// UserRepository 定义用户目录的数据存取操作。
type UserRepository interface {
	CreateUser(user *domain.User) error
	GetUserByName(name string) (*domain.User, error)
}

// Store 定义完整的存储接口。
type Store interface {
	MessageRepository
	InboxRepository
	VisibilityRepository
	UserRepository

	Close() error
	Health() error
}
