package memory

import (
	"fedmail/backend/internal/domain"
)

// CreateUser 创建用户记录；用户名已占用时返回 ErrUserExists。
func (s *Store) CreateUser(user *domain.User) error {
	s.userMu.Lock()
	defer s.userMu.Unlock()

	if _, ok := s.users[user.Name]; ok {
		return ErrUserExists
	}
	s.users[user.Name] = user
	return nil
}

// GetUserByName 按本地用户名查找用户。
func (s *Store) GetUserByName(name string) (*domain.User, error) {
	s.userMu.RLock()
	defer s.userMu.RUnlock()

	user, ok := s.users[name]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *user
	return &cp, nil
}
