package memory

// EnsureInbox 为用户创建空收件箱；已存在时不做任何事。
func (s *Store) EnsureInbox(user string) {
	s.inboxMu.Lock()
	defer s.inboxMu.Unlock()

	if _, ok := s.inboxes[user]; !ok {
		s.inboxes[user] = make(map[int64]struct{})
	}
}

// AddToInbox 将消息 ID 加入用户收件箱，收件箱不存在时隐式创建。
//
// 投递不因收件人未显式注册收件箱而失败；账号是否存在由上层校验。
func (s *Store) AddToInbox(user string, id int64) {
	s.inboxMu.Lock()
	defer s.inboxMu.Unlock()

	inbox, ok := s.inboxes[user]
	if !ok {
		inbox = make(map[int64]struct{})
		s.inboxes[user] = inbox
	}
	inbox[id] = struct{}{}
}

// RemoveFromInbox 从用户收件箱移除消息 ID；不存在时为空操作。
func (s *Store) RemoveFromInbox(user string, id int64) {
	s.inboxMu.Lock()
	defer s.inboxMu.Unlock()

	delete(s.inboxes[user], id)
}

// ListInbox 返回用户收件箱内全部消息 ID 的快照；无收件箱时返回空切片。
func (s *Store) ListInbox(user string) []int64 {
	s.inboxMu.RLock()
	defer s.inboxMu.RUnlock()

	inbox := s.inboxes[user]
	ids := make([]int64, 0, len(inbox))
	for id := range inbox {
		ids = append(ids, id)
	}
	return ids
}

// InboxContains 判断消息 ID 是否在用户收件箱中。
func (s *Store) InboxContains(user string, id int64) bool {
	s.inboxMu.RLock()
	defer s.inboxMu.RUnlock()

	_, ok := s.inboxes[user][id]
	return ok
}

// HasInbox 判断用户是否已有收件箱。
func (s *Store) HasInbox(user string) bool {
	s.inboxMu.RLock()
	defer s.inboxMu.RUnlock()

	_, ok := s.inboxes[user]
	return ok
}
