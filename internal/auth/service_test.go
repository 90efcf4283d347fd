package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fedmail/backend/internal/storage/memory"
)

type recordingInboxes struct {
	created []string
}

func (r *recordingInboxes) CreateInbox(user string) {
	r.created = append(r.created, user)
}

func newTestService(t *testing.T) (*Service, *memory.Store, *recordingInboxes) {
	t.Helper()

	store := memory.NewStore("x.org")
	inboxes := &recordingInboxes{}
	return NewService(store, inboxes, "x.org"), store, inboxes
}

func TestService_Register(t *testing.T) {
	t.Run("成功注册并创建收件箱", func(t *testing.T) {
		svc, store, inboxes := newTestService(t)

		user, err := svc.Register(RegisterInput{
			Name:        "Alice",
			DisplayName: "Alice Liddell",
			Password:    "secret-password",
		})

		require.NoError(t, err)
		assert.Equal(t, "alice", user.Name)
		assert.Equal(t, "alice@x.org", user.Address())
		assert.Equal(t, "Alice Liddell <alice@x.org>", user.CanonicalSender())
		assert.NotEmpty(t, user.ID)
		assert.NotEqual(t, "secret-password", user.PasswordHash)
		assert.Equal(t, []string{"alice"}, inboxes.created)

		stored, err := store.GetUserByName("alice")
		require.NoError(t, err)
		assert.Equal(t, user.ID, stored.ID)
	})

	t.Run("显示名为空时退回用户名", func(t *testing.T) {
		svc, _, _ := newTestService(t)

		user, err := svc.Register(RegisterInput{Name: "bob", Password: "secret-password"})

		require.NoError(t, err)
		assert.Equal(t, "bob", user.DisplayName)
	})

	t.Run("重复用户名拒绝", func(t *testing.T) {
		svc, _, _ := newTestService(t)

		_, err := svc.Register(RegisterInput{Name: "alice", Password: "secret-password"})
		require.NoError(t, err)

		_, err = svc.Register(RegisterInput{Name: "alice", Password: "another-password"})
		assert.ErrorIs(t, err, ErrUserExists)
	})

	t.Run("非法用户名拒绝", func(t *testing.T) {
		svc, _, _ := newTestService(t)

		for _, name := range []string{"", "has space", "with@at", "中文名"} {
			_, err := svc.Register(RegisterInput{Name: name, Password: "secret-password"})
			assert.ErrorIs(t, err, ErrInvalidUsername, "name=%q", name)
		}
	})

	t.Run("弱密码拒绝", func(t *testing.T) {
		svc, _, _ := newTestService(t)

		_, err := svc.Register(RegisterInput{Name: "alice", Password: "short"})
		assert.ErrorIs(t, err, ErrInvalidPassword)
	})
}

func TestService_Authenticate(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Register(RegisterInput{Name: "alice", Password: "secret-password"})
	require.NoError(t, err)

	t.Run("正确凭证", func(t *testing.T) {
		user, err := svc.Authenticate("alice", "secret-password")
		require.NoError(t, err)
		assert.Equal(t, "alice", user.Name)
	})

	t.Run("用户名大小写不敏感", func(t *testing.T) {
		_, err := svc.Authenticate("ALICE", "secret-password")
		assert.NoError(t, err)
	})

	t.Run("错误密码", func(t *testing.T) {
		_, err := svc.Authenticate("alice", "wrong-password")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("未知用户与错误密码返回同一错误", func(t *testing.T) {
		_, err := svc.Authenticate("ghost", "secret-password")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})
}
