package memory

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fedmail/backend/internal/domain"
)

func testUser(name string) *domain.User {
	return &domain.User{
		ID:          "u-" + name,
		Name:        name,
		DisplayName: name,
		Domain:      "x.org",
	}
}

func TestStore_AllocateMessage(t *testing.T) {
	store := NewStore("x.org")
	alice := testUser("alice")

	t.Run("分配后可按ID读取", func(t *testing.T) {
		msg := &domain.Message{Subject: "hi", Destination: []string{"bob@x.org"}}
		id := store.AllocateMessage(alice, msg)

		require.GreaterOrEqual(t, id, int64(0))

		got, err := store.GetMessage(id)
		require.NoError(t, err)
		assert.Equal(t, "hi", got.Subject)
		assert.Equal(t, "x.org", got.Origin)
	})

	t.Run("发件人字段被认证身份覆盖", func(t *testing.T) {
		msg := &domain.Message{Sender: "forged <mallory@evil.org>", Destination: []string{"bob@x.org"}}
		id := store.AllocateMessage(alice, msg)

		got, err := store.GetMessage(id)
		require.NoError(t, err)
		assert.Equal(t, "alice <alice@x.org>", got.Sender)
	})

	t.Run("并发分配的ID两两不同", func(t *testing.T) {
		const n = 200
		ids := make(chan int64, n)

		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ids <- store.AllocateMessage(alice, &domain.Message{Destination: []string{"bob@x.org"}})
			}()
		}
		wg.Wait()
		close(ids)

		seen := make(map[int64]struct{}, n)
		for id := range ids {
			_, dup := seen[id]
			assert.False(t, dup, "duplicate id %d", id)
			seen[id] = struct{}{}
		}
	})
}

func TestStore_PutMessage(t *testing.T) {
	store := NewStore("x.org")

	msg := &domain.Message{ID: 42, Sender: "a <a@y.org>", Subject: "fwd", Destination: []string{"b@x.org"}}
	store.PutMessage(msg)

	t.Run("按原始ID写入", func(t *testing.T) {
		got, err := store.GetMessage(42)
		require.NoError(t, err)
		assert.Equal(t, "fwd", got.Subject)
	})

	t.Run("重复写入同一ID无害", func(t *testing.T) {
		store.PutMessage(&domain.Message{ID: 42, Subject: "other"})

		got, err := store.GetMessage(42)
		require.NoError(t, err)
		assert.Equal(t, "fwd", got.Subject)
		assert.Equal(t, 1, store.MessageCount())
	})
}

func TestStore_RemoveMessage(t *testing.T) {
	store := NewStore("x.org")
	alice := testUser("alice")

	id := store.AllocateMessage(alice, &domain.Message{Destination: []string{"b@x.org", "c@y.org"}})

	t.Run("移除返回收件人列表", func(t *testing.T) {
		recipients, ok := store.RemoveMessage(id)

		assert.True(t, ok)
		assert.ElementsMatch(t, []string{"b@x.org", "c@y.org"}, recipients)

		_, err := store.GetMessage(id)
		assert.ErrorIs(t, err, ErrMessageNotFound)
	})

	t.Run("重复移除为空操作", func(t *testing.T) {
		recipients, ok := store.RemoveMessage(id)

		assert.False(t, ok)
		assert.Nil(t, recipients)
	})
}

func TestStore_Inbox(t *testing.T) {
	store := NewStore("x.org")

	t.Run("无收件箱时列表为空", func(t *testing.T) {
		assert.Empty(t, store.ListInbox("nobody"))
		assert.False(t, store.HasInbox("nobody"))
	})

	t.Run("隐式创建收件箱投递", func(t *testing.T) {
		store.AddToInbox("bob", 7)

		assert.True(t, store.HasInbox("bob"))
		assert.True(t, store.InboxContains("bob", 7))
		assert.Equal(t, []int64{7}, store.ListInbox("bob"))
	})

	t.Run("EnsureInbox幂等", func(t *testing.T) {
		store.EnsureInbox("bob")
		assert.Equal(t, []int64{7}, store.ListInbox("bob"))
	})

	t.Run("移除不存在的条目为空操作", func(t *testing.T) {
		store.RemoveFromInbox("bob", 999)
		store.RemoveFromInbox("nobody", 1)

		assert.True(t, store.InboxContains("bob", 7))
	})
}

func TestStore_GetUserMessage(t *testing.T) {
	store := NewStore("x.org")
	alice := testUser("alice")

	id := store.AllocateMessage(alice, &domain.Message{Subject: "s", Destination: []string{"bob@x.org"}})
	store.AddToInbox("bob", id)

	t.Run("消息存在且在收件箱中", func(t *testing.T) {
		got, err := store.GetUserMessage("bob", id)
		require.NoError(t, err)
		assert.Equal(t, "s", got.Subject)
	})

	t.Run("消息不在请求者收件箱中", func(t *testing.T) {
		_, err := store.GetUserMessage("carol", id)
		assert.ErrorIs(t, err, ErrMessageNotFound)
	})

	t.Run("消息不存在", func(t *testing.T) {
		_, err := store.GetUserMessage("bob", 123456)
		assert.ErrorIs(t, err, ErrMessageNotFound)
	})
}

func TestStore_DropUserMessage(t *testing.T) {
	store := NewStore("x.org")
	alice := testUser("alice")

	id := store.AllocateMessage(alice, &domain.Message{Destination: []string{"bob@x.org"}})
	store.AddToInbox("bob", id)

	t.Run("不可见消息报错", func(t *testing.T) {
		assert.ErrorIs(t, store.DropUserMessage("carol", id), ErrMessageNotFound)
		assert.ErrorIs(t, store.DropUserMessage("bob", 42), ErrMessageNotFound)
	})

	t.Run("仅移除调用者自己的条目", func(t *testing.T) {
		require.NoError(t, store.DropUserMessage("bob", id))

		assert.False(t, store.InboxContains("bob", id))

		// 消息本体仍在存储中
		_, err := store.GetMessage(id)
		assert.NoError(t, err)
	})
}

func TestStore_Users(t *testing.T) {
	store := NewStore("x.org")

	t.Run("创建并查找用户", func(t *testing.T) {
		require.NoError(t, store.CreateUser(testUser("alice")))

		got, err := store.GetUserByName("alice")
		require.NoError(t, err)
		assert.Equal(t, "alice@x.org", got.Address())
	})

	t.Run("重复创建返回错误", func(t *testing.T) {
		assert.ErrorIs(t, store.CreateUser(testUser("alice")), ErrUserExists)
	})

	t.Run("用户不存在", func(t *testing.T) {
		_, err := store.GetUserByName("ghost")
		assert.ErrorIs(t, err, ErrUserNotFound)
	})
}
