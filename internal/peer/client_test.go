package peer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fedmail/backend/internal/domain"
)

func TestClient_ForwardMessage(t *testing.T) {
	msg := &domain.Message{
		ID:          42,
		Sender:      "Alice <alice@x.org>",
		Subject:     "hello",
		Destination: []string{"bob@y.org"},
		Origin:      "x.org",
	}

	t.Run("成功返回失败地址列表", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/internal/v1/messages", r.URL.Path)
			assert.Equal(t, "secret", r.Header.Get("X-Relay-Token"))

			var got domain.Message
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			assert.Equal(t, int64(42), got.ID)

			_ = json.NewEncoder(w).Encode(map[string][]string{"failed": {"ghost@y.org"}})
		}))
		defer server.Close()

		client := NewClient(time.Second, "secret", 100)
		failed, err := client.ForwardMessage(context.Background(), "y.org", server.URL, msg)

		require.NoError(t, err)
		assert.Equal(t, []string{"ghost@y.org"}, failed)
	})

	t.Run("非200状态码报错", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		client := NewClient(time.Second, "", 100)
		_, err := client.ForwardMessage(context.Background(), "y.org", server.URL, msg)

		assert.Error(t, err)
	})

	t.Run("对端不可达报错", func(t *testing.T) {
		client := NewClient(200*time.Millisecond, "", 100)
		_, err := client.ForwardMessage(context.Background(), "y.org", "http://127.0.0.1:1", msg)

		assert.Error(t, err)
	})
}

func TestClient_ForwardDelete(t *testing.T) {
	t.Run("成功", func(t *testing.T) {
		var gotPath string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			assert.Equal(t, http.MethodDelete, r.Method)
			w.WriteHeader(http.StatusNoContent)
		}))
		defer server.Close()

		client := NewClient(time.Second, "", 100)
		err := client.ForwardDelete(context.Background(), "y.org", server.URL, 42)

		require.NoError(t, err)
		assert.Equal(t, "/internal/v1/messages/42", gotPath)
	})

	t.Run("服务器错误报错", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		client := NewClient(time.Second, "", 100)
		assert.Error(t, client.ForwardDelete(context.Background(), "y.org", server.URL, 42))
	})
}
