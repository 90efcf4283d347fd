package httptransport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fedmail/backend/internal/auth"
	jwtpkg "fedmail/backend/internal/auth/jwt"
	"fedmail/backend/internal/config"
	"fedmail/backend/internal/domain"
	"fedmail/backend/internal/service"
	"fedmail/backend/internal/storage/memory"
)

type nopForwarder struct{}

func (nopForwarder) ForwardMessage([]string, *domain.Message) {}
func (nopForwarder) ForwardDelete([]string, int64)            {}

type testEnv struct {
	router *gin.Engine
	store  *memory.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStore("x.org")
	relay := service.NewRelayService(store, nopForwarder{}, "x.org", zap.NewNop())
	users := auth.NewService(store, relay, "x.org")
	jwtManager := jwtpkg.NewManager("0123456789abcdef0123456789abcdef", "fedmail", time.Hour)

	cfg := &config.Config{
		CORS:  config.CORSConfig{AllowedOrigins: []string{"*"}},
		Relay: config.RelayConfig{Domain: "x.org", Token: "peer-secret"},
	}

	router := NewRouter(RouterDependencies{
		Config:       cfg,
		RelayService: relay,
		AuthService:  users,
		JWTManager:   jwtManager,
		Logger:       zap.NewNop(),
	})

	return &testEnv{router: router, store: store}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// registerUser 注册用户并返回访问令牌
func (e *testEnv) registerUser(t *testing.T, name string) string {
	t.Helper()

	w := e.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"name":     name,
		"password": "secret-password",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		Data struct {
			AccessToken string `json:"accessToken"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Data.AccessToken)
	return resp.Data.AccessToken
}

func TestAuthRoutes(t *testing.T) {
	env := newTestEnv(t)

	t.Run("注册后可登录", func(t *testing.T) {
		env.registerUser(t, "alice")

		w := env.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{
			"name":     "alice",
			"password": "secret-password",
		})
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("错误密码返回401", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{
			"name":     "alice",
			"password": "wrong",
		})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("me需要认证", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/v1/auth/me", "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestMessageRoutes(t *testing.T) {
	env := newTestEnv(t)
	aliceToken := env.registerUser(t, "alice")
	bobToken := env.registerUser(t, "bob")

	var messageID int64

	t.Run("投递消息", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/v1/messages", aliceToken, gin.H{
			"subject":     "hello",
			"body":        "hi bob",
			"destination": []string{"bob@x.org"},
		})
		require.Equal(t, http.StatusCreated, w.Code)

		var resp struct {
			Data struct {
				ID int64 `json:"id"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.NotZero(t, resp.Data.ID)
		messageID = resp.Data.ID
	})

	t.Run("收件人读取消息", func(t *testing.T) {
		w := env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/messages/%d", messageID), bobToken, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Data messageResponse `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "alice <alice@x.org>", resp.Data.Sender)
		assert.Equal(t, "hello", resp.Data.Subject)
	})

	t.Run("非收件人读取返回404", func(t *testing.T) {
		w := env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/messages/%d", messageID), aliceToken, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("收件箱列表", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/v1/inbox", bobToken, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Data []int64 `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, []int64{messageID}, resp.Data)
	})

	t.Run("非法收件人返回400", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/v1/messages", aliceToken, gin.H{
			"destination": []string{"not-an-address"},
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("非法消息ID返回400", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/v1/messages/abc", bobToken, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("收件人移除收件箱条目", func(t *testing.T) {
		w := env.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/inbox/%d", messageID), bobToken, nil)
		assert.Equal(t, http.StatusNoContent, w.Code)

		w = env.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/inbox/%d", messageID), bobToken, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("发件人删除消息", func(t *testing.T) {
		w := env.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/messages/%d", messageID), aliceToken, nil)
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, 0, env.store.MessageCount())
	})

	t.Run("未认证访问返回401", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/v1/messages", "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestPeerRoutes(t *testing.T) {
	env := newTestEnv(t)
	env.registerUser(t, "bob")

	forwardedMessage := gin.H{
		"id":          int64(77),
		"sender":      "Remote <remote@y.org>",
		"subject":     "from afar",
		"body":        "hello",
		"destination": []string{"bob@x.org", "ghost@x.org"},
		"origin":      "y.org",
	}

	t.Run("缺少中继令牌拒绝", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/internal/v1/messages", "", forwardedMessage)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("入站转发返回失败地址", func(t *testing.T) {
		data, err := json.Marshal(forwardedMessage)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/internal/v1/messages", bytes.NewReader(data))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Relay-Token", "peer-secret")

		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Failed []string `json:"failed"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, []string{"ghost@x.org"}, resp.Failed)
		assert.True(t, env.store.InboxContains("bob", 77))
	})

	t.Run("入站转发删除幂等", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			req := httptest.NewRequest(http.MethodDelete, "/internal/v1/messages/77", nil)
			req.Header.Set("X-Relay-Token", "peer-secret")

			w := httptest.NewRecorder()
			env.router.ServeHTTP(w, req)
			assert.Equal(t, http.StatusNoContent, w.Code)
		}
		assert.False(t, env.store.InboxContains("bob", 77))
		assert.Equal(t, 0, env.store.MessageCount())
	})
}
