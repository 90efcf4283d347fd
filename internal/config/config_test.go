package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoad(t *testing.T) {
	t.Setenv("FEDMAIL_JWT_SECRET", testSecret)

	t.Run("默认配置", func(t *testing.T) {
		t.Setenv("FEDMAIL_RELAY_DOMAIN", "x.org")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, "x.org", cfg.Relay.Domain)
		assert.Equal(t, 8, cfg.Relay.ForwardWorkers)
		assert.Equal(t, "static", cfg.Discovery.Mode)
		assert.Empty(t, cfg.Discovery.Peers)
		assert.Equal(t, 30*time.Second, cfg.Discovery.CacheTTL)
		assert.Equal(t, ":2525", cfg.SMTP.BindAddr)
		assert.Equal(t, "x.org", cfg.SMTP.Domain)
		assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
		assert.Equal(t, time.Hour, cfg.JWT.AccessExpiry)
	})

	t.Run("域名缺省时取主机名", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)
		assert.NotEmpty(t, cfg.Relay.Domain)
	})

	t.Run("JWT密钥过短时报错", func(t *testing.T) {
		t.Setenv("FEDMAIL_JWT_SECRET", "short")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("非法发现模式报错", func(t *testing.T) {
		t.Setenv("FEDMAIL_DISCOVERY_MODE", "dns")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("解析静态对端表", func(t *testing.T) {
		t.Setenv("FEDMAIL_RELAY_DOMAIN", "x.org")
		t.Setenv("FEDMAIL_DISCOVERY_PEERS", "Y.org=http://y1:8080|http://y2:8080, z.org=http://z:8080")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, []string{"http://y1:8080", "http://y2:8080"}, cfg.Discovery.Peers["y.org"])
		assert.Equal(t, []string{"http://z:8080"}, cfg.Discovery.Peers["z.org"])
	})

	t.Run("非法对端表条目报错", func(t *testing.T) {
		t.Setenv("FEDMAIL_DISCOVERY_PEERS", "y.org")

		_, err := Load()
		assert.Error(t, err)
	})
}

func TestParsePeers(t *testing.T) {
	t.Run("空字符串返回空表", func(t *testing.T) {
		peers, err := parsePeers("")
		require.NoError(t, err)
		assert.Empty(t, peers)
	})

	t.Run("缺少端点报错", func(t *testing.T) {
		_, err := parsePeers("y.org=")
		assert.Error(t, err)
	})
}
