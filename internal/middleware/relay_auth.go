package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const relayTokenHeader = "X-Relay-Token"

// RelayAuth 校验对端域引擎调用内部转发接口时携带的共享令牌。
//
// 令牌配置为空时不校验，用于联邦内的互信部署。
func RelayAuth(token string, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}

		got := c.GetHeader(relayTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			log.Warn("relay token mismatch",
				zap.String("ip", c.ClientIP()),
				zap.String("path", c.Request.URL.Path),
			)
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "invalid relay token",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
