package httptransport

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"fedmail/backend/internal/domain"
	"fedmail/backend/internal/service"
)

// PeerHandler 处理对端域引擎的内部转发调用。
//
// 内部接口不使用统一响应封装：响应体格式是联邦域间的线上协议，
// 对端客户端按原样解码。
type PeerHandler struct {
	relay *service.RelayService
	log   *zap.Logger
}

// NewPeerHandler 创建对端转发处理器
func NewPeerHandler(relay *service.RelayService, log *zap.Logger) *PeerHandler {
	return &PeerHandler{
		relay: relay,
		log:   log,
	}
}

// InboundMessage 接受对端转发来的完整消息，返回本地投递失败的地址列表
func (h *PeerHandler) InboundMessage(c *gin.Context) {
	var msg domain.Message
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed message"})
		return
	}

	failed, err := h.relay.InboundForward(&msg)
	if err != nil {
		if errors.Is(err, service.ErrInvalidMessage) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.log.Error("failed to accept inbound forward", zap.Int64("id", msg.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"failed": failed})
}

// InboundDelete 接受对端下发的删除指令；幂等，未知消息同样返回成功
func (h *PeerHandler) InboundDelete(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}

	h.relay.InboundForwardDelete(id)
	c.Status(http.StatusNoContent)
}
