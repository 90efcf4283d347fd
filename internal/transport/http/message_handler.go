package httptransport

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"fedmail/backend/internal/auth"
	"fedmail/backend/internal/domain"
	"fedmail/backend/internal/middleware"
	"fedmail/backend/internal/service"
	"fedmail/backend/internal/storage/memory"
)

// MessageHandler 处理消息相关的 HTTP 请求
type MessageHandler struct {
	relay *service.RelayService
	users *auth.Service
	log   *zap.Logger
}

// NewMessageHandler 创建消息处理器
func NewMessageHandler(relay *service.RelayService, users *auth.Service, log *zap.Logger) *MessageHandler {
	return &MessageHandler{
		relay: relay,
		users: users,
		log:   log,
	}
}

type postMessageRequest struct {
	Subject     string   `json:"subject"`
	Body        string   `json:"body"`
	Destination []string `json:"destination" binding:"required"`
}

type postMessageResponse struct {
	ID int64 `json:"id"`
}

type messageResponse struct {
	ID          int64     `json:"id"`
	Sender      string    `json:"sender"`
	Subject     string    `json:"subject"`
	Body        string    `json:"body"`
	Destination []string  `json:"destination"`
	Origin      string    `json:"origin"`
	CreatedAt   time.Time `json:"createdAt"`
}

func newMessageResponse(msg *domain.Message) messageResponse {
	return messageResponse{
		ID:          msg.ID,
		Sender:      msg.Sender,
		Subject:     msg.Subject,
		Body:        msg.Body,
		Destination: msg.Destination,
		Origin:      msg.Origin,
		CreatedAt:   msg.CreatedAt,
	}
}

// currentUser 从上下文中解析已认证用户。
func (h *MessageHandler) currentUser(c *gin.Context) (*domain.User, bool) {
	name := c.GetString(middleware.ContextUserName)
	user, err := h.users.GetUserByName(name)
	if err != nil {
		// 令牌有效但账号已不存在
		Unauthorized(c, MsgAuthRequired)
		return nil, false
	}
	return user, true
}

// messageID 解析路径中的消息 ID。
func messageID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		BadRequest(c, MsgInvalidMessageID)
		return 0, false
	}
	return id, true
}

// PostMessage 投递一条新消息
func (h *MessageHandler) PostMessage(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	id, err := h.relay.Post(user, service.PostMessageInput{
		Subject:     req.Subject,
		Body:        req.Body,
		Destination: req.Destination,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidMessage) {
			BadRequest(c, GetErrorMessage(err))
			return
		}
		h.log.Error("failed to post message", zap.Error(err))
		InternalError(c, MsgPostFailed)
		return
	}

	Created(c, postMessageResponse{ID: id})
}

// ListMessages 返回当前用户收件箱内的全部消息 ID
func (h *MessageHandler) ListMessages(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	Success(c, h.relay.List(user))
}

// GetMessage 返回当前用户收件箱中的一条消息
func (h *MessageHandler) GetMessage(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	id, ok := messageID(c)
	if !ok {
		return
	}

	msg, err := h.relay.Get(user, id)
	if err != nil {
		NotFound(c, MsgMessageNotFound)
		return
	}

	Success(c, newMessageResponse(msg))
}

// DeleteMessage 删除一条消息
//
// 调用者是发件人时消息从全联邦清除；否则只移除调用者自己的收件箱条目。
func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	id, ok := messageID(c)
	if !ok {
		return
	}

	if err := h.relay.Delete(user, id); err != nil {
		h.log.Error("failed to delete message", zap.Int64("id", id), zap.Error(err))
		InternalError(c, MsgInternalError)
		return
	}

	NoContent(c)
}

// RemoveFromInbox 仅从当前用户的收件箱移除一条消息
func (h *MessageHandler) RemoveFromInbox(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	id, ok := messageID(c)
	if !ok {
		return
	}

	if err := h.relay.RemoveFromInbox(user, id); err != nil {
		if errors.Is(err, memory.ErrMessageNotFound) {
			NotFound(c, MsgMessageNotFound)
			return
		}
		h.log.Error("failed to remove from inbox", zap.Int64("id", id), zap.Error(err))
		InternalError(c, MsgInternalError)
		return
	}

	NoContent(c)
}
