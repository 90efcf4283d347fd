package httptransport

import (
	"errors"

	"fedmail/backend/internal/auth"
	"fedmail/backend/internal/service"
	"fedmail/backend/internal/storage/memory"
)

// 错误消息映射表（业务错误 -> 中文消息）
var errorMessages = []struct {
	err error
	msg string
}{
	{service.ErrInvalidMessage, "消息格式无效"},
	{memory.ErrMessageNotFound, "消息不存在"},
	{memory.ErrUserNotFound, "用户不存在"},

	{auth.ErrInvalidUsername, "用户名格式无效"},
	{auth.ErrInvalidPassword, "密码强度不足"},
	{auth.ErrUserExists, "用户名已存在"},
	{auth.ErrInvalidCredentials, "用户名或密码错误"},
}

// GetErrorMessage 获取错误的中文消息
func GetErrorMessage(err error) string {
	for _, entry := range errorMessages {
		if errors.Is(err, entry.err) {
			return entry.msg
		}
	}
	return err.Error()
}

// 通用错误消息
const (
	MsgInvalidRequest   = "请求参数格式错误"
	MsgInvalidMessageID = "消息 ID 格式无效"
	MsgAuthRequired     = "需要登录认证"
	MsgUserNotFound     = "用户不存在"
	MsgMessageNotFound  = "消息不存在"
	MsgPostFailed       = "投递消息失败"
	MsgTokenGenerate    = "生成令牌失败"
	MsgRegisterFailed   = "注册失败，请稍后重试"
	MsgInternalError    = "服务器内部错误，请稍后重试"
)
