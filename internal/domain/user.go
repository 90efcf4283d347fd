package domain

import (
	"fmt"
	"time"
)

// User 表示本域的注册用户。
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"` // 本地用户名，即地址的 local 部分
	DisplayName  string    `json:"displayName"`
	Domain       string    `json:"domain"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Address 返回用户的完整地址 name@domain。
func (u *User) Address() string {
	return fmt.Sprintf("%s@%s", u.Name, u.Domain)
}

// CanonicalSender 返回写入消息的规范发件人字符串。
func (u *User) CanonicalSender() string {
	return FormatSender(u.DisplayName, u.Name, u.Domain)
}
