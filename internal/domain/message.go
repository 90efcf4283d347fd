package domain

import "time"

// Message 表示一封在域间中继的邮件。
//
// ID 由创建域的消息存储分配，在该域的存储生命周期内全局唯一；
// 转发副本沿用原始 ID，同一封邮件在各域之间以此对齐。
type Message struct {
	ID          int64     `json:"id"`
	Sender      string    `json:"sender"` // 规范发件人，格式 "DisplayName <name@domain>"，由存储层盖章
	Subject     string    `json:"subject"`
	Body        string    `json:"body"`
	Destination []string  `json:"destination"` // 收件人地址列表，格式 local@domain
	Origin      string    `json:"origin"`      // 创建域
	CreatedAt   time.Time `json:"createdAt"`
}

// Clone 返回消息的深拷贝，避免调用方修改存储内的共享实例。
func (m *Message) Clone() *Message {
	cp := *m
	cp.Destination = append([]string(nil), m.Destination...)
	return &cp
}
