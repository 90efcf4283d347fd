package smtp

import (
	"errors"
	"io"
	"strings"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"fedmail/backend/internal/auth"
	"fedmail/backend/internal/domain"
	"fedmail/backend/internal/service"
)

// Backend 实现 go-smtp 的 Backend 接口。
//
// 这是一个仅限本域用户的投递前端（Submission-Only）：
//   - 客户端必须先通过 AUTH PLAIN 以本域账号认证
//   - MAIL FROM 必须与认证账号的地址一致
//   - 收件人可以是任意联邦地址，路由交给传播引擎
//
// 没有匿名接收，也不做开放中继：未认证会话无法进入 MAIL 命令。
type Backend struct {
	relay   *service.RelayService
	users   *auth.Service
	limiter *ConnectionLimiter
	logger  *zap.Logger
}

// NewBackend 创建 SMTP Backend。
func NewBackend(relay *service.RelayService, users *auth.Service, limiter *ConnectionLimiter, logger *zap.Logger) *Backend {
	return &Backend{
		relay:   relay,
		users:   users,
		limiter: limiter,
		logger:  logger,
	}
}

// NewSession 创建新的 SMTP 会话。
func (b *Backend) NewSession(c *gosmtp.Conn) (gosmtp.Session, error) {
	if b.limiter != nil && !b.limiter.Acquire() {
		return nil, &gosmtp.SMTPError{
			Code:         421,
			EnhancedCode: gosmtp.EnhancedCode{4, 4, 5},
			Message:      "too many connections, try again later",
		}
	}
	return &session{backend: b}, nil
}

type session struct {
	backend    *Backend
	user       *domain.User
	recipients []string
}

// AuthMechanisms 返回支持的认证机制。
func (s *session) AuthMechanisms() []string {
	return []string{sasl.Plain}
}

// Auth 处理 AUTH 命令。
func (s *session) Auth(mech string) (sasl.Server, error) {
	return sasl.NewPlainServer(func(identity, username, password string) error {
		// 地址形式的登录名取 local 部分
		if local, dom, err := domain.SplitAddress(username); err == nil {
			if !strings.EqualFold(dom, s.backend.relay.Domain()) {
				return errors.New("unknown user domain")
			}
			username = local
		}

		user, err := s.backend.users.Authenticate(username, password)
		if err != nil {
			s.backend.logger.Warn("smtp authentication failed", zap.String("username", username))
			return errors.New("invalid credentials")
		}

		s.user = user
		return nil
	}), nil
}

// Mail 处理 MAIL 命令。
//
// 发件人身份来自认证账号，信封地址只允许与之一致。
func (s *session) Mail(from string, _ *gosmtp.MailOptions) error {
	if s.user == nil {
		return &gosmtp.SMTPError{
			Code:         530,
			EnhancedCode: gosmtp.EnhancedCode{5, 7, 0},
			Message:      "authentication required",
		}
	}

	from = normalizeAddress(from)
	if from != "" && from != s.user.Address() {
		return &gosmtp.SMTPError{
			Code:         550,
			EnhancedCode: gosmtp.EnhancedCode{5, 7, 1},
			Message:      "sender must match the authenticated account",
		}
	}
	return nil
}

// Rcpt 处理 RCPT 命令。
func (s *session) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	addr := normalizeAddress(to)
	if _, _, err := domain.SplitAddress(addr); err != nil {
		return &gosmtp.SMTPError{
			Code:         501,
			EnhancedCode: gosmtp.EnhancedCode{5, 1, 3},
			Message:      "invalid recipient address",
		}
	}

	s.recipients = append(s.recipients, addr)
	return nil
}

// Data 处理邮件内容并交给传播引擎投递。
func (s *session) Data(r io.Reader) error {
	parsed, err := ParseSubmission(r)
	if err != nil {
		return &gosmtp.SMTPError{
			Code:         501,
			EnhancedCode: gosmtp.EnhancedCode{5, 6, 0},
			Message:      "malformed message content",
		}
	}

	id, err := s.backend.relay.Post(s.user, service.PostMessageInput{
		Subject:     parsed.Subject,
		Body:        parsed.Body,
		Destination: s.recipients,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidMessage) {
			return &gosmtp.SMTPError{
				Code:         550,
				EnhancedCode: gosmtp.EnhancedCode{5, 1, 3},
				Message:      "invalid message",
			}
		}
		return err
	}

	s.backend.logger.Info("smtp submission accepted",
		zap.Int64("id", id),
		zap.String("sender", s.user.Address()),
		zap.Int("recipients", len(s.recipients)),
	)
	return nil
}

// Reset 重置状态。
func (s *session) Reset() {
	s.recipients = nil
}

// Logout 会话结束。
func (s *session) Logout() error {
	if s.backend.limiter != nil {
		s.backend.limiter.Release()
	}
	return nil
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	addr = strings.Trim(addr, "<>")
	return strings.ToLower(addr)
}
