package auth

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"fedmail/backend/internal/domain"
	"fedmail/backend/internal/storage"
)

var (
	// ErrInvalidUsername 无效的用户名
	ErrInvalidUsername = errors.New("invalid username")
	// ErrInvalidPassword 无效的密码
	ErrInvalidPassword = errors.New("invalid password")
	// ErrUserExists 用户名已存在
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidCredentials 凭证无效
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// 用户名即地址的 local 部分，必须能出现在 name@domain 中
var usernameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9._\-]{0,63}$`)

// Service 是本域的用户目录与认证服务。
type Service struct {
	store   storage.Store
	domain  string
	inboxes InboxCreator
}

// InboxCreator 在注册成功后为新用户创建收件箱。
type InboxCreator interface {
	CreateInbox(user string)
}

// NewService 创建认证服务。domainName 为本服务器所属域名。
func NewService(store storage.Store, inboxes InboxCreator, domainName string) *Service {
	return &Service{
		store:   store,
		domain:  strings.ToLower(domainName),
		inboxes: inboxes,
	}
}

// RegisterInput 注册输入
type RegisterInput struct {
	Name        string
	DisplayName string
	Password    string
}

// Register 注册本域用户并为其创建收件箱。
func (s *Service) Register(input RegisterInput) (*domain.User, error) {
	name := strings.ToLower(strings.TrimSpace(input.Name))
	if !ValidateUsername(name) {
		return nil, ErrInvalidUsername
	}
	if err := ValidatePassword(input.Password); err != nil {
		return nil, err
	}

	displayName := strings.TrimSpace(input.DisplayName)
	if displayName == "" {
		displayName = name
	}

	passwordHash, err := HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &domain.User{
		ID:           uuid.New().String(),
		Name:         name,
		DisplayName:  displayName,
		Domain:       s.domain,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.store.CreateUser(user); err != nil {
		return nil, ErrUserExists
	}

	s.inboxes.CreateInbox(name)

	return user, nil
}

// Authenticate 校验用户名和密码并返回用户。
//
// 用户不存在与密码错误返回同一个错误，不泄露账号是否存在。
func (s *Service) Authenticate(name, password string) (*domain.User, error) {
	user, err := s.store.GetUserByName(strings.ToLower(strings.TrimSpace(name)))
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	if !CheckPassword(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	return user, nil
}

// GetUserByName 根据本地用户名获取用户。
func (s *Service) GetUserByName(name string) (*domain.User, error) {
	return s.store.GetUserByName(name)
}

// ValidateUsername 验证本地用户名格式
func ValidateUsername(name string) bool {
	return usernameRegex.MatchString(name)
}

// ValidatePassword 验证密码强度
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("%w: must be at least 8 characters", ErrInvalidPassword)
	}
	if len(password) > 72 {
		return fmt.Errorf("%w: must be at most 72 characters", ErrInvalidPassword)
	}
	return nil
}

// HashPassword 哈希密码
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword 检查密码是否匹配
func CheckPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
