package httptransport

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"fedmail/backend/internal/auth"
	jwtpkg "fedmail/backend/internal/auth/jwt"
	"fedmail/backend/internal/domain"
	"fedmail/backend/internal/middleware"
)

// AuthHandler 处理认证相关的 HTTP 请求
type AuthHandler struct {
	authService *auth.Service   // 认证业务服务
	jwtManager  *jwtpkg.Manager // JWT 令牌管理器
	log         *zap.Logger     // 结构化日志记录器
}

// NewAuthHandler 创建新的认证处理器实例
func NewAuthHandler(authService *auth.Service, jwtManager *jwtpkg.Manager, log *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		jwtManager:  jwtManager,
		log:         log,
	}
}

type registerRequest struct {
	Name        string `json:"name" binding:"required"`
	DisplayName string `json:"displayName"`
	Password    string `json:"password" binding:"required"`
}

type loginRequest struct {
	Name     string `json:"name" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type authResponse struct {
	User        userResponse `json:"user"`
	AccessToken string       `json:"accessToken"`
	ExpiresIn   int64        `json:"expiresIn"`
}

type userResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Address     string `json:"address"`
}

func newUserResponse(user *domain.User) userResponse {
	return userResponse{
		ID:          user.ID,
		Name:        user.Name,
		DisplayName: user.DisplayName,
		Address:     user.Address(),
	}
}

// Register 处理用户注册请求
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	user, err := h.authService.Register(auth.RegisterInput{
		Name:        req.Name,
		DisplayName: req.DisplayName,
		Password:    req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidUsername), errors.Is(err, auth.ErrInvalidPassword):
			BadRequest(c, GetErrorMessage(err))
		case errors.Is(err, auth.ErrUserExists):
			Conflict(c, GetErrorMessage(err))
		default:
			h.log.Error("failed to register user", zap.Error(err))
			InternalError(c, MsgRegisterFailed)
		}
		return
	}

	token, err := h.jwtManager.GenerateToken(user.ID, user.Name)
	if err != nil {
		h.log.Error("failed to generate token", zap.Error(err))
		InternalError(c, MsgTokenGenerate)
		return
	}

	h.log.Info("user registered",
		zap.String("user_id", user.ID),
		zap.String("address", user.Address()),
	)

	Created(c, authResponse{
		User:        newUserResponse(user),
		AccessToken: token,
		ExpiresIn:   h.jwtManager.ExpiresIn(),
	})
}

// Login 处理用户登录请求
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	user, err := h.authService.Authenticate(req.Name, req.Password)
	if err != nil {
		Unauthorized(c, GetErrorMessage(auth.ErrInvalidCredentials))
		return
	}

	token, err := h.jwtManager.GenerateToken(user.ID, user.Name)
	if err != nil {
		h.log.Error("failed to generate token", zap.Error(err))
		InternalError(c, MsgTokenGenerate)
		return
	}

	Success(c, authResponse{
		User:        newUserResponse(user),
		AccessToken: token,
		ExpiresIn:   h.jwtManager.ExpiresIn(),
	})
}

// Me 返回当前登录用户信息
func (h *AuthHandler) Me(c *gin.Context) {
	name := c.GetString(middleware.ContextUserName)
	user, err := h.authService.GetUserByName(name)
	if err != nil {
		NotFound(c, MsgUserNotFound)
		return
	}

	Success(c, newUserResponse(user))
}
