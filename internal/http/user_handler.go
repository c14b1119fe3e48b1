package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sdq-screen/internal/domain"
	"sdq-screen/internal/service"
)

// UserHandler atiende el alta de cuentas y el ciclo de tokens.
type UserHandler struct {
	logger *zap.Logger
	users  *service.UserService
	tokens *service.JWTService
}

func NewUserHandler(logger *zap.Logger, users *service.UserService, tokens *service.JWTService) *UserHandler {
	return &UserHandler{logger: logger, users: users, tokens: tokens}
}

type credentialsRequest struct {
	Email       string `json:"email" binding:"required,email"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// CreateUser maneja POST /users. La cuenta queda logueada: la respuesta
// incluye el par de tokens para empezar una sesion sin otro request.
func (h *UserHandler) CreateUser(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, "create user", err)
		return
	}
	user, err := h.users.CreateUser(c.Request.Context(), service.CreateUserInput{
		Email:       req.Email,
		DisplayName: req.DisplayName,
		Password:    req.Password,
	})
	if err != nil {
		writeError(c, h.logger, "create user", err)
		return
	}
	h.respondWithTokens(c, http.StatusCreated, user)
}

// Login maneja POST /auth/login.
func (h *UserHandler) Login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, "login", err)
		return
	}
	user, err := h.users.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, h.logger, "login", err)
		return
	}
	h.respondWithTokens(c, http.StatusOK, user)
}

// RefreshToken maneja POST /auth/refresh.
func (h *UserHandler) RefreshToken(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, "refresh", err)
		return
	}
	if h.tokens == nil {
		writeError(c, h.logger, "refresh", service.ErrJWTNotConfigured)
		return
	}
	pair, err := h.tokens.RefreshPair(req.RefreshToken)
	if err != nil {
		writeError(c, h.logger, "refresh", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tokens": pair})
}

// Logout maneja POST /auth/logout. Un token ya revocado o invalido tambien
// responde 204.
func (h *UserHandler) Logout(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, "logout", err)
		return
	}
	if h.tokens != nil {
		if err := h.tokens.RevokeRefresh(req.RefreshToken); err != nil {
			h.logger.Debug("logout with unusable token", zap.Error(err))
		}
	}
	c.Status(http.StatusNoContent)
}

func (h *UserHandler) respondWithTokens(c *gin.Context, status int, user domain.User) {
	if h.tokens == nil {
		writeError(c, h.logger, "issue tokens", service.ErrJWTNotConfigured)
		return
	}
	pair, err := h.tokens.GeneratePair(user)
	if err != nil {
		writeError(c, h.logger, "issue tokens", err)
		return
	}
	c.JSON(status, gin.H{"user": user, "tokens": pair})
}
