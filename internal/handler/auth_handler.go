package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/placement-api/internal/handler/dto"
	"github.com/yourusername/placement-api/internal/service"
)

// AuthHandler обрабатывает запросы регистрации, входа и профиля
type AuthHandler struct {
	authService *service.AuthService
	userService *service.UserService
}

// NewAuthHandler создает новый обработчик аутентификации
func NewAuthHandler(authService *service.AuthService, userService *service.UserService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		userService: userService,
	}
}

// Register обрабатывает регистрацию студента или сотрудника
func (h *AuthHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data: " + err.Error()})
		return
	}

	result, err := h.authService.Register(service.RegisterInput{
		Username:   req.Username,
		Email:      req.Email,
		Password:   req.Password,
		FullName:   req.FullName,
		Role:       req.Role,
		InviteCode: req.InviteCode,
		Details:    req.Details,
	})
	if err != nil {
		handleError(c, "AuthHandler.Register", err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewAuthResponse(result.User, result.AccessToken, result.ExpiresIn))
}

// Login обрабатывает вход по логину и паролю
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data: " + err.Error()})
		return
	}

	result, err := h.authService.Login(req.Username, req.Password)
	if err != nil {
		handleError(c, "AuthHandler.Login", err)
		return
	}

	c.JSON(http.StatusOK, dto.NewAuthResponse(result.User, result.AccessToken, result.ExpiresIn))
}

// GetWSTicket выдает короткоживущий тикет для подключения к WebSocket
func (h *AuthHandler) GetWSTicket(c *gin.Context) {
	userID, _, _ := currentUser(c)

	ticket, err := h.authService.GenerateWSTicket(userID)
	if err != nil {
		handleError(c, "AuthHandler.GetWSTicket", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ticket": ticket})
}

// GetMe возвращает профиль текущего пользователя
func (h *AuthHandler) GetMe(c *gin.Context) {
	userID, _, _ := currentUser(c)

	user, err := h.userService.GetProfile(userID)
	if err != nil {
		handleError(c, "AuthHandler.GetMe", err)
		return
	}

	c.JSON(http.StatusOK, dto.NewUserResponse(user))
}

// UpdateMe обновляет профиль текущего пользователя
func (h *AuthHandler) UpdateMe(c *gin.Context) {
	userID, _, _ := currentUser(c)

	var req dto.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data: " + err.Error()})
		return
	}

	user, err := h.userService.UpdateProfile(userID, service.ProfileUpdate{
		FullName:       req.FullName,
		Email:          req.Email,
		ProfilePicture: req.ProfilePicture,
		Details:        req.Details,
	})
	if err != nil {
		handleError(c, "AuthHandler.UpdateMe", err)
		return
	}

	c.JSON(http.StatusOK, dto.NewUserResponse(user))
}
