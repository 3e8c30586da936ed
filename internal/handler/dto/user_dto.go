package dto

import (
	"time"

	"github.com/yourusername/placement-api/internal/domain/entity"
)

// RegisterRequest тело запроса регистрации
type RegisterRequest struct {
	Username   string             `json:"username" binding:"required,min=3,max=50"`
	Email      string             `json:"email" binding:"omitempty,email,max=254"`
	Password   string             `json:"password" binding:"required,min=6,max=72"`
	FullName   string             `json:"full_name" binding:"omitempty,max=150"`
	Role       string             `json:"role" binding:"omitempty,oneof=student staff"`
	InviteCode string             `json:"invite_code" binding:"omitempty,max=100"`
	Details    entity.UserDetails `json:"details"`
}

// LoginRequest тело запроса входа
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// UpdateProfileRequest частичное обновление профиля
type UpdateProfileRequest struct {
	FullName       *string             `json:"full_name" binding:"omitempty,max=150"`
	Email          *string             `json:"email" binding:"omitempty,email,max=254"`
	ProfilePicture *string             `json:"profile_picture" binding:"omitempty,url,max=500"`
	Details        *entity.UserDetails `json:"details"`
}

// UserResponse профиль пользователя без пароля
type UserResponse struct {
	ID             uint               `json:"id"`
	Username       string             `json:"username"`
	Email          string             `json:"email"`
	Role           string             `json:"role"`
	FullName       string             `json:"full_name"`
	ProfilePicture string             `json:"profile_picture,omitempty"`
	Details        entity.UserDetails `json:"details"`
	CreatedAt      time.Time          `json:"created_at"`
}

// AuthResponse ответ на успешный вход или регистрацию
type AuthResponse struct {
	User        *UserResponse `json:"user"`
	AccessToken string        `json:"access_token"`
	TokenType   string        `json:"token_type"`
	ExpiresIn   int64         `json:"expires_in"`
}

// NewUserResponse создает DTO пользователя
func NewUserResponse(user *entity.User) *UserResponse {
	return &UserResponse{
		ID:             user.ID,
		Username:       user.Username,
		Email:          user.Email,
		Role:           user.Role,
		FullName:       user.FullName,
		ProfilePicture: user.ProfilePicture,
		Details:        user.GetDetails(),
		CreatedAt:      user.CreatedAt,
	}
}

// NewAuthResponse создает DTO ответа авторизации
func NewAuthResponse(user *entity.User, accessToken string, expiresIn int64) *AuthResponse {
	return &AuthResponse{
		User:        NewUserResponse(user),
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   expiresIn,
	}
}
