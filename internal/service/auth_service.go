package service

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/yourusername/placement-api/internal/domain/entity"
	"github.com/yourusername/placement-api/internal/domain/repository"
	apperrors "github.com/yourusername/placement-api/internal/pkg/errors"
	"github.com/yourusername/placement-api/pkg/auth"
)

// AuthService предоставляет методы для регистрации, входа и выдачи токенов
type AuthService struct {
	userRepo        repository.UserRepository
	jwtService      *auth.JWTService
	staffInviteCode string
}

// RegisterInput содержит данные для регистрации.
// Формат полей проверяется тегами binding в dto.RegisterRequest.
type RegisterInput struct {
	Username   string
	Email      string
	Password   string
	FullName   string
	Role       string // student (по умолчанию) или staff
	InviteCode string
	Details    entity.UserDetails
}

// AuthResult пользователь и выданный ему токен доступа
type AuthResult struct {
	User        *entity.User
	AccessToken string
	ExpiresIn   int64 // секунды
}

// NewAuthService создает новый сервис аутентификации и возвращает ошибку при проблемах
func NewAuthService(userRepo repository.UserRepository, jwtService *auth.JWTService, staffInviteCode string) (*AuthService, error) {
	if userRepo == nil {
		return nil, fmt.Errorf("UserRepository is required for AuthService")
	}
	if jwtService == nil {
		return nil, fmt.Errorf("JWTService is required for AuthService")
	}
	return &AuthService{
		userRepo:        userRepo,
		jwtService:      jwtService,
		staffInviteCode: strings.TrimSpace(staffInviteCode),
	}, nil
}

// Register создает пользователя и сразу выдает ему токен доступа.
// Регистрация сотрудника требует код приглашения, если он задан в конфигурации.
func (s *AuthService) Register(input RegisterInput) (*AuthResult, error) {
	username := strings.TrimSpace(input.Username)
	if username == "" || input.Password == "" {
		return nil, fmt.Errorf("%w: username and password are required", apperrors.ErrValidation)
	}

	role := strings.TrimSpace(input.Role)
	switch role {
	case "":
		role = entity.RoleStudent
	case entity.RoleStudent:
	case entity.RoleStaff:
		if s.staffInviteCode != "" && strings.TrimSpace(input.InviteCode) != s.staffInviteCode {
			log.Printf("[AuthService] Отклонена регистрация сотрудника %s: неверный код приглашения", username)
			return nil, fmt.Errorf("%w: invalid staff invite code", apperrors.ErrForbidden)
		}
	default:
		return nil, fmt.Errorf("%w: unknown role %q", apperrors.ErrValidation, role)
	}

	existing, err := s.userRepo.GetByUsername(username)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		log.Printf("[AuthService] Ошибка проверки username=%s: %v", username, err)
		return nil, fmt.Errorf("failed to check username: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: username already taken", apperrors.ErrConflict)
	}

	user := &entity.User{
		Username: username,
		Email:    strings.TrimSpace(input.Email),
		Password: input.Password,
		Role:     role,
		FullName: strings.TrimSpace(input.FullName),
	}
	if err := user.SetDetails(input.Details); err != nil {
		return nil, fmt.Errorf("%w: invalid details", apperrors.ErrValidation)
	}

	if err := s.userRepo.Create(user); err != nil {
		log.Printf("[AuthService] Ошибка создания пользователя %s: %v", username, err)
		return nil, err
	}
	log.Printf("[AuthService] Зарегистрирован пользователь ID=%d username=%s role=%s", user.ID, user.Username, user.Role)

	return s.issue(user)
}

// Login проверяет логин и пароль и выдает токен доступа
func (s *AuthService) Login(username, password string) (*AuthResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, fmt.Errorf("%w: username and password are required", apperrors.ErrValidation)
	}

	user, err := s.userRepo.GetByUsername(username)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("%w: invalid credentials", apperrors.ErrUnauthorized)
		}
		log.Printf("[AuthService] Ошибка поиска пользователя %s: %v", username, err)
		return nil, err
	}
	if !user.CheckPassword(password) {
		log.Printf("[AuthService] Неверный пароль для пользователя %s", username)
		return nil, fmt.Errorf("%w: invalid credentials", apperrors.ErrUnauthorized)
	}

	return s.issue(user)
}

// GenerateWSTicket выдает короткоживущий тикет для подключения к WebSocket
func (s *AuthService) GenerateWSTicket(userID uint) (string, error) {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return "", err
	}
	return s.jwtService.GenerateWSTicket(user.ID, user.Username, user.Role)
}

func (s *AuthService) issue(user *entity.User) (*AuthResult, error) {
	token, err := s.jwtService.GenerateToken(user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	return &AuthResult{
		User:        user,
		AccessToken: token,
		ExpiresIn:   int64(s.jwtService.Expiration().Seconds()),
	}, nil
}
