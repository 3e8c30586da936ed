package service

import (
	"fmt"
	"log"
	"strings"

	"github.com/yourusername/placement-api/internal/domain/entity"
	"github.com/yourusername/placement-api/internal/domain/repository"
	apperrors "github.com/yourusername/placement-api/internal/pkg/errors"
)

// UserService предоставляет методы для работы с профилем пользователя
type UserService struct {
	userRepo repository.UserRepository
}

// ProfileUpdate частичное обновление профиля. nil-поля не меняются.
// Формат полей проверяется тегами binding в dto.UpdateProfileRequest.
type ProfileUpdate struct {
	FullName       *string
	Email          *string
	ProfilePicture *string
	Details        *entity.UserDetails
}

// NewUserService создает новый сервис пользователей
func NewUserService(userRepo repository.UserRepository) *UserService {
	return &UserService{
		userRepo: userRepo,
	}
}

// GetProfile возвращает профиль пользователя
func (s *UserService) GetProfile(userID uint) (*entity.User, error) {
	return s.userRepo.GetByID(userID)
}

// UpdateProfile обновляет имя, email, аватар и сведения о студенте
func (s *UserService) UpdateProfile(userID uint, update ProfileUpdate) (*entity.User, error) {
	updates := make(map[string]interface{})

	if update.FullName != nil {
		updates["full_name"] = strings.TrimSpace(*update.FullName)
	}
	if update.Email != nil {
		updates["email"] = strings.TrimSpace(*update.Email)
	}
	if update.ProfilePicture != nil {
		updates["profile_picture"] = strings.TrimSpace(*update.ProfilePicture)
	}
	if update.Details != nil {
		var holder entity.User
		if err := holder.SetDetails(*update.Details); err != nil {
			return nil, fmt.Errorf("%w: invalid details", apperrors.ErrValidation)
		}
		updates["details"] = holder.Details
	}

	if len(updates) == 0 {
		return s.userRepo.GetByID(userID)
	}

	if err := s.userRepo.UpdateProfile(userID, updates); err != nil {
		log.Printf("[UserService] Ошибка обновления профиля пользователя ID=%d: %v", userID, err)
		return nil, err
	}
	return s.userRepo.GetByID(userID)
}
