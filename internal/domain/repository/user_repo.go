package repository

import (
	"github.com/yourusername/placement-api/internal/domain/entity"
)

// UserRepository определяет методы для работы с пользователями
type UserRepository interface {
	Create(user *entity.User) error
	GetByID(id uint) (*entity.User, error)
	GetByUsername(username string) (*entity.User, error)
	Update(user *entity.User) error
	UpdateProfile(userID uint, updates map[string]interface{}) error
	// CountByRole возвращает количество пользователей с указанной ролью
	CountByRole(role string) (int64, error)
}
