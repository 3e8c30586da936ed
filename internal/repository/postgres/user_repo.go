package postgres

import (
	"time"

	"gorm.io/gorm"

	"github.com/yourusername/placement-api/internal/domain/entity"
)

// UserRepo реализует repository.UserRepository
type UserRepo struct {
	db *gorm.DB
}

// NewUserRepo создает новый репозиторий пользователей
func NewUserRepo(db *gorm.DB) *UserRepo {
	return &UserRepo{db: db}
}

// Create создает нового пользователя. Занятый username дает ErrConflict.
func (r *UserRepo) Create(user *entity.User) error {
	return mapError(r.db.Create(user).Error, "username")
}

// GetByID возвращает пользователя по ID
func (r *UserRepo) GetByID(id uint) (*entity.User, error) {
	var user entity.User
	if err := r.db.First(&user, id).Error; err != nil {
		return nil, mapError(err, "user")
	}
	return &user, nil
}

// GetByUsername возвращает пользователя по имени пользователя
func (r *UserRepo) GetByUsername(username string) (*entity.User, error) {
	var user entity.User
	if err := r.db.Where("username = ?", username).First(&user).Error; err != nil {
		return nil, mapError(err, "user")
	}
	return &user, nil
}

// Update обновляет информацию о пользователе
func (r *UserRepo) Update(user *entity.User) error {
	return mapError(r.db.Save(user).Error, "username")
}

// UpdateProfile обновляет только указанные поля профиля, не затрагивая пароль и роль
func (r *UserRepo) UpdateProfile(userID uint, updates map[string]interface{}) error {
	delete(updates, "password")
	delete(updates, "role")
	updates["updated_at"] = time.Now()

	return r.db.Model(&entity.User{}).Where("id = ?", userID).Updates(updates).Error
}

// CountByRole возвращает количество пользователей с указанной ролью
func (r *UserRepo) CountByRole(role string) (int64, error) {
	var count int64
	err := r.db.Model(&entity.User{}).Where("role = ?", role).Count(&count).Error
	return count, err
}
