package entity

import (
	"encoding/json"
	"log"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Роли пользователей
const (
	RoleStudent = "student"
	RoleStaff   = "staff"
)

// UserDetails дополнительные сведения о студенте, хранятся в JSONB
type UserDetails struct {
	Department  string `json:"department,omitempty"`
	Year        string `json:"year,omitempty"`
	Batch       string `json:"batch,omitempty"`
	DateOfBirth string `json:"date_of_birth,omitempty"`
}

// User представляет пользователя в системе
type User struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	Username       string         `gorm:"size:50;not null;uniqueIndex" json:"username"`
	Email          string         `gorm:"size:100;not null;default:''" json:"email"`
	Password       string         `gorm:"size:100;not null" json:"-"`
	Role           string         `gorm:"size:20;not null;default:'student'" json:"role"`
	FullName       string         `gorm:"size:150;not null;default:''" json:"full_name"`
	ProfilePicture string         `gorm:"size:255;not null;default:''" json:"profile_picture"`
	Details        datatypes.JSON `gorm:"type:jsonb;not null" json:"details"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// TableName определяет имя таблицы для GORM
func (User) TableName() string {
	return "users"
}

// IsStaff возвращает true для сотрудников
func (u *User) IsStaff() bool {
	return u.Role == RoleStaff
}

// DisplayName возвращает полное имя или логин
func (u *User) DisplayName() string {
	if name := strings.TrimSpace(u.FullName); name != "" {
		return name
	}
	return u.Username
}

// GetDetails разбирает Details. Пустое или битое значение дает нулевую структуру.
func (u *User) GetDetails() UserDetails {
	var d UserDetails
	if len(u.Details) == 0 {
		return d
	}
	if err := json.Unmarshal(u.Details, &d); err != nil {
		log.Printf("[User] Некорректные details у пользователя ID=%d: %v", u.ID, err)
	}
	return d
}

// SetDetails сериализует сведения в Details
func (u *User) SetDetails(d UserDetails) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return err
	}
	u.Details = datatypes.JSON(raw)
	return nil
}

// BeforeSave хеширует пароль перед сохранением, только если он не является bcrypt-хешем
func (u *User) BeforeSave(tx *gorm.DB) error {
	if len(u.Details) == 0 {
		u.Details = datatypes.JSON("{}")
	}
	if len(u.Password) > 0 && !strings.HasPrefix(u.Password, "$2a$") &&
		!strings.HasPrefix(u.Password, "$2b$") && !strings.HasPrefix(u.Password, "$2y$") {
		hashedPassword, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
		if err != nil {
			log.Printf("[User.BeforeSave] Ошибка при хешировании пароля для username=%s: %v", u.Username, err)
			return err
		}
		u.Password = string(hashedPassword)
	}
	return nil
}

// CheckPassword проверяет, соответствует ли переданный пароль хешу
func (u *User) CheckPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password))
	return err == nil
}
