package entity

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Константы статусов теста
const (
	TestStatusActive   = "active"
	TestStatusArchived = "archived"
	TestStatusDraft    = "draft"
)

// IsValidTestStatus проверяет, что статус входит в допустимый набор
func IsValidTestStatus(status string) bool {
	switch status {
	case TestStatusActive, TestStatusArchived, TestStatusDraft:
		return true
	}
	return false
}

// Test представляет тест, опубликованный сотрудником
type Test struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Name            string     `gorm:"size:200;not null" json:"name"`
	Company         string     `gorm:"size:200;not null;default:'';index" json:"company"`
	ScheduledDate   *time.Time `gorm:"type:date" json:"scheduled_date,omitempty"`
	DurationMinutes int        `gorm:"not null" json:"duration_minutes"`
	Description     string     `gorm:"not null;default:''" json:"description"`
	Status          string     `gorm:"size:20;not null;default:'active';index" json:"status"`
	CreatedBy       uint       `gorm:"not null" json:"created_by"`
	QuestionCount   int        `gorm:"not null;default:0" json:"question_count"`
	Questions       []Question `gorm:"foreignKey:TestID" json:"questions,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// TableName определяет имя таблицы для GORM
func (Test) TableName() string {
	return "tests"
}

// IsActive проверяет, открыт ли тест для прохождения
func (t *Test) IsActive() bool {
	return t.Status == TestStatusActive
}

// Duration возвращает длительность теста
func (t *Test) Duration() time.Duration {
	return time.Duration(t.DurationMinutes) * time.Minute
}

// Validate проверяет метаданные и вопросы теста.
// Позиции вопросов переписываются по порядку следования.
func (t *Test) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return errors.New("test name is required")
	}
	if t.DurationMinutes <= 0 {
		return fmt.Errorf("duration must be positive, got %d", t.DurationMinutes)
	}
	if t.Status != "" && !IsValidTestStatus(t.Status) {
		return fmt.Errorf("unknown test status %q", t.Status)
	}
	if len(t.Questions) == 0 {
		return errors.New("test must contain at least one question")
	}
	for i := range t.Questions {
		q := &t.Questions[i]
		q.Normalize()
		q.Position = i
		if err := q.Validate(); err != nil {
			return fmt.Errorf("question %d: %w", i+1, err)
		}
	}
	t.QuestionCount = len(t.Questions)
	return nil
}
