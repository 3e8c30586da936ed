package repository

import (
	"github.com/yourusername/placement-api/internal/domain/entity"
)

// TestFilters определяет фильтры для поиска тестов
type TestFilters struct {
	Status    string // active, archived, draft
	Company   string // Точное совпадение компании
	Search    string // Поиск по названию/описанию
	CreatedBy uint   // 0 - любой автор
}

// TestRepository определяет методы для работы с тестами и их вопросами
type TestRepository interface {
	// Create сохраняет тест вместе с вопросами в одной транзакции
	Create(test *entity.Test) error
	// GetWithQuestions возвращает тест с вопросами, упорядоченными по position
	GetWithQuestions(id uint) (*entity.Test, error)
	ListWithFilters(filters TestFilters, limit, offset int) ([]entity.Test, int64, error)
	// GetAvailableForStudent возвращает активные тесты, по которым у студента нет результата
	GetAvailableForStudent(userID uint) ([]entity.Test, error)
	// Update обновляет метаданные теста и полностью заменяет его вопросы
	Update(test *entity.Test) error
	UpdateStatus(testID uint, status string) error
	Delete(id uint) error
	// CountByStatus возвращает количество тестов по каждому статусу
	CountByStatus() (map[string]int64, error)
	// HasResults проверяет, сдавал ли тест хотя бы один студент
	HasResults(testID uint) (bool, error)
}
