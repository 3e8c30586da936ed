package repository

import (
	"time"

	"github.com/yourusername/placement-api/internal/domain/entity"
)

// ResultFilters определяет фильтры для выборки результатов
type ResultFilters struct {
	UserID   uint
	TestID   uint
	Username string
	Company  string
	Verdict  string // passed, failed
	DateFrom *time.Time
	DateTo   *time.Time
}

// ResultAggregate сводные показатели по набору результатов
type ResultAggregate struct {
	Total        int64
	Passed       int64
	Participants int64
	AverageScore float64
	// Buckets распределение баллов по ScoreBucketFloors
	Buckets [5]int64
}

// ScoreBucketFloors нижние границы корзин распределения баллов:
// <50, 50-59, 60-74, 75-89, 90-100. Граница 60 совпадает с проходным баллом.
var ScoreBucketFloors = [5]int{0, 50, 60, 75, 90}

// ResultRepository определяет методы для работы с результатами.
// Результаты неизменяемы: методов обновления нет.
type ResultRepository interface {
	// Create сохраняет результат. Повторный результат по (user, test) дает ErrConflict.
	Create(result *entity.Result) error
	GetByID(id uint) (*entity.Result, error)
	Exists(userID, testID uint) (bool, error)
	GetUserResults(userID uint, limit, offset int) ([]entity.Result, int64, error)
	GetByUsername(username string) ([]entity.Result, error)
	ListWithFilters(filters ResultFilters, limit, offset int) ([]entity.Result, int64, error)
	// ListAll возвращает все результаты по фильтрам без пагинации (для экспорта)
	ListAll(filters ResultFilters) ([]entity.Result, error)
	GetByTest(testID uint) ([]entity.Result, error)
	Aggregate(filters ResultFilters) (*ResultAggregate, error)
}
