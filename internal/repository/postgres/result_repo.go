package postgres

import (
	"log"

	"gorm.io/gorm"

	"github.com/yourusername/placement-api/internal/domain/entity"
	"github.com/yourusername/placement-api/internal/domain/repository"
)

// ResultRepo реализует repository.ResultRepository
type ResultRepo struct {
	db *gorm.DB
}

// NewResultRepo создает новый репозиторий результатов
func NewResultRepo(db *gorm.DB) *ResultRepo {
	return &ResultRepo{db: db}
}

// Create сохраняет результат. Уникальный индекс idx_user_test гарантирует одну попытку.
func (r *ResultRepo) Create(result *entity.Result) error {
	if err := r.db.Create(result).Error; err != nil {
		if isUniqueViolation(err) {
			log.Printf("[ResultRepo] Повторный результат: user=%d test=%d", result.UserID, result.TestID)
		}
		return mapError(err, "result for this test")
	}
	return nil
}

// GetByID возвращает результат по ID
func (r *ResultRepo) GetByID(id uint) (*entity.Result, error) {
	var result entity.Result
	if err := r.db.First(&result, id).Error; err != nil {
		return nil, mapError(err, "result")
	}
	return &result, nil
}

// Exists проверяет, есть ли у пользователя результат по тесту
func (r *ResultRepo) Exists(userID, testID uint) (bool, error) {
	var count int64
	err := r.db.Model(&entity.Result{}).
		Where("user_id = ? AND test_id = ?", userID, testID).
		Count(&count).Error
	return count > 0, err
}

// GetUserResults возвращает результаты пользователя, новые первыми
func (r *ResultRepo) GetUserResults(userID uint, limit, offset int) ([]entity.Result, int64, error) {
	var results []entity.Result
	var total int64

	query := r.db.Model(&entity.Result{}).Where("user_id = ?", userID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := query.Order("submitted_at DESC, id DESC").Limit(limit).Offset(offset).Find(&results).Error
	if err != nil {
		return nil, 0, err
	}
	return results, total, nil
}

// GetByUsername возвращает все результаты по имени пользователя
func (r *ResultRepo) GetByUsername(username string) ([]entity.Result, error) {
	var results []entity.Result
	err := r.db.Where("username = ?", username).Order("submitted_at DESC, id DESC").Find(&results).Error
	return results, err
}

func applyResultFilters(query *gorm.DB, filters repository.ResultFilters) *gorm.DB {
	if filters.UserID != 0 {
		query = query.Where("user_id = ?", filters.UserID)
	}
	if filters.TestID != 0 {
		query = query.Where("test_id = ?", filters.TestID)
	}
	if filters.Username != "" {
		query = query.Where("username ILIKE ?", "%"+filters.Username+"%")
	}
	if filters.Company != "" {
		query = query.Where("company = ?", filters.Company)
	}
	if filters.Verdict != "" {
		query = query.Where("verdict = ?", filters.Verdict)
	}
	if filters.DateFrom != nil {
		query = query.Where("submitted_at >= ?", *filters.DateFrom)
	}
	if filters.DateTo != nil {
		query = query.Where("submitted_at <= ?", *filters.DateTo)
	}
	return query
}

// ListWithFilters возвращает результаты с фильтрами, пагинацией и total count
func (r *ResultRepo) ListWithFilters(filters repository.ResultFilters, limit, offset int) ([]entity.Result, int64, error) {
	var results []entity.Result
	var total int64

	query := applyResultFilters(r.db.Model(&entity.Result{}), filters)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := query.Order("submitted_at DESC, id DESC").Limit(limit).Offset(offset).Find(&results).Error
	if err != nil {
		return nil, 0, err
	}
	return results, total, nil
}

// ListAll возвращает все результаты по фильтрам без пагинации
func (r *ResultRepo) ListAll(filters repository.ResultFilters) ([]entity.Result, error) {
	var results []entity.Result
	err := applyResultFilters(r.db.Model(&entity.Result{}), filters).
		Order("submitted_at DESC, id DESC").
		Find(&results).Error
	return results, err
}

// GetByTest возвращает все результаты теста, отсортированные по баллу
func (r *ResultRepo) GetByTest(testID uint) ([]entity.Result, error) {
	var results []entity.Result
	err := r.db.Where("test_id = ?", testID).Order("score DESC, submitted_at ASC").Find(&results).Error
	return results, err
}

// Aggregate считает сводку одним запросом
func (r *ResultRepo) Aggregate(filters repository.ResultFilters) (*repository.ResultAggregate, error) {
	var row struct {
		Total        int64
		Passed       int64
		Participants int64
		AverageScore float64
		B0           int64
		B1           int64
		B2           int64
		B3           int64
		B4           int64
	}

	floors := repository.ScoreBucketFloors
	err := applyResultFilters(r.db.Model(&entity.Result{}), filters).
		Select(`COUNT(*) AS total,
			COUNT(*) FILTER (WHERE verdict = ?) AS passed,
			COUNT(DISTINCT user_id) AS participants,
			COALESCE(AVG(score), 0) AS average_score,
			COUNT(*) FILTER (WHERE score < ?) AS b0,
			COUNT(*) FILTER (WHERE score >= ? AND score < ?) AS b1,
			COUNT(*) FILTER (WHERE score >= ? AND score < ?) AS b2,
			COUNT(*) FILTER (WHERE score >= ? AND score < ?) AS b3,
			COUNT(*) FILTER (WHERE score >= ?) AS b4`,
			entity.VerdictPassed,
			floors[1],
			floors[1], floors[2],
			floors[2], floors[3],
			floors[3], floors[4],
			floors[4]).
		Scan(&row).Error
	if err != nil {
		return nil, err
	}

	return &repository.ResultAggregate{
		Total:        row.Total,
		Passed:       row.Passed,
		Participants: row.Participants,
		AverageScore: row.AverageScore,
		Buckets:      [5]int64{row.B0, row.B1, row.B2, row.B3, row.B4},
	}, nil
}
