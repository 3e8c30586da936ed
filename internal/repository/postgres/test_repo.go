package postgres

import (
	"gorm.io/gorm"

	"github.com/yourusername/placement-api/internal/domain/entity"
	"github.com/yourusername/placement-api/internal/domain/repository"
	apperrors "github.com/yourusername/placement-api/internal/pkg/errors"
)

// TestRepo реализует repository.TestRepository
type TestRepo struct {
	db *gorm.DB
}

// NewTestRepo создает новый репозиторий тестов
func NewTestRepo(db *gorm.DB) *TestRepo {
	return &TestRepo{db: db}
}

// Create создает тест вместе с вопросами
func (r *TestRepo) Create(test *entity.Test) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		test.QuestionCount = len(test.Questions)
		// Ассоциации создаются gorm автоматически
		return tx.Create(test).Error
	})
}

// GetWithQuestions возвращает тест вместе с вопросами в порядке position
func (r *TestRepo) GetWithQuestions(id uint) (*entity.Test, error) {
	var test entity.Test
	err := r.db.Preload("Questions", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	}).First(&test, id).Error
	if err != nil {
		return nil, mapError(err, "test")
	}
	return &test, nil
}

// ListWithFilters возвращает список тестов с фильтрами и total count
func (r *TestRepo) ListWithFilters(filters repository.TestFilters, limit, offset int) ([]entity.Test, int64, error) {
	var tests []entity.Test
	var total int64

	query := r.db.Model(&entity.Test{})

	if filters.Status != "" {
		query = query.Where("status = ?", filters.Status)
	}
	if filters.Company != "" {
		query = query.Where("company = ?", filters.Company)
	}
	if filters.Search != "" {
		search := "%" + filters.Search + "%"
		query = query.Where("name ILIKE ? OR description ILIKE ?", search, search)
	}
	if filters.CreatedBy != 0 {
		query = query.Where("created_by = ?", filters.CreatedBy)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Limit(limit).Offset(offset).Order("created_at DESC, id DESC").Find(&tests).Error
	if err != nil {
		return nil, 0, err
	}

	return tests, total, nil
}

// GetAvailableForStudent возвращает активные тесты, которые студент еще не проходил
func (r *TestRepo) GetAvailableForStudent(userID uint) ([]entity.Test, error) {
	var tests []entity.Test
	attempted := r.db.Model(&entity.Result{}).Select("test_id").Where("user_id = ?", userID)
	err := r.db.Where("status = ?", entity.TestStatusActive).
		Where("id NOT IN (?)", attempted).
		Order("scheduled_date ASC NULLS LAST, id DESC").
		Find(&tests).Error
	if err != nil {
		return nil, err
	}
	return tests, nil
}

// Update обновляет метаданные и заменяет вопросы теста
func (r *TestRepo) Update(test *entity.Test) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&entity.Test{}).Where("id = ?", test.ID).Updates(map[string]interface{}{
			"name":             test.Name,
			"company":          test.Company,
			"scheduled_date":   test.ScheduledDate,
			"duration_minutes": test.DurationMinutes,
			"description":      test.Description,
			"status":           test.Status,
			"question_count":   len(test.Questions),
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperrors.ErrNotFound
		}

		if err := tx.Where("test_id = ?", test.ID).Delete(&entity.Question{}).Error; err != nil {
			return err
		}
		for i := range test.Questions {
			test.Questions[i].ID = 0
			test.Questions[i].TestID = test.ID
		}
		if len(test.Questions) > 0 {
			if err := tx.Create(&test.Questions).Error; err != nil {
				return err
			}
		}
		test.QuestionCount = len(test.Questions)
		return nil
	})
}

// UpdateStatus обновляет статус теста
func (r *TestRepo) UpdateStatus(testID uint, status string) error {
	res := r.db.Model(&entity.Test{}).Where("id = ?", testID).Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// Delete удаляет тест. Вопросы удаляются каскадно, результаты сохраняются.
func (r *TestRepo) Delete(id uint) error {
	res := r.db.Delete(&entity.Test{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// CountByStatus возвращает количество тестов по статусам
func (r *TestRepo) CountByStatus() (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	err := r.db.Model(&entity.Test{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// HasResults проверяет наличие результатов по тесту
func (r *TestRepo) HasResults(testID uint) (bool, error) {
	var count int64
	err := r.db.Model(&entity.Result{}).Where("test_id = ?", testID).Limit(1).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
