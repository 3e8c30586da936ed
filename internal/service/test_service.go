package service

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/yourusername/placement-api/internal/domain/entity"
	"github.com/yourusername/placement-api/internal/domain/repository"
	apperrors "github.com/yourusername/placement-api/internal/pkg/errors"
)

const (
	catalogVersionKey   = "tests:catalog:version"
	availableKeyPattern = "tests:available:%d:v%d"
	maxTestNameLength   = 200

	// EventCatalogUpdated рассылается всем клиентам при изменении каталога тестов
	EventCatalogUpdated = "catalog:updated"
)

// CatalogBroadcaster рассылает событие всем подключенным клиентам
type CatalogBroadcaster interface {
	BroadcastEvent(eventType string, data interface{}) error
}

// CatalogUpdate данные события catalog:updated
type CatalogUpdate struct {
	TestID  uint   `json:"test_id"`
	Status  string `json:"status,omitempty"`
	Version int64  `json:"version"`
}

// TestService управляет тестами: создание и редактирование сотрудниками, выдача студентам
type TestService struct {
	testRepo     repository.TestRepository
	cacheRepo    repository.CacheRepository
	availableTTL time.Duration
	broadcaster  CatalogBroadcaster
}

// NewTestService создает новый сервис тестов
func NewTestService(testRepo repository.TestRepository, cacheRepo repository.CacheRepository, availableTTL time.Duration) *TestService {
	if availableTTL <= 0 {
		availableTTL = 5 * time.Minute
	}
	return &TestService{
		testRepo:     testRepo,
		cacheRepo:    cacheRepo,
		availableTTL: availableTTL,
	}
}

// SetBroadcaster подключает рассылку событий об изменении каталога
func (s *TestService) SetBroadcaster(b CatalogBroadcaster) {
	s.broadcaster = b
}

// normalizePagination приводит page/pageSize к допустимым значениям и возвращает offset
func normalizePagination(page, pageSize int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	} else if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize, (page - 1) * pageSize
}

// CreateTest сохраняет новый тест вместе с вопросами
func (s *TestService) CreateTest(staffID uint, test *entity.Test) (*entity.Test, error) {
	test.ID = 0
	test.CreatedBy = staffID
	test.Name = strings.TrimSpace(test.Name)
	test.Company = strings.TrimSpace(test.Company)
	if test.Status == "" {
		test.Status = entity.TestStatusActive
	}
	if err := validateTest(test); err != nil {
		return nil, err
	}

	if err := s.testRepo.Create(test); err != nil {
		log.Printf("[TestService] Ошибка создания теста %q: %v", test.Name, err)
		return nil, fmt.Errorf("failed to create test: %w", err)
	}
	log.Printf("[TestService] Сотрудник ID=%d создал тест ID=%d (%d вопросов, статус %s)",
		staffID, test.ID, test.QuestionCount, test.Status)

	s.bumpCatalog(test.ID, test.Status)
	return test, nil
}

// GetTest возвращает тест с вопросами и ключами (для сотрудников)
func (s *TestService) GetTest(testID uint) (*entity.Test, error) {
	return s.testRepo.GetWithQuestions(testID)
}

// ListTests возвращает тесты с фильтрами и пагинацией
func (s *TestService) ListTests(page, pageSize int, filters repository.TestFilters) ([]entity.Test, int64, error) {
	if filters.Status != "" && !entity.IsValidTestStatus(filters.Status) {
		return nil, 0, fmt.Errorf("%w: unknown status %q", apperrors.ErrValidation, filters.Status)
	}
	_, limit, offset := normalizePagination(page, pageSize)
	return s.testRepo.ListWithFilters(filters, limit, offset)
}

// UpdateTest обновляет метаданные теста и полностью заменяет его вопросы.
// После первой сдачи вопросы менять нельзя: статистика по вопросам
// считается по сохраненным листам ответов. Для новой версии теста есть DuplicateTest.
func (s *TestService) UpdateTest(testID uint, update *entity.Test) (*entity.Test, error) {
	existing, err := s.testRepo.GetWithQuestions(testID)
	if err != nil {
		return nil, err
	}
	for i := range update.Questions {
		update.Questions[i].Normalize()
	}
	if !sameQuestions(existing.Questions, update.Questions) {
		attempted, err := s.testRepo.HasResults(testID)
		if err != nil {
			return nil, fmt.Errorf("failed to check test results: %w", err)
		}
		if attempted {
			return nil, fmt.Errorf("%w: questions of test %d cannot change after it has been attempted, duplicate it instead", apperrors.ErrConflict, testID)
		}
	}

	existing.Name = strings.TrimSpace(update.Name)
	existing.Company = strings.TrimSpace(update.Company)
	existing.ScheduledDate = update.ScheduledDate
	existing.DurationMinutes = update.DurationMinutes
	existing.Description = update.Description
	if update.Status != "" {
		existing.Status = update.Status
	}
	existing.Questions = update.Questions
	for i := range existing.Questions {
		existing.Questions[i].ID = 0
		existing.Questions[i].TestID = existing.ID
	}

	if err := validateTest(existing); err != nil {
		return nil, err
	}
	if err := s.testRepo.Update(existing); err != nil {
		log.Printf("[TestService] Ошибка обновления теста ID=%d: %v", testID, err)
		return nil, fmt.Errorf("failed to update test: %w", err)
	}
	log.Printf("[TestService] Тест ID=%d обновлен (%d вопросов)", testID, existing.QuestionCount)

	s.bumpCatalog(existing.ID, existing.Status)
	return existing, nil
}

// UpdateStatus меняет статус теста (active/archived/draft)
func (s *TestService) UpdateStatus(testID uint, status string) error {
	if !entity.IsValidTestStatus(status) {
		return fmt.Errorf("%w: unknown status %q", apperrors.ErrValidation, status)
	}
	if err := s.testRepo.UpdateStatus(testID, status); err != nil {
		return err
	}
	log.Printf("[TestService] Статус теста ID=%d изменен на %s", testID, status)
	s.bumpCatalog(testID, status)
	return nil
}

// DuplicateTest создает копию теста со статусом draft и копиями всех вопросов
func (s *TestService) DuplicateTest(testID, staffID uint) (*entity.Test, error) {
	original, err := s.testRepo.GetWithQuestions(testID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("original test %d not found: %w", testID, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load original test: %w", err)
	}
	if len(original.Questions) == 0 {
		return nil, fmt.Errorf("%w: cannot duplicate a test without questions", apperrors.ErrValidation)
	}

	copied := &entity.Test{
		Name:            duplicateName(original.Name, maxTestNameLength),
		Company:         original.Company,
		ScheduledDate:   original.ScheduledDate,
		DurationMinutes: original.DurationMinutes,
		Description:     original.Description,
		Status:          entity.TestStatusDraft,
		CreatedBy:       staffID,
		Questions:       make([]entity.Question, 0, len(original.Questions)),
	}
	for _, q := range original.Questions {
		copied.Questions = append(copied.Questions, entity.Question{
			Type:          q.Type,
			Text:          q.Text,
			Options:       append(entity.StringArray(nil), q.Options...),
			CorrectOption: q.CorrectOption,
		})
	}
	if err := validateTest(copied); err != nil {
		return nil, err
	}

	if err := s.testRepo.Create(copied); err != nil {
		log.Printf("[TestService] Ошибка сохранения копии теста ID=%d: %v", testID, err)
		return nil, fmt.Errorf("failed to save duplicate: %w", err)
	}
	log.Printf("[TestService] Тест ID=%d скопирован в ID=%d", testID, copied.ID)
	return copied, nil
}

// DeleteTest удаляет тест с вопросами. Результаты сохраняются.
func (s *TestService) DeleteTest(testID uint) error {
	if err := s.testRepo.Delete(testID); err != nil {
		return err
	}
	log.Printf("[TestService] Тест ID=%d удален", testID)
	s.bumpCatalog(testID, "")
	return nil
}

// GetAvailableTests возвращает активные тесты, которые студент еще не проходил.
// Список кешируется в Redis на студента; ключ включает версию каталога.
func (s *TestService) GetAvailableTests(userID uint) ([]entity.Test, error) {
	key := fmt.Sprintf(availableKeyPattern, userID, s.catalogVersion())

	var cached []entity.Test
	if s.cacheRepo != nil {
		err := s.cacheRepo.GetJSON(key, &cached)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, apperrors.ErrNotFound) {
			log.Printf("[TestService] Ошибка чтения кеша доступных тестов %s: %v", key, err)
		}
	}

	tests, err := s.testRepo.GetAvailableForStudent(userID)
	if err != nil {
		return nil, err
	}
	if tests == nil {
		tests = []entity.Test{}
	}

	if s.cacheRepo != nil {
		if err := s.cacheRepo.SetJSON(key, tests, s.availableTTL); err != nil {
			log.Printf("[TestService] Не удалось закешировать доступные тесты %s: %v", key, err)
		}
	}
	return tests, nil
}

// InvalidateAvailable сбрасывает кеш доступных тестов студента
func (s *TestService) InvalidateAvailable(userID uint) {
	if s.cacheRepo == nil {
		return
	}
	key := fmt.Sprintf(availableKeyPattern, userID, s.catalogVersion())
	if err := s.cacheRepo.Delete(key); err != nil {
		log.Printf("[TestService] Не удалось сбросить кеш %s: %v", key, err)
	}
}

// GetTestForStudent возвращает активный тест с вопросами.
// Ключи ответов не сериализуются в JSON сущности вопроса.
func (s *TestService) GetTestForStudent(testID uint) (*entity.Test, error) {
	test, err := s.testRepo.GetWithQuestions(testID)
	if err != nil {
		return nil, err
	}
	if !test.IsActive() {
		return nil, fmt.Errorf("%w: test %d is not active", apperrors.ErrNotFound, testID)
	}
	return test, nil
}

// GetTestForSession возвращает полностью загруженный активный тест для новой сессии
func (s *TestService) GetTestForSession(testID uint) (*entity.Test, error) {
	test, err := s.testRepo.GetWithQuestions(testID)
	if err != nil {
		return nil, err
	}
	if !test.IsActive() {
		return nil, fmt.Errorf("%w: test %d is not open for attempts", apperrors.ErrForbidden, testID)
	}
	return test, nil
}

func (s *TestService) catalogVersion() int64 {
	if s.cacheRepo == nil {
		return 0
	}
	raw, err := s.cacheRepo.Get(catalogVersionKey)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			log.Printf("[TestService] Ошибка чтения версии каталога: %v", err)
		}
		return 0
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// bumpCatalog делает недействительными все закешированные списки доступных тестов
// и сообщает клиентам об изменении каталога
func (s *TestService) bumpCatalog(testID uint, status string) {
	var version int64
	if s.cacheRepo != nil {
		v, err := s.cacheRepo.Increment(catalogVersionKey)
		if err != nil {
			log.Printf("[TestService] Не удалось увеличить версию каталога: %v", err)
		}
		version = v
	}

	if s.broadcaster == nil {
		return
	}
	update := CatalogUpdate{TestID: testID, Status: status, Version: version}
	if err := s.broadcaster.BroadcastEvent(EventCatalogUpdated, update); err != nil {
		log.Printf("[TestService] Не удалось разослать %s для теста ID=%d: %v", EventCatalogUpdated, testID, err)
	}
}

// sameQuestions сравнивает содержимое вопросов по позициям
func sameQuestions(a, b []entity.Question) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Type != b[i].Type || a[i].Text != b[i].Text || a[i].CorrectOption != b[i].CorrectOption {
			return false
		}
		if len(a[i].Options) != len(b[i].Options) {
			return false
		}
		for j := range a[i].Options {
			if a[i].Options[j] != b[i].Options[j] {
				return false
			}
		}
	}
	return true
}

func validateTest(test *entity.Test) error {
	if len([]rune(test.Name)) > maxTestNameLength {
		return fmt.Errorf("%w: test name is too long", apperrors.ErrValidation)
	}
	if err := test.Validate(); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}
	return nil
}

// duplicateName создает название копии с ограничением длины.
// Существующий суффикс "(Copy)" заменяется, а не накапливается.
func duplicateName(original string, maxLen int) string {
	const suffix = " (Copy)"

	if idx := strings.LastIndex(original, " (Copy"); idx > 0 {
		original = original[:idx]
	}

	name := original + suffix
	runes := []rune(name)
	if len(runes) <= maxLen {
		return name
	}

	maxOriginal := maxLen - len([]rune(suffix))
	if maxOriginal <= 0 {
		return string(runes[:maxLen])
	}
	originalRunes := []rune(original)
	if len(originalRunes) > maxOriginal {
		originalRunes = originalRunes[:maxOriginal]
	}
	return string(originalRunes) + suffix
}
