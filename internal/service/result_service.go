package service

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/yourusername/placement-api/internal/domain/entity"
	"github.com/yourusername/placement-api/internal/domain/repository"
	apperrors "github.com/yourusername/placement-api/internal/pkg/errors"
	"github.com/yourusername/placement-api/internal/service/grading"
)

const notificationTimeout = 30 * time.Second

// bucketLabels подписи корзин repository.ScoreBucketFloors
var bucketLabels = [5]string{"0-49", "50-59", "60-74", "75-89", "90-100"}

// AvailabilityInvalidator сбрасывает кеш доступных тестов студента
type AvailabilityInvalidator interface {
	InvalidateAvailable(userID uint)
}

// ResultService предоставляет методы для сохранения и анализа результатов
type ResultService struct {
	resultRepo   repository.ResultRepository
	testRepo     repository.TestRepository
	userRepo     repository.UserRepository
	availability AvailabilityInvalidator
	notifier     NotificationService

	wg sync.WaitGroup
}

// ScoreBucket одна корзина распределения баллов
type ScoreBucket struct {
	Range   string `json:"range"`
	Count   int64  `json:"count"`
	Passing bool   `json:"passing"` // все баллы корзины проходные
}

// StudentStats сводка по результатам одного студента
type StudentStats struct {
	TotalTests   int64   `json:"total_tests"`
	Passed       int64   `json:"passed"`
	Failed       int64   `json:"failed"`
	AverageScore float64 `json:"average_score"`
	PassRate     float64 `json:"pass_rate"`
}

// DashboardStats сводка для панели сотрудника
type DashboardStats struct {
	TotalTests    int64         `json:"total_tests"`
	ActiveTests   int64         `json:"active_tests"`
	TotalStudents int64         `json:"total_students"`
	Participants  int64         `json:"participants"`
	TotalResults  int64         `json:"total_results"`
	Passed        int64         `json:"passed"`
	Failed        int64         `json:"failed"`
	PassRate      float64       `json:"pass_rate"`
	AverageScore  float64       `json:"average_score"`
	Distribution  []ScoreBucket `json:"distribution"`
}

// QuestionStatistics доля правильных ответов на один вопрос
type QuestionStatistics struct {
	Position      int            `json:"position"`
	Text          string         `json:"text"`
	CorrectOption string         `json:"correct_option"`
	Answered      int            `json:"answered"`
	Correct       int            `json:"correct"`
	CorrectRate   float64        `json:"correct_rate"`
	OptionCounts  map[string]int `json:"option_counts"`
}

// TestStatistics расширенная статистика теста
type TestStatistics struct {
	TestID        uint                 `json:"test_id"`
	TestName      string               `json:"test_name"`
	Company       string               `json:"company"`
	Participants  int                  `json:"participants"`
	Passed        int                  `json:"passed"`
	Failed        int                  `json:"failed"`
	PassRate      float64              `json:"pass_rate"`
	AverageScore  float64              `json:"average_score"`
	HighestScore  int                  `json:"highest_score"`
	LowestScore   int                  `json:"lowest_score"`
	AutoSubmitted int                  `json:"auto_submitted"`
	Distribution  []ScoreBucket        `json:"distribution"`
	Questions     []QuestionStatistics `json:"questions"`
}

// PerformanceReport данные отчета об успеваемости студента
type PerformanceReport struct {
	User        *entity.User
	Results     []entity.Result
	Stats       StudentStats
	GeneratedAt time.Time
}

// NewResultService создает новый сервис результатов
func NewResultService(
	resultRepo repository.ResultRepository,
	testRepo repository.TestRepository,
	userRepo repository.UserRepository,
	availability AvailabilityInvalidator,
	notifier NotificationService,
) *ResultService {
	return &ResultService{
		resultRepo:   resultRepo,
		testRepo:     testRepo,
		userRepo:     userRepo,
		availability: availability,
		notifier:     notifier,
	}
}

// HasResult проверяет, есть ли у студента результат по тесту
func (s *ResultService) HasResult(userID, testID uint) (bool, error) {
	return s.resultRepo.Exists(userID, testID)
}

// PersistResult сохраняет результат отправленной сессии.
// Повторный результат по той же паре (студент, тест) возвращает ErrConflict.
func (s *ResultService) PersistResult(ctx context.Context, result *entity.Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.resultRepo.Create(result); err != nil {
		log.Printf("[ResultService] Ошибка сохранения результата user=%d test=%d: %v", result.UserID, result.TestID, err)
		return err
	}
	log.Printf("[ResultService] Сохранен результат ID=%d user=%d test=%d: %d%% (%s)",
		result.ID, result.UserID, result.TestID, result.Score, result.Verdict)

	if s.availability != nil {
		s.availability.InvalidateAvailable(result.UserID)
	}
	s.notifyAsync(*result)
	return nil
}

// notifyAsync отправляет письмо о результате в фоне. Ошибки только логируются.
func (s *ResultService) notifyAsync(result entity.Result) {
	if s.notifier == nil || s.userRepo == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		user, err := s.userRepo.GetByID(result.UserID)
		if err != nil {
			log.Printf("[ResultService] Не удалось загрузить пользователя ID=%d для уведомления: %v", result.UserID, err)
			return
		}
		if strings.TrimSpace(user.Email) == "" {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), notificationTimeout)
		defer cancel()

		err = s.notifier.SendResultNotification(ctx, user.Email, ResultNotification{
			ResultID:       result.ID,
			StudentName:    user.DisplayName(),
			TestName:       result.TestName,
			Company:        result.Company,
			Score:          result.Score,
			Verdict:        result.Verdict,
			CorrectAnswers: result.CorrectAnswers,
			TotalQuestions: result.TotalQuestions,
			SubmittedAt:    result.SubmittedAt,
		})
		if err != nil {
			log.Printf("[ResultService] Ошибка отправки уведомления о результате ID=%d: %v", result.ID, err)
		}
	}()
}

// WaitNotifications дожидается завершения фоновых отправок
func (s *ResultService) WaitNotifications() {
	s.wg.Wait()
}

// GetUserResults возвращает результаты студента с пагинацией
func (s *ResultService) GetUserResults(userID uint, page, pageSize int) ([]entity.Result, int64, error) {
	_, limit, offset := normalizePagination(page, pageSize)
	return s.resultRepo.GetUserResults(userID, limit, offset)
}

// GetResult возвращает результат владельцу или сотруднику
func (s *ResultService) GetResult(resultID, requesterID uint, isStaff bool) (*entity.Result, error) {
	result, err := s.resultRepo.GetByID(resultID)
	if err != nil {
		return nil, err
	}
	if !isStaff && result.UserID != requesterID {
		return nil, fmt.Errorf("%w: result %d belongs to another user", apperrors.ErrForbidden, resultID)
	}
	return result, nil
}

// GetResultsByUsername возвращает результаты по логину: студенту только свои
func (s *ResultService) GetResultsByUsername(username, requesterUsername string, isStaff bool) ([]entity.Result, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", apperrors.ErrValidation)
	}
	if !isStaff && username != requesterUsername {
		return nil, fmt.Errorf("%w: cannot view results of another user", apperrors.ErrForbidden)
	}
	return s.resultRepo.GetByUsername(username)
}

// ListResults возвращает результаты для сотрудника с фильтрами и пагинацией
func (s *ResultService) ListResults(filters repository.ResultFilters, page, pageSize int) ([]entity.Result, int64, error) {
	if err := validateResultFilters(filters); err != nil {
		return nil, 0, err
	}
	_, limit, offset := normalizePagination(page, pageSize)
	return s.resultRepo.ListWithFilters(filters, limit, offset)
}

// ExportResults возвращает все результаты по фильтрам для выгрузки
func (s *ResultService) ExportResults(filters repository.ResultFilters) ([]entity.Result, error) {
	if err := validateResultFilters(filters); err != nil {
		return nil, err
	}
	return s.resultRepo.ListAll(filters)
}

// GetStudentStats считает сводку по результатам студента
func (s *ResultService) GetStudentStats(userID uint) (*StudentStats, error) {
	agg, err := s.resultRepo.Aggregate(repository.ResultFilters{UserID: userID})
	if err != nil {
		log.Printf("[ResultService] Ошибка агрегации результатов пользователя ID=%d: %v", userID, err)
		return nil, err
	}
	stats := studentStatsFrom(agg)
	return &stats, nil
}

// GetDashboardStats считает сводку для панели сотрудника
func (s *ResultService) GetDashboardStats() (*DashboardStats, error) {
	counts, err := s.testRepo.CountByStatus()
	if err != nil {
		return nil, err
	}
	agg, err := s.resultRepo.Aggregate(repository.ResultFilters{})
	if err != nil {
		return nil, err
	}
	students, err := s.userRepo.CountByRole(entity.RoleStudent)
	if err != nil {
		return nil, err
	}

	stats := &DashboardStats{
		ActiveTests:   counts[entity.TestStatusActive],
		TotalStudents: students,
		Participants:  agg.Participants,
		TotalResults:  agg.Total,
		Passed:        agg.Passed,
		Failed:        agg.Total - agg.Passed,
		PassRate:      percent(agg.Passed, agg.Total),
		AverageScore:  round1(agg.AverageScore),
		Distribution:  bucketsFrom(agg.Buckets),
	}
	for _, n := range counts {
		stats.TotalTests += n
	}
	return stats, nil
}

// GetTestStatistics считает статистику теста и долю правильных ответов по каждому вопросу
func (s *ResultService) GetTestStatistics(testID uint) (*TestStatistics, error) {
	test, err := s.testRepo.GetWithQuestions(testID)
	if err != nil {
		return nil, err
	}
	results, err := s.resultRepo.GetByTest(testID)
	if err != nil {
		return nil, err
	}

	stats := &TestStatistics{
		TestID:       test.ID,
		TestName:     test.Name,
		Company:      test.Company,
		Participants: len(results),
		Questions:    make([]QuestionStatistics, len(test.Questions)),
	}
	for i, q := range test.Questions {
		stats.Questions[i] = QuestionStatistics{
			Position:      i,
			Text:          q.Text,
			CorrectOption: q.CorrectOption,
			OptionCounts:  make(map[string]int, len(q.Options)),
		}
	}

	var buckets [5]int64
	var scoreSum int
	for i, r := range results {
		if r.Passed() {
			stats.Passed++
		}
		if r.AutoSubmitted {
			stats.AutoSubmitted++
		}
		scoreSum += r.Score
		if i == 0 || r.Score > stats.HighestScore {
			stats.HighestScore = r.Score
		}
		if i == 0 || r.Score < stats.LowestScore {
			stats.LowestScore = r.Score
		}
		buckets[bucketIndex(r.Score)]++

		// Вопросы могли измениться после сдачи: учитываются только существующие позиции
		sheet := r.AnswerSheet()
		for idx, letter := range sheet {
			if idx >= len(test.Questions) || letter == "" {
				continue
			}
			qs := &stats.Questions[idx]
			qs.Answered++
			qs.OptionCounts[letter]++
			if grading.DefaultGrader().IsCorrect(test.Questions[idx], letter) {
				qs.Correct++
			}
		}
	}

	stats.Failed = stats.Participants - stats.Passed
	stats.PassRate = percent(int64(stats.Passed), int64(stats.Participants))
	if stats.Participants > 0 {
		stats.AverageScore = round1(float64(scoreSum) / float64(stats.Participants))
	}
	stats.Distribution = bucketsFrom(buckets)
	for i := range stats.Questions {
		stats.Questions[i].CorrectRate = percent(int64(stats.Questions[i].Correct), int64(stats.Participants))
	}
	return stats, nil
}

// GetPerformanceReport собирает данные для PDF-отчета студента
func (s *ResultService) GetPerformanceReport(userID uint) (*PerformanceReport, error) {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return nil, err
	}
	if user.IsStaff() {
		return nil, fmt.Errorf("%w: performance reports are available for students only", apperrors.ErrValidation)
	}
	results, err := s.resultRepo.ListAll(repository.ResultFilters{UserID: userID})
	if err != nil {
		return nil, err
	}
	agg, err := s.resultRepo.Aggregate(repository.ResultFilters{UserID: userID})
	if err != nil {
		return nil, err
	}
	return &PerformanceReport{
		User:        user,
		Results:     results,
		Stats:       studentStatsFrom(agg),
		GeneratedAt: time.Now(),
	}, nil
}

func validateResultFilters(filters repository.ResultFilters) error {
	if filters.Verdict != "" && filters.Verdict != entity.VerdictPassed && filters.Verdict != entity.VerdictFailed {
		return fmt.Errorf("%w: unknown verdict %q", apperrors.ErrValidation, filters.Verdict)
	}
	if filters.DateFrom != nil && filters.DateTo != nil && filters.DateTo.Before(*filters.DateFrom) {
		return fmt.Errorf("%w: date_to is before date_from", apperrors.ErrValidation)
	}
	return nil
}

func studentStatsFrom(agg *repository.ResultAggregate) StudentStats {
	return StudentStats{
		TotalTests:   agg.Total,
		Passed:       agg.Passed,
		Failed:       agg.Total - agg.Passed,
		AverageScore: round1(agg.AverageScore),
		PassRate:     percent(agg.Passed, agg.Total),
	}
}

func bucketsFrom(counts [5]int64) []ScoreBucket {
	out := make([]ScoreBucket, len(counts))
	for i, n := range counts {
		out[i] = ScoreBucket{
			Range:   bucketLabels[i],
			Count:   n,
			Passing: repository.ScoreBucketFloors[i] >= grading.PassThreshold,
		}
	}
	return out
}

// bucketIndex совпадает с корзинами агрегации в репозитории
func bucketIndex(score int) int {
	floors := repository.ScoreBucketFloors
	for i := len(floors) - 1; i > 0; i-- {
		if score >= floors[i] {
			return i
		}
	}
	return 0
}

func percent(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return round1(float64(part) * 100 / float64(total))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
