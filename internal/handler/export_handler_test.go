package handler

import (
	"bytes"
	"encoding/csv"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/yourusername/placement-api/internal/domain/entity"
	"github.com/yourusername/placement-api/internal/domain/repository"
	"github.com/yourusername/placement-api/internal/service"
)

// stubResultRepo отдает фиксированный набор результатов.
// Методы, не нужные экспорту и отчетам, не реализованы.
type stubResultRepo struct {
	repository.ResultRepository
	results     []entity.Result
	lastFilters repository.ResultFilters
}

func (r *stubResultRepo) ListAll(filters repository.ResultFilters) ([]entity.Result, error) {
	r.lastFilters = filters
	return r.results, nil
}

func (r *stubResultRepo) Aggregate(filters repository.ResultFilters) (*repository.ResultAggregate, error) {
	agg := &repository.ResultAggregate{}
	var total int
	for _, res := range r.results {
		agg.Total++
		total += res.Score
		if res.Passed() {
			agg.Passed++
		}
	}
	if agg.Total > 0 {
		agg.AverageScore = float64(total) / float64(agg.Total)
	}
	return agg, nil
}

type stubUserRepo struct {
	repository.UserRepository
	user *entity.User
}

func (r *stubUserRepo) GetByID(id uint) (*entity.User, error) {
	return r.user, nil
}

func sampleExportResults() []entity.Result {
	submitted := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	return []entity.Result{
		{
			ID: 1, UserID: 10, TestID: 3, Username: "=cmd|' /C calc'!A0", TestName: "Aptitude, Round 1",
			Company: "Acme", Score: 80, Verdict: entity.VerdictPassed, CorrectAnswers: 4, TotalQuestions: 5,
			StartedAt: submitted.Add(-20 * time.Minute), SubmittedAt: submitted,
		},
		{
			ID: 2, UserID: 11, TestID: 3, Username: "bob", TestName: "Aptitude, Round 1",
			Company: "Acme", Score: 40, Verdict: entity.VerdictFailed, CorrectAnswers: 2, TotalQuestions: 5,
			AutoSubmitted: true, StartedAt: submitted.Add(-30 * time.Minute), SubmittedAt: submitted,
		},
	}
}

func newExportRouter(repo *stubResultRepo) *gin.Engine {
	resultService := service.NewResultService(repo, nil, &stubUserRepo{}, nil, nil)
	h := NewExportHandler(resultService)
	router := gin.New()
	router.GET("/export", h.ExportResults)
	return router
}

// ============================================================================
// Экспорт результатов
// ============================================================================

func TestExportResults_CSV(t *testing.T) {
	// Arrange
	repo := &stubResultRepo{results: sampleExportResults()}
	router := newExportRouter(repo)

	// Act
	w := doJSON(router, "GET", "/export?format=csv&test_id=3", nil)

	// Assert
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, w.Header().Get("Content-Disposition"), "test_3_results_")
	assert.Equal(t, uint(3), repo.lastFilters.TestID)

	body := w.Body.Bytes()
	require.True(t, bytes.HasPrefix(body, []byte{0xEF, 0xBB, 0xBF}), "CSV должен начинаться с BOM")

	rows, err := csv.NewReader(bytes.NewReader(body[3:])).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, exportHeaders, rows[0])
	assert.True(t, strings.HasPrefix(rows[1][1], "'="), "Формула должна экранироваться")
	assert.Equal(t, "Aptitude, Round 1", rows[1][2], "Запятая внутри поля экранируется кавычками")
	assert.Equal(t, "80", rows[1][4])
	assert.Equal(t, "Yes", rows[2][8])
}

func TestExportResults_XLSX(t *testing.T) {
	// Arrange
	router := newExportRouter(&stubResultRepo{results: sampleExportResults()})

	// Act
	w := doJSON(router, "GET", "/export?format=xlsx", nil)

	// Assert
	require.Equal(t, http.StatusOK, w.Code)
	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Results")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Username", rows[0][1])
	assert.Equal(t, "bob", rows[2][1])
	assert.Equal(t, "40", rows[2][4])
}

func TestExportResults_InvalidRequests(t *testing.T) {
	router := newExportRouter(&stubResultRepo{})

	tests := []struct {
		name       string
		query      string
		wantStatus int
	}{
		{"unknown format", "format=pdf", http.StatusBadRequest},
		{"bad date", "date_from=yesterday", http.StatusBadRequest},
		{"unknown verdict", "verdict=maybe", http.StatusUnprocessableEntity},
		{"inverted range", "date_from=2026-02-01&date_to=2026-01-01", http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(router, "GET", "/export?"+tt.query, nil)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestSanitizeForExcel(t *testing.T) {
	assert.Equal(t, "", sanitizeForExcel(""))
	assert.Equal(t, "alice", sanitizeForExcel("alice"))
	assert.Equal(t, "'=SUM(A1)", sanitizeForExcel("=SUM(A1)"))
	assert.Equal(t, "'+1", sanitizeForExcel("+1"))
	assert.Equal(t, "'@x", sanitizeForExcel("@x"))
}

// ============================================================================
// PDF отчет
// ============================================================================

func TestRenderPerformanceReport(t *testing.T) {
	// Arrange
	user := &entity.User{ID: 10, Username: "alice", FullName: "Alice Müller", Email: "alice@example.com"}
	require.NoError(t, user.SetDetails(entity.UserDetails{Department: "CSE", Batch: "2026"}))
	report := &service.PerformanceReport{
		User:        user,
		Results:     sampleExportResults(),
		Stats:       service.StudentStats{TotalTests: 2, Passed: 1, Failed: 1, AverageScore: 60, PassRate: 50},
		GeneratedAt: time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC),
	}
	var buf bytes.Buffer

	// Act
	err := renderPerformanceReport(&buf, report)

	// Assert
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")), "Ожидается PDF документ")
}

func TestReportHandler_GetMyReport(t *testing.T) {
	// Arrange
	user := &entity.User{ID: 10, Username: "alice"}
	repo := &stubResultRepo{}
	resultService := service.NewResultService(repo, nil, &stubUserRepo{user: user}, nil, nil)
	h := NewReportHandler(resultService)
	router := gin.New()
	router.GET("/report", withUser(10, "alice", entity.RoleStudent), h.GetMyReport)

	// Act
	w := doJSON(router, "GET", "/report", nil)

	// Assert
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "performance_alice_")
	assert.Equal(t, uint(10), repo.lastFilters.UserID)
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF-")))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}
