package handler

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/placement-api/internal/domain/entity"
	"github.com/yourusername/placement-api/internal/middleware"
	apperrors "github.com/yourusername/placement-api/internal/pkg/errors"
	"github.com/yourusername/placement-api/internal/service/examsession"
)

// ============================================================================
// Заглушки зависимостей менеджера сессий
// ============================================================================

type stubTestSource struct {
	test *entity.Test
}

func (s *stubTestSource) GetTestForSession(testID uint) (*entity.Test, error) {
	if s.test == nil || s.test.ID != testID {
		return nil, fmt.Errorf("%w: test %d", apperrors.ErrNotFound, testID)
	}
	return s.test, nil
}

type stubResultStore struct {
	mu    sync.Mutex
	saved []entity.Result
}

func (s *stubResultStore) HasResult(userID, testID uint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.saved {
		if r.UserID == userID && r.TestID == testID {
			return true, nil
		}
	}
	return false, nil
}

func (s *stubResultStore) PersistResult(_ context.Context, result *entity.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	result.ID = uint(len(s.saved) + 1)
	s.saved = append(s.saved, *result)
	return nil
}

type stubProfiles struct{}

func (stubProfiles) GetProfile(userID uint) (*entity.User, error) {
	return &entity.User{ID: userID, Username: fmt.Sprintf("student%d", userID), FullName: "Test Student"}, nil
}

func sessionTestFixture(t *testing.T) (*gin.Engine, *stubResultStore) {
	t.Helper()

	test := &entity.Test{
		ID:              3,
		Name:            "Aptitude Round 1",
		Company:         "Acme",
		DurationMinutes: 30,
		Status:          entity.TestStatusActive,
		Questions: []entity.Question{
			{ID: 1, Position: 0, Type: entity.QuestionTypeMCQSingle, Text: "2+2?", Options: entity.StringArray{"3", "4"}, CorrectOption: "B"},
			{ID: 2, Position: 1, Type: entity.QuestionTypeMCQSingle, Text: "Capital of France?", Options: entity.StringArray{"Paris", "Rome"}, CorrectOption: "A"},
		},
		QuestionCount: 2,
	}
	store := &stubResultStore{}
	manager := examsession.NewManager(&examsession.Dependencies{
		Tests:   &stubTestSource{test: test},
		Results: store,
		Config: &examsession.Config{
			TickInterval:   time.Hour,
			SaveTimeout:    time.Second,
			RetainFinished: time.Minute,
			JanitorPeriod:  time.Hour,
			SnapshotTTL:    time.Minute,
		},
	})
	t.Cleanup(manager.Shutdown)

	h := NewSessionHandler(manager, stubProfiles{})

	router := gin.New()
	for _, userID := range []uint{10, 11} {
		g := router.Group(fmt.Sprintf("/u%d/sessions", userID), withUser(userID, fmt.Sprintf("student%d", userID), entity.RoleStudent))
		g.POST("", h.StartSession)
		g.GET("/active", h.ListActive)
		s := g.Group("/:sessionID", middleware.ExtractUUIDParam("sessionID", "sessionID"))
		s.GET("", h.GetSession)
		s.POST("/answer", h.SelectAnswer)
		s.POST("/advance", h.Advance)
		s.POST("/submit", h.Submit)
		s.POST("/retry-save", h.RetrySave)
		s.POST("/cancel", h.Cancel)
	}
	return router, store
}

// ============================================================================
// Прохождение теста через HTTP
// ============================================================================

func TestSessionHandler_FullAttempt(t *testing.T) {
	// Arrange
	router, store := sessionTestFixture(t)

	// Act: старт без подтверждения
	w := doJSON(router, "POST", "/u10/sessions", map[string]interface{}{"test_id": 3})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	// Act: старт с подтверждением
	w = doJSON(router, "POST", "/u10/sessions", map[string]interface{}{"test_id": 3, "confirm": true})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := parseJSONResponse(t, w)
	session := resp["session"].(map[string]interface{})
	sessionID := session["session_id"].(string)
	assert.Equal(t, "in_progress", session["state"])

	// Assert: вопросы отдаются без ключей
	questions := resp["questions"].([]interface{})
	require.Len(t, questions, 2)
	for _, q := range questions {
		_, hasKey := q.(map[string]interface{})["correct_option"]
		assert.False(t, hasKey, "Ключ ответа не должен уходить студенту")
	}
	firstOptions := questions[0].(map[string]interface{})["options"].([]interface{})
	assert.Equal(t, "A", firstOptions[0].(map[string]interface{})["letter"])

	base := "/u10/sessions/" + sessionID

	// Act: ответ в нижнем регистре нормализуется
	w = doJSON(router, "POST", base+"/answer", map[string]interface{}{"index": 0, "letter": "b"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	session = parseJSONResponse(t, w)["session"].(map[string]interface{})
	assert.Equal(t, "B", session["answers"].(map[string]interface{})["0"])

	// Act: неверное направление
	w = doJSON(router, "POST", base+"/advance", map[string]interface{}{"direction": "sideways"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	// Act: переход вперед
	w = doJSON(router, "POST", base+"/advance", map[string]interface{}{"direction": "next"})
	require.Equal(t, http.StatusOK, w.Code)
	session = parseJSONResponse(t, w)["session"].(map[string]interface{})
	assert.Equal(t, float64(1), session["current"])

	// Act: отправка
	w = doJSON(router, "POST", base+"/submit", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	session = parseJSONResponse(t, w)["session"].(map[string]interface{})

	// Assert
	assert.Equal(t, "submitted", session["state"])
	assert.Equal(t, "saved", session["save_status"])
	outcome := session["outcome"].(map[string]interface{})
	assert.Equal(t, float64(50), outcome["score"])
	assert.Equal(t, entity.VerdictFailed, outcome["verdict"])
	require.Len(t, store.saved, 1)
	assert.Equal(t, uint(10), store.saved[0].UserID)

	// Повторная отправка не создает второй результат
	w = doJSON(router, "POST", base+"/submit", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, store.saved, 1)

	// Повторная попытка того же теста запрещена
	w = doJSON(router, "POST", "/u10/sessions", map[string]interface{}{"test_id": 3, "confirm": true})
	assert.Equal(t, http.StatusConflict, w.Code)

	// Повторное сохранение без ошибки не требуется
	w = doJSON(router, "POST", base+"/retry-save", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSessionHandler_OwnershipAndLookup(t *testing.T) {
	// Arrange
	router, _ := sessionTestFixture(t)
	w := doJSON(router, "POST", "/u10/sessions", map[string]interface{}{"test_id": 3, "confirm": true})
	require.Equal(t, http.StatusCreated, w.Code)
	sessionID := parseJSONResponse(t, w)["session"].(map[string]interface{})["session_id"].(string)

	// Act & Assert: чужая сессия
	w = doJSON(router, "GET", "/u11/sessions/"+sessionID, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Неизвестная сессия
	w = doJSON(router, "GET", "/u10/sessions/4b0a3c52-8f0e-4f6a-9a51-1d3c8f1f2e01", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Некорректный идентификатор
	w = doJSON(router, "GET", "/u10/sessions/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Владелец видит сессию и список активных
	w = doJSON(router, "GET", "/u10/sessions/"+sessionID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, parseJSONResponse(t, w)["questions"], 2)

	w = doJSON(router, "GET", "/u10/sessions/active", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, parseJSONResponse(t, w)["sessions"], 1)
}

func TestSessionHandler_Cancel(t *testing.T) {
	// Arrange
	router, store := sessionTestFixture(t)
	w := doJSON(router, "POST", "/u10/sessions", map[string]interface{}{"test_id": 3, "confirm": true})
	require.Equal(t, http.StatusCreated, w.Code)
	sessionID := parseJSONResponse(t, w)["session"].(map[string]interface{})["session_id"].(string)
	base := "/u10/sessions/" + sessionID

	// Act: без подтверждения
	w = doJSON(router, "POST", base+"/cancel", map[string]interface{}{"confirm": false})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	// Act: с подтверждением
	w = doJSON(router, "POST", base+"/cancel", map[string]interface{}{"confirm": true})

	// Assert
	require.Equal(t, http.StatusOK, w.Code)
	session := parseJSONResponse(t, w)["session"].(map[string]interface{})
	assert.Equal(t, "cancelled", session["state"])
	assert.Empty(t, store.saved, "Отмена не создает результат")

	// Отмена освобождает попытку
	w = doJSON(router, "POST", "/u10/sessions", map[string]interface{}{"test_id": 3, "confirm": true})
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestSessionHandler_StartUnknownTest(t *testing.T) {
	router, _ := sessionTestFixture(t)

	w := doJSON(router, "POST", "/u10/sessions", map[string]interface{}{"test_id": 99, "confirm": true})

	assert.Equal(t, http.StatusNotFound, w.Code)
}
