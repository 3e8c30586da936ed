package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/placement-api/internal/domain/entity"
	"github.com/yourusername/placement-api/internal/handler/dto"
	"github.com/yourusername/placement-api/internal/middleware"
	apperrors "github.com/yourusername/placement-api/internal/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newTestGinContext создает *gin.Context для тестов с JSON body
func newTestGinContext(method, path string, body interface{}) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()

	var req *http.Request
	if body != nil {
		bodyBytes, _ := json.Marshal(body)
		req, _ = http.NewRequest(method, path, bytes.NewReader(bodyBytes))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req, _ = http.NewRequest(method, path, nil)
	}

	c, _ := gin.CreateTestContext(w)
	c.Request = req
	return c, w
}

// parseJSONResponse парсит JSON ответ из *httptest.ResponseRecorder
func parseJSONResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err, "Response body should be valid JSON: %s", w.Body.String())
	return resp
}

// withUser имитирует RequireAuth
func withUser(userID uint, username, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextUserID, userID)
		c.Set(middleware.ContextUsername, username)
		c.Set(middleware.ContextRole, role)
		c.Next()
	}
}

// doJSON выполняет запрос к роутеру
func doJSON(router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// ============================================================================
// handleError
// ============================================================================

func TestHandleError_MapsSentinels(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"not found", fmt.Errorf("%w: test 5", apperrors.ErrNotFound), http.StatusNotFound},
		{"conflict", fmt.Errorf("%w: already attempted", apperrors.ErrConflict), http.StatusConflict},
		{"validation", fmt.Errorf("%w: bad input", apperrors.ErrValidation), http.StatusUnprocessableEntity},
		{"unauthorized", fmt.Errorf("%w: invalid credentials", apperrors.ErrUnauthorized), http.StatusUnauthorized},
		{"forbidden", fmt.Errorf("%w: not owner", apperrors.ErrForbidden), http.StatusForbidden},
		{"internal", errors.New("connection refused"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newTestGinContext("GET", "/", nil)

			handleError(c, "test", tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := parseJSONResponse(t, w)
			if tt.wantStatus == http.StatusInternalServerError {
				assert.Equal(t, "Internal server error", resp["error"], "Внутренние ошибки не раскрываются клиенту")
			} else {
				assert.Equal(t, tt.err.Error(), resp["error"])
			}
		})
	}
}

func TestCurrentUser_ReadsContext(t *testing.T) {
	c, _ := newTestGinContext("GET", "/", nil)
	c.Set(middleware.ContextUserID, uint(7))
	c.Set(middleware.ContextUsername, "staffer")
	c.Set(middleware.ContextRole, entity.RoleStaff)

	id, username, isStaff := currentUser(c)

	assert.Equal(t, uint(7), id)
	assert.Equal(t, "staffer", username)
	assert.True(t, isStaff)
}

// ============================================================================
// Валидация запросов без реальных сервисов
// Handler возвращает 400 до вызова сервиса
// ============================================================================

func TestLogin_ValidationErrors(t *testing.T) {
	handler := &AuthHandler{} // сервисы не нужны для валидации

	tests := []struct {
		name string
		body interface{}
	}{
		{"empty body", nil},
		{"missing username", map[string]string{"password": "secret1"}},
		{"missing password", map[string]string{"username": "student1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newTestGinContext("POST", "/api/auth/login", tt.body)
			handler.Login(c)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			resp := parseJSONResponse(t, w)
			assert.Contains(t, resp["error"], "Invalid request data")
		})
	}
}

func TestRegister_ValidationErrors(t *testing.T) {
	handler := &AuthHandler{}

	tests := []struct {
		name string
		body interface{}
	}{
		{"empty body", nil},
		{"missing username", map[string]string{"password": "secret1"}},
		{"missing password", map[string]string{"username": "student1"}},
		{"short username", map[string]string{"username": "ab", "password": "secret1"}},
		{"long username", map[string]string{"username": strings.Repeat("u", 51), "password": "secret1"}},
		{"short password", map[string]string{"username": "student1", "password": "12345"}},
		{"email without local part", map[string]string{"username": "student1", "password": "secret1", "email": "@@@."}},
		{"email with double at", map[string]string{"username": "student1", "password": "secret1", "email": "a@@b"}},
		{"email without at", map[string]string{"username": "student1", "password": "secret1", "email": "nope"}},
		{"unknown role", map[string]string{"username": "student1", "password": "secret1", "role": "admin"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newTestGinContext("POST", "/api/auth/register", tt.body)
			handler.Register(c)

			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestUpdateMe_ValidationErrors(t *testing.T) {
	handler := &AuthHandler{}

	tests := []struct {
		name string
		body interface{}
	}{
		{"invalid email", map[string]string{"email": "a@@b"}},
		{"long full name", map[string]string{"full_name": strings.Repeat("x", 151)}},
		{"picture is not a url", map[string]string{"profile_picture": "not a url"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newTestGinContext("PUT", "/api/users/me", tt.body)
			c.Set(middleware.ContextUserID, uint(7))
			handler.UpdateMe(c)

			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestRegisterRequest_BindingAcceptsValidInput(t *testing.T) {
	// Пустой email и роль допустимы
	bodies := []map[string]string{
		{"username": "student1", "password": "secret1"},
		{"username": "staff01", "password": "secret1", "email": "hr@example.com", "role": "staff"},
	}

	for _, body := range bodies {
		c, _ := newTestGinContext("POST", "/api/auth/register", body)
		var req dto.RegisterRequest
		assert.NoError(t, c.ShouldBindJSON(&req), "body %v", body)
	}
}

func TestCreateTest_ValidationErrors(t *testing.T) {
	handler := &TestHandler{}

	tests := []struct {
		name string
		body interface{}
	}{
		{"empty body", nil},
		{"missing name", map[string]interface{}{"duration_minutes": 30, "questions": []interface{}{}}},
		{"bad scheduled date", map[string]interface{}{
			"name":             "Aptitude",
			"duration_minutes": 30,
			"scheduled_date":   "31/12/2026",
			"questions": []map[string]interface{}{
				{"text": "2+2?", "options": []string{"3", "4"}, "correct_option": "B"},
			},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newTestGinContext("POST", "/api/staff/tests", tt.body)
			c.Set(middleware.ContextUserID, uint(1))
			handler.CreateTest(c)

			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

// ============================================================================
// Фильтры результатов
// ============================================================================

func TestParseResultFilters(t *testing.T) {
	t.Run("all filters", func(t *testing.T) {
		c, _ := newTestGinContext("GET", "/api/staff/results?test_id=4&username=%20alice%20&company=Acme&verdict=PASSED&date_from=2026-01-01&date_to=2026-01-31", nil)

		filters, err := parseResultFilters(c)

		require.NoError(t, err)
		assert.Equal(t, uint(4), filters.TestID)
		assert.Equal(t, "alice", filters.Username)
		assert.Equal(t, "Acme", filters.Company)
		assert.Equal(t, entity.VerdictPassed, filters.Verdict)
		require.NotNil(t, filters.DateFrom)
		require.NotNil(t, filters.DateTo)
		assert.Equal(t, "2026-01-01", filters.DateFrom.Format("2006-01-02"))
		// date_to включает весь день
		assert.Equal(t, "2026-01-31 23:59:59", filters.DateTo.Format("2006-01-02 15:04:05"))
	})

	t.Run("empty query", func(t *testing.T) {
		c, _ := newTestGinContext("GET", "/api/staff/results", nil)

		filters, err := parseResultFilters(c)

		require.NoError(t, err)
		assert.Zero(t, filters.TestID)
		assert.Nil(t, filters.DateFrom)
		assert.Nil(t, filters.DateTo)
	})

	t.Run("invalid values", func(t *testing.T) {
		for _, query := range []string{"test_id=abc", "date_from=01.01.2026", "date_to=tomorrow"} {
			c, _ := newTestGinContext("GET", "/api/staff/results?"+query, nil)
			_, err := parseResultFilters(c)
			assert.Error(t, err, query)
		}
	})
}

// ============================================================================
// WebSocket origin
// ============================================================================

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"http://localhost:5173", "https://placement.example.com"})

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true}, // не браузерный клиент
		{"http://localhost:5173", true},
		{"https://placement.example.com", true},
		{"https://evil.example.com", false},
	}

	for _, tt := range tests {
		req := httptest.NewRequest("GET", "/ws", nil)
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		assert.Equal(t, tt.want, check(req), tt.origin)
	}
}
