package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/placement-api/internal/domain/entity"
	"github.com/yourusername/placement-api/pkg/auth"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newJWT(t *testing.T) *auth.JWTService {
	t.Helper()
	svc, err := auth.NewJWTService("middleware-test-secret-42", 1, 60)
	require.NoError(t, err)
	return svc
}

// newRouter собирает роутер с защищенными маршрутами
func newRouter(m *AuthMiddleware) *gin.Engine {
	r := gin.New()
	protected := r.Group("/api", m.RequireAuth())
	protected.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id":  c.GetUint(ContextUserID),
			"username": c.GetString(ContextUsername),
			"role":     c.GetString(ContextRole),
		})
	})
	protected.GET("/staff", m.StaffOnly(), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	protected.GET("/student", m.StudentOnly(), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return r
}

func doRequest(r http.Handler, path, token string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestRequireAuth(t *testing.T) {
	jwtService := newJWT(t)
	router := newRouter(NewAuthMiddleware(jwtService))

	student, err := jwtService.GenerateToken(&entity.User{ID: 7, Username: "asha", Role: entity.RoleStudent})
	require.NoError(t, err)
	ticket, err := jwtService.GenerateWSTicket(7, "asha", entity.RoleStudent)
	require.NoError(t, err)

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"нет заголовка", "", http.StatusUnauthorized},
		{"неверный формат", "Token " + student, http.StatusUnauthorized},
		{"мусор вместо токена", "Bearer abc.def.ghi", http.StatusUnauthorized},
		{"WS-тикет вместо токена", "Bearer " + ticket, http.StatusUnauthorized},
		{"валидный токен", "Bearer " + student, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(router, "/api/me", tt.header)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}

	w := doRequest(router, "/api/me", "Bearer "+student)
	assert.JSONEq(t, `{"user_id":7,"username":"asha","role":"student"}`, w.Body.String())
}

func TestRoleGuards(t *testing.T) {
	jwtService := newJWT(t)
	router := newRouter(NewAuthMiddleware(jwtService))

	student, _ := jwtService.GenerateToken(&entity.User{ID: 7, Username: "asha", Role: entity.RoleStudent})
	staff, _ := jwtService.GenerateToken(&entity.User{ID: 2, Username: "hr", Role: entity.RoleStaff})

	assert.Equal(t, http.StatusForbidden, doRequest(router, "/api/staff", "Bearer "+student).Code)
	assert.Equal(t, http.StatusNoContent, doRequest(router, "/api/staff", "Bearer "+staff).Code)
	assert.Equal(t, http.StatusNoContent, doRequest(router, "/api/student", "Bearer "+student).Code)
	assert.Equal(t, http.StatusForbidden, doRequest(router, "/api/student", "Bearer "+staff).Code)
}

func TestExtractParams(t *testing.T) {
	r := gin.New()
	r.GET("/tests/:id", ExtractUintParam("id", "testID"), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": c.GetUint("testID")})
	})
	r.GET("/sessions/:id", ExtractUUIDParam("id", "sessionID"), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": c.GetString("sessionID")})
	})

	assert.Equal(t, http.StatusOK, doRequest(r, "/tests/42", "").Code)
	assert.Equal(t, http.StatusBadRequest, doRequest(r, "/tests/abc", "").Code)
	assert.Equal(t, http.StatusBadRequest, doRequest(r, "/tests/0", "").Code)
	assert.Equal(t, http.StatusOK, doRequest(r, "/sessions/0b9f3c8e-5d1a-4c4e-9b7e-2f1a6d3c9e11", "").Code)
	assert.Equal(t, http.StatusBadRequest, doRequest(r, "/sessions/not-a-uuid", "").Code)
}

func TestRateLimiter_FailOpen(t *testing.T) {
	// Redis недоступен: запросы пропускаются
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	r := gin.New()
	r.POST("/login", NewRateLimiter(client).Limit(AuthRateLimitConfig(1, time.Minute)), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodPost, "/login", nil)
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestAuthRateLimitConfig_Defaults(t *testing.T) {
	cfg := AuthRateLimitConfig(0, 0)
	assert.Equal(t, 10, cfg.MaxRequests)
	assert.Equal(t, time.Minute, cfg.Window)
}
