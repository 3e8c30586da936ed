package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/placement-api/internal/domain/entity"
	apperrors "github.com/yourusername/placement-api/internal/pkg/errors"
	"github.com/yourusername/placement-api/pkg/auth"
)

// Ключи контекста Gin, которые заполняет RequireAuth
const (
	ContextUserID   = "user_id"
	ContextUsername = "username"
	ContextRole     = "role"
)

// AuthMiddleware проверяет токен доступа и роль пользователя
type AuthMiddleware struct {
	jwtService *auth.JWTService
}

func NewAuthMiddleware(jwtService *auth.JWTService) *AuthMiddleware {
	return &AuthMiddleware{
		jwtService: jwtService,
	}
}

// RequireAuth проверяет заголовок Authorization: Bearer {token}
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is required", "error_type": "token_missing"})
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header format must be Bearer {token}", "error_type": "token_format"})
			c.Abort()
			return
		}

		claims, err := m.jwtService.ParseToken(parts[1])
		if err != nil {
			errorType := "token_invalid"
			if errors.Is(err, apperrors.ErrExpiredToken) {
				errorType = "token_expired"
			}
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token", "error_type": errorType})
			c.Abort()
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUsername, claims.Username)
		c.Set(ContextRole, claims.Role)

		c.Next()
	}
}

// StaffOnly пропускает только сотрудников. Ставится после RequireAuth.
func (m *AuthMiddleware) StaffOnly() gin.HandlerFunc {
	return requireRole(entity.RoleStaff, "Staff rights required")
}

// StudentOnly пропускает только студентов. Ставится после RequireAuth.
func (m *AuthMiddleware) StudentOnly() gin.HandlerFunc {
	return requireRole(entity.RoleStudent, "Only students can take tests")
}

func requireRole(role, message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, exists := c.Get(ContextUserID); !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			c.Abort()
			return
		}
		if c.GetString(ContextRole) != role {
			c.JSON(http.StatusForbidden, gin.H{"error": message, "error_type": "forbidden"})
			c.Abort()
			return
		}
		c.Next()
	}
}
