package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/placement-api/internal/domain/entity"
	"github.com/yourusername/placement-api/internal/middleware"
	apperrors "github.com/yourusername/placement-api/internal/pkg/errors"
)

// handleError преобразует ошибки сервисов в HTTP ответы
func handleError(c *gin.Context, component string, err error) {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrValidation):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	default:
		log.Printf("ERROR: Internal server error in %s: %v", component, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// currentUser достает данные пользователя, которые положил RequireAuth
func currentUser(c *gin.Context) (userID uint, username string, isStaff bool) {
	return c.GetUint(middleware.ContextUserID),
		c.GetString(middleware.ContextUsername),
		c.GetString(middleware.ContextRole) == entity.RoleStaff
}
