package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/placement-api/internal/domain/entity"
	"github.com/yourusername/placement-api/internal/handler/dto"
	"github.com/yourusername/placement-api/internal/service/examsession"
)

// ProfileProvider возвращает профиль пользователя (реализуется UserService)
type ProfileProvider interface {
	GetProfile(userID uint) (*entity.User, error)
}

// SessionHandler обрабатывает запросы прохождения теста студентом
type SessionHandler struct {
	sessions *examsession.Manager
	profiles ProfileProvider
}

// NewSessionHandler создает новый обработчик сессий
func NewSessionHandler(sessions *examsession.Manager, profiles ProfileProvider) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		profiles: profiles,
	}
}

// StartSession начинает попытку. Требует confirm=true.
func (h *SessionHandler) StartSession(c *gin.Context) {
	userID, _, _ := currentUser(c)

	var req dto.StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data: " + err.Error()})
		return
	}
	if !req.Confirm {
		handleError(c, "SessionHandler.StartSession", examsession.ErrConfirmationRequired)
		return
	}

	user, err := h.profiles.GetProfile(userID)
	if err != nil {
		handleError(c, "SessionHandler.StartSession", err)
		return
	}

	session, err := h.sessions.Start(examsession.Student{
		ID:       user.ID,
		Username: user.Username,
		FullName: user.FullName,
		Email:    user.Email,
	}, req.TestID, req.Confirm)
	if err != nil {
		handleError(c, "SessionHandler.StartSession", err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewSessionResponse(session.Snapshot(), session.Test()))
}

// ListActive возвращает незавершенные сессии студента
func (h *SessionHandler) ListActive(c *gin.Context) {
	userID, _, _ := currentUser(c)
	c.JSON(http.StatusOK, gin.H{"sessions": h.sessions.ActiveForUser(userID)})
}

// GetSession возвращает состояние сессии вместе с вопросами
func (h *SessionHandler) GetSession(c *gin.Context) {
	userID, _, _ := currentUser(c)
	sessionID := c.MustGet("sessionID").(string)

	session, err := h.sessions.Get(sessionID, userID)
	if err != nil {
		handleError(c, "SessionHandler.GetSession", err)
		return
	}

	c.JSON(http.StatusOK, dto.NewSessionResponse(session.Tick(), session.Test()))
}

// SelectAnswer записывает ответ на вопрос
func (h *SessionHandler) SelectAnswer(c *gin.Context) {
	userID, _, _ := currentUser(c)
	sessionID := c.MustGet("sessionID").(string)

	var req dto.AnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data: " + err.Error()})
		return
	}

	snap, err := h.sessions.SelectAnswer(sessionID, userID, *req.Index, strings.ToUpper(strings.TrimSpace(req.Letter)))
	if err != nil {
		handleError(c, "SessionHandler.SelectAnswer", err)
		return
	}

	c.JSON(http.StatusOK, dto.NewSessionResponse(snap, nil))
}

// Advance переходит к следующему или предыдущему вопросу
func (h *SessionHandler) Advance(c *gin.Context) {
	userID, _, _ := currentUser(c)
	sessionID := c.MustGet("sessionID").(string)

	var req dto.AdvanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data: " + err.Error()})
		return
	}

	dir := examsession.Direction(strings.ToLower(strings.TrimSpace(req.Direction)))
	snap, err := h.sessions.Advance(sessionID, userID, dir)
	if err != nil {
		handleError(c, "SessionHandler.Advance", err)
		return
	}

	c.JSON(http.StatusOK, dto.NewSessionResponse(snap, nil))
}

// Submit отправляет ответы. Повторная отправка возвращает то же итоговое состояние.
func (h *SessionHandler) Submit(c *gin.Context) {
	userID, _, _ := currentUser(c)
	sessionID := c.MustGet("sessionID").(string)

	snap, err := h.sessions.Submit(sessionID, userID)
	if err != nil {
		handleError(c, "SessionHandler.Submit", err)
		return
	}

	c.JSON(http.StatusOK, dto.NewSessionResponse(snap, nil))
}

// RetrySave повторяет сохранение результата после ошибки
func (h *SessionHandler) RetrySave(c *gin.Context) {
	userID, _, _ := currentUser(c)
	sessionID := c.MustGet("sessionID").(string)

	snap, err := h.sessions.RetrySave(sessionID, userID)
	if err != nil {
		handleError(c, "SessionHandler.RetrySave", err)
		return
	}

	c.JSON(http.StatusOK, dto.NewSessionResponse(snap, nil))
}

// Cancel отменяет попытку без сохранения результата. Требует confirm=true.
func (h *SessionHandler) Cancel(c *gin.Context) {
	userID, _, _ := currentUser(c)
	sessionID := c.MustGet("sessionID").(string)

	var req dto.CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data: " + err.Error()})
		return
	}

	snap, err := h.sessions.Cancel(sessionID, userID, req.Confirm)
	if err != nil {
		handleError(c, "SessionHandler.Cancel", err)
		return
	}

	c.JSON(http.StatusOK, dto.NewSessionResponse(snap, nil))
}
