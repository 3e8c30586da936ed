package dto

import (
	"github.com/yourusername/placement-api/internal/domain/entity"
	"github.com/yourusername/placement-api/internal/service/examsession"
)

// StartSessionRequest тело запроса на начало попытки
type StartSessionRequest struct {
	TestID  uint `json:"test_id" binding:"required"`
	Confirm bool `json:"confirm"`
}

// AnswerRequest выбор варианта для вопроса с индексом Index
type AnswerRequest struct {
	Index  *int   `json:"index" binding:"required"`
	Letter string `json:"letter" binding:"required"`
}

// AdvanceRequest переход к соседнему вопросу
type AdvanceRequest struct {
	Direction string `json:"direction" binding:"required"`
}

// CancelRequest отмена попытки
type CancelRequest struct {
	Confirm bool `json:"confirm"`
}

// SessionResponse состояние сессии и, при необходимости, вопросы без ключей
type SessionResponse struct {
	Session   examsession.Snapshot `json:"session"`
	Questions []QuestionResponse   `json:"questions,omitempty"`
}

// NewSessionResponse создает DTO сессии. Вопросы передаются при старте и запросе состояния.
func NewSessionResponse(snap examsession.Snapshot, test *entity.Test) *SessionResponse {
	resp := &SessionResponse{Session: snap}
	if test != nil {
		resp.Questions = NewQuestionListResponse(test.Questions, false)
	}
	return resp
}
