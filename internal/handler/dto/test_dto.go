package dto

import (
	"fmt"
	"strings"
	"time"

	"github.com/yourusername/placement-api/internal/domain/entity"
	"github.com/yourusername/placement-api/internal/handler/helper"
)

// QuestionRequest вопрос в запросе на создание или изменение теста
type QuestionRequest struct {
	Type          string   `json:"type"`
	Text          string   `json:"text" binding:"required"`
	Options       []string `json:"options"`
	CorrectOption string   `json:"correct_option"`
}

// TestRequest тело запроса на создание или изменение теста
type TestRequest struct {
	Name            string            `json:"name" binding:"required"`
	Company         string            `json:"company"`
	ScheduledDate   string            `json:"scheduled_date"` // YYYY-MM-DD, опционально
	DurationMinutes int               `json:"duration_minutes" binding:"required"`
	Description     string            `json:"description"`
	Status          string            `json:"status"`
	Questions       []QuestionRequest `json:"questions" binding:"required"`
}

// StatusRequest тело запроса на смену статуса
type StatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// ToEntity преобразует запрос в сущность теста. Проверка содержимого выполняется сервисом.
func (r *TestRequest) ToEntity() (*entity.Test, error) {
	scheduled, err := helper.ParseDate(r.ScheduledDate)
	if err != nil {
		return nil, fmt.Errorf("invalid scheduled_date: %w", err)
	}
	test := &entity.Test{
		Name:            r.Name,
		Company:         r.Company,
		ScheduledDate:   scheduled,
		DurationMinutes: r.DurationMinutes,
		Description:     r.Description,
		Status:          strings.TrimSpace(r.Status),
		Questions:       make([]entity.Question, 0, len(r.Questions)),
	}
	for _, q := range r.Questions {
		test.Questions = append(test.Questions, entity.Question{
			Type:          entity.QuestionType(q.Type),
			Text:          q.Text,
			Options:       entity.StringArray(append([]string(nil), q.Options...)),
			CorrectOption: q.CorrectOption,
		})
	}
	return test, nil
}

// QuestionResponse представляет вопрос в формате для ответа клиенту
type QuestionResponse struct {
	ID            uint                    `json:"id"`
	Position      int                     `json:"position"`
	Type          string                  `json:"type"`
	Text          string                  `json:"text"`
	Options       []helper.QuestionOption `json:"options"`
	CorrectOption string                  `json:"correct_option,omitempty"` // Только для сотрудников
}

// TestResponse представляет тест в формате для ответа клиенту
type TestResponse struct {
	ID              uint               `json:"id"`
	Name            string             `json:"name"`
	Company         string             `json:"company"`
	ScheduledDate   string             `json:"scheduled_date,omitempty"`
	DurationMinutes int                `json:"duration_minutes"`
	Description     string             `json:"description,omitempty"`
	Status          string             `json:"status"`
	QuestionCount   int                `json:"question_count"`
	CreatedBy       uint               `json:"created_by,omitempty"`
	Questions       []QuestionResponse `json:"questions,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// NewQuestionResponse создает DTO для вопроса. Ключ включается только при withKey.
func NewQuestionResponse(q *entity.Question, withKey bool) QuestionResponse {
	resp := QuestionResponse{
		ID:       q.ID,
		Position: q.Position,
		Type:     string(q.Type),
		Text:     q.Text,
		Options:  helper.ConvertOptionsToObjects(q.Options),
	}
	if withKey {
		resp.CorrectOption = q.CorrectOption
	}
	return resp
}

// NewTestResponse создает DTO для теста
func NewTestResponse(test *entity.Test, includeQuestions, withKeys bool) *TestResponse {
	resp := &TestResponse{
		ID:              test.ID,
		Name:            test.Name,
		Company:         test.Company,
		DurationMinutes: test.DurationMinutes,
		Description:     test.Description,
		Status:          test.Status,
		QuestionCount:   test.QuestionCount,
		CreatedAt:       test.CreatedAt,
		UpdatedAt:       test.UpdatedAt,
	}
	if test.ScheduledDate != nil {
		resp.ScheduledDate = test.ScheduledDate.Format("2006-01-02")
	}
	if withKeys {
		resp.CreatedBy = test.CreatedBy
	}
	if includeQuestions {
		resp.Questions = NewQuestionListResponse(test.Questions, withKeys)
	}
	return resp
}

// NewQuestionListResponse создает DTO для списка вопросов
func NewQuestionListResponse(questions []entity.Question, withKeys bool) []QuestionResponse {
	out := make([]QuestionResponse, 0, len(questions))
	for i := range questions {
		out = append(out, NewQuestionResponse(&questions[i], withKeys))
	}
	return out
}

// NewListTestResponse создает DTO для списка тестов без вопросов
func NewListTestResponse(tests []entity.Test, withKeys bool) []*TestResponse {
	out := make([]*TestResponse, 0, len(tests))
	for i := range tests {
		out = append(out, NewTestResponse(&tests[i], false, withKeys))
	}
	return out
}
