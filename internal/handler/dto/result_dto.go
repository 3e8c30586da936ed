package dto

import (
	"time"

	"github.com/yourusername/placement-api/internal/domain/entity"
)

// ResultResponse представляет результат теста в формате для ответа клиенту
type ResultResponse struct {
	ID             uint           `json:"id"`
	UserID         uint           `json:"user_id"`
	TestID         uint           `json:"test_id"`
	Username       string         `json:"username"`
	TestName       string         `json:"test_name"`
	Company        string         `json:"company"`
	Score          int            `json:"score"`
	Verdict        string         `json:"verdict"`
	CorrectAnswers int            `json:"correct_answers"`
	TotalQuestions int            `json:"total_questions"`
	AutoSubmitted  bool           `json:"auto_submitted"`
	StartedAt      time.Time      `json:"started_at"`
	SubmittedAt    time.Time      `json:"submitted_at"`
	Answers        map[int]string `json:"answers,omitempty"`
}

// PaginatedResultResponse представляет пагинированный список результатов
type PaginatedResultResponse struct {
	Results []*ResultResponse `json:"results"`
	Total   int64             `json:"total"`
	Page    int               `json:"page"`
	PerPage int               `json:"per_page"`
}

// NewResultResponse создает DTO для результата. Лист ответов включается только в детальный ответ.
func NewResultResponse(result *entity.Result, withAnswers bool) *ResultResponse {
	resp := &ResultResponse{
		ID:             result.ID,
		UserID:         result.UserID,
		TestID:         result.TestID,
		Username:       result.Username,
		TestName:       result.TestName,
		Company:        result.Company,
		Score:          result.Score,
		Verdict:        result.Verdict,
		CorrectAnswers: result.CorrectAnswers,
		TotalQuestions: result.TotalQuestions,
		AutoSubmitted:  result.AutoSubmitted,
		StartedAt:      result.StartedAt,
		SubmittedAt:    result.SubmittedAt,
	}
	if withAnswers {
		resp.Answers = result.AnswerSheet()
	}
	return resp
}

// NewListResultResponse создает DTO для списка результатов
func NewListResultResponse(results []entity.Result) []*ResultResponse {
	out := make([]*ResultResponse, 0, len(results))
	for i := range results {
		out = append(out, NewResultResponse(&results[i], false))
	}
	return out
}

// NewPaginatedResultResponse создает пагинированный DTO
func NewPaginatedResultResponse(results []entity.Result, total int64, page, perPage int) *PaginatedResultResponse {
	return &PaginatedResultResponse{
		Results: NewListResultResponse(results),
		Total:   total,
		Page:    page,
		PerPage: perPage,
	}
}
