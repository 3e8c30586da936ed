package entity

import (
	"encoding/json"
	"strconv"
	"time"

	"gorm.io/datatypes"
)

// Вердикты результата
const (
	VerdictPassed = "passed"
	VerdictFailed = "failed"
)

// Result представляет итог прохождения теста студентом. После создания не изменяется.
type Result struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	UserID         uint           `gorm:"not null;index;uniqueIndex:idx_user_test" json:"user_id"`
	TestID         uint           `gorm:"not null;index;uniqueIndex:idx_user_test" json:"test_id"`
	Username       string         `gorm:"size:50;not null;index" json:"username"`
	TestName       string         `gorm:"size:200;not null" json:"test_name"`
	Company        string         `gorm:"size:200;not null;default:''" json:"company"`
	Score          int            `gorm:"not null;default:0" json:"score"`
	Verdict        string         `gorm:"size:10;not null" json:"verdict"`
	CorrectAnswers int            `gorm:"not null;default:0" json:"correct_answers"`
	TotalQuestions int            `gorm:"not null;default:0" json:"total_questions"`
	Answers        datatypes.JSON `gorm:"type:jsonb;not null" json:"answers"`
	AutoSubmitted  bool           `gorm:"not null;default:false" json:"auto_submitted"`
	StartedAt      time.Time      `gorm:"not null" json:"started_at"`
	SubmittedAt    time.Time      `gorm:"not null" json:"submitted_at"`
	CreatedAt      time.Time      `json:"created_at"`
}

// TableName определяет имя таблицы для GORM
func (Result) TableName() string {
	return "results"
}

// Passed возвращает true, если тест сдан
func (r *Result) Passed() bool {
	return r.Verdict == VerdictPassed
}

// EncodeAnswers сериализует разреженную карту ответов (индекс вопроса → буква) в JSON
func EncodeAnswers(answers map[int]string) (datatypes.JSON, error) {
	sheet := make(map[string]string, len(answers))
	for idx, letter := range answers {
		sheet[strconv.Itoa(idx)] = letter
	}
	raw, err := json.Marshal(sheet)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

// AnswerSheet восстанавливает карту ответов. Некорректные ключи пропускаются.
func (r *Result) AnswerSheet() map[int]string {
	out := make(map[int]string)
	if len(r.Answers) == 0 {
		return out
	}
	var sheet map[string]string
	if err := json.Unmarshal(r.Answers, &sheet); err != nil {
		return out
	}
	for k, v := range sheet {
		idx, err := strconv.Atoi(k)
		if err != nil || idx < 0 {
			continue
		}
		out[idx] = v
	}
	return out
}
