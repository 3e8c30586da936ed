// Package grading оценивает ответы студента по ключу теста.
// Функции чистые: не обращаются к хранилищу и не возвращают ошибок.
package grading

import (
	"github.com/yourusername/placement-api/internal/domain/entity"
)

// PassThreshold минимальный балл для вердикта passed
const PassThreshold = 60

// Outcome итог оценивания
type Outcome struct {
	Correct int    `json:"correct"`
	Total   int    `json:"total"`
	Score   int    `json:"score"`
	Verdict string `json:"verdict"`
}

// Strategy проверяет ответ на один вопрос определенного типа
type Strategy interface {
	IsCorrect(q entity.Question, answer string) bool
}

// exactLetterStrategy засчитывает ответ при точном совпадении буквы с ключом.
// Ключ, не ссылающийся на существующий вариант, не засчитывается никогда.
type exactLetterStrategy struct{}

func (exactLetterStrategy) IsCorrect(q entity.Question, answer string) bool {
	if !q.HasOption(q.CorrectOption) {
		return false
	}
	return q.IsCorrect(answer)
}

// Grader выбирает стратегию по типу вопроса
type Grader struct {
	strategies map[entity.QuestionType]Strategy
}

// NewGrader создает оценщик со встроенными стратегиями
func NewGrader() *Grader {
	return &Grader{
		strategies: map[entity.QuestionType]Strategy{
			entity.QuestionTypeMCQSingle: exactLetterStrategy{},
			entity.QuestionTypeTrueFalse: exactLetterStrategy{},
		},
	}
}

// Register добавляет или заменяет стратегию для типа вопроса
func (g *Grader) Register(t entity.QuestionType, s Strategy) {
	g.strategies[t] = s
}

// IsCorrect проверяет один ответ. Вопрос неизвестного типа не засчитывается.
func (g *Grader) IsCorrect(q entity.Question, answer string) bool {
	s, ok := g.strategies[q.Type]
	if !ok {
		return false
	}
	return s.IsCorrect(q, answer)
}

// Grade считает правильные ответы, балл и вердикт.
// answers - разреженная карта индекс вопроса → буква.
func (g *Grader) Grade(questions []entity.Question, answers map[int]string) Outcome {
	total := len(questions)
	correct := 0
	for i, q := range questions {
		answer, ok := answers[i]
		if !ok {
			continue
		}
		if g.IsCorrect(q, answer) {
			correct++
		}
	}
	score := Score(correct, total)
	return Outcome{
		Correct: correct,
		Total:   total,
		Score:   score,
		Verdict: VerdictFor(score),
	}
}

var defaultGrader = NewGrader()

// DefaultGrader возвращает оценщик со встроенными стратегиями
func DefaultGrader() *Grader {
	return defaultGrader
}

// Grade оценивает ответы встроенным оценщиком
func Grade(questions []entity.Question, answers map[int]string) Outcome {
	return defaultGrader.Grade(questions, answers)
}

// Score возвращает 100*correct/total с округлением половины вверх.
// При total == 0 возвращает 0.
func Score(correct, total int) int {
	if total <= 0 {
		return 0
	}
	return (200*correct + total) / (2 * total)
}

// VerdictFor возвращает вердикт для балла
func VerdictFor(score int) string {
	if score >= PassThreshold {
		return entity.VerdictPassed
	}
	return entity.VerdictFailed
}
