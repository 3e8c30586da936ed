package entity

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// QuestionType определяет вид вопроса
type QuestionType string

const (
	QuestionTypeMCQSingle QuestionType = "mcq_single"
	QuestionTypeTrueFalse QuestionType = "true_false"
)

// MinOptions минимальное количество вариантов ответа
const MinOptions = 2

// StringArray - пользовательский тип для работы с JSONB
type StringArray []string

// Scan реализует интерфейс sql.Scanner для StringArray
// Используется GORM для чтения JSONB данных из базы
func (o *StringArray) Scan(value interface{}) error {
	if value == nil {
		*o = StringArray{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("failed to unmarshal JSONB value: expected []byte")
	}

	if len(bytes) == 0 {
		*o = StringArray{}
		return nil
	}

	return json.Unmarshal(bytes, o)
}

// Value реализует интерфейс driver.Valuer для StringArray
func (o StringArray) Value() (driver.Value, error) {
	if len(o) == 0 {
		return []byte("[]"), nil // Пустой JSON массив вместо null
	}
	return json.Marshal(o)
}

// Question представляет вопрос теста
type Question struct {
	ID            uint         `gorm:"primaryKey" json:"id"`
	TestID        uint         `gorm:"not null;index" json:"test_id"`
	Position      int          `gorm:"not null" json:"position"`
	Type          QuestionType `gorm:"size:20;not null;default:'mcq_single'" json:"type"`
	Text          string       `gorm:"not null" json:"text"`
	Options       StringArray  `gorm:"type:jsonb;not null" json:"options"`
	CorrectOption string       `gorm:"size:8;not null" json:"-"` // Скрыто от клиента
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// TableName определяет имя таблицы для GORM
func (Question) TableName() string {
	return "questions"
}

// OptionLetter возвращает букву варианта по индексу: A..Z, затем AA, AB, ...
func OptionLetter(index int) string {
	if index < 0 {
		return ""
	}
	var b []byte
	for n := index + 1; n > 0; n = (n - 1) / 26 {
		b = append([]byte{byte('A' + (n-1)%26)}, b...)
	}
	return string(b)
}

// OptionIndex возвращает индекс варианта по букве или -1, если буква некорректна
func OptionIndex(letter string) int {
	if letter == "" {
		return -1
	}
	n := 0
	for _, r := range letter {
		if r < 'A' || r > 'Z' {
			return -1
		}
		n = n*26 + int(r-'A'+1)
	}
	return n - 1
}

// HasOption проверяет, что буква ссылается на существующий вариант
func (q *Question) HasOption(letter string) bool {
	idx := OptionIndex(letter)
	return idx >= 0 && idx < len(q.Options)
}

// IsCorrect проверяет ответ на точное совпадение с ключом
func (q *Question) IsCorrect(letter string) bool {
	return letter != "" && letter == q.CorrectOption
}

// Normalize приводит ключ к верхнему регистру и убирает пробелы в вариантах
func (q *Question) Normalize() {
	q.CorrectOption = strings.ToUpper(strings.TrimSpace(q.CorrectOption))
	q.Text = strings.TrimSpace(q.Text)
	if q.Type == "" {
		q.Type = QuestionTypeMCQSingle
	}
	for i := range q.Options {
		q.Options[i] = strings.TrimSpace(q.Options[i])
	}
}

// Validate проверяет структуру вопроса
func (q *Question) Validate() error {
	if strings.TrimSpace(q.Text) == "" {
		return errors.New("question text is required")
	}
	switch q.Type {
	case QuestionTypeMCQSingle:
		if len(q.Options) < MinOptions {
			return fmt.Errorf("question requires at least %d options, got %d", MinOptions, len(q.Options))
		}
	case QuestionTypeTrueFalse:
		if len(q.Options) != 2 {
			return fmt.Errorf("true_false question requires exactly 2 options, got %d", len(q.Options))
		}
	default:
		return fmt.Errorf("unknown question type %q", q.Type)
	}
	for i, opt := range q.Options {
		if opt == "" {
			return fmt.Errorf("option %s is empty", OptionLetter(i))
		}
	}
	if !q.HasOption(q.CorrectOption) {
		return fmt.Errorf("correct option %q does not reference an existing option", q.CorrectOption)
	}
	return nil
}
