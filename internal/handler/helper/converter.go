package helper

import (
	"strconv"
	"strings"
	"time"

	"github.com/yourusername/placement-api/internal/domain/entity"
)

// QuestionOption представляет вариант ответа для фронтенда
type QuestionOption struct {
	Letter string `json:"letter"`
	Text   string `json:"text"`
}

// ConvertOptionsToObjects преобразует массив строк в массив объектов с буквой и текстом.
// Буква совпадает с форматом ключа ответа (A, B, C, ...).
func ConvertOptionsToObjects(options entity.StringArray) []QuestionOption {
	converted := make([]QuestionOption, len(options))
	for i, opt := range options {
		if opt == "" {
			opt = "(пустой вариант)"
		}
		converted[i] = QuestionOption{Letter: entity.OptionLetter(i), Text: opt}
	}
	return converted
}

// ParsePagination читает page и page_size и приводит их к допустимым значениям
func ParsePagination(pageStr, sizeStr string) (int, int) {
	page := QueryInt(pageStr, 1)
	size := QueryInt(sizeStr, 10)
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 10
	} else if size > 100 {
		size = 100
	}
	return page, size
}

// ParseDate разбирает дату в формате YYYY-MM-DD. Пустая строка дает nil.
func ParseDate(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// EndOfDay возвращает последний момент дня для включающего фильтра date_to
func EndOfDay(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	end := t.Add(24*time.Hour - time.Nanosecond)
	return &end
}

// QueryInt читает целое число из строки запроса, при ошибке возвращает def
func QueryInt(value string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return def
	}
	return n
}
