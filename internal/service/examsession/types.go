package examsession

import (
	"context"
	"fmt"
	"time"

	"github.com/yourusername/placement-api/internal/domain/entity"
	"github.com/yourusername/placement-api/internal/domain/repository"
	apperrors "github.com/yourusername/placement-api/internal/pkg/errors"
)

// State состояние сессии прохождения теста
type State string

const (
	StateNotStarted State = "not_started"
	StateInProgress State = "in_progress"
	StateSubmitted  State = "submitted"
	StateCancelled  State = "cancelled"
)

// IsFinished возвращает true для терминальных состояний
func (s State) IsFinished() bool {
	return s == StateSubmitted || s == StateCancelled
}

// Direction направление перехода между вопросами
type Direction string

const (
	DirectionNext     Direction = "next"
	DirectionPrevious Direction = "previous"
)

// SaveStatus состояние сохранения результата
type SaveStatus string

const (
	SaveStatusNone    SaveStatus = ""
	SaveStatusPending SaveStatus = "pending"
	SaveStatusSaved   SaveStatus = "saved"
	SaveStatusFailed  SaveStatus = "failed"
)

// Типы WebSocket событий сессии
const (
	EventTick       = "session:tick"
	EventSubmitted  = "session:submitted"
	EventSaveFailed = "session:save_failed"
	EventCancelled  = "session:cancelled"
)

var (
	ErrConfirmationRequired = fmt.Errorf("%w: start and cancel require explicit confirmation", apperrors.ErrValidation)
	ErrEmptyTest            = fmt.Errorf("%w: test has no questions", apperrors.ErrValidation)
	ErrInvalidDuration      = fmt.Errorf("%w: test duration must be positive", apperrors.ErrValidation)
	ErrInvalidDirection     = fmt.Errorf("%w: direction must be next or previous", apperrors.ErrValidation)
	ErrAlreadyAttempted     = fmt.Errorf("%w: test already attempted", apperrors.ErrConflict)
	ErrAttemptInProgress    = fmt.Errorf("%w: attempt is already in progress on another instance", apperrors.ErrConflict)
	ErrNothingToSave        = fmt.Errorf("%w: session has no failed save to retry", apperrors.ErrConflict)
	ErrSessionNotFound      = fmt.Errorf("%w: session not found", apperrors.ErrNotFound)
	ErrNotOwner             = fmt.Errorf("%w: session belongs to another user", apperrors.ErrForbidden)
)

// Clock источник текущего времени
type Clock interface {
	Now() time.Time
}

// SystemClock использует системное время
type SystemClock struct{}

// Now возвращает текущее время
func (SystemClock) Now() time.Time { return time.Now() }

// Config содержит настройки менеджера сессий
type Config struct {
	TickInterval   time.Duration // Период отправки session:tick и проверки дедлайна
	SaveTimeout    time.Duration // Таймаут сохранения результата
	RetainFinished time.Duration // Сколько хранить завершенные сессии в памяти
	JanitorPeriod  time.Duration // Период очистки завершенных сессий
	SnapshotTTL    time.Duration // TTL снимка сессии в Redis после завершения
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() *Config {
	return &Config{
		TickInterval:   time.Second,
		SaveTimeout:    10 * time.Second,
		RetainFinished: 30 * time.Minute,
		JanitorPeriod:  time.Minute,
		SnapshotTTL:    time.Hour,
	}
}

// Student владелец сессии
type Student struct {
	ID       uint
	Username string
	FullName string
	Email    string
}

// TestSource выдает полностью загруженный тест для новой сессии
type TestSource interface {
	GetTestForSession(testID uint) (*entity.Test, error)
}

// ResultStore граница сохранения результатов
type ResultStore interface {
	HasResult(userID, testID uint) (bool, error)
	PersistResult(ctx context.Context, result *entity.Result) error
}

// Notifier доставляет события пользователю (WebSocket)
type Notifier interface {
	SendEventToUser(userID string, eventType string, data interface{}) error
}

// Dependencies содержит зависимости менеджера сессий
type Dependencies struct {
	Tests    TestSource
	Results  ResultStore
	Cache    repository.CacheRepository // Опционально: блокировки попыток и снимки
	Notifier Notifier                   // Опционально
	Clock    Clock
	Config   *Config
}

// Snapshot состояние сессии для клиента
type Snapshot struct {
	SessionID        string          `json:"session_id"`
	TestID           uint            `json:"test_id"`
	TestName         string          `json:"test_name"`
	UserID           uint            `json:"user_id"`
	State            State           `json:"state"`
	StartedAt        time.Time       `json:"started_at"`
	Deadline         time.Time       `json:"deadline"`
	RemainingSeconds int             `json:"remaining_seconds"`
	Current          int             `json:"current"`
	TotalQuestions   int             `json:"total_questions"`
	Answers          map[int]string  `json:"answers"`
	AnsweredCount    int             `json:"answered_count"`
	AutoSubmitted    bool            `json:"auto_submitted"`
	FinishedAt       *time.Time      `json:"finished_at,omitempty"`
	Outcome          *OutcomeSummary `json:"outcome,omitempty"`
	ResultID         uint            `json:"result_id,omitempty"`
	SaveStatus       SaveStatus      `json:"save_status,omitempty"`
	SaveError        string          `json:"save_error,omitempty"`
}

// OutcomeSummary итог оценивания в снимке
type OutcomeSummary struct {
	Correct int    `json:"correct"`
	Total   int    `json:"total"`
	Score   int    `json:"score"`
	Verdict string `json:"verdict"`
}
