package examsession

import (
	"log"
	"sync"
	"time"

	"gorm.io/datatypes"

	"github.com/yourusername/placement-api/internal/domain/entity"
	"github.com/yourusername/placement-api/internal/service/grading"
)

// SubmitHook вызывается ровно один раз при переходе в submitted, вне блокировки сессии
type SubmitHook func(s *Session, result *entity.Result)

// Session одна попытка студента пройти тест.
// Безопасна для одновременного использования HTTP обработчиком и горутиной обратного отсчета.
type Session struct {
	id      string
	test    *entity.Test
	student Student
	clock   Clock
	hook    SubmitHook

	mu            sync.Mutex
	state         State
	startedAt     time.Time
	deadline      time.Time
	finishedAt    time.Time
	answers       map[int]string
	current       int
	autoSubmitted bool
	outcome       *grading.Outcome
	result        *entity.Result
	saveStatus    SaveStatus
	saveErr       string

	done chan struct{}
}

// NewSession создает сессию в состоянии not_started.
// Тест без вопросов или с неположительной длительностью отклоняется.
func NewSession(id string, test *entity.Test, student Student, clock Clock, hook SubmitHook) (*Session, error) {
	if test == nil || len(test.Questions) == 0 {
		return nil, ErrEmptyTest
	}
	if test.DurationMinutes <= 0 {
		return nil, ErrInvalidDuration
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Session{
		id:      id,
		test:    test,
		student: student,
		clock:   clock,
		hook:    hook,
		state:   StateNotStarted,
		answers: make(map[int]string),
		done:    make(chan struct{}),
	}, nil
}

// ID возвращает непрозрачный идентификатор сессии
func (s *Session) ID() string { return s.id }

// Test возвращает снимок теста. Вызывающий не должен его изменять.
func (s *Session) Test() *entity.Test { return s.test }

// Student возвращает владельца сессии
func (s *Session) Student() Student { return s.student }

// Done закрывается при переходе в submitted или cancelled
func (s *Session) Done() <-chan struct{} { return s.done }

// Start переводит not_started → in_progress и фиксирует дедлайн
func (s *Session) Start() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if s.state == StateNotStarted {
		s.startedAt = now
		s.deadline = now.Add(s.test.Duration())
		s.current = 0
		s.state = StateInProgress
	}
	return s.snapshotLocked(now)
}

// SelectAnswer записывает ответ на вопрос. Последняя запись побеждает.
// Индекс вне диапазона игнорируется, буква не проверяется по вариантам.
func (s *Session) SelectAnswer(index int, letter string) Snapshot {
	return s.mutate(func() {
		if index < 0 || index >= len(s.test.Questions) {
			return
		}
		s.answers[index] = letter
	})
}

// Advance сдвигает текущий вопрос на один с ограничением диапазоном [0, n-1]
func (s *Session) Advance(dir Direction) (Snapshot, error) {
	var delta int
	switch dir {
	case DirectionNext:
		delta = 1
	case DirectionPrevious:
		delta = -1
	default:
		return s.Snapshot(), ErrInvalidDirection
	}
	return s.mutate(func() {
		next := s.current + delta
		if next < 0 || next >= len(s.test.Questions) {
			return
		}
		s.current = next
	}), nil
}

// Tick проверяет дедлайн. При истечении времени сессия отправляется автоматически.
func (s *Session) Tick() Snapshot {
	return s.mutate(func() {})
}

// Submit отправляет ответы. Повторный вызов ничего не делает.
func (s *Session) Submit() Snapshot {
	s.mu.Lock()
	now := s.clock.Now()
	result := s.expireLocked(now)
	if result == nil && s.state == StateInProgress {
		result = s.submitLocked(now, false)
	}
	snap := s.snapshotLocked(now)
	s.mu.Unlock()

	if s.fireHook(result) {
		return s.Snapshot()
	}
	return snap
}

// Cancel отменяет попытку без результата. Возвращает true, если отмена произошла.
// Если дедлайн уже прошел, сессия отправляется автоматически вместо отмены.
func (s *Session) Cancel() (Snapshot, bool) {
	s.mu.Lock()
	now := s.clock.Now()
	result := s.expireLocked(now)
	cancelled := false
	if result == nil && s.state == StateInProgress {
		s.state = StateCancelled
		s.finishedAt = now
		close(s.done)
		cancelled = true
	}
	snap := s.snapshotLocked(now)
	s.mu.Unlock()

	if s.fireHook(result) {
		return s.Snapshot(), false
	}
	return snap, cancelled
}

// Snapshot возвращает текущее состояние без изменений
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(s.clock.Now())
}

// State возвращает текущее состояние
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// FinishedAt возвращает время завершения (нулевое для активной сессии)
func (s *Session) FinishedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finishedAt
}

// mutate проверяет дедлайн и только для in_progress применяет изменение
func (s *Session) mutate(apply func()) Snapshot {
	s.mu.Lock()
	now := s.clock.Now()
	result := s.expireLocked(now)
	if result == nil && s.state == StateInProgress {
		apply()
	}
	snap := s.snapshotLocked(now)
	s.mu.Unlock()

	if s.fireHook(result) {
		return s.Snapshot()
	}
	return snap
}

// expireLocked выполняет автоотправку, если дедлайн наступил
func (s *Session) expireLocked(now time.Time) *entity.Result {
	if s.state != StateInProgress || now.Before(s.deadline) {
		return nil
	}
	return s.submitLocked(now, true)
}

// submitLocked замораживает ответы и оценивает их. Вызывается только из in_progress.
func (s *Session) submitLocked(now time.Time, auto bool) *entity.Result {
	frozen := make(map[int]string, len(s.answers))
	for k, v := range s.answers {
		frozen[k] = v
	}
	s.answers = frozen

	outcome := grading.Grade(s.test.Questions, frozen)
	s.outcome = &outcome
	s.autoSubmitted = auto
	s.state = StateSubmitted
	s.finishedAt = now
	s.saveStatus = SaveStatusPending
	close(s.done)

	raw, err := entity.EncodeAnswers(frozen)
	if err != nil {
		log.Printf("[Session] Не удалось сериализовать ответы сессии %s: %v", s.id, err)
		raw = datatypes.JSON("{}")
	}

	s.result = &entity.Result{
		UserID:         s.student.ID,
		TestID:         s.test.ID,
		Username:       s.student.Username,
		TestName:       s.test.Name,
		Company:        s.test.Company,
		Score:          outcome.Score,
		Verdict:        outcome.Verdict,
		CorrectAnswers: outcome.Correct,
		TotalQuestions: outcome.Total,
		Answers:        raw,
		AutoSubmitted:  auto,
		StartedAt:      s.startedAt,
		SubmittedAt:    now,
	}

	if auto {
		log.Printf("[Session] Сессия %s (user=%d, test=%d) отправлена по истечении времени: %d/%d",
			s.id, s.student.ID, s.test.ID, outcome.Correct, outcome.Total)
	} else {
		log.Printf("[Session] Сессия %s (user=%d, test=%d) отправлена студентом: %d/%d",
			s.id, s.student.ID, s.test.ID, outcome.Correct, outcome.Total)
	}

	// Хук получает копию: результат в сессии остается для повторного сохранения
	copied := *s.result
	return &copied
}

// fireHook возвращает true, если переход в submitted произошел в этом вызове
func (s *Session) fireHook(result *entity.Result) bool {
	if result == nil {
		return false
	}
	if s.hook != nil {
		s.hook(s, result)
	}
	return true
}

// recordSave фиксирует исход сохранения результата
func (s *Session) recordSave(resultID uint, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.saveStatus = SaveStatusFailed
		s.saveErr = err.Error()
		return
	}
	s.saveStatus = SaveStatusSaved
	s.saveErr = ""
	if s.result != nil {
		s.result.ID = resultID
	}
}

// pendingResult возвращает копию результата, если предыдущее сохранение не удалось
func (s *Session) pendingResult() (*entity.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateSubmitted || s.saveStatus != SaveStatusFailed || s.result == nil {
		return nil, false
	}
	copied := *s.result
	copied.ID = 0
	s.saveStatus = SaveStatusPending
	return &copied, true
}

func (s *Session) snapshotLocked(now time.Time) Snapshot {
	answers := make(map[int]string, len(s.answers))
	for k, v := range s.answers {
		answers[k] = v
	}

	snap := Snapshot{
		SessionID:      s.id,
		TestID:         s.test.ID,
		TestName:       s.test.Name,
		UserID:         s.student.ID,
		State:          s.state,
		StartedAt:      s.startedAt,
		Deadline:       s.deadline,
		Current:        s.current,
		TotalQuestions: len(s.test.Questions),
		Answers:        answers,
		AnsweredCount:  countAnswered(answers),
		AutoSubmitted:  s.autoSubmitted,
		SaveStatus:     s.saveStatus,
		SaveError:      s.saveErr,
	}
	if s.state == StateInProgress {
		snap.RemainingSeconds = remainingSeconds(s.deadline.Sub(now))
	}
	if !s.finishedAt.IsZero() {
		finished := s.finishedAt
		snap.FinishedAt = &finished
	}
	if s.outcome != nil {
		snap.Outcome = &OutcomeSummary{
			Correct: s.outcome.Correct,
			Total:   s.outcome.Total,
			Score:   s.outcome.Score,
			Verdict: s.outcome.Verdict,
		}
	}
	if s.result != nil {
		snap.ResultID = s.result.ID
	}
	return snap
}

// remainingSeconds округляет вверх: 0.2с до конца показываются как 1
func remainingSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}

func countAnswered(answers map[int]string) int {
	n := 0
	for _, v := range answers {
		if v != "" {
			n++
		}
	}
	return n
}
