package examsession

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/placement-api/internal/domain/entity"
	apperrors "github.com/yourusername/placement-api/internal/pkg/errors"
)

// ============================================================================
// Вспомогательные типы
// ============================================================================

// fakeClock управляемые часы для тестов
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// hookRecorder запоминает результаты, переданные в SubmitHook
type hookRecorder struct {
	mu      sync.Mutex
	results []*entity.Result
}

func (h *hookRecorder) hook(_ *Session, r *entity.Result) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.results = append(h.results, r)
}

func (h *hookRecorder) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.results)
}

func (h *hookRecorder) last() *entity.Result {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.results) == 0 {
		return nil
	}
	return h.results[len(h.results)-1]
}

// newTestEntity создает тест с ключами A, B, C, ... по кругу из четырех вариантов
func newTestEntity(questions int, durationMinutes int) *entity.Test {
	test := &entity.Test{
		ID:              42,
		Name:            "Aptitude",
		Company:         "TCS",
		DurationMinutes: durationMinutes,
		Status:          entity.TestStatusActive,
	}
	for i := 0; i < questions; i++ {
		test.Questions = append(test.Questions, entity.Question{
			ID:            uint(i + 1),
			TestID:        42,
			Position:      i,
			Type:          entity.QuestionTypeMCQSingle,
			Text:          "question",
			Options:       entity.StringArray{"w", "x", "y", "z"},
			CorrectOption: entity.OptionLetter(i % 4),
		})
	}
	return test
}

var testStudent = Student{ID: 7, Username: "asha", FullName: "Asha Verma"}

func startedSession(t *testing.T, questions, minutes int) (*Session, *fakeClock, *hookRecorder) {
	t.Helper()
	clock := newFakeClock()
	rec := &hookRecorder{}
	s, err := NewSession("sess-1", newTestEntity(questions, minutes), testStudent, clock, rec.hook)
	require.NoError(t, err)
	s.Start()
	return s, clock, rec
}

// ============================================================================
// Создание и старт
// ============================================================================

func TestNewSession_RejectsInvalidTests(t *testing.T) {
	clock := newFakeClock()

	_, err := NewSession("s", newTestEntity(0, 10), testStudent, clock, nil)
	assert.ErrorIs(t, err, ErrEmptyTest)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = NewSession("s", newTestEntity(3, 0), testStudent, clock, nil)
	assert.ErrorIs(t, err, ErrInvalidDuration)

	_, err = NewSession("s", nil, testStudent, clock, nil)
	assert.ErrorIs(t, err, ErrEmptyTest)
}

func TestSession_Start(t *testing.T) {
	// Arrange
	clock := newFakeClock()
	s, err := NewSession("sess-1", newTestEntity(5, 30), testStudent, clock, nil)
	require.NoError(t, err)
	assert.Equal(t, StateNotStarted, s.State())

	// Act
	snap := s.Start()

	// Assert
	assert.Equal(t, StateInProgress, snap.State)
	assert.Equal(t, clock.Now(), snap.StartedAt)
	assert.Equal(t, clock.Now().Add(30*time.Minute), snap.Deadline)
	assert.Equal(t, 30*60, snap.RemainingSeconds)
	assert.Equal(t, 0, snap.Current)
	assert.Empty(t, snap.Answers)
	assert.Equal(t, 5, snap.TotalQuestions)

	// Повторный Start не сдвигает дедлайн
	clock.Advance(time.Minute)
	again := s.Start()
	assert.Equal(t, snap.Deadline, again.Deadline)
}

func TestSession_OperationsBeforeStartAreNoOps(t *testing.T) {
	rec := &hookRecorder{}
	s, err := NewSession("s", newTestEntity(2, 5), testStudent, newFakeClock(), rec.hook)
	require.NoError(t, err)

	s.SelectAnswer(0, "A")
	snap := s.Submit()

	assert.Equal(t, StateNotStarted, snap.State)
	assert.Empty(t, snap.Answers)
	assert.Equal(t, 0, rec.count())
}

// ============================================================================
// Ответы и навигация
// ============================================================================

func TestSession_SelectAnswer_LastWriteWins(t *testing.T) {
	s, _, _ := startedSession(t, 3, 10)

	s.SelectAnswer(1, "A")
	snap := s.SelectAnswer(1, "D")

	assert.Equal(t, map[int]string{1: "D"}, snap.Answers)
	assert.Equal(t, 1, snap.AnsweredCount)
}

func TestSession_SelectAnswer_OutOfRangeIgnored(t *testing.T) {
	s, _, _ := startedSession(t, 3, 10)

	s.SelectAnswer(-1, "A")
	snap := s.SelectAnswer(3, "A")

	assert.Empty(t, snap.Answers)
}

func TestSession_SelectAnswer_LetterNotValidated(t *testing.T) {
	s, _, _ := startedSession(t, 1, 10)

	snap := s.SelectAnswer(0, "Q")

	assert.Equal(t, "Q", snap.Answers[0])
}

func TestSession_Advance_Clamped(t *testing.T) {
	s, _, _ := startedSession(t, 3, 10)

	// previous на первом вопросе остается на месте
	snap, err := s.Advance(DirectionPrevious)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Current)

	s.Advance(DirectionNext)
	s.Advance(DirectionNext)
	snap, _ = s.Advance(DirectionNext)
	assert.Equal(t, 2, snap.Current, "next на последнем вопросе остается на месте")

	snap, _ = s.Advance(DirectionPrevious)
	assert.Equal(t, 1, snap.Current)
}

func TestSession_Advance_InvalidDirection(t *testing.T) {
	s, _, _ := startedSession(t, 3, 10)

	_, err := s.Advance("sideways")

	assert.ErrorIs(t, err, ErrInvalidDirection)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

// ============================================================================
// Отправка
// ============================================================================

func TestSession_Submit_EmitsSingleResult(t *testing.T) {
	// Arrange
	s, clock, rec := startedSession(t, 4, 10)
	s.SelectAnswer(0, "A")
	s.SelectAnswer(1, "B")
	s.SelectAnswer(2, "A") // неверно, ключ C
	clock.Advance(2 * time.Minute)

	// Act
	snap := s.Submit()
	second := s.Submit()

	// Assert
	assert.Equal(t, StateSubmitted, snap.State)
	require.Equal(t, 1, rec.count(), "двойная отправка дает один результат")
	res := rec.last()
	assert.Equal(t, uint(7), res.UserID)
	assert.Equal(t, uint(42), res.TestID)
	assert.Equal(t, "asha", res.Username)
	assert.Equal(t, "Aptitude", res.TestName)
	assert.Equal(t, "TCS", res.Company)
	assert.Equal(t, 2, res.CorrectAnswers)
	assert.Equal(t, 4, res.TotalQuestions)
	assert.Equal(t, 50, res.Score)
	assert.Equal(t, entity.VerdictFailed, res.Verdict)
	assert.False(t, res.AutoSubmitted)
	assert.Equal(t, clock.Now(), res.SubmittedAt)
	assert.Equal(t, map[int]string{0: "A", 1: "B", 2: "A"}, res.AnswerSheet())

	assert.Equal(t, StateSubmitted, second.State)
	require.NotNil(t, second.Outcome)
	assert.Equal(t, 50, second.Outcome.Score)

	select {
	case <-s.Done():
	default:
		t.Fatal("Done() должен быть закрыт после отправки")
	}
}

func TestSession_Submit_NoAnswers(t *testing.T) {
	s, _, rec := startedSession(t, 3, 10)

	s.Submit()

	require.Equal(t, 1, rec.count())
	assert.Equal(t, 0, rec.last().Score)
	assert.Equal(t, entity.VerdictFailed, rec.last().Verdict)
}

func TestSession_Submit_AllCorrect(t *testing.T) {
	s, _, rec := startedSession(t, 5, 10)
	for i := 0; i < 5; i++ {
		s.SelectAnswer(i, entity.OptionLetter(i%4))
	}

	s.Submit()

	assert.Equal(t, 100, rec.last().Score)
	assert.Equal(t, entity.VerdictPassed, rec.last().Verdict)
}

func TestSession_MutationsAfterSubmitIgnored(t *testing.T) {
	s, _, _ := startedSession(t, 3, 10)
	s.SelectAnswer(0, "A")
	s.Submit()

	s.SelectAnswer(0, "B")
	snap, _ := s.Advance(DirectionNext)

	assert.Equal(t, "A", snap.Answers[0], "ответы заморожены")
	assert.Equal(t, 0, snap.Current)
}

// ============================================================================
// Дедлайн
// ============================================================================

func TestSession_Tick_BeforeDeadline(t *testing.T) {
	s, clock, rec := startedSession(t, 2, 1)
	clock.Advance(59*time.Second + 200*time.Millisecond)

	snap := s.Tick()

	assert.Equal(t, StateInProgress, snap.State)
	assert.Equal(t, 1, snap.RemainingSeconds, "остаток округляется вверх")
	assert.Equal(t, 0, rec.count())
}

func TestSession_Tick_AutoSubmitsExactlyOnce(t *testing.T) {
	// Arrange
	s, clock, rec := startedSession(t, 2, 1)
	s.SelectAnswer(0, "A")

	// Act: время вышло, несколько поздних тиков
	clock.Advance(61 * time.Second)
	first := s.Tick()
	s.SelectAnswer(1, "B")
	s.Tick()
	clock.Advance(time.Hour)
	s.Tick()

	// Assert
	assert.Equal(t, StateSubmitted, first.State)
	assert.True(t, first.AutoSubmitted)
	require.Equal(t, 1, rec.count())
	assert.Equal(t, map[int]string{0: "A"}, rec.last().AnswerSheet(), "ответы на момент истечения")
	assert.True(t, rec.last().AutoSubmitted)
	assert.Equal(t, 0, first.RemainingSeconds)
}

func TestSession_LateMutationSubmitsInstead(t *testing.T) {
	s, clock, rec := startedSession(t, 2, 1)
	s.SelectAnswer(0, "A")
	clock.Advance(time.Minute) // ровно дедлайн

	snap := s.SelectAnswer(1, "B")

	assert.Equal(t, StateSubmitted, snap.State)
	require.Equal(t, 1, rec.count())
	assert.Equal(t, map[int]string{0: "A"}, rec.last().AnswerSheet())
}

func TestSession_ConcurrentSubmitAndTick(t *testing.T) {
	// Ручная отправка и отправка по дедлайну гонятся: результат должен быть один
	for i := 0; i < 50; i++ {
		s, clock, rec := startedSession(t, 3, 1)
		clock.Advance(time.Minute)

		var wg sync.WaitGroup
		for j := 0; j < 4; j++ {
			wg.Add(2)
			go func() { defer wg.Done(); s.Submit() }()
			go func() { defer wg.Done(); s.Tick() }()
		}
		wg.Wait()

		require.Equal(t, 1, rec.count())
	}
}

// ============================================================================
// Отмена
// ============================================================================

func TestSession_Cancel_ThenLateTickProducesNothing(t *testing.T) {
	s, clock, rec := startedSession(t, 2, 1)
	s.SelectAnswer(0, "A")

	snap, cancelled := s.Cancel()
	clock.Advance(2 * time.Minute)
	late := s.Tick()

	assert.True(t, cancelled)
	assert.Equal(t, StateCancelled, snap.State)
	assert.Equal(t, StateCancelled, late.State)
	assert.Equal(t, 0, rec.count())
	select {
	case <-s.Done():
	default:
		t.Fatal("Done() должен быть закрыт после отмены")
	}
}

func TestSession_Cancel_AfterSubmitIsNoOp(t *testing.T) {
	s, _, rec := startedSession(t, 2, 1)
	s.Submit()

	snap, cancelled := s.Cancel()

	assert.False(t, cancelled)
	assert.Equal(t, StateSubmitted, snap.State)
	assert.Equal(t, 1, rec.count())
}

func TestSession_Cancel_AfterDeadlineSubmits(t *testing.T) {
	s, clock, rec := startedSession(t, 2, 1)
	clock.Advance(2 * time.Minute)

	snap, cancelled := s.Cancel()

	assert.False(t, cancelled)
	assert.Equal(t, StateSubmitted, snap.State)
	assert.Equal(t, 1, rec.count())
}

// ============================================================================
// Статус сохранения
// ============================================================================

func TestSession_RecordSave(t *testing.T) {
	s, _, _ := startedSession(t, 1, 1)
	s.Submit()
	assert.Equal(t, SaveStatusPending, s.Snapshot().SaveStatus)

	s.recordSave(0, assert.AnError)
	snap := s.Snapshot()
	assert.Equal(t, SaveStatusFailed, snap.SaveStatus)
	assert.Equal(t, assert.AnError.Error(), snap.SaveError)

	pending, ok := s.pendingResult()
	require.True(t, ok)
	assert.Equal(t, uint(42), pending.TestID)
	assert.Equal(t, SaveStatusPending, s.Snapshot().SaveStatus)

	_, ok = s.pendingResult()
	assert.False(t, ok, "повтор уже в процессе")

	s.recordSave(99, nil)
	snap = s.Snapshot()
	assert.Equal(t, SaveStatusSaved, snap.SaveStatus)
	assert.Equal(t, uint(99), snap.ResultID)
	assert.Empty(t, snap.SaveError)
}

func TestRemainingSeconds(t *testing.T) {
	assert.Equal(t, 0, remainingSeconds(-time.Second))
	assert.Equal(t, 0, remainingSeconds(0))
	assert.Equal(t, 1, remainingSeconds(time.Millisecond))
	assert.Equal(t, 60, remainingSeconds(time.Minute))
}
