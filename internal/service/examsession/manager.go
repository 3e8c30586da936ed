package examsession

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/placement-api/internal/domain/entity"
	apperrors "github.com/yourusername/placement-api/internal/pkg/errors"
)

type attemptKey struct {
	userID uint
	testID uint
}

// startLock сериализует Start одной попытки на этом инстансе
type startLock struct {
	mu   sync.Mutex
	refs int
}

// SaveFailedPayload данные события session:save_failed
type SaveFailedPayload struct {
	SessionID string `json:"session_id"`
	TestID    uint   `json:"test_id"`
	Error     string `json:"error"`
}

// Manager владеет активными сессиями: создает их, запускает обратный отсчет
// и передает результаты на сохранение.
type Manager struct {
	config *Config
	deps   *Dependencies
	clock  Clock

	mu        sync.RWMutex
	sessions  map[string]*Session
	byAttempt map[attemptKey]string

	startMu  sync.Mutex
	starting map[attemptKey]*startLock

	countdowns sync.Map // map[string]context.CancelFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager создает менеджер сессий
func NewManager(deps *Dependencies) *Manager {
	cfg := deps.Config
	if cfg == nil {
		cfg = DefaultConfig()
	}
	clock := deps.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		config:    cfg,
		deps:      deps,
		clock:     clock,
		sessions:  make(map[string]*Session),
		byAttempt: make(map[attemptKey]string),
		starting:  make(map[attemptKey]*startLock),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start начинает попытку студента. Без подтверждения сессия не создается.
// Если у студента уже идет сессия по этому тесту, возвращается она.
func (m *Manager) Start(student Student, testID uint, confirm bool) (*Session, error) {
	if !confirm {
		return nil, ErrConfirmationRequired
	}

	key := attemptKey{userID: student.ID, testID: testID}
	unlock := m.lockStart(key)
	defer unlock()

	if s, err := m.existingAttempt(key); s != nil || err != nil {
		return s, err
	}

	attempted, err := m.deps.Results.HasResult(student.ID, testID)
	if err != nil {
		return nil, fmt.Errorf("failed to check previous attempts: %w", err)
	}
	if attempted {
		return nil, ErrAlreadyAttempted
	}

	test, err := m.deps.Tests.GetTestForSession(testID)
	if err != nil {
		return nil, err
	}

	sessionID := uuid.NewString()
	s, err := NewSession(sessionID, test, student, m.clock, m.handleSubmit)
	if err != nil {
		return nil, err
	}

	lockTTL := test.Duration() + m.config.RetainFinished
	if !m.acquireAttemptLock(key, sessionID, lockTTL) {
		return nil, ErrAttemptInProgress
	}

	m.mu.Lock()
	m.sessions[sessionID] = s
	m.byAttempt[key] = sessionID
	m.mu.Unlock()

	snap := s.Start()
	m.startCountdown(s)
	m.mirror(snap)

	log.Printf("[SessionManager] Сессия %s начата: user=%d test=%d deadline=%s",
		sessionID, student.ID, testID, snap.Deadline.Format(time.RFC3339))
	return s, nil
}

// lockStart берет блокировку попытки. Параллельный Start той же попытки
// дождется первого и вернет уже созданную сессию.
func (m *Manager) lockStart(key attemptKey) func() {
	m.startMu.Lock()
	l, ok := m.starting[key]
	if !ok {
		l = &startLock{}
		m.starting[key] = l
	}
	l.refs++
	m.startMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		m.startMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.starting, key)
		}
		m.startMu.Unlock()
	}
}

// existingAttempt возвращает идущую сессию или ошибку, если попытка уже завершена.
// Отмененная сессия освобождает попытку.
func (m *Manager) existingAttempt(key attemptKey) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byAttempt[key]
	if !ok {
		return nil, nil
	}
	s := m.sessions[id]
	if s == nil {
		delete(m.byAttempt, key)
		return nil, nil
	}
	switch s.State() {
	case StateInProgress, StateNotStarted:
		return s, nil
	case StateSubmitted:
		return nil, ErrAlreadyAttempted
	default:
		delete(m.byAttempt, key)
		return nil, nil
	}
}

// Get возвращает сессию владельца
func (m *Manager) Get(sessionID string, userID uint) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	if s.Student().ID != userID {
		return nil, ErrNotOwner
	}
	return s, nil
}

// ActiveForUser возвращает снимки незавершенных сессий пользователя
func (m *Manager) ActiveForUser(userID uint) []Snapshot {
	m.mu.RLock()
	var owned []*Session
	for _, s := range m.sessions {
		if s.Student().ID == userID {
			owned = append(owned, s)
		}
	}
	m.mu.RUnlock()

	snaps := make([]Snapshot, 0, len(owned))
	for _, s := range owned {
		snap := s.Snapshot()
		if snap.State == StateInProgress {
			snaps = append(snaps, snap)
		}
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].StartedAt.Before(snaps[j].StartedAt) })
	return snaps
}

// Snapshot возвращает состояние сессии (с ленивой проверкой дедлайна)
func (m *Manager) Snapshot(sessionID string, userID uint) (Snapshot, error) {
	s, err := m.Get(sessionID, userID)
	if err != nil {
		return Snapshot{}, err
	}
	return s.Tick(), nil
}

// SelectAnswer записывает ответ
func (m *Manager) SelectAnswer(sessionID string, userID uint, index int, letter string) (Snapshot, error) {
	s, err := m.Get(sessionID, userID)
	if err != nil {
		return Snapshot{}, err
	}
	snap := s.SelectAnswer(index, letter)
	m.mirror(snap)
	return snap, nil
}

// Advance переходит к следующему или предыдущему вопросу
func (m *Manager) Advance(sessionID string, userID uint, dir Direction) (Snapshot, error) {
	s, err := m.Get(sessionID, userID)
	if err != nil {
		return Snapshot{}, err
	}
	snap, err := s.Advance(dir)
	if err != nil {
		return snap, err
	}
	m.mirror(snap)
	return snap, nil
}

// Submit отправляет ответы студента
func (m *Manager) Submit(sessionID string, userID uint) (Snapshot, error) {
	s, err := m.Get(sessionID, userID)
	if err != nil {
		return Snapshot{}, err
	}
	return s.Submit(), nil
}

// Cancel отменяет попытку без сохранения результата
func (m *Manager) Cancel(sessionID string, userID uint, confirm bool) (Snapshot, error) {
	if !confirm {
		return Snapshot{}, ErrConfirmationRequired
	}
	s, err := m.Get(sessionID, userID)
	if err != nil {
		return Snapshot{}, err
	}

	snap, cancelled := s.Cancel()
	if !cancelled {
		return snap, nil
	}

	m.stopCountdown(sessionID)
	m.releaseAttemptLock(attemptKey{userID: userID, testID: snap.TestID}, sessionID)
	m.notify(userID, EventCancelled, snap)
	m.mirror(snap)
	log.Printf("[SessionManager] Сессия %s отменена пользователем %d", sessionID, userID)
	return snap, nil
}

// RetrySave повторяет сохранение результата после неудачи. Попытка не повторяется.
func (m *Manager) RetrySave(sessionID string, userID uint) (Snapshot, error) {
	s, err := m.Get(sessionID, userID)
	if err != nil {
		return Snapshot{}, err
	}
	result, ok := s.pendingResult()
	if !ok {
		return s.Snapshot(), ErrNothingToSave
	}
	log.Printf("[SessionManager] Повторное сохранение результата сессии %s", sessionID)
	m.persist(s, result, true)
	return s.Snapshot(), nil
}

// handleSubmit вызывается сессией ровно один раз при отправке
func (m *Manager) handleSubmit(s *Session, result *entity.Result) {
	m.stopCountdown(s.ID())
	m.persist(s, result, false)
}

// persist сохраняет результат с ограничением по времени и уведомляет клиента.
// При повторе конфликт означает, что предыдущая попытка сохранения все же прошла.
func (m *Manager) persist(s *Session, result *entity.Result, retry bool) {
	ctx, cancel := context.WithTimeout(context.Background(), m.config.SaveTimeout)
	defer cancel()

	err := m.deps.Results.PersistResult(ctx, result)
	if err != nil && retry && errors.Is(err, apperrors.ErrConflict) {
		log.Printf("[SessionManager] Результат сессии %s уже сохранен", s.ID())
		err = nil
	}
	s.recordSave(result.ID, err)

	snap := s.Snapshot()
	m.notify(snap.UserID, EventSubmitted, snap)
	if err != nil {
		log.Printf("[SessionManager] Ошибка сохранения результата сессии %s: %v", s.ID(), err)
		m.holdAttemptLock(attemptKey{userID: snap.UserID, testID: snap.TestID}, snap.SessionID)
		m.notify(snap.UserID, EventSaveFailed, SaveFailedPayload{
			SessionID: snap.SessionID,
			TestID:    snap.TestID,
			Error:     err.Error(),
		})
	}
	m.mirror(snap)
}

// RunJanitor периодически повторяет несохраненные результаты и удаляет
// из памяти давно завершенные сессии. Блокируется до отмены ctx.
func (m *Manager) RunJanitor(ctx context.Context) {
	ticker := time.NewTicker(m.config.JanitorPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			if n := m.evictFinished(); n > 0 {
				log.Printf("[SessionManager] Удалено завершенных сессий: %d", n)
			}
		}
	}
}

// evictFinished удаляет сессии, завершенные раньше RetainFinished.
// Сессия с несохраненным результатом остается в памяти и держит попытку,
// пока сохранение не пройдет.
func (m *Manager) evictFinished() int {
	cutoff := m.clock.Now().Add(-m.config.RetainFinished)

	var unsaved []*Session
	evicted := 0

	m.mu.Lock()
	for id, s := range m.sessions {
		snap := s.Snapshot()
		if !snap.State.IsFinished() {
			continue
		}
		if snap.State == StateSubmitted && snap.SaveStatus != SaveStatusSaved {
			if snap.SaveStatus == SaveStatusFailed {
				unsaved = append(unsaved, s)
			}
			continue
		}
		if snap.FinishedAt == nil || snap.FinishedAt.After(cutoff) {
			continue
		}
		key := attemptKey{userID: snap.UserID, testID: snap.TestID}
		if m.byAttempt[key] == id {
			delete(m.byAttempt, key)
		}
		delete(m.sessions, id)
		evicted++
	}
	m.mu.Unlock()

	for _, s := range unsaved {
		m.retryUnsaved(s)
	}
	return evicted
}

// retryUnsaved повторяет сохранение результата в фоне
func (m *Manager) retryUnsaved(s *Session) {
	snap := s.Snapshot()
	m.holdAttemptLock(attemptKey{userID: snap.UserID, testID: snap.TestID}, snap.SessionID)

	result, ok := s.pendingResult()
	if !ok {
		return
	}
	log.Printf("[SessionManager] Фоновое повторное сохранение результата сессии %s (user=%d test=%d)",
		snap.SessionID, snap.UserID, snap.TestID)
	m.persist(s, result, true)
}

// Count возвращает количество сессий в памяти
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Shutdown останавливает все отсчеты и ждет завершения горутин
func (m *Manager) Shutdown() {
	m.cancel()
	m.wg.Wait()
	log.Println("[SessionManager] Остановлен")
}

func (m *Manager) notify(userID uint, eventType string, data interface{}) {
	if m.deps.Notifier == nil {
		return
	}
	if err := m.deps.Notifier.SendEventToUser(fmt.Sprintf("%d", userID), eventType, data); err != nil {
		log.Printf("[SessionManager] Не удалось отправить %s пользователю %d: %v", eventType, userID, err)
	}
}

func attemptLockKey(key attemptKey) string {
	return fmt.Sprintf("session:attempt:%d:%d", key.userID, key.testID)
}

func snapshotKey(sessionID string) string {
	return "session:snapshot:" + sessionID
}

// acquireAttemptLock защищает попытку от параллельного старта на других инстансах.
// При недоступности Redis работаем без блокировки.
func (m *Manager) acquireAttemptLock(key attemptKey, sessionID string, ttl time.Duration) bool {
	if m.deps.Cache == nil {
		return true
	}
	ok, err := m.deps.Cache.SetNX(attemptLockKey(key), sessionID, ttl)
	if err != nil {
		log.Printf("[SessionManager] Redis недоступен для блокировки попытки %s: %v", attemptLockKey(key), err)
		return true
	}
	return ok
}

func (m *Manager) releaseAttemptLock(key attemptKey, sessionID string) {
	if m.deps.Cache == nil {
		return
	}
	if _, err := m.deps.Cache.CompareAndDelete(attemptLockKey(key), sessionID); err != nil {
		log.Printf("[SessionManager] Не удалось снять блокировку %s: %v", attemptLockKey(key), err)
	}
}

// holdAttemptLock продлевает блокировку попытки, пока результат не сохранен.
// Чужую блокировку не трогает.
func (m *Manager) holdAttemptLock(key attemptKey, sessionID string) {
	if m.deps.Cache == nil {
		return
	}
	lockKey := attemptLockKey(key)
	holder, err := m.deps.Cache.Get(lockKey)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		log.Printf("[SessionManager] Не удалось прочитать блокировку %s: %v", lockKey, err)
		return
	}
	if err == nil && holder != sessionID {
		return
	}
	ttl := m.config.RetainFinished + 2*m.config.JanitorPeriod
	if err := m.deps.Cache.Set(lockKey, sessionID, ttl); err != nil {
		log.Printf("[SessionManager] Не удалось продлить блокировку %s: %v", lockKey, err)
	}
}

// mirror сохраняет снимок в Redis только для наблюдения, источник истины - память
func (m *Manager) mirror(snap Snapshot) {
	if m.deps.Cache == nil {
		return
	}
	ttl := m.config.SnapshotTTL
	if snap.State == StateInProgress {
		ttl += time.Duration(snap.RemainingSeconds) * time.Second
	}
	if err := m.deps.Cache.SetJSON(snapshotKey(snap.SessionID), snap, ttl); err != nil {
		log.Printf("[SessionManager] Не удалось сохранить снимок сессии %s: %v", snap.SessionID, err)
	}
}
