package examsession

import (
	"context"
	"log"
	"time"
)

// TickPayload данные события session:tick
type TickPayload struct {
	SessionID        string `json:"session_id"`
	RemainingSeconds int    `json:"remaining_seconds"`
	Deadline         string `json:"deadline"`
}

// startCountdown запускает горутину обратного отсчета для сессии
func (m *Manager) startCountdown(s *Session) {
	ctx, cancel := context.WithCancel(m.ctx)
	m.countdowns.Store(s.ID(), cancel)

	m.wg.Add(1)
	go m.runCountdown(ctx, s)
}

// runCountdown каждые TickInterval проверяет дедлайн и отправляет остаток времени.
// Завершается при отправке, отмене сессии или остановке менеджера.
func (m *Manager) runCountdown(ctx context.Context, s *Session) {
	defer m.wg.Done()
	defer func() {
		if cancel, ok := m.countdowns.LoadAndDelete(s.ID()); ok {
			cancel.(context.CancelFunc)()
		}
	}()

	ticker := time.NewTicker(m.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[Countdown] Сессия %s: отсчет остановлен", s.ID())
			return
		case <-s.Done():
			return
		case <-ticker.C:
			snap := s.Tick()
			if snap.State != StateInProgress {
				// Отправка произошла внутри Tick, хук уже уведомил клиента
				return
			}
			m.notify(snap.UserID, EventTick, TickPayload{
				SessionID:        snap.SessionID,
				RemainingSeconds: snap.RemainingSeconds,
				Deadline:         snap.Deadline.UTC().Format(time.RFC3339),
			})
		}
	}
}

// stopCountdown останавливает отсчет сессии, если он запущен
func (m *Manager) stopCountdown(sessionID string) {
	if cancel, ok := m.countdowns.LoadAndDelete(sessionID); ok {
		cancel.(context.CancelFunc)()
	}
}
