// Package limits ограничивает темп развёртывания:
// скользящее окно постановок в очередь, потолок одновременных задач
// и circuit breaker по доле неудач.
package limits

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Window — длина скользящего окна rate limit.
const Window = time.Hour

// RateWindow — скользящий счётчик постановок в очередь на workflow.
//
// Семантика: не более limit новых переходов в QUEUED за трейлинг-час,
// а не за календарный. RateWindow потокобезопасен: в него пишут
// конкурентные тики.
type RateWindow struct {
	mu     sync.Mutex
	events map[uuid.UUID][]time.Time
}

// NewRateWindow создаёт пустой RateWindow.
func NewRateWindow() *RateWindow {
	return &RateWindow{events: make(map[uuid.UUID][]time.Time)}
}

// Allow возвращает true, если workflow ещё не исчерпал лимит
// постановок за последний час. limit=0 — без ограничения.
func (w *RateWindow) Allow(workflowID uuid.UUID, limit int, now time.Time) bool {
	if limit <= 0 {
		return true
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.prune(workflowID, now)) < limit
}

// Record фиксирует постановку в очередь.
func (w *RateWindow) Record(workflowID uuid.UUID, now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.events[workflowID] = append(w.prune(workflowID, now), now)
}

// Count возвращает количество постановок за последний час.
func (w *RateWindow) Count(workflowID uuid.UUID, now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.prune(workflowID, now))
}

// Forget сбрасывает окно workflow (при удалении/отмене).
func (w *RateWindow) Forget(workflowID uuid.UUID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.events, workflowID)
}

// prune выбрасывает события старше окна. Вызывается под mu.
func (w *RateWindow) prune(workflowID uuid.UUID, now time.Time) []time.Time {
	cutoff := now.Add(-Window)
	kept := w.events[workflowID][:0]
	for _, t := range w.events[workflowID] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		delete(w.events, workflowID)
		return nil
	}
	w.events[workflowID] = kept
	return kept
}

// ConcurrencyOK возвращает true, если открытие ещё одной задачи не
// превысит потолок. inFlight — текущее число QUEUED+IN_PROGRESS,
// maxConcurrent=0 — без ограничения.
func ConcurrencyOK(inFlight, maxConcurrent int) bool {
	return maxConcurrent <= 0 || inFlight < maxConcurrent
}

// BreakerTripped вычисляет circuit breaker по терминальным executions.
//
// Срабатывает, когда failed/(failed+completed)*100 >= stopPercent
// при включённом пороге (stopPercent > 0). Пока ни одна задача не
// дошла до терминала, доля неопределима и breaker молчит.
func BreakerTripped(failed, completed, stopPercent int) bool {
	if stopPercent <= 0 {
		return false
	}
	finished := failed + completed
	if finished == 0 {
		return false
	}
	return failed*100 >= stopPercent*finished
}
