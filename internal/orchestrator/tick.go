package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/marcelg7/fleetacs/internal/domain"
	"github.com/marcelg7/fleetacs/internal/limits"
	"github.com/marcelg7/fleetacs/internal/schedule"
	"github.com/marcelg7/fleetacs/internal/telemetry"
)

// Tick выполняет один проход оркестратора.
//
// Tick реентерабелен: его можно вызывать конкурентно (повторный тик,
// событие подключения, несколько процессов) — дубликаты executions
// исключены структурно. Ошибки одного workflow не блокируют остальные.
func (o *Orchestrator) Tick(ctx context.Context) error {
	started := time.Now()
	defer func() {
		telemetry.TickDuration.Observe(time.Since(started).Seconds())
	}()

	// Отмена workflow вступает в силу немедленно.
	o.sweepCancelled(ctx)

	devices, err := o.devices.ListDevices(ctx)
	if err != nil {
		return fmt.Errorf("list devices: %w", err)
	}

	active, err := o.workflows.ListByStatus(ctx, domain.WorkflowStatusActive)
	if err != nil {
		return fmt.Errorf("list active workflows: %w", err)
	}
	telemetry.ActiveWorkflows.Set(float64(len(active)))

	if len(active) == 0 {
		return nil
	}

	groups := o.loadGroups(ctx, active)
	sortWorkflows(active, groups)

	for i := range active {
		wf := &active[i]

		group, ok := groups[wf.GroupID]
		if !ok {
			o.logger.Warn("workflow group not found, skipping",
				"workflow_id", wf.ID,
				"group_id", wf.GroupID,
			)
			continue
		}

		if err := o.processWorkflow(ctx, wf, group, devices); err != nil {
			o.logger.Error("failed to process workflow",
				"workflow_id", wf.ID,
				"workflow_name", wf.Name,
				"error", err,
			)
			// Продолжаем обработку остальных.
		}
	}

	return nil
}

// loadGroups загружает группы активных workflow одним проходом.
func (o *Orchestrator) loadGroups(ctx context.Context, wfs []domain.Workflow) map[uuid.UUID]*domain.DeviceGroup {
	groups := make(map[uuid.UUID]*domain.DeviceGroup)
	for i := range wfs {
		gid := wfs[i].GroupID
		if _, ok := groups[gid]; ok {
			continue
		}
		group, err := o.groups.GetByID(ctx, gid)
		if err != nil {
			o.logger.Warn("failed to load group", "group_id", gid, "error", err)
			continue
		}
		groups[gid] = group
	}
	return groups
}

// sortWorkflows упорядочивает workflow для тика:
// приоритет группы по убыванию, затем время создания, затем id.
func sortWorkflows(wfs []domain.Workflow, groups map[uuid.UUID]*domain.DeviceGroup) {
	priority := func(w *domain.Workflow) int {
		if g, ok := groups[w.GroupID]; ok {
			return g.Priority
		}
		return 0
	}
	sort.SliceStable(wfs, func(i, j int) bool {
		pi, pj := priority(&wfs[i]), priority(&wfs[j])
		if pi != pj {
			return pi > pj
		}
		if !wfs[i].CreatedAt.Equal(wfs[j].CreatedAt) {
			return wfs[i].CreatedAt.Before(wfs[j].CreatedAt)
		}
		return wfs[i].ID.String() < wfs[j].ID.String()
	})
}

// processWorkflow обрабатывает один активный workflow за тик.
func (o *Orchestrator) processWorkflow(ctx context.Context, wf *domain.Workflow, group *domain.DeviceGroup, devices []domain.DeviceSnapshot) error {
	now := o.clk.Now()

	counts, err := o.executions.CountByStatus(ctx, wf.ID)
	if err != nil {
		return fmt.Errorf("count executions: %w", err)
	}

	// 1. Circuit breaker — до любых новых действий.
	if limits.BreakerTripped(
		counts[domain.ExecutionStatusFailed],
		counts[domain.ExecutionStatusCompleted],
		wf.StopOnFailurePercent,
	) {
		return o.tripBreaker(ctx, wf, counts)
	}

	// 2. Окно расписания.
	eligible, err := schedule.EligibleNow(wf, now)
	if err != nil {
		o.logger.Warn("bad schedule config, workflow not eligible",
			"workflow_id", wf.ID,
			"error", err,
		)
		eligible = false
	}
	// on_connect обрабатывается дальше (retry/skip), но новые executions
	// для него создаёт только событие подключения.
	if !eligible && wf.ScheduleType != domain.ScheduleOnConnect {
		return nil
	}
	createAllowed := eligible

	if !group.IsActive {
		o.logger.Debug("group inactive, workflow idle",
			"workflow_id", wf.ID,
			"group_id", group.ID,
		)
		return nil
	}

	// 3. Множество подходящих устройств.
	matched := make(map[string]bool)
	ordered := make([]string, 0, len(devices))
	for i := range devices {
		if o.matcher.Matches(group, &devices[i]) {
			matched[devices[i].DeviceID] = true
			ordered = append(ordered, devices[i].DeviceID)
		}
	}

	execs, err := o.executions.ListByWorkflow(ctx, wf.ID)
	if err != nil {
		return fmt.Errorf("list executions: %w", err)
	}
	byDevice := make(map[string]*domain.Execution, len(execs))
	for i := range execs {
		byDevice[execs[i].DeviceID] = &execs[i]
	}

	inFlight := counts[domain.ExecutionStatusQueued] + counts[domain.ExecutionStatusInProgress]

	// 4. Новые executions для устройств без записи.
	if createAllowed {
		for _, deviceID := range ordered {
			if _, exists := byDevice[deviceID]; exists {
				continue
			}
			if err := o.createExecution(ctx, wf, deviceID, &inFlight); err != nil {
				o.logger.Error("failed to create execution",
					"workflow_id", wf.ID,
					"device_id", deviceID,
					"error", err,
				)
			}
		}
	}

	// 5-6. Существующие executions: retry, re-arm, skip, зависшие.
	for i := range execs {
		e := &execs[i]
		if err := o.reviewExecution(ctx, wf, e, matched[e.DeviceID], createAllowed, &inFlight); err != nil {
			o.logger.Error("failed to review execution",
				"workflow_id", wf.ID,
				"execution_id", e.ID,
				"device_id", e.DeviceID,
				"error", err,
			)
		}
	}

	return nil
}

// tripBreaker ставит workflow на паузу по доле неудач.
func (o *Orchestrator) tripBreaker(ctx context.Context, wf *domain.Workflow, counts map[domain.ExecutionStatus]int) error {
	failed := counts[domain.ExecutionStatusFailed]
	completed := counts[domain.ExecutionStatusCompleted]

	if err := o.workflows.UpdateStatus(ctx, wf.ID, domain.WorkflowStatusPaused); err != nil {
		return fmt.Errorf("pause workflow: %w", err)
	}
	telemetry.BreakerTrips.Inc()

	o.logger.Error("circuit breaker tripped, workflow paused",
		"workflow_id", wf.ID,
		"workflow_name", wf.Name,
		"failed", failed,
		"completed", completed,
		"threshold_percent", wf.StopOnFailurePercent,
	)

	wfID := wf.ID
	o.logActivity(ctx, &domain.LogEntry{
		WorkflowID: &wfID,
		Level:      domain.LogLevelError,
		Message:    "circuit breaker tripped: workflow paused",
		Context: map[string]any{
			"failed":            failed,
			"completed":         completed,
			"threshold_percent": wf.StopOnFailurePercent,
		},
	})
	return nil
}

// createExecution создаёт execution для пары и сразу пытается поставить
// задачу в очередь.
func (o *Orchestrator) createExecution(ctx context.Context, wf *domain.Workflow, deviceID string, inFlight *int) error {
	now := o.clk.Now()

	// Создание подчиняется тем же лимитам, что и постановка в очередь:
	// нет смысла плодить pending, которые нельзя отправить.
	if !limits.ConcurrencyOK(*inFlight, wf.MaxConcurrent) {
		return nil
	}
	if !o.rate.Allow(wf.ID, wf.RateLimit, now) {
		return nil
	}

	ok, err := o.dependencySatisfied(ctx, wf, deviceID)
	if err != nil {
		return fmt.Errorf("dependency gate: %w", err)
	}
	if !ok {
		// Ожидаемое состояние, не ошибка и не запись в журнале.
		return nil
	}

	exec := domain.NewExecution(wf.ID, deviceID, now)
	created, err := o.executions.CreateIfAbsent(ctx, exec)
	if err != nil {
		return fmt.Errorf("create execution: %w", err)
	}
	if !created {
		// Конкурентный тик успел первым.
		return nil
	}
	telemetry.ExecutionsCreated.Inc()

	wfID := wf.ID
	execID := exec.ID
	o.logActivity(ctx, &domain.LogEntry{
		WorkflowID:  &wfID,
		ExecutionID: &execID,
		DeviceID:    deviceID,
		Level:       domain.LogLevelInfo,
		Message:     "execution created",
	})

	return o.queuePending(ctx, wf, deviceID, inFlight)
}

// dependencySatisfied — dependency gate: workflow-пререквизит должен
// быть COMPLETED для устройства.
func (o *Orchestrator) dependencySatisfied(ctx context.Context, wf *domain.Workflow, deviceID string) (bool, error) {
	if wf.DependsOnWorkflowID == nil {
		return true, nil
	}
	return o.executions.HasCompleted(ctx, *wf.DependsOnWorkflowID, deviceID)
}

// reviewExecution применяет решения тика к существующему execution.
func (o *Orchestrator) reviewExecution(ctx context.Context, wf *domain.Workflow, e *domain.Execution, matched, createAllowed bool, inFlight *int) error {
	now := o.clk.Now()

	switch {
	// Устройство выпало из группы: pending/queued пропускаем,
	// in-progress оставляем доезжать.
	case !matched && !e.Status.IsTerminal() && e.Status != domain.ExecutionStatusInProgress:
		return o.skipExecution(ctx, wf, e.DeviceID, "device no longer matches group")

	// Созревший retry.
	case matched && e.Status == domain.ExecutionStatusPending && e.RetryReady(now):
		// Для on_connect retry гоняет тик: пререквизитное подключение
		// уже было при создании execution.
		if createAllowed || wf.ScheduleType == domain.ScheduleOnConnect {
			return o.queuePending(ctx, wf, e.DeviceID, inFlight)
		}
		return nil

	// Устройство вернулось в группу после skip — перевзводим,
	// если workflow не одноразовый.
	case matched && e.Status == domain.ExecutionStatusSkipped && !wf.RunOncePerDevice && createAllowed:
		return o.rearmExecution(ctx, wf, e.DeviceID, inFlight)

	// Зависший in-progress.
	case e.Status == domain.ExecutionStatusInProgress && e.UpdatedAt.Add(o.stuckAfter).Before(now):
		return o.failStuck(ctx, wf, e.DeviceID)

	default:
		return nil
	}
}

// queuePending под блокировкой пары перечитывает execution и, если он
// всё ещё ждёт отправки, ставит задачу в очередь.
func (o *Orchestrator) queuePending(ctx context.Context, wf *domain.Workflow, deviceID string, inFlight *int) error {
	unlock := o.pairs.lock(wf.ID, deviceID)
	defer unlock()

	e, err := o.executions.GetByPair(ctx, wf.ID, deviceID)
	if err != nil {
		return fmt.Errorf("get execution: %w", err)
	}
	if !e.RetryReady(o.clk.Now()) {
		// Конкурентный тик уже отправил задачу.
		return nil
	}
	return o.queueLocked(ctx, wf, e, inFlight)
}

// queueLocked выполняет переход PENDING → QUEUED. Вызывается только под
// блокировкой пары.
func (o *Orchestrator) queueLocked(ctx context.Context, wf *domain.Workflow, e *domain.Execution, inFlight *int) error {
	now := o.clk.Now()

	if !limits.ConcurrencyOK(*inFlight, wf.MaxConcurrent) {
		return nil
	}
	// Локальный счётчик видит только свой тик; конкурентный тик мог
	// успеть поставить свои задачи. При включённом лимите перечитываем
	// счётчики из хранилища уже под блокировкой пары.
	if wf.MaxConcurrent > 0 {
		counts, err := o.executions.CountByStatus(ctx, wf.ID)
		if err != nil {
			return fmt.Errorf("count in-flight executions: %w", err)
		}
		open := counts[domain.ExecutionStatusQueued] + counts[domain.ExecutionStatusInProgress]
		if open > *inFlight {
			*inFlight = open
		}
		if !limits.ConcurrencyOK(*inFlight, wf.MaxConcurrent) {
			return nil
		}
	}
	if !o.rate.Allow(wf.ID, wf.RateLimit, now) {
		return nil
	}

	taskRef, dispatchErr := o.dispatcher.Enqueue(ctx, e.DeviceID, wf.TaskType, wf.Parameters)
	now = o.clk.Now()

	if dispatchErr != nil {
		// DispatchError: попытка потрачена, дальше обычная retry-политика.
		_ = e.MarkQueued("", now)
		_ = e.MarkFailed(map[string]any{"error": dispatchErr.Error()}, wf.Retry(), now)
		o.rate.Record(wf.ID, now)
		telemetry.DispatchFailures.Inc()

		if err := o.executions.Update(ctx, e); err != nil {
			return fmt.Errorf("update execution after dispatch failure: %w", err)
		}

		wfID := wf.ID
		execID := e.ID
		o.logActivity(ctx, &domain.LogEntry{
			WorkflowID:  &wfID,
			ExecutionID: &execID,
			DeviceID:    e.DeviceID,
			Level:       domain.LogLevelWarning,
			Message:     "dispatch failed",
			Context:     map[string]any{"error": dispatchErr.Error(), "attempt": e.Attempt},
		})
		if e.Status == domain.ExecutionStatusFailed {
			telemetry.ExecutionsFailed.Inc()
		}
		return nil
	}

	if err := e.MarkQueued(taskRef, now); err != nil {
		return err
	}
	o.rate.Record(wf.ID, now)
	*inFlight++
	telemetry.ExecutionsQueued.Inc()

	if err := o.executions.Update(ctx, e); err != nil {
		return fmt.Errorf("update queued execution: %w", err)
	}

	o.logger.Debug("execution queued",
		"workflow_id", wf.ID,
		"device_id", e.DeviceID,
		"task_ref", taskRef,
		"attempt", e.Attempt,
	)
	return nil
}

// skipExecution помечает execution пропущенным.
func (o *Orchestrator) skipExecution(ctx context.Context, wf *domain.Workflow, deviceID, reason string) error {
	unlock := o.pairs.lock(wf.ID, deviceID)
	defer unlock()

	e, err := o.executions.GetByPair(ctx, wf.ID, deviceID)
	if err != nil {
		return fmt.Errorf("get execution: %w", err)
	}
	if e.Status.IsTerminal() || e.Status == domain.ExecutionStatusInProgress {
		return nil
	}

	if err := e.MarkSkipped(reason, o.clk.Now()); err != nil {
		return err
	}
	if err := o.executions.Update(ctx, e); err != nil {
		return fmt.Errorf("update skipped execution: %w", err)
	}
	telemetry.ExecutionsSkipped.Inc()

	wfID := wf.ID
	execID := e.ID
	o.logActivity(ctx, &domain.LogEntry{
		WorkflowID:  &wfID,
		ExecutionID: &execID,
		DeviceID:    deviceID,
		Level:       domain.LogLevelInfo,
		Message:     "execution skipped",
		Context:     map[string]any{"reason": reason},
	})
	return nil
}

// rearmExecution возвращает пропущенный execution в PENDING и пытается
// поставить его в очередь.
func (o *Orchestrator) rearmExecution(ctx context.Context, wf *domain.Workflow, deviceID string, inFlight *int) error {
	unlock := o.pairs.lock(wf.ID, deviceID)
	defer unlock()

	e, err := o.executions.GetByPair(ctx, wf.ID, deviceID)
	if err != nil {
		return fmt.Errorf("get execution: %w", err)
	}
	if e.Status != domain.ExecutionStatusSkipped {
		return nil
	}

	if err := e.Rearm(o.clk.Now()); err != nil {
		return err
	}
	if err := o.executions.Update(ctx, e); err != nil {
		return fmt.Errorf("update rearmed execution: %w", err)
	}
	return o.queueLocked(ctx, wf, e, inFlight)
}

// failStuck добивает зависший in-progress execution как неудачу,
// чтобы он не блокировал retry бесконечно.
func (o *Orchestrator) failStuck(ctx context.Context, wf *domain.Workflow, deviceID string) error {
	unlock := o.pairs.lock(wf.ID, deviceID)
	defer unlock()

	e, err := o.executions.GetByPair(ctx, wf.ID, deviceID)
	if err != nil {
		return fmt.Errorf("get execution: %w", err)
	}
	now := o.clk.Now()
	if e.Status != domain.ExecutionStatusInProgress || !e.UpdatedAt.Add(o.stuckAfter).Before(now) {
		return nil
	}

	if err := e.MarkFailed(map[string]any{
		"error": fmt.Sprintf("no task events for %s, treated as failed", o.stuckAfter),
	}, wf.Retry(), now); err != nil {
		return err
	}
	if err := o.executions.Update(ctx, e); err != nil {
		return fmt.Errorf("update stuck execution: %w", err)
	}
	if e.Status == domain.ExecutionStatusFailed {
		telemetry.ExecutionsFailed.Inc()
	}

	wfID := wf.ID
	execID := e.ID
	o.logActivity(ctx, &domain.LogEntry{
		WorkflowID:  &wfID,
		ExecutionID: &execID,
		DeviceID:    deviceID,
		Level:       domain.LogLevelWarning,
		Message:     "stuck execution failed by sweeper",
		Context:     map[string]any{"stuck_after": o.stuckAfter.String()},
	})
	return nil
}

// sweepCancelled закрывает открытые executions отменённых workflow.
// In-progress задачи не прерываются: внешнюю задачу уже не вернуть,
// её результат просто доедет до терминала.
func (o *Orchestrator) sweepCancelled(ctx context.Context) {
	cancelled, err := o.workflows.ListByStatus(ctx, domain.WorkflowStatusCancelled)
	if err != nil {
		o.logger.Warn("failed to list cancelled workflows", "error", err)
		return
	}

	for i := range cancelled {
		wf := &cancelled[i]

		execs, err := o.executions.ListByWorkflow(ctx, wf.ID)
		if err != nil {
			o.logger.Warn("failed to list executions of cancelled workflow",
				"workflow_id", wf.ID,
				"error", err,
			)
			continue
		}

		for j := range execs {
			e := &execs[j]
			if e.Status.IsTerminal() || e.Status == domain.ExecutionStatusInProgress {
				continue
			}
			if err := o.cancelExecution(ctx, wf, e.DeviceID); err != nil {
				o.logger.Warn("failed to cancel execution",
					"workflow_id", wf.ID,
					"execution_id", e.ID,
					"error", err,
				)
			}
		}
		o.rate.Forget(wf.ID)
	}
}

// cancelExecution помечает execution отменённым под блокировкой пары.
func (o *Orchestrator) cancelExecution(ctx context.Context, wf *domain.Workflow, deviceID string) error {
	unlock := o.pairs.lock(wf.ID, deviceID)
	defer unlock()

	e, err := o.executions.GetByPair(ctx, wf.ID, deviceID)
	if err != nil {
		return fmt.Errorf("get execution: %w", err)
	}
	if e.Status.IsTerminal() || e.Status == domain.ExecutionStatusInProgress {
		return nil
	}

	if err := e.MarkCancelled(o.clk.Now()); err != nil {
		return err
	}
	return o.executions.Update(ctx, e)
}
