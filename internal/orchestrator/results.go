package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/marcelg7/fleetacs/internal/domain"
	"github.com/marcelg7/fleetacs/internal/mq"
	"github.com/marcelg7/fleetacs/internal/repo"
	"github.com/marcelg7/fleetacs/internal/telemetry"
)

// HandleTaskResult обрабатывает асинхронное событие задачи от
// диспетчера. Реализует dispatch.ResultHandler.
//
// Неизвестный taskRef не считается ошибкой: результат мог прийти после
// каскадного удаления workflow.
func (o *Orchestrator) HandleTaskResult(ctx context.Context, taskRef, deviceID, status string, result map[string]any) error {
	e, err := o.executions.GetByTaskRef(ctx, taskRef)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			o.logger.Debug("task result for unknown execution, ignoring",
				"task_ref", taskRef,
				"device_id", deviceID,
			)
			return nil
		}
		return fmt.Errorf("get execution by task ref: %w", err)
	}

	unlock := o.pairs.lock(e.WorkflowID, e.DeviceID)
	defer unlock()

	// Перечитываем под блокировкой: результат мог обогнать тик.
	e, err = o.executions.GetByTaskRef(ctx, taskRef)
	if err != nil {
		return fmt.Errorf("get execution by task ref: %w", err)
	}
	if e.Status.IsTerminal() {
		o.logger.Debug("task result for terminal execution, ignoring",
			"task_ref", taskRef,
			"execution_id", e.ID,
			"status", e.Status,
		)
		return nil
	}

	now := o.clk.Now()

	switch status {
	case mq.TaskResultStarted:
		if err := e.MarkInProgress(now); err != nil {
			// Повторное started или событие после retry — не фатально.
			o.logger.Debug("ignoring started event", "execution_id", e.ID, "error", err)
			return nil
		}
		return o.executions.Update(ctx, e)

	case mq.TaskResultSuccess:
		if err := e.MarkCompleted(result, now); err != nil {
			return err
		}
		if err := o.executions.Update(ctx, e); err != nil {
			return fmt.Errorf("update completed execution: %w", err)
		}
		telemetry.ExecutionsCompleted.Inc()

		wfID := e.WorkflowID
		execID := e.ID
		o.logActivity(ctx, &domain.LogEntry{
			WorkflowID:  &wfID,
			ExecutionID: &execID,
			DeviceID:    e.DeviceID,
			Level:       domain.LogLevelInfo,
			Message:     "execution completed",
		})
		return nil

	case mq.TaskResultFailure:
		wf, err := o.workflows.GetByID(ctx, e.WorkflowID)
		if err != nil {
			return fmt.Errorf("get workflow: %w", err)
		}

		if err := e.MarkFailed(result, wf.Retry(), now); err != nil {
			return err
		}
		if err := o.executions.Update(ctx, e); err != nil {
			return fmt.Errorf("update failed execution: %w", err)
		}

		level := domain.LogLevelWarning
		message := "attempt failed, retry scheduled"
		if e.Status == domain.ExecutionStatusFailed {
			telemetry.ExecutionsFailed.Inc()
			level = domain.LogLevelError
			message = "execution failed, retries exhausted"
		}

		wfID := e.WorkflowID
		execID := e.ID
		o.logActivity(ctx, &domain.LogEntry{
			WorkflowID:  &wfID,
			ExecutionID: &execID,
			DeviceID:    e.DeviceID,
			Level:       level,
			Message:     message,
			Context:     map[string]any{"attempt": e.Attempt},
		})
		return nil

	default:
		return fmt.Errorf("%w: %q", ErrUnknownTaskStatus, status)
	}
}

// HandleDeviceConnect обрабатывает событие подключения устройства —
// единственный путь создания executions для on_connect workflow.
func (o *Orchestrator) HandleDeviceConnect(ctx context.Context, deviceID string) error {
	snap, err := o.devices.GetDevice(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("get device: %w", err)
	}

	active, err := o.workflows.ListByStatus(ctx, domain.WorkflowStatusActive)
	if err != nil {
		return fmt.Errorf("list active workflows: %w", err)
	}

	onConnect := active[:0]
	for i := range active {
		if active[i].ScheduleType == domain.ScheduleOnConnect {
			onConnect = append(onConnect, active[i])
		}
	}
	if len(onConnect) == 0 {
		return nil
	}

	groups := o.loadGroups(ctx, onConnect)
	sortWorkflows(onConnect, groups)

	for i := range onConnect {
		wf := &onConnect[i]

		group, ok := groups[wf.GroupID]
		if !ok || !group.IsActive {
			continue
		}
		if !o.matcher.Matches(group, snap) {
			continue
		}

		counts, err := o.executions.CountByStatus(ctx, wf.ID)
		if err != nil {
			o.logger.Error("failed to count executions",
				"workflow_id", wf.ID,
				"error", err,
			)
			continue
		}
		inFlight := counts[domain.ExecutionStatusQueued] + counts[domain.ExecutionStatusInProgress]

		if err := o.connectDevice(ctx, wf, deviceID, &inFlight); err != nil {
			o.logger.Error("failed to process device connect",
				"workflow_id", wf.ID,
				"device_id", deviceID,
				"error", err,
			)
		}
	}
	return nil
}

// connectDevice создаёт execution по событию подключения либо
// переотправляет созревший retry.
func (o *Orchestrator) connectDevice(ctx context.Context, wf *domain.Workflow, deviceID string, inFlight *int) error {
	_, err := o.executions.GetByPair(ctx, wf.ID, deviceID)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return o.createExecution(ctx, wf, deviceID, inFlight)
	case err != nil:
		return fmt.Errorf("get execution: %w", err)
	default:
		return o.queuePending(ctx, wf, deviceID, inFlight)
	}
}
