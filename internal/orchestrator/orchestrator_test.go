package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/marcelg7/fleetacs/internal/clock"
	"github.com/marcelg7/fleetacs/internal/domain"
	"github.com/marcelg7/fleetacs/internal/mq"
	"github.com/marcelg7/fleetacs/internal/repo"
)

// --- In-memory fakes ---

// fakeStore реализует все store-интерфейсы оркестратора поверх map.
type fakeStore struct {
	mu        sync.Mutex
	groups    map[uuid.UUID]*domain.DeviceGroup
	workflows map[uuid.UUID]*domain.Workflow
	execs     map[string]*domain.Execution
	devices   []domain.DeviceSnapshot
	logs      []domain.LogEntry
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		groups:    make(map[uuid.UUID]*domain.DeviceGroup),
		workflows: make(map[uuid.UUID]*domain.Workflow),
		execs:     make(map[string]*domain.Execution),
	}
}

func pairKey(workflowID uuid.UUID, deviceID string) string {
	return workflowID.String() + "|" + deviceID
}

func (s *fakeStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.DeviceGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *g
	return &cp, nil
}

// fakeWorkflows выделен в отдельный тип: GetByID у групп и workflow
// конфликтует по имени на одном receiver.
type fakeWorkflows struct {
	store *fakeStore
}

func (s *fakeWorkflows) GetByID(ctx context.Context, id uuid.UUID) (*domain.Workflow, error) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	w, ok := s.store.workflows[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *w
	return &cp, nil
}

func (s *fakeWorkflows) ListByStatus(ctx context.Context, status domain.WorkflowStatus) ([]domain.Workflow, error) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	var out []domain.Workflow
	for _, w := range s.store.workflows {
		if w.Status == status {
			out = append(out, *w)
		}
	}
	return out, nil
}

func (s *fakeWorkflows) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.WorkflowStatus) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	w, ok := s.store.workflows[id]
	if !ok {
		return repo.ErrNotFound
	}
	w.Status = status
	return nil
}

func (s *fakeStore) CreateIfAbsent(ctx context.Context, exec *domain.Execution) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey(exec.WorkflowID, exec.DeviceID)
	if _, ok := s.execs[key]; ok {
		return false, nil
	}
	cp := *exec
	s.execs[key] = &cp
	return true, nil
}

func (s *fakeStore) GetByPair(ctx context.Context, workflowID uuid.UUID, deviceID string) (*domain.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.execs[pairKey(workflowID, deviceID)]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *fakeStore) GetByTaskRef(ctx context.Context, taskRef string) (*domain.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.execs {
		if e.TaskRef == taskRef {
			cp := *e
			return &cp, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (s *fakeStore) ListByWorkflow(ctx context.Context, workflowID uuid.UUID) ([]domain.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Execution
	for _, e := range s.execs {
		if e.WorkflowID == workflowID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (s *fakeStore) Update(ctx context.Context, exec *domain.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey(exec.WorkflowID, exec.DeviceID)
	if _, ok := s.execs[key]; !ok {
		return repo.ErrNotFound
	}
	cp := *exec
	s.execs[key] = &cp
	return nil
}

func (s *fakeStore) CountByStatus(ctx context.Context, workflowID uuid.UUID) (map[domain.ExecutionStatus]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[domain.ExecutionStatus]int)
	for _, e := range s.execs {
		if e.WorkflowID == workflowID {
			counts[e.Status]++
		}
	}
	return counts, nil
}

func (s *fakeStore) HasCompleted(ctx context.Context, workflowID uuid.UUID, deviceID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.execs[pairKey(workflowID, deviceID)]
	return ok && e.Status == domain.ExecutionStatusCompleted, nil
}

func (s *fakeStore) ListDevices(ctx context.Context) ([]domain.DeviceSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.DeviceSnapshot, len(s.devices))
	copy(out, s.devices)
	return out, nil
}

func (s *fakeStore) GetDevice(ctx context.Context, deviceID string) (*domain.DeviceSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.devices {
		if s.devices[i].DeviceID == deviceID {
			cp := s.devices[i]
			return &cp, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (s *fakeStore) Append(ctx context.Context, entry *domain.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, *entry)
	return nil
}

// fakeDispatcher записывает постановки и отдаёт синтетический taskRef.
// onEnqueue, если задан, вызывается на каждую постановку и позволяет
// тесту менять состояние хранилища в середине тика.
type fakeDispatcher struct {
	mu        sync.Mutex
	enqueued  []string // device IDs, в порядке постановки
	err       error
	seq       int
	onEnqueue func(deviceID string)
}

func (d *fakeDispatcher) Enqueue(ctx context.Context, deviceID, taskType string, parameters map[string]any) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return "", d.err
	}
	d.seq++
	d.enqueued = append(d.enqueued, deviceID)
	if d.onEnqueue != nil {
		d.onEnqueue(deviceID)
	}
	return fmt.Sprintf("task-%d", d.seq), nil
}

func (d *fakeDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.enqueued)
}

// --- Test environment ---

type env struct {
	store *fakeStore
	disp  *fakeDispatcher
	clk   *clock.Fake
	orch  *Orchestrator
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := newFakeStore()
	disp := &fakeDispatcher{}
	clk := clock.NewFake(time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC))

	orch := New(Config{
		Groups:     store,
		Workflows:  &fakeWorkflows{store: store},
		Executions: store,
		Devices:    store,
		Activity:   store,
		Dispatcher: disp,
		StuckAfter: time.Hour,
		Clock:      clk,
		Logger:     slog.Default(),
	})
	return &env{store: store, disp: disp, clk: clk, orch: orch}
}

// seedGroup создаёт активную all-группу с правилом manufacturer = Calix.
func (e *env) seedGroup() *domain.DeviceGroup {
	g := &domain.DeviceGroup{
		ID:        uuid.New(),
		Name:      "calix-fleet",
		MatchType: domain.MatchAll,
		Rules: []domain.Rule{
			{ID: uuid.New(), Field: domain.FieldManufacturer, Operator: domain.OpEquals, Value: "Calix"},
		},
		IsActive: true,
	}
	e.store.groups[g.ID] = g
	return g
}

func (e *env) seedWorkflow(groupID uuid.UUID, mutate func(*domain.Workflow)) *domain.Workflow {
	w := &domain.Workflow{
		ID:           uuid.New(),
		GroupID:      groupID,
		Name:         "reboot-fleet",
		TaskType:     "reboot",
		ScheduleType: domain.ScheduleImmediate,
		Status:       domain.WorkflowStatusActive,
		CreatedAt:    e.clk.Now(),
	}
	if mutate != nil {
		mutate(w)
	}
	e.store.workflows[w.ID] = w
	return w
}

func (e *env) seedDevices(n int) []string {
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("0019CB-844G-%05d", i)
		e.store.devices = append(e.store.devices, domain.DeviceSnapshot{
			DeviceID:     id,
			Manufacturer: "Calix",
			ProductClass: "844G-1",
			Online:       true,
		})
		ids = append(ids, id)
	}
	return ids
}

func (e *env) exec(workflowID uuid.UUID, deviceID string) *domain.Execution {
	e.store.mu.Lock()
	defer e.store.mu.Unlock()
	ex, ok := e.store.execs[pairKey(workflowID, deviceID)]
	if !ok {
		return nil
	}
	cp := *ex
	return &cp
}

func (e *env) seedExec(workflowID uuid.UUID, deviceID string, mutate func(*domain.Execution)) *domain.Execution {
	ex := domain.NewExecution(workflowID, deviceID, e.clk.Now())
	if mutate != nil {
		mutate(ex)
	}
	e.store.execs[pairKey(workflowID, deviceID)] = ex
	return ex
}

func countStatus(t *testing.T, e *env, workflowID uuid.UUID, status domain.ExecutionStatus) int {
	t.Helper()
	counts, err := e.store.CountByStatus(context.Background(), workflowID)
	if err != nil {
		t.Fatalf("count executions: %v", err)
	}
	return counts[status]
}

// --- Tick Tests ---

func TestTick_CreatesAndQueuesExecutions(t *testing.T) {
	e := newEnv(t)
	g := e.seedGroup()
	wf := e.seedWorkflow(g.ID, nil)
	devices := e.seedDevices(3)

	if err := e.orch.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	if got := countStatus(t, e, wf.ID, domain.ExecutionStatusQueued); got != 3 {
		t.Errorf("expected 3 queued executions, got %d", got)
	}
	if e.disp.count() != 3 {
		t.Errorf("expected 3 dispatched tasks, got %d", e.disp.count())
	}

	ex := e.exec(wf.ID, devices[0])
	if ex == nil {
		t.Fatal("execution not created")
	}
	if ex.Attempt != 1 {
		t.Errorf("first dispatch should be attempt 1, got %d", ex.Attempt)
	}
	if ex.TaskRef == "" {
		t.Error("queued execution should carry a task ref")
	}
	if ex.StartedAt == nil {
		t.Error("StartedAt should be set on first queue")
	}
}

func TestTick_Reentrant_NoDuplicates(t *testing.T) {
	e := newEnv(t)
	g := e.seedGroup()
	wf := e.seedWorkflow(g.ID, nil)
	e.seedDevices(3)

	ctx := context.Background()
	if err := e.orch.Tick(ctx); err != nil {
		t.Fatalf("first tick: %v", err)
	}
	if err := e.orch.Tick(ctx); err != nil {
		t.Fatalf("second tick: %v", err)
	}

	e.store.mu.Lock()
	total := len(e.store.execs)
	e.store.mu.Unlock()
	if total != 3 {
		t.Errorf("repeated ticks must not duplicate executions, got %d", total)
	}
	if got := countStatus(t, e, wf.ID, domain.ExecutionStatusQueued); got != 3 {
		t.Errorf("expected 3 queued executions after second tick, got %d", got)
	}
	if e.disp.count() != 3 {
		t.Errorf("queued executions must not be re-dispatched, got %d dispatches", e.disp.count())
	}
}

func TestTick_RateLimit(t *testing.T) {
	e := newEnv(t)
	g := e.seedGroup()
	wf := e.seedWorkflow(g.ID, func(w *domain.Workflow) {
		w.RateLimit = 5
	})
	e.seedDevices(20)

	ctx := context.Background()
	if err := e.orch.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}

	if got := countStatus(t, e, wf.ID, domain.ExecutionStatusQueued); got != 5 {
		t.Errorf("rate limit 5 should queue exactly 5, got %d", got)
	}

	// Внутри того же часа лимит остаётся исчерпанным.
	e.clk.Advance(10 * time.Minute)
	if err := e.orch.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if got := countStatus(t, e, wf.ID, domain.ExecutionStatusQueued); got != 5 {
		t.Errorf("limit still exhausted, expected 5 queued, got %d", got)
	}

	// Окно скользящее: час спустя открывается следующая партия.
	e.clk.Advance(time.Hour)
	if err := e.orch.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if got := countStatus(t, e, wf.ID, domain.ExecutionStatusQueued); got != 10 {
		t.Errorf("after the window slides, expected 10 queued, got %d", got)
	}
}

func TestTick_ConcurrencyCap(t *testing.T) {
	e := newEnv(t)
	g := e.seedGroup()
	wf := e.seedWorkflow(g.ID, func(w *domain.Workflow) {
		w.MaxConcurrent = 2
	})
	e.seedDevices(5)

	if err := e.orch.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	if got := countStatus(t, e, wf.ID, domain.ExecutionStatusQueued); got != 2 {
		t.Errorf("max_concurrent 2 should keep 2 in flight, got %d", got)
	}
}

func TestTick_ConcurrencyCapTracksStore(t *testing.T) {
	e := newEnv(t)
	g := e.seedGroup()
	wf := e.seedWorkflow(g.ID, func(w *domain.Workflow) {
		w.MaxConcurrent = 2
	})
	e.seedDevices(3)

	// Конкурентный тик: пока первая задача уходит диспетчеру,
	// в хранилище появляется чужой QUEUED execution того же workflow.
	injected := false
	e.disp.onEnqueue = func(string) {
		if injected {
			return
		}
		injected = true
		ex := domain.NewExecution(wf.ID, "0019CB-844G-99999", e.clk.Now())
		ex.Status = domain.ExecutionStatusQueued
		ex.Attempt = 1
		e.store.execs[pairKey(wf.ID, ex.DeviceID)] = ex
	}

	if err := e.orch.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	if got := e.disp.count(); got != 1 {
		t.Errorf("cap of 2 with a foreign queued execution should dispatch 1 task, got %d", got)
	}
	if got := countStatus(t, e, wf.ID, domain.ExecutionStatusQueued); got != 2 {
		t.Errorf("queued executions must not exceed max_concurrent, got %d", got)
	}
}

func TestTick_DependencyGate(t *testing.T) {
	e := newEnv(t)
	g := e.seedGroup()
	prereq := e.seedWorkflow(g.ID, func(w *domain.Workflow) {
		w.Name = "upgrade-firmware"
		w.Status = domain.WorkflowStatusCompleted
	})
	wf := e.seedWorkflow(g.ID, func(w *domain.Workflow) {
		w.DependsOnWorkflowID = &prereq.ID
	})
	devices := e.seedDevices(2)

	ctx := context.Background()

	// Пререквизит ни для кого не выполнен — executions не создаются.
	if err := e.orch.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if ex := e.exec(wf.ID, devices[0]); ex != nil {
		t.Error("dependency not satisfied, execution must not be created")
	}

	// Пререквизит выполнен для первого устройства.
	e.seedExec(prereq.ID, devices[0], func(ex *domain.Execution) {
		ex.Status = domain.ExecutionStatusCompleted
	})

	if err := e.orch.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if ex := e.exec(wf.ID, devices[0]); ex == nil || ex.Status != domain.ExecutionStatusQueued {
		t.Error("satisfied dependency should unblock the device")
	}
	if ex := e.exec(wf.ID, devices[1]); ex != nil {
		t.Error("device without completed prerequisite must stay blocked")
	}
}

func TestTick_BreakerPausesWorkflow(t *testing.T) {
	e := newEnv(t)
	g := e.seedGroup()
	wf := e.seedWorkflow(g.ID, func(w *domain.Workflow) {
		w.StopOnFailurePercent = 50
	})
	e.seedDevices(20)

	// 6 неудач на 4 успеха — 60% при пороге 50%.
	for i := 0; i < 6; i++ {
		e.seedExec(wf.ID, fmt.Sprintf("failed-%d", i), func(ex *domain.Execution) {
			ex.Status = domain.ExecutionStatusFailed
		})
	}
	for i := 0; i < 4; i++ {
		e.seedExec(wf.ID, fmt.Sprintf("done-%d", i), func(ex *domain.Execution) {
			ex.Status = domain.ExecutionStatusCompleted
		})
	}

	if err := e.orch.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	e.store.mu.Lock()
	status := e.store.workflows[wf.ID].Status
	e.store.mu.Unlock()
	if status != domain.WorkflowStatusPaused {
		t.Errorf("breaker should pause the workflow, status %s", status)
	}
	if e.disp.count() != 0 {
		t.Errorf("tripped breaker must not dispatch new tasks, got %d", e.disp.count())
	}

	found := false
	for _, entry := range e.store.logs {
		if entry.Level == domain.LogLevelError && entry.WorkflowID != nil && *entry.WorkflowID == wf.ID {
			found = true
		}
	}
	if !found {
		t.Error("breaker trip should be recorded in the activity log")
	}
}

func TestTick_MembershipLoss(t *testing.T) {
	e := newEnv(t)
	g := e.seedGroup()
	wf := e.seedWorkflow(g.ID, nil)

	// Оба устройства больше не Calix.
	e.store.devices = append(e.store.devices,
		domain.DeviceSnapshot{DeviceID: "gone-pending", Manufacturer: "Nokia", Online: true},
		domain.DeviceSnapshot{DeviceID: "gone-running", Manufacturer: "Nokia", Online: true},
	)
	e.seedExec(wf.ID, "gone-pending", nil)
	e.seedExec(wf.ID, "gone-running", func(ex *domain.Execution) {
		ex.Status = domain.ExecutionStatusInProgress
		ex.TaskRef = "task-running"
	})

	if err := e.orch.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	if ex := e.exec(wf.ID, "gone-pending"); ex.Status != domain.ExecutionStatusSkipped {
		t.Errorf("pending execution of a departed device should be skipped, got %s", ex.Status)
	}
	if ex := e.exec(wf.ID, "gone-running"); ex.Status != domain.ExecutionStatusInProgress {
		t.Errorf("in-progress execution must be left to finish, got %s", ex.Status)
	}
}

func TestTick_SkippedRearmsWhenDeviceReturns(t *testing.T) {
	e := newEnv(t)
	g := e.seedGroup()
	wf := e.seedWorkflow(g.ID, nil)
	devices := e.seedDevices(1)

	e.seedExec(wf.ID, devices[0], func(ex *domain.Execution) {
		ex.Status = domain.ExecutionStatusSkipped
	})

	if err := e.orch.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	ex := e.exec(wf.ID, devices[0])
	if ex.Status != domain.ExecutionStatusQueued {
		t.Errorf("returned device should be rearmed and queued, got %s", ex.Status)
	}
	if ex.Attempt != 1 {
		t.Errorf("rearm starts attempts over, got %d", ex.Attempt)
	}
}

func TestTick_RunOncePerDevice_NoRearm(t *testing.T) {
	e := newEnv(t)
	g := e.seedGroup()
	wf := e.seedWorkflow(g.ID, func(w *domain.Workflow) {
		w.RunOncePerDevice = true
	})
	devices := e.seedDevices(1)

	e.seedExec(wf.ID, devices[0], func(ex *domain.Execution) {
		ex.Status = domain.ExecutionStatusSkipped
	})

	if err := e.orch.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	if ex := e.exec(wf.ID, devices[0]); ex.Status != domain.ExecutionStatusSkipped {
		t.Errorf("run-once workflow must not rearm skipped executions, got %s", ex.Status)
	}
}

func TestTick_StuckSweep(t *testing.T) {
	e := newEnv(t)
	g := e.seedGroup()
	wf := e.seedWorkflow(g.ID, nil) // retry_count 0 — одна попытка
	devices := e.seedDevices(1)

	e.seedExec(wf.ID, devices[0], func(ex *domain.Execution) {
		ex.Status = domain.ExecutionStatusInProgress
		ex.TaskRef = "task-stuck"
		ex.Attempt = 1
	})

	ctx := context.Background()

	// Ещё не просрочен.
	e.clk.Advance(30 * time.Minute)
	if err := e.orch.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if ex := e.exec(wf.ID, devices[0]); ex.Status != domain.ExecutionStatusInProgress {
		t.Errorf("execution within stuck_after must be untouched, got %s", ex.Status)
	}

	// Просрочен: попытки исчерпаны — терминальный FAILED.
	e.clk.Advance(time.Hour)
	if err := e.orch.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if ex := e.exec(wf.ID, devices[0]); ex.Status != domain.ExecutionStatusFailed {
		t.Errorf("stuck execution should be failed by the sweeper, got %s", ex.Status)
	}
}

func TestTick_StuckSweep_RetriesRemain(t *testing.T) {
	e := newEnv(t)
	g := e.seedGroup()
	wf := e.seedWorkflow(g.ID, func(w *domain.Workflow) {
		w.RetryCount = 2
		w.RetryDelayMinutes = 15
	})
	devices := e.seedDevices(1)

	e.seedExec(wf.ID, devices[0], func(ex *domain.Execution) {
		ex.Status = domain.ExecutionStatusInProgress
		ex.TaskRef = "task-stuck"
		ex.Attempt = 1
	})

	e.clk.Advance(2 * time.Hour)
	if err := e.orch.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	ex := e.exec(wf.ID, devices[0])
	if ex.Status != domain.ExecutionStatusPending {
		t.Errorf("stuck execution with retries left should go back to pending, got %s", ex.Status)
	}
	if ex.NextRetryAt == nil {
		t.Error("retry timer should be scheduled")
	}
}

func TestTick_CancelledSweep(t *testing.T) {
	e := newEnv(t)
	g := e.seedGroup()
	wf := e.seedWorkflow(g.ID, func(w *domain.Workflow) {
		w.Status = domain.WorkflowStatusCancelled
	})
	e.seedDevices(1)

	e.seedExec(wf.ID, "dev-pending", nil)
	e.seedExec(wf.ID, "dev-queued", func(ex *domain.Execution) {
		ex.Status = domain.ExecutionStatusQueued
		ex.TaskRef = "task-q"
		ex.Attempt = 1
	})
	e.seedExec(wf.ID, "dev-running", func(ex *domain.Execution) {
		ex.Status = domain.ExecutionStatusInProgress
		ex.TaskRef = "task-r"
		ex.Attempt = 1
	})

	if err := e.orch.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	if ex := e.exec(wf.ID, "dev-pending"); ex.Status != domain.ExecutionStatusCancelled {
		t.Errorf("pending execution of a cancelled workflow should be cancelled, got %s", ex.Status)
	}
	if ex := e.exec(wf.ID, "dev-queued"); ex.Status != domain.ExecutionStatusCancelled {
		t.Errorf("queued execution of a cancelled workflow should be cancelled, got %s", ex.Status)
	}
	if ex := e.exec(wf.ID, "dev-running"); ex.Status != domain.ExecutionStatusInProgress {
		t.Errorf("in-progress execution is left to finish, got %s", ex.Status)
	}
}

func TestTick_InactiveGroupIdle(t *testing.T) {
	e := newEnv(t)
	g := e.seedGroup()
	g.IsActive = false
	e.seedWorkflow(g.ID, nil)
	e.seedDevices(3)

	if err := e.orch.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if e.disp.count() != 0 {
		t.Errorf("inactive group must not produce dispatches, got %d", e.disp.count())
	}
}

func TestTick_DispatchFailureConsumesAttempt(t *testing.T) {
	e := newEnv(t)
	g := e.seedGroup()
	wf := e.seedWorkflow(g.ID, func(w *domain.Workflow) {
		w.RetryCount = 1
		w.RetryDelayMinutes = 30
	})
	devices := e.seedDevices(1)
	e.disp.err = errors.New("broker unavailable")

	if err := e.orch.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	ex := e.exec(wf.ID, devices[0])
	if ex == nil {
		t.Fatal("execution should still be created")
	}
	if ex.Status != domain.ExecutionStatusPending {
		t.Errorf("dispatch failure with retries left should return to pending, got %s", ex.Status)
	}
	if ex.Attempt != 1 {
		t.Errorf("failed dispatch consumes an attempt, got %d", ex.Attempt)
	}
	if ex.NextRetryAt == nil {
		t.Error("retry timer should be scheduled after dispatch failure")
	}
}

func TestTick_RetryAfterDelay(t *testing.T) {
	e := newEnv(t)
	g := e.seedGroup()
	wf := e.seedWorkflow(g.ID, func(w *domain.Workflow) {
		w.RetryCount = 1
		w.RetryDelayMinutes = 30
	})
	devices := e.seedDevices(1)

	ctx := context.Background()
	if err := e.orch.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	ex := e.exec(wf.ID, devices[0])

	// Неудача первой попытки — retry запланирован.
	if err := e.orch.HandleTaskResult(ctx, ex.TaskRef, devices[0], mq.TaskResultFailure, map[string]any{"error": "timeout"}); err != nil {
		t.Fatalf("handle failure: %v", err)
	}
	if ex = e.exec(wf.ID, devices[0]); ex.Status != domain.ExecutionStatusPending {
		t.Fatalf("expected pending retry, got %s", ex.Status)
	}

	// До истечения паузы тик не переотправляет.
	e.clk.Advance(10 * time.Minute)
	if err := e.orch.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if ex = e.exec(wf.ID, devices[0]); ex.Status != domain.ExecutionStatusPending {
		t.Errorf("retry before its delay must not be dispatched, got %s", ex.Status)
	}

	// После истечения — вторая попытка.
	e.clk.Advance(25 * time.Minute)
	if err := e.orch.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	ex = e.exec(wf.ID, devices[0])
	if ex.Status != domain.ExecutionStatusQueued {
		t.Errorf("matured retry should be queued, got %s", ex.Status)
	}
	if ex.Attempt != 2 {
		t.Errorf("expected attempt 2, got %d", ex.Attempt)
	}
}

// --- Task Result Tests ---

func TestHandleTaskResult_Lifecycle(t *testing.T) {
	e := newEnv(t)
	g := e.seedGroup()
	wf := e.seedWorkflow(g.ID, nil)
	devices := e.seedDevices(1)

	ctx := context.Background()
	if err := e.orch.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	taskRef := e.exec(wf.ID, devices[0]).TaskRef

	if err := e.orch.HandleTaskResult(ctx, taskRef, devices[0], mq.TaskResultStarted, nil); err != nil {
		t.Fatalf("handle started: %v", err)
	}
	if ex := e.exec(wf.ID, devices[0]); ex.Status != domain.ExecutionStatusInProgress {
		t.Errorf("started event should move execution to in_progress, got %s", ex.Status)
	}

	result := map[string]any{"exit_code": 0}
	if err := e.orch.HandleTaskResult(ctx, taskRef, devices[0], mq.TaskResultSuccess, result); err != nil {
		t.Fatalf("handle success: %v", err)
	}
	ex := e.exec(wf.ID, devices[0])
	if ex.Status != domain.ExecutionStatusCompleted {
		t.Errorf("success event should complete the execution, got %s", ex.Status)
	}
	if ex.CompletedAt == nil {
		t.Error("CompletedAt should be set")
	}
	if ex.Result["exit_code"] != 0 {
		t.Error("device result payload should be stored")
	}

	// Поздний дубликат результата — no-op.
	if err := e.orch.HandleTaskResult(ctx, taskRef, devices[0], mq.TaskResultFailure, nil); err != nil {
		t.Errorf("late result for a terminal execution must be ignored, got %v", err)
	}
	if ex := e.exec(wf.ID, devices[0]); ex.Status != domain.ExecutionStatusCompleted {
		t.Errorf("terminal status must not change, got %s", ex.Status)
	}
}

func TestHandleTaskResult_FailureExhaustsRetries(t *testing.T) {
	e := newEnv(t)
	g := e.seedGroup()
	wf := e.seedWorkflow(g.ID, nil) // retry_count 0
	devices := e.seedDevices(1)

	ctx := context.Background()
	if err := e.orch.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	taskRef := e.exec(wf.ID, devices[0]).TaskRef

	if err := e.orch.HandleTaskResult(ctx, taskRef, devices[0], mq.TaskResultFailure, map[string]any{"error": "fault 9002"}); err != nil {
		t.Fatalf("handle failure: %v", err)
	}

	ex := e.exec(wf.ID, devices[0])
	if ex.Status != domain.ExecutionStatusFailed {
		t.Errorf("no retries left, expected failed, got %s", ex.Status)
	}
	if ex.Result["error"] != "fault 9002" {
		t.Error("failure payload should be stored")
	}
}

func TestHandleTaskResult_UnknownTaskRef(t *testing.T) {
	e := newEnv(t)

	if err := e.orch.HandleTaskResult(context.Background(), "task-deleted", "dev", mq.TaskResultSuccess, nil); err != nil {
		t.Errorf("unknown task ref is not an error, got %v", err)
	}
}

func TestHandleTaskResult_UnknownStatus(t *testing.T) {
	e := newEnv(t)
	g := e.seedGroup()
	wf := e.seedWorkflow(g.ID, nil)
	devices := e.seedDevices(1)

	ctx := context.Background()
	if err := e.orch.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	taskRef := e.exec(wf.ID, devices[0]).TaskRef

	err := e.orch.HandleTaskResult(ctx, taskRef, devices[0], "rebooting", nil)
	if !errors.Is(err, ErrUnknownTaskStatus) {
		t.Errorf("expected ErrUnknownTaskStatus, got %v", err)
	}
}

// --- Device Connect Tests ---

func TestHandleDeviceConnect_OnConnectWorkflow(t *testing.T) {
	e := newEnv(t)
	g := e.seedGroup()
	wf := e.seedWorkflow(g.ID, func(w *domain.Workflow) {
		w.ScheduleType = domain.ScheduleOnConnect
	})
	devices := e.seedDevices(1)

	ctx := context.Background()

	// Polling-тик on_connect workflow не трогает.
	if err := e.orch.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if ex := e.exec(wf.ID, devices[0]); ex != nil {
		t.Fatal("tick must not create executions for on_connect workflows")
	}

	// Событие подключения — создаёт и ставит в очередь.
	if err := e.orch.HandleDeviceConnect(ctx, devices[0]); err != nil {
		t.Fatalf("handle connect: %v", err)
	}
	ex := e.exec(wf.ID, devices[0])
	if ex == nil || ex.Status != domain.ExecutionStatusQueued {
		t.Fatal("device connect should create and queue an execution")
	}

	// Повторное подключение дубликата не создаёт.
	if err := e.orch.HandleDeviceConnect(ctx, devices[0]); err != nil {
		t.Fatalf("handle connect: %v", err)
	}
	e.store.mu.Lock()
	total := len(e.store.execs)
	e.store.mu.Unlock()
	if total != 1 {
		t.Errorf("repeated connects must not duplicate executions, got %d", total)
	}
}

func TestHandleDeviceConnect_NonMatchingDevice(t *testing.T) {
	e := newEnv(t)
	g := e.seedGroup()
	wf := e.seedWorkflow(g.ID, func(w *domain.Workflow) {
		w.ScheduleType = domain.ScheduleOnConnect
	})
	e.store.devices = append(e.store.devices, domain.DeviceSnapshot{
		DeviceID:     "nokia-1",
		Manufacturer: "Nokia",
		Online:       true,
	})

	if err := e.orch.HandleDeviceConnect(context.Background(), "nokia-1"); err != nil {
		t.Fatalf("handle connect: %v", err)
	}
	if ex := e.exec(wf.ID, "nokia-1"); ex != nil {
		t.Error("device outside the group must not get an execution")
	}
}

func TestHandleDeviceConnect_RetriesMaturedPending(t *testing.T) {
	e := newEnv(t)
	g := e.seedGroup()
	wf := e.seedWorkflow(g.ID, func(w *domain.Workflow) {
		w.ScheduleType = domain.ScheduleOnConnect
		w.RetryCount = 2
		w.RetryDelayMinutes = 30
	})
	devices := e.seedDevices(1)

	retryAt := e.clk.Now().Add(-time.Minute)
	e.seedExec(wf.ID, devices[0], func(ex *domain.Execution) {
		ex.Attempt = 1
		ex.NextRetryAt = &retryAt
	})

	if err := e.orch.HandleDeviceConnect(context.Background(), devices[0]); err != nil {
		t.Fatalf("handle connect: %v", err)
	}
	ex := e.exec(wf.ID, devices[0])
	if ex.Status != domain.ExecutionStatusQueued {
		t.Errorf("matured retry should be re-queued on connect, got %s", ex.Status)
	}
	if ex.Attempt != 2 {
		t.Errorf("expected attempt 2, got %d", ex.Attempt)
	}
}
