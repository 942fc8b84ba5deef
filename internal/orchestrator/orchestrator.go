package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/marcelg7/fleetacs/internal/clock"
	"github.com/marcelg7/fleetacs/internal/dispatch"
	"github.com/marcelg7/fleetacs/internal/domain"
	"github.com/marcelg7/fleetacs/internal/limits"
	"github.com/marcelg7/fleetacs/internal/rules"
)

// Default configuration values.
const (
	defaultTickInterval = 30 * time.Second
	defaultStuckAfter   = time.Hour
)

// Orchestrator — периодический драйвер развёртывания workflow по флоту.
type Orchestrator struct {
	groups     GroupStore
	workflows  WorkflowStore
	executions ExecutionStore
	devices    DeviceStore
	activity   ActivityLog
	dispatcher dispatch.Dispatcher

	matcher *rules.Matcher
	rate    *limits.RateWindow
	clk     clock.Clock

	tickInterval time.Duration
	stuckAfter   time.Duration

	// pairs сериализует все операции над одной парой (workflow, device).
	pairs pairLocks

	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// Config — конфигурация Orchestrator.
type Config struct {
	Groups     GroupStore
	Workflows  WorkflowStore
	Executions ExecutionStore
	Devices    DeviceStore
	Activity   ActivityLog
	Dispatcher dispatch.Dispatcher

	// TickInterval — период тика (default: 30s).
	TickInterval time.Duration

	// StuckAfter — через сколько in-progress execution без событий
	// считается зависшим и добивается как неудача (default: 1h).
	StuckAfter time.Duration

	// Clock — источник времени (default: системные часы).
	Clock clock.Clock

	// Logger — логгер (default: slog.Default).
	Logger *slog.Logger
}

// New создаёт Orchestrator.
func New(cfg Config) *Orchestrator {
	tickInterval := cfg.TickInterval
	if tickInterval <= 0 {
		tickInterval = defaultTickInterval
	}

	stuckAfter := cfg.StuckAfter
	if stuckAfter <= 0 {
		stuckAfter = defaultStuckAfter
	}

	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real{}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		groups:       cfg.Groups,
		workflows:    cfg.Workflows,
		executions:   cfg.Executions,
		devices:      cfg.Devices,
		activity:     cfg.Activity,
		dispatcher:   cfg.Dispatcher,
		matcher:      rules.NewMatcher(logger),
		rate:         limits.NewRateWindow(),
		clk:          clk,
		tickInterval: tickInterval,
		stuckAfter:   stuckAfter,
		logger:       logger,
	}
}

// Start запускает периодический тик. Не блокирует.
func (o *Orchestrator) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	o.cancelFunc = cancel

	o.logger.Info("starting orchestrator",
		"tick_interval", o.tickInterval,
		"stuck_after", o.stuckAfter,
	)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(o.tickInterval)
		defer ticker.Stop()

		// Первый тик сразу при старте.
		if err := o.Tick(ctx); err != nil && ctx.Err() == nil {
			o.logger.Error("tick failed", "error", err)
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := o.Tick(ctx); err != nil && ctx.Err() == nil {
					o.logger.Error("tick failed", "error", err)
				}
			}
		}
	}()
}

// Stop останавливает тики и ждёт завершения.
func (o *Orchestrator) Stop() {
	o.logger.Info("stopping orchestrator...")
	if o.cancelFunc != nil {
		o.cancelFunc()
	}
	o.wg.Wait()
	o.logger.Info("orchestrator stopped")
}

// --- Поключевые блокировки пар ---

// pairLocks — мьютексы по ключу (workflow_id, device_id).
type pairLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// lock берёт мьютекс пары и возвращает функцию разблокировки.
func (p *pairLocks) lock(workflowID uuid.UUID, deviceID string) func() {
	key := workflowID.String() + "|" + deviceID

	p.mu.Lock()
	if p.locks == nil {
		p.locks = make(map[string]*sync.Mutex)
	}
	m, ok := p.locks[key]
	if !ok {
		m = &sync.Mutex{}
		p.locks[key] = m
	}
	p.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// --- Журнал активности ---

// logActivity пишет запись в журнал; ошибка журнала тик не роняет.
func (o *Orchestrator) logActivity(ctx context.Context, entry *domain.LogEntry) {
	if o.activity == nil {
		return
	}
	entry.ID = uuid.New()
	entry.CreatedAt = o.clk.Now()
	if err := o.activity.Append(ctx, entry); err != nil {
		o.logger.Warn("failed to append activity log", "error", err)
	}
}
