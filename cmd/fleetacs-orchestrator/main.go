// FleetACS Orchestrator — движок оркестрации флота CPE.
//
// Orchestrator:
//   - Периодическим тиком сверяет активные workflow с инвентарём устройств
//   - Создаёт executions и ставит задачи в очередь под rate limit и
//     concurrency cap
//   - Потребляет результаты задач и connect-события из RabbitMQ
//   - Останавливает workflow по порогу circuit breaker
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marcelg7/fleetacs/internal/dispatch"
	"github.com/marcelg7/fleetacs/internal/mq"
	"github.com/marcelg7/fleetacs/internal/orchestrator"
	"github.com/marcelg7/fleetacs/internal/repo"
	"github.com/marcelg7/fleetacs/internal/telemetry"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting fleetacs-orchestrator")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
	pool, err := repo.NewPool(ctx)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	// Создаём репозитории
	groupRepo := repo.NewGroupRepo(pool)
	workflowRepo := repo.NewWorkflowRepo(pool)
	executionRepo := repo.NewExecutionRepo(pool)
	logRepo := repo.NewLogRepo(pool)
	deviceRepo := repo.NewDeviceRepo(pool)

	// RabbitMQ
	mqURL := os.Getenv("RABBITMQ_URL")
	if mqURL == "" {
		mqURL = mq.DefaultURL()
	}

	mqConn, err := mq.NewConnection(mqURL, logger)
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer mqConn.Close()
	logger.Info("RabbitMQ connected")

	if err := mq.SetupTopology(ctx, mqConn); err != nil {
		logger.Error("failed to setup topology", "error", err)
		os.Exit(1)
	}

	publisher := mq.NewPublisher(mqConn, logger)
	dispatcher := dispatch.NewAMQPDispatcher(publisher, logger)

	// Создаём orchestrator
	orch := orchestrator.New(orchestrator.Config{
		Groups:       groupRepo,
		Workflows:    workflowRepo,
		Executions:   executionRepo,
		Devices:      deviceRepo,
		Activity:     logRepo,
		Dispatcher:   dispatcher,
		TickInterval: envDuration("ORCH_TICK_INTERVAL", 0),
		StuckAfter:   envDuration("ORCH_STUCK_AFTER", 0),
		Logger:       logger,
	})

	// Потребители: результаты задач и connect-события.
	// Start блокирует до отмены контекста, поэтому каждый в своей горутине.
	resultConsumer := dispatch.NewResultConsumer(mqConn, logger, orch)
	go func() {
		if err := resultConsumer.Start(ctx); err != nil && ctx.Err() == nil {
			logger.Error("result consumer stopped", "error", err)
		}
	}()
	connectConsumer := dispatch.NewConnectConsumer(mqConn, logger, orch)
	go func() {
		if err := connectConsumer.Start(ctx); err != nil && ctx.Err() == nil {
			logger.Error("connect consumer stopped", "error", err)
		}
	}()

	// Запускаем периодический тик
	orch.Start(ctx)

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8083"
	if v := os.Getenv("ORCH_PORT"); v != "" {
		port = ":" + v
	}

	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	resultConsumer.Stop()
	connectConsumer.Stop()
	orch.Stop()
	logger.Info("fleetacs-orchestrator stopped")
}

// envDuration читает duration из env в секундах ("30") или в формате
// time.ParseDuration ("30s"). fallback при пустом или кривом значении.
func envDuration(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
