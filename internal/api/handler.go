package api

import (
	"log/slog"

	"github.com/marcelg7/fleetacs/internal/mq"
	"github.com/marcelg7/fleetacs/internal/repo"
	"github.com/marcelg7/fleetacs/internal/rules"
)

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	groupRepo     *repo.GroupRepo
	workflowRepo  *repo.WorkflowRepo
	executionRepo *repo.ExecutionRepo
	logRepo       *repo.LogRepo
	deviceRepo    *repo.DeviceRepo
	matcher       *rules.Matcher
	publisher     *mq.Publisher
	logger        *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	GroupRepo     *repo.GroupRepo
	WorkflowRepo  *repo.WorkflowRepo
	ExecutionRepo *repo.ExecutionRepo
	LogRepo       *repo.LogRepo
	DeviceRepo    *repo.DeviceRepo
	Matcher       *rules.Matcher
	Publisher     *mq.Publisher
	Logger        *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	return &Handler{
		groupRepo:     cfg.GroupRepo,
		workflowRepo:  cfg.WorkflowRepo,
		executionRepo: cfg.ExecutionRepo,
		logRepo:       cfg.LogRepo,
		deviceRepo:    cfg.DeviceRepo,
		matcher:       cfg.Matcher,
		publisher:     cfg.Publisher,
		logger:        cfg.Logger,
	}
}
