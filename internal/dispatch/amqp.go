package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/marcelg7/fleetacs/internal/mq"
)

// AMQPDispatcher — Dispatcher поверх RabbitMQ.
type AMQPDispatcher struct {
	publisher *mq.Publisher
	logger    *slog.Logger
}

// NewAMQPDispatcher создаёт AMQPDispatcher.
func NewAMQPDispatcher(publisher *mq.Publisher, logger *slog.Logger) *AMQPDispatcher {
	return &AMQPDispatcher{publisher: publisher, logger: logger}
}

// Enqueue публикует задачу в exchange задач и возвращает taskRef.
func (d *AMQPDispatcher) Enqueue(ctx context.Context, deviceID, taskType string, parameters map[string]any) (string, error) {
	taskRef := uuid.New().String()

	err := d.publisher.PublishTaskEnqueued(ctx, mq.TaskEnqueuedPayload{
		TaskRef:    taskRef,
		DeviceID:   deviceID,
		TaskType:   taskType,
		Parameters: parameters,
	})
	if err != nil {
		return "", fmt.Errorf("enqueue task for %s: %w", deviceID, err)
	}

	d.logger.Debug("task enqueued",
		"task_ref", taskRef,
		"device_id", deviceID,
		"task_type", taskType,
	)
	return taskRef, nil
}

// NewResultConsumer создаёт consumer очереди результатов, передающий
// события в handler. События с неизвестным taskRef хэндлер обязан
// принимать без ошибки (результат мог прийти после отмены workflow).
func NewResultConsumer(conn *mq.Connection, logger *slog.Logger, handler ResultHandler) *mq.Consumer {
	return mq.NewConsumer(conn, logger, mq.ConsumerConfig{
		Queue:    string(mq.QueueTaskResults),
		Prefetch: 10,
		Handler: func(ctx context.Context, delivery *mq.Delivery) error {
			payload, err := mq.ParsePayload[mq.TaskResultPayload](&delivery.Message)
			if err != nil {
				logger.Error("failed to parse task result", "error", err)
				return err
			}
			return handler.HandleTaskResult(ctx, payload.TaskRef, payload.DeviceID, payload.Status, payload.Result)
		},
	})
}

// NewConnectConsumer создаёт consumer очереди connect-событий.
func NewConnectConsumer(conn *mq.Connection, logger *slog.Logger, handler ConnectHandler) *mq.Consumer {
	return mq.NewConsumer(conn, logger, mq.ConsumerConfig{
		Queue:    string(mq.QueueConnectEvents),
		Prefetch: 10,
		Handler: func(ctx context.Context, delivery *mq.Delivery) error {
			payload, err := mq.ParsePayload[mq.DeviceConnectedPayload](&delivery.Message)
			if err != nil {
				logger.Error("failed to parse connect event", "error", err)
				return err
			}
			return handler.HandleDeviceConnect(ctx, payload.DeviceID)
		},
	})
}
