package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeTaskEnqueued    MessageType = "task.enqueued"
	MessageTypeTaskResult      MessageType = "task.result"
	MessageTypeDeviceConnected MessageType = "device.connected"
)

// Message — конверт сообщения.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// TaskEnqueuedPayload — задача для устройства.
//
// TaskRef используется протокольной головой как ключ идемпотентности:
// повторная публикация с тем же TaskRef не дублирует действие на устройстве.
type TaskEnqueuedPayload struct {
	TaskRef    string         `json:"task_ref"`
	DeviceID   string         `json:"device_id"`
	TaskType   string         `json:"task_type"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// TaskResultPayload — результат задачи от протокольной головы.
type TaskResultPayload struct {
	TaskRef  string `json:"task_ref"`
	DeviceID string `json:"device_id"`

	// Status — started | success | failure.
	Status string `json:"status"`

	// Result — payload результата (или описание ошибки).
	Result map[string]any `json:"result,omitempty"`
}

// DeviceConnectedPayload — событие выхода устройства на связь
// (Inform-сессия на протокольной голове).
type DeviceConnectedPayload struct {
	DeviceID string `json:"device_id"`
}

// Статусы TaskResultPayload.
const (
	TaskResultStarted = "started"
	TaskResultSuccess = "success"
	TaskResultFailure = "failure"
)

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{conn: conn, logger: logger}
}

// Publish публикует сообщение в exchange с ключом маршрутизации.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),
			string(routingKey),
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт брокера
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)
		return nil
	})
}

// PublishTaskEnqueued публикует задачу для устройства.
// Потребитель: протокольная голова ACS.
func (p *Publisher) PublishTaskEnqueued(ctx context.Context, payload TaskEnqueuedPayload) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeTaskEnqueued,
		Payload:   payload,
		Timestamp: time.Now(),
	}
	return p.Publish(ctx, ExchangeTasks, RoutingKeyEnqueued, msg)
}

// PublishTaskResult публикует результат задачи.
// Потребитель: оркестратор.
func (p *Publisher) PublishTaskResult(ctx context.Context, payload TaskResultPayload) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeTaskResult,
		Payload:   payload,
		Timestamp: time.Now(),
	}
	return p.Publish(ctx, ExchangeTasks, RoutingKeyResult, msg)
}

// PublishDeviceConnected публикует событие выхода устройства на связь.
// Потребитель: оркестратор (on_connect workflow).
func (p *Publisher) PublishDeviceConnected(ctx context.Context, payload DeviceConnectedPayload) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeDeviceConnected,
		Payload:   payload,
		Timestamp: time.Now(),
	}
	return p.Publish(ctx, ExchangeTasks, RoutingKeyConnected, msg)
}
