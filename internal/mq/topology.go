package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	// ExchangeTasks — задачи для устройств и их результаты.
	ExchangeTasks Exchange = "fleetacs.tasks"

	// ExchangeDLQ — dead letter exchange для необработанных сообщений.
	ExchangeDLQ Exchange = "fleetacs.dlq"
)

// Queues — имена очередей.
const (
	// QueueDeviceTasks — задачи, поставленные оркестратором;
	// потребляется протокольной головой ACS.
	QueueDeviceTasks Queue = "tasks.device"

	// QueueTaskResults — результаты выполнения задач;
	// потребляется оркестратором.
	QueueTaskResults Queue = "tasks.results"

	// QueueConnectEvents — события выхода устройств на связь;
	// потребляется оркестратором для on_connect workflow.
	QueueConnectEvents Queue = "events.connect"

	// QueueDLQ — мёртвые сообщения.
	QueueDLQ Queue = "dlq.tasks"
)

// Routing keys.
const (
	RoutingKeyEnqueued  RoutingKey = "enqueued"
	RoutingKeyResult    RoutingKey = "result"
	RoutingKeyConnected RoutingKey = "connected"
	RoutingKeyDLQ       RoutingKey = "tasks"
)

// SetupTopology декларирует обменники, очереди и биндинги.
// Идемпотентна: повторная декларация существующей топологии безопасна.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := declareExchanges(ch); err != nil {
			return err
		}
		if err := declareQueues(ch); err != nil {
			return err
		}
		return bindQueues(ch)
	})
}

func declareExchanges(ch *amqp.Channel) error {
	for _, ex := range []Exchange{ExchangeTasks, ExchangeDLQ} {
		if err := ch.ExchangeDeclare(
			string(ex),
			"direct",
			true,  // durable
			false, // auto-delete
			false, // internal
			false, // no-wait
			nil,
		); err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex, err)
		}
	}
	return nil
}

func declareQueues(ch *amqp.Channel) error {
	// Рабочие очереди уводят отбитые сообщения в DLQ.
	workArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQ),
	}

	for _, q := range []struct {
		name Queue
		args amqp.Table
	}{
		{QueueDeviceTasks, workArgs},
		{QueueTaskResults, workArgs},
		{QueueConnectEvents, workArgs},
		{QueueDLQ, nil},
	} {
		if _, err := ch.QueueDeclare(
			string(q.name),
			true,  // durable
			false, // auto-delete
			false, // exclusive
			false, // no-wait
			q.args,
		); err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}
	return nil
}

func bindQueues(ch *amqp.Channel) error {
	for _, b := range []struct {
		queue    Queue
		key      RoutingKey
		exchange Exchange
	}{
		{QueueDeviceTasks, RoutingKeyEnqueued, ExchangeTasks},
		{QueueTaskResults, RoutingKeyResult, ExchangeTasks},
		{QueueConnectEvents, RoutingKeyConnected, ExchangeTasks},
		{QueueDLQ, RoutingKeyDLQ, ExchangeDLQ},
	} {
		if err := ch.QueueBind(
			string(b.queue),
			string(b.key),
			string(b.exchange),
			false,
			nil,
		); err != nil {
			return fmt.Errorf("bind %s to %s/%s: %w", b.queue, b.exchange, b.key, err)
		}
	}
	return nil
}
