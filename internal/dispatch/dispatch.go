// Package dispatch — граница с внешним диспетчером задач.
//
// Движок не разговаривает с устройствами сам: он ставит задачу в
// очередь (fire-and-forget) и позже получает результат асинхронно.
// Dispatcher — потребляемый интерфейс, AMQP-реализация публикует
// задачи в RabbitMQ, ResultConsumer доставляет результаты обратно.
package dispatch

import (
	"context"
)

// Dispatcher ставит задачу устройству во внешнюю очередь.
//
// Enqueue обязан быть безопасным для повторного вызова после transient
// ошибки: taskRef служит ключом идемпотентности на стороне устройства.
type Dispatcher interface {
	// Enqueue ставит задачу и возвращает ссылку на неё.
	// Не блокирует дольше, чем занимает публикация.
	Enqueue(ctx context.Context, deviceID, taskType string, parameters map[string]any) (taskRef string, err error)
}

// ResultHandler принимает асинхронные результаты задач.
// Реализуется оркестратором.
type ResultHandler interface {
	// HandleTaskResult обрабатывает событие жизненного цикла задачи:
	// status ∈ {started, success, failure}.
	HandleTaskResult(ctx context.Context, taskRef, deviceID, status string, result map[string]any) error
}

// ConnectHandler принимает события выхода устройства на связь.
// Реализуется оркестратором (on_connect workflow).
type ConnectHandler interface {
	// HandleDeviceConnect обрабатывает Inform-сессию устройства.
	HandleDeviceConnect(ctx context.Context, deviceID string) error
}
