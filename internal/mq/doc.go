// Package mq — транспорт RabbitMQ для конвейера задач.
//
// Оркестратор публикует поставленные в очередь задачи в exchange
// fleetacs.tasks; протокольная голова ACS (внешний collaborator)
// потребляет очередь tasks.device, выполняет задачу на устройстве и
// публикует результат в tasks.results, которую потребляет оркестратор.
//
// Пакет содержит соединение с автоматическим reconnect, декларацию
// топологии, Publisher и Consumer.
package mq
