// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go           — Handler с DI (репозитории, publisher, logger)
//   - routes.go            — регистрация маршрутов
//   - middleware.go        — middleware (logging, recovery)
//   - response.go          — унифицированные JSON-ответы и обработка ошибок
//   - dto.go               — Data Transfer Objects (request/response)
//   - group_handler.go     — обработчики для /groups
//   - workflow_handler.go  — обработчики для /workflows
//   - execution_handler.go — обработчики для /executions и /activity-log
//   - device_handler.go    — обработчики для /devices и /events
//
// API предоставляет REST endpoints для управления группами устройств,
// workflow и наблюдения за executions.
package api
