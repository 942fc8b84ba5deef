// Package cli реализует инструмент командной строки FleetACS.
//
// # Обзор
//
// CLI — клиентская утилита для взаимодействия с FleetACS API.
// Работает через HTTP, не импортирует внутренние пакеты движка.
// CLI используется для управления группами устройств, workflow и
// наблюдения за ходом выполнения.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для FleetACS API. Инкапсулирует все HTTP-запросы,
// парсинг ответов (DataResponse, ListResponse, ErrorResponse)
// и обработку ошибок.
//
//	client := cli.NewClient("http://localhost:8080")
//	groups, err := client.ListGroups()
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON с отступами — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: fleetacs group list --json | jq .
//
// ## Commands
//
// Cobra-команды организованы по ресурсам:
//   - group:     list, create, show, update, delete, devices
//   - workflow:  list, create, show, delete, activate, pause, resume,
//     cancel, retry-failed, progress
//   - execution: list, show
//   - device:    list, show, connect
//   - log:       просмотр журнала активности
//
// Каждая группа создаётся через фабричную функцию (NewGroupCmd и т.д.),
// принимающую clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
