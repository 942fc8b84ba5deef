// Package orchestrator — периодический двигатель развёртывания.
//
// Каждый тик для каждого активного workflow оркестратор:
//   - пересчитывает circuit breaker и при срабатывании ставит workflow
//     на паузу;
//   - проверяет окно расписания;
//   - вычисляет множество подходящих устройств по правилам группы;
//   - создаёт executions (ровно один на пару workflow/устройство),
//     соблюдая зависимость, rate limit и потолок конкурентности;
//   - переотправляет созревшие retry и пропускает устройства,
//     выпавшие из группы;
//   - добивает зависшие in-progress задачи.
//
// Результаты задач приходят асинхронно через HandleTaskResult,
// подключение устройства — через HandleDeviceConnect (on_connect).
//
// Ключевой контракт — реентерабельность: два конкурентных тика никогда
// не создают два executions для одной пары. Это обеспечивают атомарный
// CreateIfAbsent хранилища и поключевые блокировки пар.
package orchestrator
