// Package rules вычисляет членство устройств в группах.
//
// Пакет чистый: работает поверх снимков DeviceSnapshot и правил Rule,
// без обращения к хранилищу. Evaluate вычисляет одно правило,
// Matcher объединяет правила группы по семантике all/any.
package rules
