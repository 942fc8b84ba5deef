// Package telemetry — наблюдаемость: structured logging и метрики Prometheus.
package telemetry
