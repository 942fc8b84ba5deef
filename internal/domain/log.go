package domain

import (
	"time"

	"github.com/google/uuid"
)

// LogEntry — запись в журнале активности оркестратора.
//
// Журнал append-only и чисто информационный: движок в него пишет,
// но никогда не принимает по нему решений.
type LogEntry struct {
	// ID — уникальный идентификатор записи.
	ID uuid.UUID `json:"id"`

	// WorkflowID — workflow, к которому относится запись (опционально).
	WorkflowID *uuid.UUID `json:"workflow_id,omitempty"`

	// ExecutionID — execution, к которому относится запись (опционально).
	ExecutionID *uuid.UUID `json:"execution_id,omitempty"`

	// DeviceID — устройство, к которому относится запись (опционально).
	DeviceID string `json:"device_id,omitempty"`

	// Level — уровень записи.
	Level LogLevel `json:"level"`

	// Message — текст записи.
	Message string `json:"message"`

	// Context — произвольные структурированные детали.
	Context map[string]any `json:"context,omitempty"`

	// CreatedAt — время записи.
	CreatedAt time.Time `json:"created_at"`
}
