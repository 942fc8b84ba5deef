package orchestrator

import "errors"

// ErrUnknownTaskStatus — неизвестный статус в результате задачи.
var ErrUnknownTaskStatus = errors.New("unknown task result status")
