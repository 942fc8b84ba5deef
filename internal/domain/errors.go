package domain

import "errors"

// Ошибки доменной модели.
var (
	// ErrInvalidTransition — недопустимый переход статуса execution.
	ErrInvalidTransition = errors.New("invalid execution transition")
)
