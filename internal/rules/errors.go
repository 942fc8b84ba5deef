package rules

import "errors"

// Ошибки вычисления правил.
//
// Любая из них трактуется как non-match правила: matcher логирует warning
// и продолжает, вычисление соседних правил и других устройств не прерывается.
var (
	// ErrUnknownField — правило ссылается на неизвестное поле.
	ErrUnknownField = errors.New("unknown device field")

	// ErrUnknownOperator — неподдерживаемый оператор.
	ErrUnknownOperator = errors.New("unknown operator")

	// ErrOperatorNotApplicable — оператор неприменим к типу поля.
	ErrOperatorNotApplicable = errors.New("operator not applicable")

	// ErrBadValue — значение правила не разбирается (пустой список и т.п.).
	ErrBadValue = errors.New("bad rule value")
)
