package schedule

import "errors"

// ErrBadConfig — конфигурация расписания не соответствует его типу.
var ErrBadConfig = errors.New("bad schedule config")
