package domain

import (
	"time"

	"github.com/google/uuid"
)

// DeviceGroup — именованный, определяемый правилами набор устройств.
//
// Группа владеет своими правилами и workflow: удаление группы каскадно
// удаляет workflow и их executions (Group → Workflows → Executions).
type DeviceGroup struct {
	// ID — уникальный идентификатор группы.
	ID uuid.UUID `json:"id"`

	// Name — человекочитаемое имя.
	Name string `json:"name"`

	// MatchType — семантика объединения правил (all/any).
	MatchType MatchType `json:"match_type"`

	// Rules — правила членства, упорядоченные по Order.
	// Группа без правил не матчит ни одно устройство (fail-closed).
	Rules []Rule `json:"rules"`

	// IsActive — участвует ли группа в оркестрации.
	IsActive bool `json:"is_active"`

	// Priority — порядок обработки в тике: больше — раньше.
	Priority int `json:"priority"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последнего изменения группы или её правил.
	UpdatedAt time.Time `json:"updated_at"`
}
