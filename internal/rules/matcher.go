package rules

import (
	"log/slog"
	"sort"

	"github.com/marcelg7/fleetacs/internal/domain"
)

// Matcher вычисляет членство устройства в группе.
type Matcher struct {
	logger *slog.Logger
}

// NewMatcher создаёт Matcher.
func NewMatcher(logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{logger: logger}
}

// Matches возвращает true, если устройство подходит под правила группы.
//
// Правила вычисляются в порядке Order; all короткозамыкается на первом
// false, any — на первом true. Порядок влияет только на стоимость,
// никогда — на результат. Группа без правил не матчит ничего.
// Ошибка правила считается non-match и логируется на уровне warning.
func (m *Matcher) Matches(group *domain.DeviceGroup, snap *domain.DeviceSnapshot) bool {
	if len(group.Rules) == 0 {
		return false
	}

	ordered := make([]domain.Rule, len(group.Rules))
	copy(ordered, group.Rules)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Order < ordered[j].Order
	})

	for i := range ordered {
		rule := &ordered[i]

		ok, err := Evaluate(rule, snap)
		if err != nil {
			m.logger.Warn("rule evaluation failed, treating as non-match",
				"group_id", group.ID,
				"rule_id", rule.ID,
				"field", rule.Field,
				"operator", rule.Operator,
				"device_id", snap.DeviceID,
				"error", err,
			)
			ok = false
		}

		switch group.MatchType {
		case domain.MatchAny:
			if ok {
				return true
			}
		default: // MatchAll
			if !ok {
				return false
			}
		}
	}

	return group.MatchType != domain.MatchAny
}

// MatchingDevices возвращает подмножество снимков, подходящих под группу.
func (m *Matcher) MatchingDevices(group *domain.DeviceGroup, snaps []domain.DeviceSnapshot) []domain.DeviceSnapshot {
	var matched []domain.DeviceSnapshot
	for i := range snaps {
		if m.Matches(group, &snaps[i]) {
			matched = append(matched, snaps[i])
		}
	}
	return matched
}
