package rules

import (
	"fmt"
	"regexp"

	"github.com/marcelg7/fleetacs/internal/domain"
)

// ValidateRule проверяет правило при создании/изменении группы.
//
// Админ-поверхность отклоняет заведомо битые правила (неизвестное поле,
// некомпилируемый regex, пустой список), чтобы в warning-путь
// вычисления попадали только проблемы самих данных устройства.
func ValidateRule(rule *domain.Rule) error {
	if !rule.Field.Known() {
		return fmt.Errorf("%w: %q", ErrUnknownField, rule.Field)
	}
	if !rule.Operator.Known() {
		return fmt.Errorf("%w: %q", ErrUnknownOperator, rule.Operator)
	}

	switch rule.Operator {
	case domain.OpIsNull, domain.OpIsNotNull:
		return nil

	case domain.OpRegex:
		if _, err := regexp.Compile("(?i)" + rule.Value); err != nil {
			return fmt.Errorf("%w: %v", ErrBadValue, err)
		}
		return nil

	case domain.OpIn, domain.OpNotIn:
		_, err := ParseListValue(rule.Value)
		return err
	}

	if rule.Value == "" {
		return fmt.Errorf("%w: empty value for %s", ErrBadValue, rule.Operator)
	}

	if rule.Operator.IsOrdering() {
		switch rule.Field {
		case domain.FieldOnline, domain.FieldTags:
			return fmt.Errorf("%w: %s on %s", ErrOperatorNotApplicable, rule.Operator, rule.Field)
		}
	}

	return nil
}

// ValidateGroup проверяет группу вместе с её правилами.
func ValidateGroup(group *domain.DeviceGroup) error {
	if group.Name == "" {
		return fmt.Errorf("%w: group name required", ErrBadValue)
	}
	if group.MatchType != domain.MatchAll && group.MatchType != domain.MatchAny {
		return fmt.Errorf("%w: match_type %q", ErrBadValue, group.MatchType)
	}
	for i := range group.Rules {
		if err := ValidateRule(&group.Rules[i]); err != nil {
			return fmt.Errorf("rule %d: %w", i, err)
		}
	}
	return nil
}
