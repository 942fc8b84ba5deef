package rules

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	goversion "github.com/hashicorp/go-version"

	"github.com/marcelg7/fleetacs/internal/domain"
)

// kind — тип значения поля устройства.
type kind int

const (
	kindString kind = iota
	kindVersion
	kindTime
	kindBool
	kindList
)

// fieldValue — значение поля снимка вместе с его типом.
type fieldValue struct {
	kind kind
	str  string
	list []string
	t    time.Time
	b    bool
	null bool
}

// Evaluate вычисляет одно правило против снимка устройства.
//
// Контракт:
//   - отсутствующее (null) поле даёт false для всех операторов,
//     кроме is_null (true) и is_not_null (false);
//   - строковые сравнения регистронезависимые;
//   - software_version/hardware_version сравниваются как версии,
//     created_at — хронологически;
//   - ошибка (битый regex, нечисловая версия в правиле) возвращается
//     вызывающему: это non-match, который matcher логирует, а не фатал.
func Evaluate(rule *domain.Rule, snap *domain.DeviceSnapshot) (bool, error) {
	val, err := valueOf(rule.Field, snap)
	if err != nil {
		return false, err
	}

	switch rule.Operator {
	case domain.OpIsNull:
		return val.null, nil
	case domain.OpIsNotNull:
		return !val.null, nil
	}

	// Все остальные операторы на null-поле — false.
	if val.null {
		return false, nil
	}

	switch rule.Operator {
	case domain.OpEquals:
		return equalsFold(val, rule.Value), nil
	case domain.OpNotEquals:
		return !equalsFold(val, rule.Value), nil

	case domain.OpContains:
		return containsFold(val, rule.Value), nil
	case domain.OpNotContains:
		return !containsFold(val, rule.Value), nil

	case domain.OpStartsWith:
		return strings.HasPrefix(strings.ToLower(val.str), strings.ToLower(rule.Value)), nil
	case domain.OpEndsWith:
		return strings.HasSuffix(strings.ToLower(val.str), strings.ToLower(rule.Value)), nil

	case domain.OpLessThan, domain.OpGreaterThan, domain.OpLessOrEq, domain.OpGreaterOrEq:
		cmp, err := compare(val, rule.Value)
		if err != nil {
			return false, err
		}
		switch rule.Operator {
		case domain.OpLessThan:
			return cmp < 0, nil
		case domain.OpGreaterThan:
			return cmp > 0, nil
		case domain.OpLessOrEq:
			return cmp <= 0, nil
		default:
			return cmp >= 0, nil
		}

	case domain.OpRegex:
		re, err := regexp.Compile("(?i)" + rule.Value)
		if err != nil {
			return false, fmt.Errorf("compile pattern %q: %w", rule.Value, err)
		}
		return matchAnyString(val, re.MatchString), nil

	case domain.OpIn, domain.OpNotIn:
		set, err := ParseListValue(rule.Value)
		if err != nil {
			return false, err
		}
		member := memberFold(val, set)
		if rule.Operator == domain.OpIn {
			return member, nil
		}
		return !member, nil

	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownOperator, rule.Operator)
	}
}

// valueOf извлекает типизированное значение поля из снимка.
func valueOf(field domain.Field, snap *domain.DeviceSnapshot) (fieldValue, error) {
	str := func(s string) fieldValue {
		return fieldValue{kind: kindString, str: s, null: s == ""}
	}

	switch field {
	case domain.FieldOUI:
		return str(snap.OUI), nil
	case domain.FieldManufacturer:
		return str(snap.Manufacturer), nil
	case domain.FieldProductClass:
		return str(snap.ProductClass), nil
	case domain.FieldSerialNumber:
		return str(snap.SerialNumber), nil
	case domain.FieldIPAddress:
		return str(snap.IPAddress), nil
	case domain.FieldSubscriberID:
		return str(snap.SubscriberID), nil

	case domain.FieldSoftwareVersion:
		v := str(snap.SoftwareVersion)
		v.kind = kindVersion
		return v, nil
	case domain.FieldHardwareVersion:
		v := str(snap.HardwareVersion)
		v.kind = kindVersion
		return v, nil

	case domain.FieldOnline:
		return fieldValue{
			kind: kindBool,
			b:    snap.Online,
			str:  fmt.Sprintf("%t", snap.Online),
		}, nil

	case domain.FieldTags:
		return fieldValue{
			kind: kindList,
			list: snap.Tags,
			str:  strings.Join(snap.Tags, ","),
			null: len(snap.Tags) == 0,
		}, nil

	case domain.FieldCreatedAt:
		return fieldValue{
			kind: kindTime,
			t:    snap.CreatedAt,
			str:  snap.CreatedAt.Format(time.RFC3339),
			null: snap.CreatedAt.IsZero(),
		}, nil

	default:
		return fieldValue{}, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
}

// equalsFold — регистронезависимое равенство; для tags — членство.
func equalsFold(val fieldValue, want string) bool {
	if val.kind == kindList {
		return memberFold(val, []string{want})
	}
	return strings.EqualFold(val.str, want)
}

// containsFold — подстрока для строк, членство для tags.
func containsFold(val fieldValue, want string) bool {
	if val.kind == kindList {
		return memberFold(val, []string{want})
	}
	return strings.Contains(strings.ToLower(val.str), strings.ToLower(want))
}

// memberFold проверяет членство значения поля в наборе.
// Для tags истинно, если хотя бы один тег входит в набор.
func memberFold(val fieldValue, set []string) bool {
	candidates := val.list
	if val.kind != kindList {
		candidates = []string{val.str}
	}
	for _, c := range candidates {
		for _, s := range set {
			if strings.EqualFold(strings.TrimSpace(c), strings.TrimSpace(s)) {
				return true
			}
		}
	}
	return false
}

// matchAnyString применяет предикат к строковому значению поля;
// для tags — к каждому тегу.
func matchAnyString(val fieldValue, match func(string) bool) bool {
	if val.kind == kindList {
		for _, tag := range val.list {
			if match(tag) {
				return true
			}
		}
		return false
	}
	return match(val.str)
}

// compare возвращает -1/0/1 для операторов порядка.
//
// Версионные поля сравниваются семантически ("2.1.0" < "2.10.0"),
// временные — хронологически, строковые — лексически без учёта регистра.
func compare(val fieldValue, ruleValue string) (int, error) {
	switch val.kind {
	case kindVersion:
		have, err := goversion.NewVersion(val.str)
		if err != nil {
			return 0, fmt.Errorf("device version %q: %w", val.str, err)
		}
		want, err := goversion.NewVersion(ruleValue)
		if err != nil {
			return 0, fmt.Errorf("rule version %q: %w", ruleValue, err)
		}
		return have.Compare(want), nil

	case kindTime:
		want, err := parseTime(ruleValue)
		if err != nil {
			return 0, fmt.Errorf("rule timestamp %q: %w", ruleValue, err)
		}
		switch {
		case val.t.Before(want):
			return -1, nil
		case val.t.After(want):
			return 1, nil
		default:
			return 0, nil
		}

	case kindString:
		return strings.Compare(strings.ToLower(val.str), strings.ToLower(ruleValue)), nil

	default:
		return 0, fmt.Errorf("%w: ordering on %s", ErrOperatorNotApplicable, val.kindName())
	}
}

func (v fieldValue) kindName() string {
	switch v.kind {
	case kindVersion:
		return "version"
	case kindTime:
		return "timestamp"
	case kindBool:
		return "bool"
	case kindList:
		return "list"
	default:
		return "string"
	}
}

// parseTime принимает RFC3339 либо дату без времени.
func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

// ParseListValue разбирает значение для in/not_in: сначала как
// JSON-массив, при неудаче — как список через запятую.
func ParseListValue(value string) ([]string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty list value", ErrBadValue)
	}

	if strings.HasPrefix(trimmed, "[") {
		var items []string
		if err := json.Unmarshal([]byte(trimmed), &items); err == nil {
			return items, nil
		}
		// JSON-массив со смешанными типами — приводим к строкам.
		var raw []any
		if err := json.Unmarshal([]byte(trimmed), &raw); err == nil {
			items = make([]string, len(raw))
			for i, v := range raw {
				items[i] = fmt.Sprintf("%v", v)
			}
			return items, nil
		}
	}

	parts := strings.Split(trimmed, ",")
	items := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			items = append(items, p)
		}
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: empty list value", ErrBadValue)
	}
	return items, nil
}
