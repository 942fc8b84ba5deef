package domain

import "github.com/google/uuid"

// Field — атрибут устройства, к которому применяется правило.
//
// Закрытый набор: оператор не может сослаться на произвольное поле,
// а добавление нового поля требует явной поддержки в evaluator.
type Field string

const (
	FieldOUI             Field = "oui"
	FieldManufacturer    Field = "manufacturer"
	FieldProductClass    Field = "product_class"
	FieldSoftwareVersion Field = "software_version"
	FieldHardwareVersion Field = "hardware_version"
	FieldSerialNumber    Field = "serial_number"
	FieldIPAddress       Field = "ip_address"
	FieldOnline          Field = "online"
	FieldSubscriberID    Field = "subscriber_id"
	FieldTags            Field = "tags"
	FieldCreatedAt       Field = "created_at"
)

// Fields — все известные поля, в порядке объявления.
var Fields = []Field{
	FieldOUI, FieldManufacturer, FieldProductClass,
	FieldSoftwareVersion, FieldHardwareVersion, FieldSerialNumber,
	FieldIPAddress, FieldOnline, FieldSubscriberID,
	FieldTags, FieldCreatedAt,
}

// Known возвращает true, если поле входит в закрытый набор.
func (f Field) Known() bool {
	for _, known := range Fields {
		if f == known {
			return true
		}
	}
	return false
}

// Operator — оператор сравнения в правиле группы.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
	OpStartsWith  Operator = "starts_with"
	OpEndsWith    Operator = "ends_with"
	OpLessThan    Operator = "less_than"
	OpGreaterThan Operator = "greater_than"
	OpLessOrEq    Operator = "less_than_or_equals"
	OpGreaterOrEq Operator = "greater_than_or_equals"
	OpRegex       Operator = "regex"
	OpIn          Operator = "in"
	OpNotIn       Operator = "not_in"
	OpIsNull      Operator = "is_null"
	OpIsNotNull   Operator = "is_not_null"
)

// Operators — все поддерживаемые операторы.
var Operators = []Operator{
	OpEquals, OpNotEquals, OpContains, OpNotContains,
	OpStartsWith, OpEndsWith,
	OpLessThan, OpGreaterThan, OpLessOrEq, OpGreaterOrEq,
	OpRegex, OpIn, OpNotIn, OpIsNull, OpIsNotNull,
}

// Known возвращает true, если оператор поддерживается.
func (o Operator) Known() bool {
	for _, known := range Operators {
		if o == known {
			return true
		}
	}
	return false
}

// IsOrdering возвращает true для операторов порядка (<, >, <=, >=).
func (o Operator) IsOrdering() bool {
	switch o {
	case OpLessThan, OpGreaterThan, OpLessOrEq, OpGreaterOrEq:
		return true
	default:
		return false
	}
}

// Rule — одно правило членства в группе: (поле, оператор, значение).
//
// Правило принадлежит ровно одной группе и вычисляется в порядке Order.
type Rule struct {
	// ID — уникальный идентификатор правила.
	ID uuid.UUID `json:"id"`

	// GroupID — группа, которой принадлежит правило.
	GroupID uuid.UUID `json:"group_id"`

	// Field — атрибут устройства.
	Field Field `json:"field"`

	// Operator — оператор сравнения.
	Operator Operator `json:"operator"`

	// Value — правая часть сравнения. Для in/not_in — JSON-массив
	// или список через запятую; для is_null/is_not_null игнорируется.
	Value string `json:"value"`

	// Order — позиция правила при отображении и вычислении.
	Order int `json:"order"`
}
