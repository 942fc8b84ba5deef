package rules

import (
	"errors"
	"testing"
	"time"

	"github.com/marcelg7/fleetacs/internal/domain"
)

func calixSnapshot() *domain.DeviceSnapshot {
	return &domain.DeviceSnapshot{
		DeviceID:        "0019CB-844G-12345",
		OUI:             "0019CB",
		Manufacturer:    "Calix",
		ProductClass:    "844G-1",
		SoftwareVersion: "9.5.100.32",
		HardwareVersion: "2.0",
		SerialNumber:    "CXNK0012345",
		IPAddress:       "10.20.30.40",
		Online:          true,
		SubscriberID:    "sub-778",
		Tags:            []string{"fiber", "beta-program"},
		CreatedAt:       time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
	}
}

func evalRule(t *testing.T, field domain.Field, op domain.Operator, value string, snap *domain.DeviceSnapshot) bool {
	t.Helper()
	rule := &domain.Rule{Field: field, Operator: op, Value: value}
	got, err := Evaluate(rule, snap)
	if err != nil {
		t.Fatalf("Evaluate(%s %s %q): %v", field, op, value, err)
	}
	return got
}

func TestEvaluate_Equals_CaseInsensitive(t *testing.T) {
	snap := calixSnapshot()

	if !evalRule(t, domain.FieldManufacturer, domain.OpEquals, "calix", snap) {
		t.Error("equals should ignore case")
	}
	if !evalRule(t, domain.FieldManufacturer, domain.OpEquals, "CALIX", snap) {
		t.Error("equals should ignore case")
	}
	if evalRule(t, domain.FieldManufacturer, domain.OpEquals, "Nokia", snap) {
		t.Error("different manufacturer should not match")
	}
	if evalRule(t, domain.FieldManufacturer, domain.OpNotEquals, "calix", snap) {
		t.Error("not_equals should be the complement of equals")
	}
}

func TestEvaluate_ContainsAndAffixes(t *testing.T) {
	snap := calixSnapshot()

	if !evalRule(t, domain.FieldProductClass, domain.OpContains, "844g", snap) {
		t.Error("contains should ignore case")
	}
	if !evalRule(t, domain.FieldSerialNumber, domain.OpStartsWith, "cxnk", snap) {
		t.Error("starts_with should ignore case")
	}
	if !evalRule(t, domain.FieldProductClass, domain.OpEndsWith, "-1", snap) {
		t.Error("ends_with should match suffix")
	}
	if evalRule(t, domain.FieldProductClass, domain.OpNotContains, "844", snap) {
		t.Error("not_contains should be the complement of contains")
	}
}

func TestEvaluate_VersionOrdering(t *testing.T) {
	snap := calixSnapshot()
	snap.SoftwareVersion = "2.1.0"

	// Семантическое сравнение: 2.1.0 < 2.10.0, лексически было бы наоборот
	if !evalRule(t, domain.FieldSoftwareVersion, domain.OpLessThan, "2.10.0", snap) {
		t.Error("2.1.0 must be less than 2.10.0 under semantic ordering")
	}
	if evalRule(t, domain.FieldSoftwareVersion, domain.OpGreaterThan, "2.10.0", snap) {
		t.Error("2.1.0 must not be greater than 2.10.0")
	}
	if !evalRule(t, domain.FieldSoftwareVersion, domain.OpGreaterOrEq, "2.1.0", snap) {
		t.Error("version should be >= itself")
	}
	if !evalRule(t, domain.FieldSoftwareVersion, domain.OpLessOrEq, "2.1.0", snap) {
		t.Error("version should be <= itself")
	}
}

func TestEvaluate_VersionOrdering_LooseVersions(t *testing.T) {
	snap := calixSnapshot()
	snap.SoftwareVersion = "9.5"

	if !evalRule(t, domain.FieldSoftwareVersion, domain.OpLessThan, "9.7.0", snap) {
		t.Error("two-segment versions should still compare")
	}
}

func TestEvaluate_CreatedAtOrdering(t *testing.T) {
	snap := calixSnapshot()

	if !evalRule(t, domain.FieldCreatedAt, domain.OpLessThan, "2025-01-01", snap) {
		t.Error("created_at should compare chronologically against a date")
	}
	if !evalRule(t, domain.FieldCreatedAt, domain.OpGreaterThan, "2024-01-01T00:00:00Z", snap) {
		t.Error("created_at should accept RFC3339 rule values")
	}
}

func TestEvaluate_Regex(t *testing.T) {
	snap := calixSnapshot()

	if !evalRule(t, domain.FieldProductClass, domain.OpRegex, `^844g-\d$`, snap) {
		t.Error("regex should match case-insensitively")
	}

	rule := &domain.Rule{Field: domain.FieldProductClass, Operator: domain.OpRegex, Value: `([`}
	if _, err := Evaluate(rule, snap); err == nil {
		t.Error("malformed regex must surface an error")
	}
}

func TestEvaluate_InNotIn(t *testing.T) {
	snap := calixSnapshot()

	// JSON-массив
	if !evalRule(t, domain.FieldOUI, domain.OpIn, `["0019CB","AABBCC"]`, snap) {
		t.Error("in should accept a JSON array")
	}
	// Список через запятую
	if !evalRule(t, domain.FieldOUI, domain.OpIn, "0019cb, aabbcc", snap) {
		t.Error("in should accept a comma-separated list, case-insensitively")
	}
	if evalRule(t, domain.FieldOUI, domain.OpIn, `["AABBCC"]`, snap) {
		t.Error("value outside the set should not match")
	}
	if !evalRule(t, domain.FieldOUI, domain.OpNotIn, `["AABBCC"]`, snap) {
		t.Error("not_in should be the complement of in")
	}

	rule := &domain.Rule{Field: domain.FieldOUI, Operator: domain.OpIn, Value: "   "}
	if _, err := Evaluate(rule, snap); !errors.Is(err, ErrBadValue) {
		t.Errorf("empty list value must fail, got %v", err)
	}
}

func TestEvaluate_Tags(t *testing.T) {
	snap := calixSnapshot()

	// Для tags equals/contains — членство
	if !evalRule(t, domain.FieldTags, domain.OpEquals, "fiber", snap) {
		t.Error("tag equals should test membership")
	}
	if !evalRule(t, domain.FieldTags, domain.OpContains, "BETA-PROGRAM", snap) {
		t.Error("tag contains should test membership, ignoring case")
	}
	if evalRule(t, domain.FieldTags, domain.OpContains, "copper", snap) {
		t.Error("absent tag should not match")
	}
	if !evalRule(t, domain.FieldTags, domain.OpIn, `["copper","fiber"]`, snap) {
		t.Error("tags in should match when any tag is in the set")
	}
}

func TestEvaluate_NullSemantics(t *testing.T) {
	snap := calixSnapshot()
	snap.SubscriberID = ""

	if !evalRule(t, domain.FieldSubscriberID, domain.OpIsNull, "", snap) {
		t.Error("empty subscriber_id should be null")
	}
	if evalRule(t, domain.FieldSubscriberID, domain.OpIsNotNull, "", snap) {
		t.Error("is_not_null must be the exact complement of is_null")
	}

	// Любой другой оператор на null-поле — false, включая not_equals
	if evalRule(t, domain.FieldSubscriberID, domain.OpEquals, "sub-778", snap) {
		t.Error("equals on a null field must be false")
	}
	if evalRule(t, domain.FieldSubscriberID, domain.OpNotEquals, "sub-778", snap) {
		t.Error("not_equals on a null field must be false, not true")
	}

	snap.Tags = nil
	if !evalRule(t, domain.FieldTags, domain.OpIsNull, "", snap) {
		t.Error("empty tag list should be null")
	}
}

func TestEvaluate_Online(t *testing.T) {
	snap := calixSnapshot()

	if !evalRule(t, domain.FieldOnline, domain.OpEquals, "true", snap) {
		t.Error("online should compare as a boolean string")
	}
	snap.Online = false
	if !evalRule(t, domain.FieldOnline, domain.OpEquals, "false", snap) {
		t.Error("offline device should match false")
	}

	// Операторы порядка к bool неприменимы
	rule := &domain.Rule{Field: domain.FieldOnline, Operator: domain.OpLessThan, Value: "true"}
	if _, err := Evaluate(rule, snap); !errors.Is(err, ErrOperatorNotApplicable) {
		t.Errorf("ordering on online must fail, got %v", err)
	}
}

func TestEvaluate_UnknownFieldAndOperator(t *testing.T) {
	snap := calixSnapshot()

	rule := &domain.Rule{Field: "mac_address", Operator: domain.OpEquals, Value: "x"}
	if _, err := Evaluate(rule, snap); !errors.Is(err, ErrUnknownField) {
		t.Errorf("expected ErrUnknownField, got %v", err)
	}

	rule = &domain.Rule{Field: domain.FieldOUI, Operator: "matches", Value: "x"}
	if _, err := Evaluate(rule, snap); !errors.Is(err, ErrUnknownOperator) {
		t.Errorf("expected ErrUnknownOperator, got %v", err)
	}
}

func TestParseListValue(t *testing.T) {
	items, err := ParseListValue(`["a","b","c"]`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 3 || items[0] != "a" {
		t.Errorf("unexpected items: %v", items)
	}

	items, err = ParseListValue("a, b ,c")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 3 || items[1] != "b" {
		t.Errorf("unexpected items: %v", items)
	}

	// JSON-массив со смешанными типами приводится к строкам
	items, err = ParseListValue(`[1, "two"]`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 || items[0] != "1" {
		t.Errorf("unexpected items: %v", items)
	}
}
