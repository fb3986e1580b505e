// Package quality implements the declarative rule engine that gates
// partition promotion between layers. Rules are data (kind + parameters),
// evaluated by a single dispatcher, so new checks are configuration
// rather than code changes per field.
package quality

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Kind discriminates the supported check kinds.
type Kind string

const (
	KindNotNull   Kind = "not_null"
	KindUnique    Kind = "unique"
	KindRefInteg  Kind = "referential_integrity"
	KindVolume    Kind = "volume"
	KindType      Kind = "type"
	KindRange     Kind = "range"
)

// Severity decides whether a failing rule halts promotion.
type Severity string

const (
	Blocking Severity = "blocking"
	Advisory Severity = "advisory"
)

// FieldType names the expected runtime type for a KindType rule.
type FieldType string

const (
	TypeInt    FieldType = "int"
	TypeNumber FieldType = "number"
	TypeString FieldType = "string"
	TypeBool   FieldType = "bool"
)

// Rule is one declarative check. Only the parameters relevant to its
// Kind are set; the rest stay zero.
type Rule struct {
	Kind     Kind
	Severity Severity

	Fields    []string // not_null
	Field     string   // unique, referential_integrity, type, range
	TargetSet map[int64]struct{}
	Expected  FieldType
	Min, Max  *float64 // range bounds, nil = unbounded
	MinCount  int      // volume
	MaxCount  int      // volume, 0 = unbounded
}

// NotNull fails when any record has a missing, nil or empty value in one
// of the listed fields.
func NotNull(sev Severity, fields ...string) Rule {
	return Rule{Kind: KindNotNull, Severity: sev, Fields: fields}
}

// Unique fails when field values are not distinct within the batch.
func Unique(sev Severity, field string) Rule {
	return Rule{Kind: KindUnique, Severity: sev, Field: field}
}

// ReferentialIntegrity fails when a record's integer field value is
// absent from targets.
func ReferentialIntegrity(sev Severity, field string, targets map[int64]struct{}) Rule {
	return Rule{Kind: KindRefInteg, Severity: sev, Field: field, TargetSet: targets}
}

// Volume fails when the batch size falls outside [min, max]; max 0 means
// unbounded above.
func Volume(sev Severity, min, max int) Rule {
	return Rule{Kind: KindVolume, Severity: sev, MinCount: min, MaxCount: max}
}

// TypeOf fails when a present field value does not match the expected type.
func TypeOf(sev Severity, field string, expected FieldType) Rule {
	return Rule{Kind: KindType, Severity: sev, Field: field, Expected: expected}
}

// Range fails when a numeric field falls outside the given bounds.
// Either bound may be nil for half-open ranges.
func Range(sev Severity, field string, min, max *float64) Rule {
	return Rule{Kind: KindRange, Severity: sev, Field: field, Min: min, Max: max}
}

// Float is a convenience for building Range bounds.
func Float(v float64) *float64 { return &v }

// Name returns the stable identifier used in reports.
func (r Rule) Name() string {
	switch r.Kind {
	case KindNotNull:
		return fmt.Sprintf("not_null(%v)", r.Fields)
	case KindUnique:
		return fmt.Sprintf("unique(%s)", r.Field)
	case KindRefInteg:
		return fmt.Sprintf("referential_integrity(%s)", r.Field)
	case KindVolume:
		return fmt.Sprintf("volume(min=%d,max=%d)", r.MinCount, r.MaxCount)
	case KindType:
		return fmt.Sprintf("type(%s,%s)", r.Field, r.Expected)
	case KindRange:
		return fmt.Sprintf("range(%s)", r.Field)
	default:
		return string(r.Kind)
	}
}

// isEmpty reports whether a field value counts as null for not_null.
func isEmpty(v any, present bool) bool {
	if !present || v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return s == ""
	}
	return false
}

// asFloat coerces the numeric representations a decoded record may hold.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// valueKey renders a field value into a comparable key for uniqueness.
func valueKey(v any) string {
	switch n := v.(type) {
	case json.Number:
		return n.String()
	case string:
		return "s:" + n
	case float64:
		return strconv.FormatFloat(n, 'g', -1, 64)
	case int:
		return strconv.Itoa(n)
	case int64:
		return strconv.FormatInt(n, 10)
	case bool:
		return strconv.FormatBool(n)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// matchesType reports whether v satisfies the expected field type.
func matchesType(v any, expected FieldType) bool {
	switch expected {
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeBool:
		_, ok := v.(bool)
		return ok
	case TypeNumber:
		_, ok := asFloat(v)
		return ok
	case TypeInt:
		switch n := v.(type) {
		case int, int64:
			return true
		case json.Number:
			_, err := n.Int64()
			return err == nil
		case float64:
			return n == float64(int64(n))
		default:
			return false
		}
	default:
		return false
	}
}
