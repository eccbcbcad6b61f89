package schema

import (
	"fmt"
	"strings"
)

// RangeType restricts a numeric Type to an inclusive interval.
// A nil bound is open.
type RangeType struct {
	base Type
	min  *float64
	max  *float64
}

// Range wraps base with inclusive numeric bounds.
func Range(base Type, min, max *float64) Type {
	return &RangeType{base: base, min: min, max: max}
}

func (t *RangeType) Name() string { return t.base.Name() }

// Base returns the wrapped type.
func (t *RangeType) Base() Type { return t.base }

// Bounds returns the configured bounds.
func (t *RangeType) Bounds() (min, max *float64) { return t.min, t.max }

func (t *RangeType) Validate(value any) error {
	if err := t.base.Validate(value); err != nil {
		return err
	}
	f, ok := toFloat(value)
	if !ok {
		return fmt.Errorf("expected number, got %T", value)
	}
	if t.min != nil && f < *t.min {
		return fmt.Errorf("%v is below minimum %v", f, *t.min)
	}
	if t.max != nil && f > *t.max {
		return fmt.Errorf("%v is above maximum %v", f, *t.max)
	}
	return nil
}

// EnumType restricts a Type to a fixed set of values.
type EnumType struct {
	base   Type
	values []any
}

// Enum wraps base so only the listed values are accepted.
func Enum(base Type, values ...any) Type {
	return &EnumType{base: base, values: values}
}

func (t *EnumType) Name() string { return t.base.Name() }

// Base returns the wrapped type.
func (t *EnumType) Base() Type { return t.base }

// Values returns the allowed values.
func (t *EnumType) Values() []any { return t.values }

func (t *EnumType) Validate(value any) error {
	if err := t.base.Validate(value); err != nil {
		return err
	}
	for _, allowed := range t.values {
		if equalValue(allowed, value) {
			return nil
		}
	}
	opts := make([]string, 0, len(t.values))
	for _, v := range t.values {
		opts = append(opts, fmt.Sprint(v))
	}
	return fmt.Errorf("%v is not one of [%s]", value, strings.Join(opts, ", "))
}

func equalValue(a, b any) bool {
	fa, okA := toFloat(a)
	fb, okB := toFloat(b)
	if okA && okB {
		return fa == fb
	}
	return a == b
}
