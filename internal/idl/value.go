package idl

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/switchdb/restd/internal/schema"
)

// Value is a tagged variant over the schema's scalar base types. It is the
// Go stand-in for the source's reflective row.__getattr__ column access,
// per spec.md §9 ("replaced by a typed accessor row.get(column) -> Value").
type Value struct {
	Kind schema.Type
	i    int64
	r    float64
	b    bool
	s    string
	u    uuid.UUID
	// set indicates the value is present; a zero Value with set==false
	// represents "empty"/default for whichever type the caller expects.
	set bool
}

// IntValue builds an int Value.
func IntValue(v int64) Value { return Value{Kind: schema.TypeInt, i: v, set: true} }

// RealValue builds a real Value.
func RealValue(v float64) Value { return Value{Kind: schema.TypeReal, r: v, set: true} }

// BoolValue builds a bool Value.
func BoolValue(v bool) Value { return Value{Kind: schema.TypeBool, b: v, set: true} }

// StringValue builds a string Value.
func StringValue(v string) Value { return Value{Kind: schema.TypeString, s: v, set: true} }

// UUIDValue builds a uuid Value.
func UUIDValue(v uuid.UUID) Value { return Value{Kind: schema.TypeUUID, u: v, set: true} }

// Empty returns the empty value for the given type, per spec.md's
// "empty_value" concept (a column whose current value equals its declared
// empty value is omitted from serialization unless explicitly requested).
func Empty(t schema.Type) Value { return Value{Kind: t} }

// IsSet reports whether the value was ever assigned (as opposed to being
// the type's zero/empty value by default).
func (v Value) IsSet() bool { return v.set }

// Int returns the value as an int64.
func (v Value) Int() int64 { return v.i }

// Real returns the value as a float64.
func (v Value) Real() float64 { return v.r }

// Bool returns the value as a bool.
func (v Value) Bool() bool { return v.b }

// Str returns the value as a string.
func (v Value) Str() string { return v.s }

// UUID returns the value as a uuid.UUID.
func (v Value) UUID() uuid.UUID { return v.u }

// Native converts the Value to the closest Go type for JSON encoding.
func (v Value) Native() any {
	switch v.Kind {
	case schema.TypeInt:
		return v.i
	case schema.TypeReal:
		return v.r
	case schema.TypeBool:
		return v.b
	case schema.TypeUUID:
		return v.u.String()
	default:
		return v.s
	}
}

// String renders the value as a string, used for dynamic-category lookups
// and URI index segments.
func (v Value) String() string {
	switch v.Kind {
	case schema.TypeInt:
		return strconv.FormatInt(v.i, 10)
	case schema.TypeReal:
		return strconv.FormatFloat(v.r, 'g', -1, 64)
	case schema.TypeBool:
		return strconv.FormatBool(v.b)
	case schema.TypeUUID:
		return v.u.String()
	default:
		return v.s
	}
}

// ValueFromNative converts a decoded JSON value into a typed Value
// according to the declared column type. It returns an error if native
// cannot be coerced to t.
func ValueFromNative(t schema.Type, native any) (Value, error) {
	switch t {
	case schema.TypeInt:
		switch n := native.(type) {
		case float64:
			return IntValue(int64(n)), nil
		case int64:
			return IntValue(n), nil
		case int:
			return IntValue(int64(n)), nil
		case string:
			i, err := strconv.ParseInt(n, 10, 64)
			if err != nil {
				return Value{}, fmt.Errorf("not an int: %v", native)
			}
			return IntValue(i), nil
		}
		return Value{}, fmt.Errorf("not an int: %v", native)
	case schema.TypeReal:
		switch n := native.(type) {
		case float64:
			return RealValue(n), nil
		case string:
			f, err := strconv.ParseFloat(n, 64)
			if err != nil {
				return Value{}, fmt.Errorf("not a real: %v", native)
			}
			return RealValue(f), nil
		}
		return Value{}, fmt.Errorf("not a real: %v", native)
	case schema.TypeBool:
		switch n := native.(type) {
		case bool:
			return BoolValue(n), nil
		case string:
			b, err := strconv.ParseBool(n)
			if err != nil {
				return Value{}, fmt.Errorf("not a bool: %v", native)
			}
			return BoolValue(b), nil
		}
		return Value{}, fmt.Errorf("not a bool: %v", native)
	case schema.TypeUUID:
		s, ok := native.(string)
		if !ok {
			return Value{}, fmt.Errorf("not a uuid: %v", native)
		}
		id, err := uuid.Parse(s)
		if err != nil {
			return Value{}, fmt.Errorf("not a uuid: %v", native)
		}
		return UUIDValue(id), nil
	default: // string
		s, ok := native.(string)
		if !ok {
			return Value{}, fmt.Errorf("not a string: %v", native)
		}
		return StringValue(s), nil
	}
}
