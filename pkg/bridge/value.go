// Package bridge routes named calls with untyped argument bundles to typed
// operation handlers and forwards each operation's outcome as exactly one reply.
package bridge

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
)

// Kind is the closed set of value kinds an argument bundle may carry.
type Kind int

const (
	KindString Kind = iota + 1
	KindInt32
	KindInt64
	KindDouble
	KindBool
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt32:
		return "int32"
	case KindInt64:
		return "int64"
	case KindDouble:
		return "double"
	case KindBool:
		return "bool"
	case KindMap:
		return "map"
	default:
		return "invalid"
	}
}

// Value is a tagged union over the supported kinds. The zero Value is invalid.
type Value struct {
	kind Kind
	s    string
	i    int64
	f    float64
	b    bool
	m    Bag
}

// Bag is a validated, strongly-typed parameter bag.
type Bag map[string]Value

func StringValue(s string) Value  { return Value{kind: KindString, s: s} }
func Int32Value(i int32) Value    { return Value{kind: KindInt32, i: int64(i)} }
func Int64Value(i int64) Value    { return Value{kind: KindInt64, i: i} }
func DoubleValue(f float64) Value { return Value{kind: KindDouble, f: f} }
func BoolValue(b bool) Value      { return Value{kind: KindBool, b: b} }
func MapValue(m Bag) Value        { return Value{kind: KindMap, m: m} }

// Kind returns the value's kind.
func (v Value) Kind() Kind { return v.kind }

func (v Value) AsString() (string, bool)  { return v.s, v.kind == KindString }
func (v Value) AsBool() (bool, bool)      { return v.b, v.kind == KindBool }
func (v Value) AsDouble() (float64, bool) { return v.f, v.kind == KindDouble }
func (v Value) AsMap() (Bag, bool)        { return v.m, v.kind == KindMap }

// AsInt32 reports the value as int32. Only KindInt32 qualifies; narrowing never happens.
func (v Value) AsInt32() (int32, bool) {
	if v.kind != KindInt32 {
		return 0, false
	}
	return int32(v.i), true
}

// AsInt64 reports the value as int64, widening KindInt32.
func (v Value) AsInt64() (int64, bool) {
	if v.kind != KindInt32 && v.kind != KindInt64 {
		return 0, false
	}
	return v.i, true
}

// Native converts the value back to plain Go types.
func (v Value) Native() any {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt32:
		return int32(v.i)
	case KindInt64:
		return v.i
	case KindDouble:
		return v.f
	case KindBool:
		return v.b
	case KindMap:
		return v.m.Native()
	default:
		return nil
	}
}

func (v Value) String() string {
	return fmt.Sprintf("%s(%v)", v.kind, v.Native())
}

// MarshalJSON encodes the value as its native JSON form.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Native())
}

// Native converts the bag back to a plain map. A nil bag yields nil.
func (b Bag) Native() map[string]any {
	if b == nil {
		return nil
	}
	out := make(map[string]any, len(b))
	for k, v := range b {
		out[k] = v.Native()
	}
	return out
}

// Keys returns the bag's keys in sorted order.
func (b Bag) Keys() []string {
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ValueOf converts a decoded JSON or native Go value into a Value.
func ValueOf(v any) (Value, error) {
	return valueOf("", v)
}

func valueOf(path string, v any) (Value, error) {
	switch x := v.(type) {
	case string:
		return StringValue(x), nil
	case bool:
		return BoolValue(x), nil
	case int32:
		return Int32Value(x), nil
	case int64:
		return Int64Value(x), nil
	case int:
		if x >= math.MinInt32 && x <= math.MaxInt32 {
			return Int32Value(int32(x)), nil
		}
		return Int64Value(int64(x)), nil
	case float64:
		return DoubleValue(x), nil
	case float32:
		return DoubleValue(float64(x)), nil
	case json.Number:
		return numberValue(path, x)
	case Value:
		if x.kind == 0 {
			return Value{}, unsupportedKind(path, "invalid")
		}
		return x, nil
	case Bag:
		return MapValue(x), nil
	case map[string]any:
		m, err := bagOf(path, x)
		if err != nil {
			return Value{}, err
		}
		return MapValue(m), nil
	default:
		return Value{}, unsupportedKind(path, kindName(v))
	}
}

// numberValue keeps integer literals integral: int32 when they fit, int64 otherwise.
func numberValue(path string, n json.Number) (Value, error) {
	if i, err := n.Int64(); err == nil {
		if i >= math.MinInt32 && i <= math.MaxInt32 {
			return Int32Value(int32(i)), nil
		}
		return Int64Value(i), nil
	}
	f, err := n.Float64()
	if err != nil {
		return Value{}, unsupportedKind(path, "number")
	}
	return DoubleValue(f), nil
}

func kindName(v any) string {
	if v == nil {
		return "null"
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Map:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}
