package bridge

import (
	"fmt"
	"sort"
)

// MarshalError reports a malformed argument. Key is the dotted path of the offending entry.
type MarshalError struct {
	Key    string
	Kind   string
	Reason string
}

func (e *MarshalError) Error() string {
	return e.Reason
}

func unsupportedKind(key, kind string) *MarshalError {
	return &MarshalError{
		Key:    key,
		Kind:   kind,
		Reason: fmt.Sprintf("unsupported value kind %q for key %q", kind, key),
	}
}

func missingArgument(key string) *MarshalError {
	return &MarshalError{
		Key:    key,
		Kind:   "missing",
		Reason: fmt.Sprintf("missing required argument %q", key),
	}
}

func wrongKind(key string, want Kind, got Kind) *MarshalError {
	return &MarshalError{
		Key:    key,
		Kind:   got.String(),
		Reason: fmt.Sprintf("argument %q must be %s, got %s", key, want, got),
	}
}

// InvalidArgument builds a MarshalError for a field that is present and well-kinded
// but violates a per-operation rule.
func InvalidArgument(key, reason string) *MarshalError {
	return &MarshalError{
		Key:    key,
		Kind:   "invalid",
		Reason: fmt.Sprintf("argument %q is invalid: %s", key, reason),
	}
}

// ToNativeBag converts an untyped bundle into a Bag. A nil bundle yields a nil bag.
// Conversion is atomic: on any unsupported value no bag is returned.
func ToNativeBag(bundle map[string]any) (Bag, error) {
	if bundle == nil {
		return nil, nil
	}
	bag, err := bagOf("", bundle)
	if err != nil {
		return nil, err
	}
	return bag, nil
}

func bagOf(prefix string, m map[string]any) (Bag, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// sorted so the reported key is stable across runs
	sort.Strings(keys)

	out := make(Bag, len(m))
	for _, k := range keys {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		v, err := valueOf(path, m[k])
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

// Has reports whether key is present.
func (b Bag) Has(key string) bool {
	_, ok := b[key]
	return ok
}

// String returns a required string argument.
func (b Bag) String(key string) (string, error) {
	v, ok := b[key]
	if !ok {
		return "", missingArgument(key)
	}
	s, ok := v.AsString()
	if !ok {
		return "", wrongKind(key, KindString, v.kind)
	}
	return s, nil
}

// OptionalString returns nil when key is absent.
func (b Bag) OptionalString(key string) (*string, error) {
	if !b.Has(key) {
		return nil, nil
	}
	s, err := b.String(key)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Bool returns a required boolean argument.
func (b Bag) Bool(key string) (bool, error) {
	v, ok := b[key]
	if !ok {
		return false, missingArgument(key)
	}
	x, ok := v.AsBool()
	if !ok {
		return false, wrongKind(key, KindBool, v.kind)
	}
	return x, nil
}

// Int64 returns a required integer argument, widening int32 values.
func (b Bag) Int64(key string) (int64, error) {
	v, ok := b[key]
	if !ok {
		return 0, missingArgument(key)
	}
	x, ok := v.AsInt64()
	if !ok {
		return 0, wrongKind(key, KindInt64, v.kind)
	}
	return x, nil
}

// Int32 returns a required 32-bit integer argument. Int64 values are rejected.
func (b Bag) Int32(key string) (int32, error) {
	v, ok := b[key]
	if !ok {
		return 0, missingArgument(key)
	}
	x, ok := v.AsInt32()
	if !ok {
		return 0, wrongKind(key, KindInt32, v.kind)
	}
	return x, nil
}

// Double returns a required floating point argument.
func (b Bag) Double(key string) (float64, error) {
	v, ok := b[key]
	if !ok {
		return 0, missingArgument(key)
	}
	x, ok := v.AsDouble()
	if !ok {
		return 0, wrongKind(key, KindDouble, v.kind)
	}
	return x, nil
}

// Map returns a required nested bag.
func (b Bag) Map(key string) (Bag, error) {
	v, ok := b[key]
	if !ok {
		return nil, missingArgument(key)
	}
	m, ok := v.AsMap()
	if !ok {
		return nil, wrongKind(key, KindMap, v.kind)
	}
	return m, nil
}

// OptionalMap returns nil when key is absent.
func (b Bag) OptionalMap(key string) (Bag, error) {
	if !b.Has(key) {
		return nil, nil
	}
	return b.Map(key)
}
