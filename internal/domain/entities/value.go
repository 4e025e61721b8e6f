package entities

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ValueKind tags the shape held by a Value.
type ValueKind string

const (
	KindString ValueKind = "string"
	KindNumber ValueKind = "number"
	KindBool   ValueKind = "bool"
	KindList   ValueKind = "list"
	KindJSON   ValueKind = "json"
)

// Value is an attribute value. Exactly one field matches Kind.
// On the wire it is plain JSON: a string, a number, a bool, a list of strings
// or any other structured document.
type Value struct {
	Kind ValueKind
	Str  string
	Num  float64
	Bool bool
	List []string
	Raw  json.RawMessage
}

func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }
func NumberValue(n float64) Value { return Value{Kind: KindNumber, Num: n} }
func BoolValue(b bool) Value { return Value{Kind: KindBool, Bool: b} }
func ListValue(items ...string) Value { return Value{Kind: KindList, List: items} }
func JSONValue(raw json.RawMessage) Value { return Value{Kind: KindJSON, Raw: raw} }

// IsZero reports whether the value was never set.
func (v Value) IsZero() bool {
	return v.Kind == ""
}

// String renders the value for display and text matching.
func (v Value) String() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindList:
		return strings.Join(v.List, ", ")
	case KindJSON:
		return string(v.Raw)
	default:
		return ""
	}
}

// Truthy reports whether the value reads as "present and affirmative".
func (v Value) Truthy() bool {
	switch v.Kind {
	case KindString:
		b, ok := parseBoolWord(v.Str)
		if ok {
			return b
		}
		return strings.TrimSpace(v.Str) != ""
	case KindNumber:
		return v.Num != 0
	case KindBool:
		return v.Bool
	case KindList:
		return len(v.List) > 0
	case KindJSON:
		trimmed := bytes.TrimSpace(v.Raw)
		return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
	default:
		return false
	}
}

// Equal compares two values by kind and content.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	a, errA := json.Marshal(v)
	b, errB := json.Marshal(other)
	return errA == nil && errB == nil && bytes.Equal(a, b)
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindString:
		return json.Marshal(v.Str)
	case KindNumber:
		return json.Marshal(v.Num)
	case KindBool:
		return json.Marshal(v.Bool)
	case KindList:
		if v.List == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.List)
	case KindJSON:
		if len(v.Raw) == 0 {
			return []byte("null"), nil
		}
		return v.Raw, nil
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON implements json.Unmarshaler, inferring the kind from the token.
func (v *Value) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*v = Value{}
		return nil
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return fmt.Errorf("decoding string value: %w", err)
		}
		*v = StringValue(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(trimmed, &b); err != nil {
			return fmt.Errorf("decoding bool value: %w", err)
		}
		*v = BoolValue(b)
	case '[':
		var items []string
		if err := json.Unmarshal(trimmed, &items); err == nil {
			*v = ListValue(items...)
			return nil
		}
		*v = JSONValue(append(json.RawMessage(nil), trimmed...))
	case '{':
		*v = JSONValue(append(json.RawMessage(nil), trimmed...))
	default:
		var n float64
		if err := json.Unmarshal(trimmed, &n); err != nil {
			return fmt.Errorf("decoding number value: %w", err)
		}
		*v = NumberValue(n)
	}
	return nil
}

// Encode returns the storage form of the value.
func (v Value) Encode() (ValueKind, string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", "", fmt.Errorf("encoding value: %w", err)
	}
	return v.Kind, string(data), nil
}

// DecodeValue is the inverse of Encode.
func DecodeValue(kind ValueKind, text string) (Value, error) {
	if kind == KindJSON {
		return JSONValue(json.RawMessage(text)), nil
	}
	var v Value
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return Value{}, fmt.Errorf("decoding %s value: %w", kind, err)
	}
	if v.Kind != kind {
		return Value{}, fmt.Errorf("%w: stored as %s, decoded as %s", ErrInvalidValue, kind, v.Kind)
	}
	return v, nil
}

func parseBoolWord(s string) (value, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "y", "1", "oui", "vrai":
		return true, true
	case "false", "no", "n", "0", "non", "faux", "none":
		return false, true
	}
	return false, false
}
