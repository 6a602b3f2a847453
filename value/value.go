// Package value defines the tagged-union record value that flows through
// the columnar engine: the seven kinds a JSON field value can take, plus
// the encode-time integer/decimal classification rule.
package value

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/iambrandonn/jac/errs"
	"github.com/iambrandonn/jac/format"
)

// Value is an immutable tagged sum over the seven kinds the container
// format recognizes. Exactly one of the typed fields is meaningful,
// selected by Tag. Object and Array carry opaque minified JSON bytes; the
// container never looks inside them.
type Value struct {
	Tag     format.Tag
	Bool    bool
	Int     int64
	Decimal format.Decimal
	Str     string
	Raw     []byte // minified JSON for Object/Array
}

// Null is the canonical null value.
var Null = Value{Tag: format.TagNull}

// FromBool wraps a boolean.
func FromBool(b bool) Value { return Value{Tag: format.TagBool, Bool: b} }

// FromInt wraps an exact i64.
func FromInt(i int64) Value { return Value{Tag: format.TagInt, Int: i} }

// FromDecimal wraps an arbitrary-precision decimal.
func FromDecimal(d format.Decimal) Value { return Value{Tag: format.TagDecimal, Decimal: d} }

// FromString wraps a string.
func FromString(s string) Value { return Value{Tag: format.TagString, Str: s} }

// FromObject wraps opaque minified JSON object bytes.
func FromObject(raw []byte) Value { return Value{Tag: format.TagObject, Raw: raw} }

// FromArray wraps opaque minified JSON array bytes.
func FromArray(raw []byte) Value { return Value{Tag: format.TagArray, Raw: raw} }

// FromJSON classifies a value decoded by encoding/json's default unmarshal
// (json.Unmarshal into `any`, or a json.Number when UseNumber is set) into
// the closed Value kind set.
//
// Integer detection follows the spec's authoritative rule: a JSON number is
// tagged Int iff it round-trips exactly through an i64 (including a u64
// that happens to fit); anything else numeric — fractional, exponent-only
// representable, or outside the i64 range — is tagged Decimal, built from
// the literal's own text so no precision is lost.
func FromJSON(v any, maxDecimalDigits uint64) (Value, error) {
	switch t := v.(type) {
	case nil:
		return Null, nil
	case bool:
		return FromBool(t), nil
	case json.Number:
		return fromNumberText(string(t), maxDecimalDigits)
	case float64:
		// encoding/json without UseNumber: reconstruct the shortest text
		// form and reclassify, so whole-valued floats still tag as Int.
		return fromNumberText(formatFloat(t), maxDecimalDigits)
	case string:
		return FromString(t), nil
	case map[string]any, []any:
		raw, err := json.Marshal(t)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %v", errs.ErrJson, err)
		}

		if _, ok := t.(map[string]any); ok {
			return FromObject(raw), nil
		}

		return FromArray(raw), nil
	default:
		return Value{}, fmt.Errorf("%w: unrecognized value type %T", errs.ErrJson, v)
	}
}

func formatFloat(f float64) string {
	if f == math.Trunc(f) && !math.IsInf(f, 0) && math.Abs(f) < 1e18 {
		return fmt.Sprintf("%d", int64(f))
	}

	return fmt.Sprintf("%g", f)
}

func fromNumberText(text string, maxDecimalDigits uint64) (Value, error) {
	if i, ok := parseExactInt64(text); ok {
		return FromInt(i), nil
	}

	d, err := format.ParseDecimal(text, maxDecimalDigits)
	if err != nil {
		return Value{}, err
	}

	return FromDecimal(d), nil
}

// parseExactInt64 reports whether text is the canonical base-10 rendering
// of some int64 with no fractional part or exponent — the authoritative
// "exact i64 round-trip" test from the spec's open question.
func parseExactInt64(text string) (int64, bool) {
	s := text
	neg := false

	if len(s) > 0 && s[0] == '-' {
		neg = true
		s = s[1:]
	}

	if s == "" {
		return 0, false
	}

	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}

	if len(s) > 1 && s[0] == '0' {
		return 0, false
	}

	var u uint64

	for i := 0; i < len(s); i++ {
		d := uint64(s[i] - '0')
		if u > (math.MaxUint64-d)/10 {
			return 0, false
		}

		u = u*10 + d
	}

	if neg {
		if u == 0 || u > 1<<63 {
			return 0, false
		}

		return -int64(u), true
	}

	if u > math.MaxInt64 {
		return 0, false
	}

	return int64(u), true
}

// ToJSON renders v back to a JSON literal (for Object/Array, Raw is emitted
// verbatim since it is already minified JSON).
func (v Value) ToJSON() (json.RawMessage, error) {
	switch v.Tag {
	case format.TagNull:
		return json.RawMessage("null"), nil
	case format.TagBool:
		if v.Bool {
			return json.RawMessage("true"), nil
		}

		return json.RawMessage("false"), nil
	case format.TagInt:
		return json.RawMessage(fmt.Sprintf("%d", v.Int)), nil
	case format.TagDecimal:
		return json.RawMessage(v.Decimal.JSONString()), nil
	case format.TagString:
		b, err := json.Marshal(v.Str)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrJson, err)
		}

		return b, nil
	case format.TagObject, format.TagArray:
		return json.RawMessage(v.Raw), nil
	default:
		return nil, fmt.Errorf("%w: reserved tag %d", errs.ErrUnsupportedFeature, v.Tag)
	}
}

// Equal compares two values for the testable-properties notion of
// "canonical numeric equality": values of different kinds are never equal
// (Int 100 and Decimal 1e2 differ); ints compare by value, decimals by
// canonical form, and object/array bytes compare literally.
func (v Value) Equal(other Value) bool {
	if v.Tag != other.Tag {
		return false
	}

	switch v.Tag {
	case format.TagNull:
		return true
	case format.TagBool:
		return v.Bool == other.Bool
	case format.TagInt:
		return v.Int == other.Int
	case format.TagDecimal:
		return v.Decimal.Canonicalize() == other.Decimal.Canonicalize()
	case format.TagString:
		return v.Str == other.Str
	case format.TagObject, format.TagArray:
		return string(v.Raw) == string(other.Raw)
	default:
		return false
	}
}
