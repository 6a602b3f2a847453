package format

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/iambrandonn/jac/errs"
)

// Decimal is an arbitrary-precision base-10 number: value = (-1)^Sign *
// Digits * 10^Exponent. Digits holds only the ASCII bytes '0'..'9', with no
// leading zeros except the single digit "0" itself. Zero is always
// canonical: Sign=0, Digits="0", Exponent=0.
type Decimal struct {
	Sign     uint8
	Digits   string
	Exponent int32
}

// ParseDecimal parses a JSON-number-shaped decimal literal: an optional
// leading '-', an integer part, an optional '.' fraction, and an optional
// signed 'e'/'E' exponent. Fractional digits are folded into the exponent
// so Digits always holds a pure integer. maxDigits enforces
// Limits.MaxDecimalDigitsPerValue.
func ParseDecimal(text string, maxDigits uint64) (Decimal, error) {
	s := text
	sign := uint8(0)

	if strings.HasPrefix(s, "-") {
		sign = 1
		s = s[1:]
	} else if strings.HasPrefix(s, "+") {
		s = s[1:]
	}

	mantissa := s
	expPart := ""

	if i := strings.IndexAny(s, "eE"); i >= 0 {
		mantissa = s[:i]
		expPart = s[i+1:]
	}

	intPart := mantissa
	fracPart := ""

	if i := strings.IndexByte(mantissa, '.'); i >= 0 {
		intPart = mantissa[:i]
		fracPart = mantissa[i+1:]
	}

	if intPart == "" && fracPart == "" {
		return Decimal{}, fmt.Errorf("%w: empty decimal literal", errs.ErrJson)
	}

	for _, r := range intPart + fracPart {
		if r < '0' || r > '9' {
			return Decimal{}, fmt.Errorf("%w: invalid decimal digit %q", errs.ErrJson, r)
		}
	}

	exponent := int64(-len(fracPart))

	if expPart != "" {
		e, err := strconv.ParseInt(expPart, 10, 32)
		if err != nil {
			return Decimal{}, fmt.Errorf("%w: invalid decimal exponent: %v", errs.ErrJson, err)
		}

		exponent += e
	}

	digits := stripLeadingZeros(intPart + fracPart)

	if uint64(len(digits)) > maxDigits {
		return Decimal{}, errs.NewLimitError("", "decimal digits", uint64(len(digits)), maxDigits)
	}

	if digits == "0" {
		sign = 0
		exponent = 0
	}

	if exponent < -(1<<31) || exponent > (1<<31)-1 {
		return Decimal{}, fmt.Errorf("%w: decimal exponent out of i32 range", errs.ErrCorruptBlock)
	}

	return Decimal{Sign: sign, Digits: digits, Exponent: int32(exponent)}, nil
}

func stripLeadingZeros(digits string) string {
	i := 0
	for i < len(digits)-1 && digits[i] == '0' {
		i++
	}

	if i == len(digits) {
		return "0"
	}

	return digits[i:]
}

// Canonicalize strips trailing zero digits, incrementing Exponent to
// compensate, stopping at one digit. Canonicalize is idempotent.
func (d Decimal) Canonicalize() Decimal {
	digits := d.Digits
	exp := d.Exponent

	for len(digits) > 1 && digits[len(digits)-1] == '0' {
		digits = digits[:len(digits)-1]
		exp++
	}

	if digits == "0" {
		return Decimal{Sign: 0, Digits: "0", Exponent: 0}
	}

	return Decimal{Sign: d.Sign, Digits: digits, Exponent: exp}
}

// IsZero reports whether d represents the value zero.
func (d Decimal) IsZero() bool {
	return d.Digits == "0" || d.Digits == ""
}

// Encode appends the wire encoding of d to dst: sign_byte, ULEB128(len),
// digit bytes, ULEB128(zigzag(exponent)).
func (d Decimal) Encode(dst []byte) []byte {
	sign := d.Sign
	if d.IsZero() {
		sign = 0
	}

	dst = append(dst, sign)
	dst = AppendUvarint(dst, uint64(len(d.Digits)))
	dst = append(dst, d.Digits...)
	dst = AppendUvarint(dst, ZigzagEncode(int64(d.Exponent)))

	return dst
}

// DecodeDecimal reads a wire-encoded Decimal from the front of src,
// returning the value and the number of bytes consumed. maxDigits enforces
// Limits.MaxDecimalDigitsPerValue.
func DecodeDecimal(src []byte, maxDigits uint64) (Decimal, int, error) {
	if len(src) < 1 {
		return Decimal{}, 0, errs.ErrUnexpectedEof
	}

	sign := src[0]
	if sign != 0 && sign != 1 {
		return Decimal{}, 0, fmt.Errorf("%w: decimal sign byte %d", errs.ErrCorruptBlock, sign)
	}

	n := 1

	digitLen, used, err := DecodeUvarint(src[n:])
	if err != nil {
		return Decimal{}, 0, err
	}

	n += used

	if digitLen > maxDigits {
		return Decimal{}, 0, errs.NewLimitError("", "decimal digits", digitLen, maxDigits)
	}

	if uint64(len(src)-n) < digitLen {
		return Decimal{}, 0, errs.ErrUnexpectedEof
	}

	digits := string(src[n : n+int(digitLen)])
	n += int(digitLen)

	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return Decimal{}, 0, fmt.Errorf("%w: non-digit byte in decimal", errs.ErrCorruptBlock)
		}
	}

	zz, used, err := DecodeUvarint(src[n:])
	if err != nil {
		return Decimal{}, 0, err
	}

	n += used

	exp := ZigzagDecode(zz)
	if exp < -(1<<31) || exp > (1<<31)-1 {
		return Decimal{}, 0, fmt.Errorf("%w: decimal exponent out of i32 range", errs.ErrCorruptBlock)
	}

	if digits == "0" && sign != 0 {
		return Decimal{}, 0, fmt.Errorf("%w: zero decimal must have sign 0", errs.ErrCorruptBlock)
	}

	return Decimal{Sign: sign, Digits: digits, Exponent: int32(exp)}, n, nil
}

// JSONString renders d as a JSON number literal, choosing scientific
// notation when |Exponent| > 6 and canonical decimal notation otherwise.
func (d Decimal) JSONString() string {
	var b strings.Builder

	if d.Sign == 1 && !d.IsZero() {
		b.WriteByte('-')
	}

	exp := int64(d.Exponent)
	if exp < 0 {
		exp = -exp
	}

	if exp > 6 {
		b.WriteByte(d.Digits[0])

		if len(d.Digits) > 1 {
			b.WriteByte('.')
			b.WriteString(d.Digits[1:])
		}

		b.WriteByte('e')

		adjExp := int64(d.Exponent) + int64(len(d.Digits)) - 1
		if adjExp >= 0 {
			b.WriteByte('+')
		}

		b.WriteString(strconv.FormatInt(adjExp, 10))

		return b.String()
	}

	switch {
	case d.Exponent >= 0:
		b.WriteString(d.Digits)
		for i := int32(0); i < d.Exponent; i++ {
			b.WriteByte('0')
		}
	case -d.Exponent >= int32(len(d.Digits)):
		b.WriteString("0.")
		for i := int32(0); i < -d.Exponent-int32(len(d.Digits)); i++ {
			b.WriteByte('0')
		}
		b.WriteString(d.Digits)
	default:
		splitAt := int32(len(d.Digits)) + d.Exponent
		b.WriteString(d.Digits[:splitAt])
		b.WriteByte('.')
		b.WriteString(d.Digits[splitAt:])
	}

	return b.String()
}
