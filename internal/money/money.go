// Package money implements APX, the platform's internal fixed-point
// currency scalar. Amounts are stored as big.Int in the smallest unit
// (1 APX = 100 units) so arithmetic never silently overflows or loses
// precision to floating point.
package money

import (
	"database/sql/driver"
	"fmt"
	"math/big"
	"strings"
)

// Decimals is the number of fractional digits APX carries.
const Decimals = 2

var centsPerUnit = big.NewInt(100)

// Money is a fixed-point APX amount. The zero value is zero APX.
type Money struct {
	cents *big.Int
}

// Zero returns a zero Money value.
func Zero() Money {
	return Money{cents: big.NewInt(0)}
}

// FromCents builds a Money value directly from its smallest-unit integer.
func FromCents(cents int64) Money {
	return Money{cents: big.NewInt(cents)}
}

// Parse converts a decimal string (e.g. "104.50") into Money. Returns
// (Money{}, false) on malformed input: multiple decimal points, stray
// characters, or a sign that isn't a single leading '-'.
func Parse(s string) (Money, bool) {
	if s == "" {
		return Zero(), true
	}

	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return Money{}, false
	}
	whole := parts[0]
	frac := ""
	if len(parts) > 1 {
		frac = parts[1]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > Decimals {
		return Money{}, false
	}
	for len(frac) < Decimals {
		frac += "0"
	}

	combined := whole + frac
	for _, r := range combined {
		if r < '0' || r > '9' {
			return Money{}, false
		}
	}
	v, ok := new(big.Int).SetString(combined, 10)
	if !ok {
		return Money{}, false
	}
	if neg {
		v.Neg(v)
	}
	return Money{cents: v}, true
}

// MustParse is Parse but panics on malformed input; for constants in tests
// and well-known literals, never for untrusted input.
func MustParse(s string) Money {
	m, ok := Parse(s)
	if !ok {
		panic(fmt.Sprintf("money: invalid literal %q", s))
	}
	return m
}

// String renders the amount as a decimal string with exactly Decimals
// fractional digits, e.g. "104.50" or "-3.00".
func (m Money) String() string {
	c := m.cents
	if c == nil {
		c = big.NewInt(0)
	}
	neg := c.Sign() < 0
	abs := new(big.Int).Abs(c)
	s := abs.String()
	for len(s) < Decimals+1 {
		s = "0" + s
	}
	cut := len(s) - Decimals
	out := s[:cut] + "." + s[cut:]
	if neg {
		out = "-" + out
	}
	return out
}

// Cents returns the smallest-unit integer representation.
func (m Money) Cents() int64 {
	if m.cents == nil {
		return 0
	}
	return m.cents.Int64()
}

func (m Money) big() *big.Int {
	if m.cents == nil {
		return big.NewInt(0)
	}
	return m.cents
}

// Add returns m + other.
func (m Money) Add(other Money) Money {
	return Money{cents: new(big.Int).Add(m.big(), other.big())}
}

// Sub returns m - other.
func (m Money) Sub(other Money) Money {
	return Money{cents: new(big.Int).Sub(m.big(), other.big())}
}

// Neg returns -m.
func (m Money) Neg() Money {
	return Money{cents: new(big.Int).Neg(m.big())}
}

// Cmp compares m to other: -1, 0, or 1.
func (m Money) Cmp(other Money) int {
	return m.big().Cmp(other.big())
}

// Sign returns -1, 0, or 1.
func (m Money) Sign() int {
	return m.big().Sign()
}

// IsZero reports whether m is exactly zero.
func (m Money) IsZero() bool {
	return m.Sign() == 0
}

// MulRate multiplies m by a rate expressed as a float64 (e.g. a tax rate
// or complexity multiplier), rounding to the nearest cent.
func (m Money) MulRate(rate float64) Money {
	// Scale rate to a fixed-point integer with 6 digits of precision to
	// avoid repeated float rounding, then divide back down.
	const scale = 1_000_000
	scaled := big.NewInt(int64(rate * scale))
	product := new(big.Int).Mul(m.big(), scaled)
	rounding := big.NewInt(scale / 2)
	if product.Sign() < 0 {
		rounding = new(big.Int).Neg(rounding)
	}
	product.Add(product, rounding)
	product.Quo(product, big.NewInt(scale))
	return Money{cents: product}
}

// MarshalJSON renders Money as a quoted decimal string.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

// UnmarshalJSON parses a quoted decimal string into Money.
func (m *Money) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	v, ok := Parse(s)
	if !ok {
		return fmt.Errorf("money: cannot unmarshal %q", s)
	}
	*m = v
	return nil
}

// Value implements driver.Valuer so Money can be stored as a NUMERIC column.
func (m Money) Value() (driver.Value, error) {
	return m.String(), nil
}

// Scan implements sql.Scanner for NUMERIC/TEXT columns.
func (m *Money) Scan(src any) error {
	switch v := src.(type) {
	case string:
		parsed, ok := Parse(v)
		if !ok {
			return fmt.Errorf("money: cannot scan %q", v)
		}
		*m = parsed
		return nil
	case []byte:
		return m.Scan(string(v))
	case nil:
		*m = Zero()
		return nil
	default:
		return fmt.Errorf("money: unsupported scan type %T", src)
	}
}

// Sum adds a slice of Money values.
func Sum(vals ...Money) Money {
	total := Zero()
	for _, v := range vals {
		total = total.Add(v)
	}
	return total
}
