package core

import (
	"fmt"
	"math/big"
	"strings"
)

// Amount is an exact decimal value tagged with a currency. It is represented
// as an arbitrary-precision integer mantissa scaled by 10^-exponent so that
// arithmetic never touches floating point. No third-party decimal library is
// present anywhere in the reference corpus this module was grounded on, so
// Amount is built directly on math/big (see DESIGN.md).
type Amount struct {
	mantissa *big.Int
	exponent int32 // value = mantissa * 10^-exponent
	currency string
}

// NewAmount builds an Amount from an integer mantissa, a base-10 exponent
// (number of fractional digits), and a currency tag such as "SAT" or "BTC".
func NewAmount(mantissa int64, exponent int32, currency string) Amount {
	return Amount{mantissa: big.NewInt(mantissa), exponent: exponent, currency: strings.ToUpper(currency)}
}

// ParseAmount parses a plain decimal string ("1000", "0.00015000") tagged
// with currency. It never uses floating point.
func ParseAmount(s, currency string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, NewError(CodeInvalidData, "empty amount")
	}
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	intPart, fracPart, hasFrac := s, "", false
	if idx := strings.IndexByte(s, '.'); idx >= 0 {
		intPart, fracPart, hasFrac = s[:idx], s[idx+1:], true
	}
	if intPart == "" {
		intPart = "0"
	}
	digits := intPart
	exp := int32(0)
	if hasFrac {
		digits += fracPart
		exp = int32(len(fracPart))
	}
	m, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return Amount{}, NewError(CodeInvalidData, fmt.Sprintf("malformed amount %q", s))
	}
	if neg {
		m.Neg(m)
	}
	return Amount{mantissa: m, exponent: exp, currency: strings.ToUpper(currency)}, nil
}

// Currency returns the currency tag.
func (a Amount) Currency() string { return a.currency }

// IsZero reports whether the amount is exactly zero.
func (a Amount) IsZero() bool { return a.mantissa == nil || a.mantissa.Sign() == 0 }

// Sign returns -1, 0, or 1.
func (a Amount) Sign() int {
	if a.mantissa == nil {
		return 0
	}
	return a.mantissa.Sign()
}

// rescale returns big.Int mantissas for a and b at a common exponent.
func rescale(a, b Amount) (*big.Int, *big.Int, int32) {
	exp := a.exponent
	if b.exponent > exp {
		exp = b.exponent
	}
	am := new(big.Int).Mul(a.mantissa, pow10(exp-a.exponent))
	bm := new(big.Int).Mul(b.mantissa, pow10(exp-b.exponent))
	return am, bm, exp
}

func pow10(n int32) *big.Int {
	if n <= 0 {
		return big.NewInt(1)
	}
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// mustSameCurrency panics-free check: returns an error if currencies differ.
func mustSameCurrency(a, b Amount) error {
	if a.currency != b.currency {
		return NewError(CodeInvalidData, fmt.Sprintf("currency mismatch: %s vs %s", a.currency, b.currency))
	}
	return nil
}

// Add returns a+b. Arithmetic never crosses currency tags (spec §3).
func (a Amount) Add(b Amount) (Amount, error) {
	if err := mustSameCurrency(a, b); err != nil {
		return Amount{}, err
	}
	am, bm, exp := rescale(a, b)
	return Amount{mantissa: new(big.Int).Add(am, bm), exponent: exp, currency: a.currency}, nil
}

// Sub returns a-b.
func (a Amount) Sub(b Amount) (Amount, error) {
	if err := mustSameCurrency(a, b); err != nil {
		return Amount{}, err
	}
	am, bm, exp := rescale(a, b)
	return Amount{mantissa: new(big.Int).Sub(am, bm), exponent: exp, currency: a.currency}, nil
}

// Cmp compares a to b; both must share currency.
func (a Amount) Cmp(b Amount) (int, error) {
	if err := mustSameCurrency(a, b); err != nil {
		return 0, err
	}
	am, bm, _ := rescale(a, b)
	return am.Cmp(bm), nil
}

// MulRatDiv computes a * num / den, rounding per mode. Used by proration.
func (a Amount) MulRatDiv(num, den int64, mode RoundingMode) Amount {
	n := new(big.Int).Mul(a.mantissa, big.NewInt(num))
	d := big.NewInt(den)
	q, r := new(big.Int).QuoRem(n, d, new(big.Int))
	switch mode {
	case RoundUp:
		if r.Sign() != 0 {
			if (n.Sign() >= 0) == (d.Sign() >= 0) {
				q.Add(q, big.NewInt(1))
			} else {
				q.Sub(q, big.NewInt(1))
			}
		}
	case RoundDown:
		// truncation toward zero is QuoRem's default behaviour
	default: // RoundNearest
		if r.Sign() != 0 {
			twiceR := new(big.Int).Mul(r, big.NewInt(2))
			twiceR.Abs(twiceR)
			if twiceR.Cmp(new(big.Int).Abs(d)) >= 0 {
				if (n.Sign() >= 0) == (d.Sign() >= 0) {
					q.Add(q, big.NewInt(1))
				} else {
					q.Sub(q, big.NewInt(1))
				}
			}
		}
	}
	return Amount{mantissa: q, exponent: a.exponent, currency: a.currency}
}

// String renders the canonical decimal form, e.g. "12.50".
func (a Amount) String() string {
	if a.mantissa == nil {
		return "0"
	}
	if a.exponent <= 0 {
		return a.mantissa.String()
	}
	neg := a.mantissa.Sign() < 0
	m := new(big.Int).Abs(a.mantissa)
	s := m.String()
	scale := int(a.exponent)
	for len(s) <= scale {
		s = "0" + s
	}
	out := s[:len(s)-scale] + "." + s[len(s)-scale:]
	if neg {
		out = "-" + out
	}
	return out
}

// RoundingMode governs proration rounding (spec §4.12).
type RoundingMode int

const (
	RoundNearest RoundingMode = iota
	RoundUp
	RoundDown
)
