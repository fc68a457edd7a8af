package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Decimals is the fixed point precision assumed for every amount, native or token.
const Decimals = 18

// ParseAmount converts a positive decimal string into base units.
func ParseAmount(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrBadAmount, s)
	}

	if !d.IsPositive() {
		return nil, fmt.Errorf("%w: %q must be greater than zero", ErrBadAmount, s)
	}

	w := d.Shift(Decimals)
	if !w.Equal(w.Truncate(0)) {
		return nil, fmt.Errorf("%w: %q has more than %d decimals", ErrBadAmount, s, Decimals)
	}

	return w.BigInt(), nil
}

// FormatAmount converts base units into a decimal string that always carries a fractional part ("1.0", "0.25").
func FormatAmount(v *big.Int) string {
	if v == nil {
		return "0.0"
	}

	s := decimal.NewFromBigInt(v, -Decimals).String()
	if !strings.Contains(s, ".") {
		s += ".0"
	}

	return s
}
