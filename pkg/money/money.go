// Package money converts between the decimal USD amounts exchanged at the
// API boundary and the integer cents stored in the database.
package money

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/apd/v3"
)

var ErrInvalidAmount = errors.New("invalid decimal amount")

var decCtx = apd.BaseContext.WithPrecision(34)

// ParseUSD converts a decimal USD string such as "12.34" into integer cents.
// Sub-cent precision is rounded half-even.
func ParseUSD(s string) (int64, error) {
	var d apd.Decimal
	if _, _, err := d.SetString(s); err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if d.Form != apd.Finite {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if d.Negative {
		return 0, fmt.Errorf("%w: negative amount %q", ErrInvalidAmount, s)
	}

	var scaled apd.Decimal
	if _, err := decCtx.Mul(&scaled, &d, apd.New(100, 0)); err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	var rounded apd.Decimal
	if _, err := decCtx.RoundToIntegralValue(&rounded, &scaled); err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	cents, err := rounded.Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %q out of range", ErrInvalidAmount, s)
	}
	return cents, nil
}

// FormatCents renders integer cents as a decimal USD string with two
// fractional digits.
func FormatCents(cents int64) string {
	d := apd.New(cents, -2)
	return d.Text('f')
}
