package domain

import (
	"fmt"
	"math"
	"strconv"
)

// Cents is a signed monetary amount in hundredths of the account currency.
// All rollups and merges are computed in Cents so that totals agree to the cent.
type Cents int64

// FromFloat converts a decimal amount to Cents, rounding half away from zero.
func FromFloat(v float64) Cents {
	return Cents(math.Round(v * 100))
}

// Float64 returns the amount as a decimal number.
func (c Cents) Float64() float64 {
	return float64(c) / 100
}

// Abs returns the magnitude of c.
func (c Cents) Abs() Cents {
	if c < 0 {
		return -c
	}
	return c
}

// String formats c with two decimal places, e.g. "-1234.50".
func (c Cents) String() string {
	sign := ""
	v := int64(c)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// MarshalJSON encodes c as a JSON number with two decimal places.
func (c Cents) MarshalJSON() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalJSON accepts any JSON number and rounds it to the cent.
func (c *Cents) UnmarshalJSON(data []byte) error {
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("invalid amount %s: %w", data, err)
	}
	*c = FromFloat(v)
	return nil
}
