// Package money implements the marketplace's fixed-point currency type.
//
// Internally every quantity is an integer count of "lamport-equivalent"
// minor units (1 SOL = 1e9 minor units), so bid comparisons and ledger
// arithmetic are exact integer operations with no floating-point
// associativity concerns. The only place a decimal.Decimal appears is at
// the JSON/API boundary, where amounts are expressed in whole SOL.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// UnitsPerSOL is the number of minor units ("lamports") in one SOL.
const UnitsPerSOL = 1_000_000_000

// Amount is an exact non-negative quantity of minor units.
type Amount int64

// Zero is the additive identity.
const Zero Amount = 0

// FromSOL converts a decimal SOL amount (as seen on the wire) into minor
// units, truncating anything finer than 1e-9 SOL.
func FromSOL(sol decimal.Decimal) Amount {
	scaled := sol.Mul(decimal.NewFromInt(UnitsPerSOL))
	return Amount(scaled.IntPart())
}

// FromFloatSOL is a convenience constructor for literal test amounts.
func FromFloatSOL(sol float64) Amount {
	return FromSOL(decimal.NewFromFloat(sol))
}

// ToSOL converts minor units back to decimal SOL for the wire.
func (a Amount) ToSOL() decimal.Decimal {
	return decimal.New(int64(a), 0).Div(decimal.NewFromInt(UnitsPerSOL))
}

// String renders the amount in decimal SOL.
func (a Amount) String() string {
	return fmt.Sprintf("%s SOL", a.ToSOL().StringFixed(9))
}

// MarshalJSON encodes the amount as a decimal SOL JSON number.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.ToSOL().String()), nil
}

// UnmarshalJSON decodes a decimal SOL JSON number into minor units.
func (a *Amount) UnmarshalJSON(data []byte) error {
	d, err := decimal.NewFromString(string(data))
	if err != nil {
		return err
	}
	*a = FromSOL(d)
	return nil
}

// Add returns a + b.
func (a Amount) Add(b Amount) Amount { return a + b }

// Sub returns a - b.
func (a Amount) Sub(b Amount) Amount { return a - b }

// GreaterThan reports whether a > b.
func (a Amount) GreaterThan(b Amount) bool { return a > b }

// LessThan reports whether a < b.
func (a Amount) LessThan(b Amount) bool { return a < b }

// GreaterThanOrEqual reports whether a >= b.
func (a Amount) GreaterThanOrEqual(b Amount) bool { return a >= b }
