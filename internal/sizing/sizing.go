// Package sizing maps conviction to position size. The table deliberately
// fades the extremes: moderate conviction gets the largest allocation and
// maximum conviction the smallest non-zero one.
package sizing

import (
	"math"

	"github.com/shopspring/decimal"
)

// tolerance for matching a conviction against the canonical half-step grid.
const tolerance = 1e-4

// fractions keys |conviction|×10 on the canonical grid {0, 0.5, 1.0, 1.5, 2.0}.
var fractions = map[int]float64{
	0:  0.0,
	5:  0.75,
	10: 0.50,
	15: 0.25,
	20: 0.10,
}

// Fraction returns the portfolio fraction for a conviction value. Size is
// symmetric in sign; any conviction off the canonical grid maps to 0.
func Fraction(conviction float64) float64 {
	mag := math.Abs(conviction)
	grid := math.Round(mag * 10)
	if math.Abs(mag*10-grid) > tolerance*10 {
		return 0
	}
	return fractions[int(grid)]
}

// Canonical snaps conviction to the signed half-step grid when it is
// within tolerance; ok is false for off-grid values.
func Canonical(conviction float64) (float64, bool) {
	grid := math.Round(conviction*2) / 2
	if math.Abs(conviction-grid) > tolerance {
		return 0, false
	}
	if math.Abs(grid) > 2.0 {
		return 0, false
	}
	return grid, true
}

// Quantity converts conviction into a whole-share count:
// floor(fraction × portfolio value), with a minimum of one share whenever
// the fraction is positive.
func Quantity(conviction float64, portfolioValue decimal.Decimal) decimal.Decimal {
	frac := Fraction(conviction)
	if frac <= 0 {
		return decimal.Zero
	}
	qty := portfolioValue.Mul(decimal.NewFromFloat(frac)).Floor()
	if qty.LessThan(decimal.NewFromInt(1)) {
		return decimal.NewFromInt(1)
	}
	return qty
}
