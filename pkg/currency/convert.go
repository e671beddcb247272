package currency

import (
	"github.com/shopspring/decimal"
)

// XYMDivisibility is the number of decimal places of the network currency:
// 1 XYM = 1_000_000 microXYM.
const XYMDivisibility = 6

// MicroToXYM converts an integer microXYM amount to its XYM decimal value.
func MicroToXYM(micro uint64) decimal.Decimal {
	return decimal.NewFromUint64(micro).Shift(-XYMDivisibility)
}

// FiatValue prices a microXYM amount at the given XYM/fiat rate, rounded to
// two fiat decimal places. The rate arrives as a string so no float ever
// touches the money path.
func FiatValue(micro uint64, rate string) (decimal.Decimal, error) {
	r, err := decimal.NewFromString(rate)
	if err != nil {
		return decimal.Zero, err
	}
	return MicroToXYM(micro).Mul(r).Round(2), nil
}
