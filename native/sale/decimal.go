package sale

import (
	"fmt"
	"math/big"
)

// maxAmountBits bounds every computed amount to the 256-bit width the sale
// contracts settle in. Multiplications are checked where they occur so
// overflow is detected rather than wrapped.
const maxAmountBits = 256

var bigHundred = big.NewInt(100)

func pow10(exp uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil)
}

func checkAmountWidth(v *big.Int) error {
	if v.BitLen() > maxAmountBits {
		return fmt.Errorf("%w: needs %d bits", ErrAmountOverflow, v.BitLen())
	}
	return nil
}

// Rescale converts a fixed-point amount between decimal precisions. Scaling
// down divides by a power of ten with floor semantics, silently dropping the
// fractional remainder; scaling up multiplies exactly. Negative amounts are
// rejected and results wider than 256 bits fail with ErrAmountOverflow.
func Rescale(amount *big.Int, fromDecimals, toDecimals uint8) (*big.Int, error) {
	if amount == nil {
		return big.NewInt(0), nil
	}
	if amount.Sign() < 0 {
		return nil, ErrNegativeAmount
	}
	out := new(big.Int).Set(amount)
	switch {
	case fromDecimals > toDecimals:
		out.Quo(out, pow10(fromDecimals-toDecimals))
	case fromDecimals < toDecimals:
		out.Mul(out, pow10(toDecimals-fromDecimals))
		if err := checkAmountWidth(out); err != nil {
			return nil, err
		}
	}
	return out, nil
}
