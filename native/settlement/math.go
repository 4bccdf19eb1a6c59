package settlement

import "math/big"

// FloorDiv returns a/b rounded toward negative infinity. big.Int.Quo truncates
// toward zero, so the quotient is corrected when the operands differ in sign
// and the division is inexact. Panics if b is zero.
func FloorDiv(a, b *big.Int) *big.Int {
	q, r := new(big.Int).QuoRem(a, b, new(big.Int))
	if r.Sign() != 0 && r.Sign() != b.Sign() {
		q.Sub(q, big.NewInt(1))
	}
	return q
}

// CounterAmount computes the counter-asset leg for a base-asset amount signed
// from the requester's view: floor(-baseAmount*price / 10^decimals). Buys
// (positive base) yield a non-positive counter amount and sells a
// non-negative one.
func CounterAmount(price, baseAmount *big.Int, decimals uint8) *big.Int {
	product := new(big.Int).Mul(baseAmount, price)
	product.Neg(product)
	return FloorDiv(product, pow10(decimals))
}

// RescalePrice converts a price expressed with fromDecimals into toDecimals.
// Downscaling truncates.
func RescalePrice(price *big.Int, fromDecimals, toDecimals uint8) *big.Int {
	switch {
	case fromDecimals == toDecimals:
		return new(big.Int).Set(price)
	case fromDecimals > toDecimals:
		return new(big.Int).Quo(price, pow10(fromDecimals-toDecimals))
	default:
		return new(big.Int).Mul(price, pow10(toDecimals-fromDecimals))
	}
}

// PriceBand returns the inclusive band [ref*(10000-bps)/10000,
// ref*(10000+bps)/10000]. A band wider than 100% has a lower bound of zero.
func PriceBand(reference *big.Int, bandBps uint64) (low, high *big.Int) {
	denom := big.NewInt(BasisPoints)
	width := new(big.Int).SetUint64(bandBps)
	high = new(big.Int).Add(denom, width)
	high.Mul(high, reference)
	high.Quo(high, denom)
	low = new(big.Int).Sub(denom, width)
	if low.Sign() < 0 {
		return new(big.Int), high
	}
	low.Mul(low, reference)
	low.Quo(low, denom)
	return low, high
}

// CheckPriceBand verifies price lies within the band around reference.
func CheckPriceBand(price, reference *big.Int, bandBps uint64) error {
	low, high := PriceBand(reference, bandBps)
	if price.Cmp(low) < 0 {
		return &PriceError{Kind: PriceTooLow, Price: new(big.Int).Set(price), Bound: low}
	}
	if price.Cmp(high) > 0 {
		return &PriceError{Kind: PriceTooHigh, Price: new(big.Int).Set(price), Bound: high}
	}
	return nil
}

func pow10(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}
