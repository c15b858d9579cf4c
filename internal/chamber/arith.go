package chamber

import "math/bits"

// PercentOf returns floor(q * pct / 100) using a 128-bit intermediate product,
// so it is exact for every uint64 quantity. pct must be at most 100.
func PercentOf(q, pct uint64) uint64 {
	hi, lo := bits.Mul64(q, pct)
	quo, _ := bits.Div64(hi, lo, 100)
	return quo
}

// AddTicks returns a + b and false if the sum overflows.
func AddTicks(a, b uint64) (uint64, bool) {
	sum, carry := bits.Add64(a, b, 0)
	return sum, carry == 0
}

// AddQuantity returns a + b and false if the sum overflows.
func AddQuantity(a, b uint64) (uint64, bool) {
	return AddTicks(a, b)
}
