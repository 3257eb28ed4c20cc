package mathx

import (
	"math"

	"golang.org/x/exp/constraints"
)

var pow10 = [...]float64{1, 10, 100, 1000, 10000}

// RoundTo rounds v half away from zero to the given number of decimals (0..4).
func RoundTo[T constraints.Float](v T, decimals int) T {
	decimals = Clamp(decimals, 0, len(pow10)-1)
	p := pow10[decimals]
	return T(math.Round(float64(v)*p) / p)
}
