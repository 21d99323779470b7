package rng

import "gonum.org/v1/gonum/stat/distuv"

// Poisson draws an event count with mean lambda from the stream. A
// non-positive mean yields zero without consuming the stream.
func Poisson(r *JSF, lambda float64) int {
	if !(lambda > 0) {
		return 0
	}
	return int(distuv.Poisson{Lambda: lambda, Src: r}.Rand())
}
