package optimizer

import "math"

// invPhi is 1/phi, the fraction kept at each golden-section step.
var invPhi = (math.Sqrt(5) - 1) / 2

// GoldenSectionMax maximizes a unimodal f over [a, b]. It stops once the bracket
// is narrower than tol or after maxIter narrowing steps, and returns the bracket
// midpoint together with the number of steps taken. The result is always in [a, b].
func GoldenSectionMax(f func(float64) float64, a, b, tol float64, maxIter int) (float64, int) {
	if a > b {
		a, b = b, a
	}
	c := b - invPhi*(b-a)
	d := a + invPhi*(b-a)
	fc, fd := f(c), f(d)

	iter := 0
	for b-a > tol && iter < maxIter {
		if fc >= fd {
			b, d, fd = d, c, fc
			c = b - invPhi*(b-a)
			fc = f(c)
		} else {
			a, c, fc = c, d, fd
			d = a + invPhi*(b-a)
			fd = f(d)
		}
		iter++
	}
	return (a + b) / 2, iter
}
