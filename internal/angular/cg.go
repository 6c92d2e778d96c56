// Package angular evaluates Clebsch-Gordan coefficients. All angular momenta
// and projections are passed doubled so half-integers stay exact.
package angular

import "math"

const maxFactorial = 256

var logFactorial = func() [maxFactorial + 1]float64 {
	var t [maxFactorial + 1]float64
	for n := 2; n <= maxFactorial; n++ {
		t[n] = t[n-1] + math.Log(float64(n))
	}
	return t
}()

func lf(twice int) float64 { return logFactorial[twice/2] }

// Triangle reports whether (j1, j2, j3) satisfy the triangle rule with an
// integer sum.
func Triangle(j1, j2, j3 int) bool {
	if j1 < 0 || j2 < 0 || j3 < 0 {
		return false
	}
	if (j1+j2+j3)%2 != 0 {
		return false
	}
	return j3 >= abs(j1-j2) && j3 <= j1+j2
}

// CG returns <j1 m1; j2 m2 | j3 m3> (Condon-Shortley phases).
func CG(j1, j2, j3, m1, m2, m3 int) float64 {
	if m1+m2 != m3 || !Triangle(j1, j2, j3) {
		return 0
	}
	if abs(m1) > j1 || abs(m2) > j2 || abs(m3) > j3 {
		return 0
	}
	if (j1+m1)%2 != 0 || (j2+m2)%2 != 0 || (j3+m3)%2 != 0 {
		return 0
	}
	if (j1+j2+j3)/2+1 > maxFactorial {
		return math.NaN()
	}

	norm := math.Log(float64(j3+1)) +
		lf(j3+j1-j2) + lf(j3-j1+j2) + lf(j1+j2-j3) - lf(j1+j2+j3+2) +
		lf(j3+m3) + lf(j3-m3) + lf(j1-m1) + lf(j1+m1) + lf(j2-m2) + lf(j2+m2)

	// k runs over values keeping every factorial argument non-negative.
	kmin := 0
	if v := j2 - j3 - m1; v > kmin {
		kmin = v
	}
	if v := j1 - j3 + m2; v > kmin {
		kmin = v
	}
	kmax := j1 + j2 - j3
	if v := j1 - m1; v < kmax {
		kmax = v
	}
	if v := j2 + m2; v < kmax {
		kmax = v
	}

	sum := 0.0
	for k := kmin; k <= kmax; k += 2 {
		term := lf(k) + lf(j1+j2-j3-k) + lf(j1-m1-k) + lf(j2+m2-k) +
			lf(j3-j2+m1+k) + lf(j3-j1-m2+k)
		v := math.Exp(0.5*norm - term)
		if (k/2)%2 == 1 {
			v = -v
		}
		sum += v
	}
	return sum
}

// Sign returns (-1)^(twice/2) for an even doubled exponent.
func Sign(twice int) float64 {
	if (twice/2)%2 == 0 {
		return 1
	}
	return -1
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
