// Package fftsize finds array dimensions that are efficient for FFTs: sizes
// whose largest prime factor is bounded and which are multiples of required
// divisors.
package fftsize

import (
	"fmt"

	"bcdiprep/internal/models"
)

const (
	// DefaultMaxPrime is the largest prime factor accepted by the clFFT
	// library for OpenCL GPU FFTs
	DefaultMaxPrime = 13

	// EngineMaxPrime is the bound used when cropping or padding 3D datasets
	EngineMaxPrime = 7
)

var (
	// DefaultDivisors are the divisors required together with DefaultMaxPrime
	DefaultDivisors = []int{4}

	// EngineDivisors are the divisors required together with EngineMaxPrime
	EngineDivisors = []int{2}
)

// PrimeFactors returns the prime decomposition of n in ascending order.
// PrimeFactors(1) is empty.
func PrimeFactors(n int) ([]int, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: cannot factor %d", models.ErrInvalidArgument, n)
	}
	factors := []int{}
	for i := 2; i*i <= n; i++ {
		for n%i == 0 {
			factors = append(factors, i)
			n /= i
		}
	}
	if n > 1 {
		factors = append(factors, n)
	}
	return factors, nil
}

// Satisfies reports whether the largest prime factor of n is at most
// maxPrime and n is a multiple of every divisor. Non-positive n never
// satisfies the constraint.
func Satisfies(n, maxPrime int, divisors []int) bool {
	factors, err := PrimeFactors(n)
	if err != nil {
		return false
	}
	largest := 1
	if len(factors) > 0 {
		largest = factors[len(factors)-1]
	}
	if largest > maxPrime {
		return false
	}
	for _, d := range divisors {
		if d == 0 || n%d != 0 {
			return false
		}
	}
	return true
}

// NearestAtLeast returns the smallest integer >= n that satisfies the
// constraint. The search stops at 2n; when nothing is found in that window
// n is returned unchanged, even though it does not satisfy the constraint.
// Callers that need a guarantee must check the result with Satisfies.
func NearestAtLeast(n, maxPrime int, divisors []int) int {
	if n <= 0 {
		return n
	}
	for i := n; i <= 2*n; i++ {
		if Satisfies(i, maxPrime, divisors) {
			return i
		}
	}
	return n
}

// NearestAtMost returns the largest integer in [1, n] that satisfies the
// constraint, or 0 when there is none.
func NearestAtMost(n, maxPrime int, divisors []int) int {
	for i := n; i > 0; i-- {
		if Satisfies(i, maxPrime, divisors) {
			return i
		}
	}
	return 0
}

// NearestAtLeastEach applies NearestAtLeast to every element
func NearestAtLeastEach(values []int, maxPrime int, divisors []int) []int {
	out := make([]int, len(values))
	for i, v := range values {
		out[i] = NearestAtLeast(v, maxPrime, divisors)
	}
	return out
}

// NearestAtMostEach applies NearestAtMost to every element
func NearestAtMostEach(values []int, maxPrime int, divisors []int) []int {
	out := make([]int, len(values))
	for i, v := range values {
		out[i] = NearestAtMost(v, maxPrime, divisors)
	}
	return out
}
