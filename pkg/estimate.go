package sbforensics

import (
	"math"
)

// exactPopulationLimit is the largest population for which miss probabilities are
// computed as the direct product; larger populations use log-gamma terms.
const exactPopulationLimit = 1 << 14

// MissProbability returns the probability that n blocks drawn without replacement
// from a population of N, of which C are marked, contain no marked block:
//
//	P_miss(n) = prod_{i=1..n} (N - (i-1) - C) / (N - (i-1))
func MissProbability(marked, population, n int64) float64 {
	if population <= 0 || n <= 0 {
		return 1
	}
	if marked <= 0 {
		return 1
	}
	if marked > population {
		marked = population
	}
	if n > population {
		n = population
	}
	if n > population-marked {
		return 0 // some factor is zero
	}
	if population <= exactPopulationLimit {
		return directMissProbability(marked, population, n)
	}
	return math.Exp(logMissProbability(marked, population, n))
}

func directMissProbability(marked, population, n int64) float64 {
	p := 1.0
	for i := int64(1); i <= n; i++ {
		remaining := float64(population - (i - 1))
		p *= (remaining - float64(marked)) / remaining
	}
	return p
}

// logMissProbability is log(C(N-C, n) / C(N, n)), which equals the product form:
//
//	lgamma(N-C+1) + lgamma(N-n+1) - lgamma(N+1) - lgamma(N-C-n+1)
func logMissProbability(marked, population, n int64) float64 {
	N := float64(population)
	C := float64(marked)
	k := float64(n)
	return lgamma(N-C+1) + lgamma(N-k+1) - lgamma(N+1) - lgamma(N-C-k+1)
}

func lgamma(x float64) float64 {
	v, _ := math.Lgamma(x)
	return v
}

// MinSamples returns the smallest n with P_miss(n) <= 1 - targetProbability.
//
// Policy cases: an empty population needs no samples; with no marked blocks, or
// with targetProbability >= 1, every block has to be scanned.
func MinSamples(marked, population int64, targetProbability float64) int64 {
	if population <= 0 {
		return 0
	}
	if marked <= 0 || targetProbability >= 1 {
		return population
	}
	if targetProbability <= 0 {
		return 0
	}
	if marked > population {
		marked = population
	}

	threshold := 1 - targetProbability
	satisfied := func(n int64) bool {
		if population <= exactPopulationLimit {
			return MissProbability(marked, population, n) <= threshold
		}
		if n > population-marked {
			return true
		}
		return logMissProbability(marked, population, n) <= math.Log(threshold)
	}

	// P_miss is non-increasing in n and reaches 0 at n = N-C+1, so the answer is
	// in [0, min(N, N-C+1)]. Lower-bound binary search for the first satisfying n.
	lo, hi := int64(0), population-marked+1
	if hi > population {
		hi = population
	}
	for lo < hi {
		mid := lo + (hi-lo)/2
		if satisfied(mid) {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}
