package sbforensics

import (
	"math"
	"testing"
)

func TestMinSamplesBoundaries(t *testing.T) {
	testCases := []struct {
		name     string
		marked   int64
		pop      int64
		p        float64
		expected int64
	}{
		{"empty population", 0, 0, 0.95, 0},
		{"empty population with marks", 5, 0, 0.95, 0},
		{"no marked blocks", 0, 1000, 0.5, 1000},
		{"no marked blocks, p=0", 0, 1000, 0, 1000},
		{"certainty", 10, 1000, 1, 1000},
		{"zero probability", 10, 1000, 0, 0},
		{"everything marked", 1000, 1000, 0.99, 1},
		{"marked clamped to population", 5000, 1000, 0.99, 1},
		{"one in two", 1, 2, 0.5, 1},
		{"one in ten at 0.85", 1, 10, 0.85, 9},
		{"one in ten at 0.95", 1, 10, 0.95, 10},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := MinSamples(tc.marked, tc.pop, tc.p); got != tc.expected {
				t.Errorf("MinSamples(%d, %d, %v) = %d, expected %d", tc.marked, tc.pop, tc.p, got, tc.expected)
			}
		})
	}
}

func TestMinSamplesIsMinimal(t *testing.T) {
	for _, pop := range []int64{1, 7, 100, 4096, 20000, 1 << 22} {
		for _, marked := range []int64{1, 3, pop / 10, pop / 2} {
			if marked < 1 {
				continue
			}
			for _, p := range []float64{0.5, 0.9, 0.95, 0.999} {
				n := MinSamples(marked, pop, p)
				threshold := 1 - p
				if miss := MissProbability(marked, pop, n); miss > threshold*(1+1e-9) {
					t.Errorf("N=%d C=%d p=%v: P_miss(%d)=%v exceeds %v", pop, marked, p, n, miss, threshold)
				}
				if n > 0 {
					if miss := MissProbability(marked, pop, n-1); miss <= threshold*(1-1e-9) {
						t.Errorf("N=%d C=%d p=%v: n=%d is not minimal, P_miss(%d)=%v", pop, marked, p, n, n-1, miss)
					}
				}
			}
		}
	}
}

func TestMinSamplesMonotonicInProbability(t *testing.T) {
	for _, tc := range []struct{ marked, pop int64 }{{1, 100}, {50, 10000}, {3, 1 << 20}} {
		prev := int64(-1)
		for p := 0.0; p <= 1.0; p += 0.01 {
			n := MinSamples(tc.marked, tc.pop, p)
			if n < prev {
				t.Errorf("C=%d N=%d: MinSamples dropped from %d to %d at p=%v", tc.marked, tc.pop, prev, n, p)
			}
			prev = n
		}
		if full := MinSamples(tc.marked, tc.pop, 1); full != tc.pop {
			t.Errorf("C=%d N=%d: expected full scan at p=1, got %d", tc.marked, tc.pop, full)
		}
	}
}

func TestMissProbabilityFormsAgree(t *testing.T) {
	for _, tc := range []struct{ marked, pop, n int64 }{
		{1, 10, 5},
		{3, 100, 40},
		{100, 10000, 50},
		{7, 16384, 3000},
		{2000, 16000, 10},
	} {
		direct := directMissProbability(tc.marked, tc.pop, tc.n)
		logForm := math.Exp(logMissProbability(tc.marked, tc.pop, tc.n))
		if math.Abs(direct-logForm) > 1e-8*direct {
			t.Errorf("C=%d N=%d n=%d: direct %v vs log-gamma %v", tc.marked, tc.pop, tc.n, direct, logForm)
		}
	}
}

func TestMissProbabilityEdges(t *testing.T) {
	if got := MissProbability(0, 100, 50); got != 1 {
		t.Errorf("No marked blocks: expected 1, got %v", got)
	}
	if got := MissProbability(10, 100, 0); got != 1 {
		t.Errorf("No samples: expected 1, got %v", got)
	}
	if got := MissProbability(10, 100, 91); got != 0 {
		t.Errorf("More samples than unmarked blocks: expected 0, got %v", got)
	}
	if got := MissProbability(1, 10, 5); math.Abs(got-0.5) > 1e-12 {
		t.Errorf("C=1 N=10 n=5: expected 0.5, got %v", got)
	}
}
