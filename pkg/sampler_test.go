package sbforensics

import (
	"fmt"
	"reflect"
	"slices"
	"testing"
)

func testFileBlockMap(counts ...int64) *FileBlockMap {
	fbm := &FileBlockMap{}
	for i, c := range counts {
		fbm.Files = append(fbm.Files, FileBlocks{Path: fmt.Sprintf("file%02d", i), BlockCount: c})
		fbm.TotalBlocks += c
	}
	return fbm
}

func checkPlan(t *testing.T, fbm *FileBlockMap, plan *SamplePlan, expected int64) {
	t.Helper()

	counts := make(map[string]int64)
	order := make(map[string]int)
	for i, f := range fbm.Files {
		counts[f.Path] = f.BlockCount
		order[f.Path] = i
	}

	if got := plan.TotalBlocks(); got != expected {
		t.Errorf("Expected %d sampled blocks, got %d", expected, got)
	}

	lastOrder := -1
	for _, f := range plan.Files {
		count, ok := counts[f.Path]
		if !ok {
			t.Fatalf("Plan names unknown file %s", f.Path)
		}
		if order[f.Path] <= lastOrder {
			t.Errorf("Plan file %s is out of traversal order", f.Path)
		}
		lastOrder = order[f.Path]

		if len(f.BlockNums) == 0 {
			t.Errorf("Plan lists %s with no blocks", f.Path)
		}
		for i, n := range f.BlockNums {
			if n < 0 || n >= count {
				t.Errorf("%s: block %d outside [0, %d)", f.Path, n, count)
			}
			if i > 0 && n <= f.BlockNums[i-1] {
				t.Errorf("%s: block numbers not strictly ascending: %v", f.Path, f.BlockNums)
			}
		}
	}
}

func TestSelectBlocksCoverage(t *testing.T) {
	fbm := testFileBlockMap(5, 1, 17, 3, 100, 2)

	for _, n := range []int64{0, 1, 2, 10, 64, 100, 127, 128} {
		rng, _ := NewSampleRand(uint64(n) + 7)
		plan := SelectBlocks(fbm, n, rng)
		checkPlan(t, fbm, plan, n)
	}
}

func TestSelectBlocksClampsToPopulation(t *testing.T) {
	fbm := testFileBlockMap(3, 4)
	rng, _ := NewSampleRand(1)

	plan := SelectBlocks(fbm, 1000, rng)
	checkPlan(t, fbm, plan, 7)

	expected := []FileSample{
		{Path: "file00", BlockNums: []int64{0, 1, 2}},
		{Path: "file01", BlockNums: []int64{0, 1, 2, 3}},
	}
	if !reflect.DeepEqual(plan.Files, expected) {
		t.Errorf("Expected every block when n exceeds the population, got %+v", plan.Files)
	}
}

func TestSelectBlocksEmpty(t *testing.T) {
	rng, _ := NewSampleRand(1)
	if plan := SelectBlocks(&FileBlockMap{}, 10, rng); len(plan.Files) != 0 {
		t.Errorf("Expected an empty plan for an empty tree, got %+v", plan.Files)
	}
	if plan := SelectBlocks(nil, 10, rng); len(plan.Files) != 0 {
		t.Errorf("Expected an empty plan for a nil map, got %+v", plan.Files)
	}
}

func TestSelectBlocksDeterministic(t *testing.T) {
	fbm := testFileBlockMap(40, 0, 13, 77, 5)

	rngA, seedA := NewSampleRand(12345)
	rngB, seedB := NewSampleRand(12345)
	if seedA != 12345 || seedB != 12345 {
		t.Fatalf("Expected explicit seed to be kept, got %d and %d", seedA, seedB)
	}

	for _, n := range []int64{10, 90} { // below and above half the population
		a := SelectBlocks(fbm, n, rngA)
		b := SelectBlocks(fbm, n, rngB)
		if !reflect.DeepEqual(a, b) {
			t.Errorf("n=%d: same seed produced different plans:\n%+v\n%+v", n, a, b)
		}
	}
}

func TestNewSampleRandClockSeed(t *testing.T) {
	_, seed := NewSampleRand(0)
	if seed == 0 {
		t.Error("Expected a non-zero seed to be derived from the clock")
	}
}

func TestDrawDistinctUniform(t *testing.T) {
	// Every 2-subset of 4 indices should come up about equally often, on both
	// sides of the complement switch.
	for _, k := range []int64{2, 3} {
		rng, _ := NewSampleRand(99)
		hits := make(map[string]int)
		const trials = 12000
		for i := 0; i < trials; i++ {
			drawn := drawDistinct(4, k, rng)
			if !slices.IsSorted(drawn) || int64(len(drawn)) != k {
				t.Fatalf("k=%d: bad draw %v", k, drawn)
			}
			hits[fmt.Sprint(drawn)]++
		}

		subsets := map[int64]int{2: 6, 3: 4}[k]
		if len(hits) != subsets {
			t.Fatalf("k=%d: expected %d distinct subsets, saw %d", k, subsets, len(hits))
		}
		want := trials / subsets
		for subset, n := range hits {
			if n < want*8/10 || n > want*12/10 {
				t.Errorf("k=%d: subset %s drawn %d times, expected about %d", k, subset, n, want)
			}
		}
	}
}
