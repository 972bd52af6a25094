package sbforensics

import (
	"math/rand/v2"
	"slices"
	"time"
)

// FileSample is the sorted list of sampled block numbers of one file
type FileSample struct {
	Path      string
	BlockNums []int64
}

// SamplePlan lists, in traversal order, every file that received at least one sample
type SamplePlan struct {
	Files []FileSample
}

// TotalBlocks returns the number of block references in the plan
func (p *SamplePlan) TotalBlocks() int64 {
	var total int64
	for _, f := range p.Files {
		total += int64(len(f.BlockNums))
	}
	return total
}

// NewSampleRand returns the generator the sampler draws from. A zero seed is
// replaced with one derived from the clock; the seed actually used is returned.
func NewSampleRand(seed uint64) (*rand.Rand, uint64) {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), seed
}

// SelectBlocks draws min(n, total) distinct blocks uniformly at random from the
// whole tree, treating it as one address space of fbm.TotalBlocks blocks, and
// partitions the draw per file in a single pass.
func SelectBlocks(fbm *FileBlockMap, n int64, rng *rand.Rand) *SamplePlan {
	plan := &SamplePlan{}
	if fbm == nil || fbm.TotalBlocks <= 0 || n <= 0 {
		return plan
	}
	if n > fbm.TotalBlocks {
		n = fbm.TotalBlocks
	}

	indices := drawDistinct(fbm.TotalBlocks, n, rng)

	var base int64
	next := 0
	for _, f := range fbm.Files {
		end := base + f.BlockCount
		var nums []int64
		for next < len(indices) && indices[next] < end {
			nums = append(nums, indices[next]-base)
			next++
		}
		if len(nums) > 0 {
			plan.Files = append(plan.Files, FileSample{Path: f.Path, BlockNums: nums})
		}
		base = end
		if next == len(indices) {
			break
		}
	}

	if IsDebugEnabled("sample") {
		VerboseLog(2, "sample plan: %d blocks across %d of %d files", n, len(plan.Files), len(fbm.Files))
	}
	return plan
}

// drawDistinct returns k distinct integers from [0, total) in ascending order,
// every k-subset equally likely. Floyd's algorithm draws the smaller of the
// subset and its complement.
func drawDistinct(total, k int64, rng *rand.Rand) []int64 {
	if k >= total {
		all := make([]int64, total)
		for i := range all {
			all[i] = int64(i)
		}
		return all
	}

	if k > total/2 {
		excluded := floydSample(total, total-k, rng)
		out := make([]int64, 0, k)
		for i := int64(0); i < total; i++ {
			if _, skip := excluded[i]; !skip {
				out = append(out, i)
			}
		}
		return out
	}

	chosen := floydSample(total, k, rng)
	out := make([]int64, 0, k)
	for i := range chosen {
		out = append(out, i)
	}
	slices.Sort(out)
	return out
}

func floydSample(total, k int64, rng *rand.Rand) map[int64]struct{} {
	chosen := make(map[int64]struct{}, k)
	for j := total - k; j < total; j++ {
		t := rng.Int64N(j + 1)
		if _, taken := chosen[t]; taken {
			chosen[j] = struct{}{}
		} else {
			chosen[t] = struct{}{}
		}
	}
	return chosen
}
