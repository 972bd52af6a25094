package sbforensics

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
)

// probeOutcome is the result of walking a sample plan against the index
type probeOutcome struct {
	result ScanResult
	probed int64
}

// probeFile hashes the sampled blocks of one file in ascending order and
// returns the first one present in the index. Blocks past the file's current
// end are skipped. abandon is polled between blocks.
func (e *ScanEngine) probeFile(idx ContentIndex, sample FileSample, abandon func() bool, shutdownChan <-chan struct{}) (ScanResult, int64, error) {
	var probed int64

	src, err := OpenBlockSource(sample.Path, e.cfg.BlockSize, e.cfg.ReadMode)
	if err != nil {
		return NoMatch(), probed, err
	}
	defer src.Close()

	count := src.BlockCount()
	for _, blockNum := range sample.BlockNums {
		if interrupted(shutdownChan) {
			return NoMatch(), probed, ErrInterrupted
		}
		if abandon != nil && abandon() {
			return NoMatch(), probed, nil
		}
		if blockNum >= count {
			if IsDebugEnabled("probe") {
				VerboseLog(2, "probe: %s block %d past end (%d blocks), skipping", sample.Path, blockNum, count)
			}
			continue
		}

		data, err := src.ReadBlock(blockNum)
		if errors.Is(err, errBlockOutOfRange) {
			if IsDebugEnabled("probe") {
				VerboseLog(2, "probe: %s shrank below block %d, skipping", sample.Path, blockNum)
			}
			continue
		}
		if err != nil {
			return NoMatch(), probed, fmt.Errorf("failed to read block %d of %s: %w", blockNum, sample.Path, err)
		}
		probed++

		loc, ok, err := idx.Lookup(e.hash.HashBlock(data))
		if err != nil {
			return NoMatch(), probed, fmt.Errorf("index lookup failed for %s block %d: %w", sample.Path, blockNum, err)
		}
		if ok {
			if IsDebugEnabled("probe") {
				VerboseLog(2, "probe: %s block %d matches %s block %d", sample.Path, blockNum, loc.SourcePath, loc.BlockNum)
			}
			return MatchAt(sample.Path, blockNum, loc), probed, nil
		}
	}
	return NoMatch(), probed, nil
}

// probeSequential walks the plan in order and stops at the first match
func (e *ScanEngine) probeSequential(idx ContentIndex, plan *SamplePlan, shutdownChan <-chan struct{}) (probeOutcome, error) {
	var outcome probeOutcome
	for _, sample := range plan.Files {
		res, n, err := e.probeFile(idx, sample, nil, shutdownChan)
		outcome.probed += n
		if err != nil {
			return outcome, err
		}
		if res.Found {
			outcome.result = res
			return outcome, nil
		}
	}
	outcome.result = NoMatch()
	return outcome, nil
}

// probeParallel spreads the plan's files over ProbeWorkers goroutines. Files are
// handed out in plan order and every worker shares the lowest plan position
// that has ended the scan (a match or an error). Workers abandon files after
// that position but finish earlier ones, so the outcome is the one
// probeSequential would return.
func (e *ScanEngine) probeParallel(idx ContentIndex, plan *SamplePlan, shutdownChan <-chan struct{}) (probeOutcome, error) {
	type fileOutcome struct {
		result ScanResult
		err    error
	}

	var (
		stopAt   atomic.Int64
		probed   atomic.Int64
		mu       sync.Mutex
		outcomes = make(map[int]fileOutcome)
		wg       sync.WaitGroup
	)
	stopAt.Store(math.MaxInt64)

	lowerStop := func(order int64) {
		for {
			cur := stopAt.Load()
			if order >= cur || stopAt.CompareAndSwap(cur, order) {
				return
			}
		}
	}

	jobs := make(chan int)
	workers := e.cfg.ProbeWorkers
	if workers > len(plan.Files) {
		workers = len(plan.Files)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for order := range jobs {
				pos := int64(order)
				if pos > stopAt.Load() {
					continue
				}
				res, n, err := e.probeFile(idx, plan.Files[order], func() bool {
					return stopAt.Load() < pos
				}, shutdownChan)
				probed.Add(n)
				if err == nil && !res.Found {
					continue
				}
				mu.Lock()
				outcomes[order] = fileOutcome{result: res, err: err}
				mu.Unlock()
				lowerStop(pos)
			}
		}()
	}

feed:
	for order := range plan.Files {
		if int64(order) > stopAt.Load() {
			break
		}
		select {
		case jobs <- order:
		case <-shutdownChan:
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	outcome := probeOutcome{result: NoMatch(), probed: probed.Load()}
	if stop := stopAt.Load(); stop != math.MaxInt64 {
		first := outcomes[int(stop)]
		if first.err != nil {
			return outcome, first.err
		}
		outcome.result = first.result
		return outcome, nil
	}
	if interrupted(shutdownChan) {
		return outcome, ErrInterrupted
	}
	return outcome, nil
}
