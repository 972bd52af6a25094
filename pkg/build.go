package sbforensics

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// buildManager fans known-content files out to hashing workers. Each worker
// hashes one file at a time and inserts its blocks in batchSize batches, so a
// batch never spans two files.
type buildManager struct {
	engine       *ScanEngine
	idx          ContentIndex
	jobChan      chan scannedFile
	wg           sync.WaitGroup
	shutdownChan <-chan struct{}

	failOnce sync.Once
	failed   chan struct{} // closed on the first worker error
	err      error

	files  atomic.Int64
	blocks atomic.Int64
}

func (e *ScanEngine) newBuildManager(idx ContentIndex, shutdownChan <-chan struct{}) *buildManager {
	manager := &buildManager{
		engine:       e,
		idx:          idx,
		jobChan:      make(chan scannedFile, 100),
		shutdownChan: shutdownChan,
		failed:       make(chan struct{}),
	}

	for i := 0; i < e.cfg.HashWorkers; i++ {
		manager.wg.Add(1)
		go manager.hashWorker()
	}

	return manager
}

// submit queues a file, giving up if a worker failed or shutdown was requested
func (bm *buildManager) submit(f scannedFile) error {
	select {
	case bm.jobChan <- f:
		return nil
	case <-bm.failed:
		return bm.err
	case <-bm.shutdownChan:
		return ErrInterrupted
	}
}

// finish closes the job queue and waits for the workers to drain it
func (bm *buildManager) finish() error {
	close(bm.jobChan)
	bm.wg.Wait()
	select {
	case <-bm.failed:
		return bm.err
	default:
	}
	if interrupted(bm.shutdownChan) {
		return ErrInterrupted
	}
	return nil
}

func (bm *buildManager) fail(err error) {
	bm.failOnce.Do(func() {
		bm.err = err
		close(bm.failed)
	})
}

func (bm *buildManager) hashWorker() {
	defer bm.wg.Done()

	for {
		select {
		case job, ok := <-bm.jobChan:
			if !ok {
				return
			}
			select {
			case <-bm.failed:
				continue // drain without work so submit never blocks
			default:
			}

			if IsDebugEnabled("build") {
				VerboseLog(3, "build: hashing %s (%d bytes)", job.Path, job.Size)
			}
			n, err := bm.hashFile(job.Path)
			if err != nil {
				bm.fail(err)
				continue
			}
			bm.files.Add(1)
			bm.blocks.Add(n)

		case <-bm.shutdownChan:
			return
		}
	}
}

// hashFile fingerprints every block of path and inserts them into the index
func (bm *buildManager) hashFile(path string) (int64, error) {
	e := bm.engine
	batch := make([]IndexEntry, 0, e.cfg.BatchSize)
	var hashed int64

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := bm.idx.InsertMany(batch); err != nil {
			return fmt.Errorf("failed to index blocks of %s: %w", path, err)
		}
		batch = batch[:0]
		return nil
	}

	err := IterateBlocks(path, e.cfg.BlockSize, e.cfg.ReadMode, func(blockNum int64, data []byte) error {
		if interrupted(bm.shutdownChan) {
			return ErrInterrupted
		}
		batch = append(batch, IndexEntry{
			Fingerprint: e.hash.HashBlock(data),
			SourcePath:  path,
			BlockNum:    blockNum,
		})
		hashed++
		if len(batch) >= e.cfg.BatchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return hashed, err
	}
	return hashed, flush()
}

// hashTree fully indexes every non-empty regular file under root
func (e *ScanEngine) hashTree(idx ContentIndex, root string, shutdownChan <-chan struct{}) error {
	defer VerboseEnter()()

	manager := e.newBuildManager(idx, shutdownChan)
	walkErr := walkRegularFiles(root, shutdownChan, manager.submit)
	finishErr := manager.finish()

	if walkErr != nil {
		if finishErr != nil {
			return finishErr
		}
		return fmt.Errorf("failed to walk known dataset %s: %w", root, walkErr)
	}
	if finishErr != nil {
		return finishErr
	}

	VerboseLog(1, "indexed %d blocks from %d files under %s", manager.blocks.Load(), manager.files.Load(), root)
	return nil
}
