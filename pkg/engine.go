package sbforensics

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Scan modes recorded in ScanStats
const (
	ModeBuild = "build"
	ModeReuse = "reuse"
)

// EngineConfig holds everything a ScanEngine needs. Zero values fall back to
// the package defaults except BlockSize, which must be set.
type EngineConfig struct {
	BlockSize         int
	TargetProbability float64
	HashName          string
	Seed              uint64 // 0 = derive from clock

	Backend     string
	BatchSize   int
	Bloom       bool
	BloomFPRate float64

	HashWorkers  int
	ProbeWorkers int
	ReadMode     string

	Logger *logrus.Logger
}

// DefaultEngineConfig returns the configuration used when nothing is overridden
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		BlockSize:         DefaultBlockSize,
		TargetProbability: DefaultTargetProbability,
		HashName:          "xxh3",
		Backend:           BackendSQLite,
		BatchSize:         DefaultBatchSize,
		Bloom:             true,
		BloomFPRate:       DefaultBloomFPRate,
		HashWorkers:       DefaultHashWorkers,
		ProbeWorkers:      DefaultProbeWorkers,
		ReadMode:          ReadModePread,
	}
}

// ScanEngine builds or reuses a content index of known blocks and samples a
// target tree against it.
type ScanEngine struct {
	cfg  EngineConfig
	hash *HashAlgorithm
	log  *logrus.Logger
}

// NewScanEngine validates cfg and returns an engine. Invalid parameters are
// reported as *InputError.
func NewScanEngine(cfg EngineConfig) (*ScanEngine, error) {
	if cfg.BlockSize <= 0 {
		return nil, &InputError{Field: "block_size", Reason: fmt.Sprintf("must be a positive integer, got %d", cfg.BlockSize)}
	}
	if math.IsNaN(cfg.TargetProbability) || cfg.TargetProbability < 0 || cfg.TargetProbability > 1 {
		return nil, &InputError{Field: "target_probability", Reason: fmt.Sprintf("must be between 0 and 1, got %v", cfg.TargetProbability)}
	}

	cfg.Backend = strings.ToLower(cfg.Backend)
	if cfg.Backend == "" {
		cfg.Backend = BackendSQLite
	}
	if err := ValidateBackend(cfg.Backend); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, cfg.Backend)
	}
	cfg.ReadMode = strings.ToLower(cfg.ReadMode)
	if cfg.ReadMode == "" {
		cfg.ReadMode = ReadModePread
	}
	if err := ValidateReadMode(cfg.ReadMode); err != nil {
		return nil, err
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BloomFPRate <= 0 || cfg.BloomFPRate >= 1 {
		cfg.BloomFPRate = DefaultBloomFPRate
	}
	if cfg.HashWorkers <= 0 {
		cfg.HashWorkers = DefaultHashWorkers
	}
	if cfg.ProbeWorkers <= 0 {
		cfg.ProbeWorkers = DefaultProbeWorkers
	}

	hash, err := GetHashAlgorithm(cfg.HashName)
	if err != nil {
		return nil, err
	}
	cfg.HashName = hash.Name

	return &ScanEngine{cfg: cfg, hash: hash, log: loggerOr(cfg.Logger)}, nil
}

// Config returns the effective configuration after defaults were applied
func (e *ScanEngine) Config() EngineConfig {
	return e.cfg
}

// BuildAndScan indexes every block under knownDir into a fresh index at
// indexPath, then samples targetDir against it.
func (e *ScanEngine) BuildAndScan(knownDir, targetDir, indexPath string, shutdownChan <-chan struct{}) (*ScanReport, error) {
	defer VerboseEnter()()
	start := time.Now()

	if !isDirPath(knownDir) {
		return nil, &InputError{Field: "known dataset", Reason: fmt.Sprintf("%s is not a directory", knownDir)}
	}
	if !isDirPath(targetDir) {
		return nil, &InputError{Field: "target folder", Reason: fmt.Sprintf("%s is not a directory", targetDir)}
	}
	if err := e.checkIndexOutside(indexPath, knownDir, targetDir); err != nil {
		return nil, err
	}

	idx, err := e.buildIndex(knownDir, indexPath, shutdownChan)
	if err != nil {
		return nil, err
	}
	defer e.closeIndex(idx)

	report, err := e.scan(idx, targetDir, shutdownChan)
	if err != nil {
		return nil, err
	}
	report.Stats.Mode = ModeBuild
	report.Stats.Elapsed = time.Since(start)
	return report, nil
}

// ReuseAndScan samples targetDir against an index previously built at indexPath
func (e *ScanEngine) ReuseAndScan(indexPath, targetDir string, shutdownChan <-chan struct{}) (*ScanReport, error) {
	defer VerboseEnter()()
	start := time.Now()

	if !IndexExists(indexPath, e.cfg.Backend) {
		return nil, &InputError{Field: "known index", Reason: fmt.Sprintf("%s does not exist", indexPath), Err: ErrIndexNotFound}
	}
	if !isDirPath(targetDir) {
		return nil, &InputError{Field: "target folder", Reason: fmt.Sprintf("%s is not a directory", targetDir)}
	}

	idx, err := OpenIndex(e.indexOptions(indexPath))
	if err != nil {
		return nil, err
	}
	defer e.closeIndex(idx)

	if err := bindIndexParams(idx, e.cfg.BlockSize, e.cfg.HashName); err != nil {
		if errors.Is(err, ErrIndexMismatch) {
			return nil, &InputError{Field: "known index", Reason: err.Error(), Err: err}
		}
		return nil, err
	}

	report, err := e.scan(idx, targetDir, shutdownChan)
	if err != nil {
		return nil, err
	}
	report.Stats.Mode = ModeReuse
	report.Stats.Elapsed = time.Since(start)
	return report, nil
}

// BuildIndex indexes every block under knownDir into a fresh index at outPath
// and returns the number of distinct fingerprints stored.
func (e *ScanEngine) BuildIndex(knownDir, outPath string, shutdownChan <-chan struct{}) (int64, error) {
	defer VerboseEnter()()

	if !isDirPath(knownDir) {
		return 0, &InputError{Field: "known dataset", Reason: fmt.Sprintf("%s is not a directory", knownDir)}
	}
	if err := e.checkIndexOutside(outPath, knownDir); err != nil {
		return 0, err
	}

	idx, err := e.buildIndex(knownDir, outPath, shutdownChan)
	if err != nil {
		return 0, err
	}
	defer e.closeIndex(idx)

	return idx.Count()
}

// checkIndexOutside rejects an output index inside a tree that is about to be
// read; its own files would be hashed or sampled while being written.
func (e *ScanEngine) checkIndexOutside(indexPath string, dirs ...string) error {
	if indexPath == "" || e.cfg.Backend == BackendMemory {
		return nil
	}
	for _, dir := range dirs {
		if pathWithin(indexPath, dir) {
			return &InputError{Field: "output index", Reason: fmt.Sprintf("%s must not be inside %s", indexPath, dir)}
		}
	}
	return nil
}

func (e *ScanEngine) indexOptions(path string) IndexOptions {
	return IndexOptions{
		Path:     path,
		Backend:  e.cfg.Backend,
		PoolSize: e.cfg.HashWorkers + e.cfg.ProbeWorkers,
		Logger:   e.log,
	}
}

func (e *ScanEngine) closeIndex(idx ContentIndex) {
	if err := idx.Close(); err != nil {
		e.log.WithError(err).Warn("failed to close content index")
	}
}

// buildIndex discards anything at outPath, then hashes knownDir into a new index
func (e *ScanEngine) buildIndex(knownDir, outPath string, shutdownChan <-chan struct{}) (ContentIndex, error) {
	if err := RemoveIndex(outPath, e.cfg.Backend); err != nil {
		return nil, err
	}

	idx, err := OpenIndex(e.indexOptions(outPath))
	if err != nil {
		return nil, err
	}
	if err := bindIndexParams(idx, e.cfg.BlockSize, e.cfg.HashName); err != nil {
		e.closeIndex(idx)
		return nil, err
	}

	if err := e.hashTree(idx, knownDir, shutdownChan); err != nil {
		e.closeIndex(idx)
		return nil, err
	}
	return idx, nil
}

// scan is the matching phase shared by both entry points
func (e *ScanEngine) scan(idx ContentIndex, targetDir string, shutdownChan <-chan struct{}) (*ScanReport, error) {
	knownCount, err := idx.Count()
	if err != nil {
		return nil, fmt.Errorf("failed to count index entries: %w", err)
	}

	fbm, err := BuildFileBlockMap(targetDir, e.cfg.BlockSize, shutdownChan)
	if err != nil {
		return nil, err
	}

	n := MinSamples(knownCount, fbm.TotalBlocks, e.cfg.TargetProbability)
	rng, seed := NewSampleRand(e.cfg.Seed)
	plan := SelectBlocks(fbm, n, rng)

	report := &ScanReport{
		Result: NoMatch(),
		Stats: ScanStats{
			KnownCount:     knownCount,
			TargetFiles:    len(fbm.Files),
			TargetBlocks:   fbm.TotalBlocks,
			PlannedSamples: plan.TotalBlocks(),
			Seed:           seed,
		},
	}
	e.log.WithFields(logrus.Fields{
		"known_blocks":  knownCount,
		"target_blocks": fbm.TotalBlocks,
		"samples":       report.Stats.PlannedSamples,
		"probability":   e.cfg.TargetProbability,
		"seed":          seed,
	}).Info("sample plan ready")

	if knownCount == 0 {
		VerboseLog(1, "index is empty; no target block can match")
		return report, nil
	}

	probeIdx := idx
	var bloomIdx *BloomIndex
	if e.cfg.Bloom {
		bloomIdx, err = NewBloomIndex(idx, e.cfg.BloomFPRate)
		if err != nil {
			return nil, err
		}
		probeIdx = bloomIdx
	}

	var outcome probeOutcome
	if e.cfg.ProbeWorkers > 1 && len(plan.Files) > 1 {
		outcome, err = e.probeParallel(probeIdx, plan, shutdownChan)
	} else {
		outcome, err = e.probeSequential(probeIdx, plan, shutdownChan)
	}
	if err != nil {
		return nil, err
	}

	report.Result = outcome.result
	report.Stats.ProbedBlocks = outcome.probed
	if bloomIdx != nil {
		report.Stats.BloomSkips = bloomIdx.Skipped()
	}
	if outcome.result.Found {
		e.log.WithFields(logrus.Fields{
			"target": *outcome.result.TargetFile,
			"block":  *outcome.result.BlockNumInTarget,
			"known":  *outcome.result.KnownDatasetFile,
		}).Info("known block found")
	}
	return report, nil
}
