// Package sbforensics detects whether blocks of a known-content corpus reappear
// inside a target directory tree, sampling only as many target blocks as a
// chosen detection probability requires.
//
// # Core API
//
// The main entry point is ScanEngine. Build a fresh index from a known-content
// directory and sample a target tree against it:
//
//	engine, err := sbforensics.NewScanEngine(sbforensics.DefaultEngineConfig())
//	report, err := engine.BuildAndScan("/evidence/known", "/mnt/target", "/tmp/known.sqlite", nil)
//	if report.Result.Found {
//		fmt.Printf("%s block %d\n", *report.Result.TargetFile, *report.Result.BlockNumInTarget)
//	}
//
// Reuse an index built earlier:
//
//	report, err := engine.ReuseAndScan("/tmp/known.sqlite", "/mnt/target", nil)
//
// Compute a sample size without scanning anything:
//
//	n := sbforensics.MinSamples(knownBlocks, targetBlocks, 0.95)
//
// # Index backends
//
// ContentIndex has three implementations selected by EngineConfig.Backend:
// sqlite (a single file, the default), badger (a directory) and memory (a
// skiplist that lives for one scan). A Bloom prefilter can sit in front of any
// of them during the probe phase.
//
// # Configuration
//
// Defaults come from an INI file (see LoadConfig). Enable debug output:
//
//	sbforensics.SetDebugFlags("build,probe")
//	sbforensics.SetVerboseLevel(2)
//
// # Cancellation
//
// Every long operation takes a shutdown channel; closing it stops work after
// the current block and returns ErrInterrupted.
package sbforensics
