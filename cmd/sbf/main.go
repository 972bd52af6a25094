package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/pflag"

	sbf "github.com/mattkeenan/smallblockforensics/pkg"
)

// version is overridden at link time with -ldflags "-X main.version=..."
var version = "dev"

// Exit codes
const (
	exitOK          = 0
	exitFailure     = 1
	exitInputError  = 2
	exitInterrupted = 130
)

// globalOptions are accepted by every subcommand
type globalOptions struct {
	configPath string
	verbose    int
	debug      string
	overrides  []string
}

func (g *globalOptions) addFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&g.configPath, "config", "c", sbf.DefaultConfigPath(), "configuration file")
	fs.CountVarP(&g.verbose, "verbose", "v", "verbose output (repeat for more)")
	fs.StringVar(&g.debug, "debug", "", "comma separated debug flags (build,probe,sample,index,scan)")
	fs.StringArrayVar(&g.overrides, "set", nil, "override a config value, key:value (repeatable)")
}

// loadConfig reads the config file, then applies --set overrides and the
// subcommand's own flags, in that order.
func (g *globalOptions) loadConfig(flagOverrides []string) (*sbf.Config, error) {
	cfg, err := sbf.LoadConfig(g.configPath)
	if err != nil {
		return nil, err
	}
	overrides := append(append([]string{}, g.overrides...), flagOverrides...)
	if err := cfg.ApplyOverrides(overrides); err != nil {
		return nil, err
	}
	sbf.ApplyVerboseConfig(cfg.GetVerboseConfig(), g.verbose, g.debug)
	return cfg, nil
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		showHelp()
		return exitInputError
	}

	var err error
	switch args[0] {
	case "scan":
		err = runScan(args[1:])
	case "index":
		err = runIndex(args[1:])
	case "estimate":
		err = runEstimate(args[1:])
	case "version", "--version":
		fmt.Printf("sbf %s\n", version)
		return exitOK
	case "help", "-h", "--help":
		showHelp()
		return exitOK
	default:
		fmt.Fprintf(os.Stderr, "sbf: unknown command '%s'\n", args[0])
		fmt.Fprintf(os.Stderr, "Try 'sbf help' for more information.\n")
		return exitInputError
	}

	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, pflag.ErrHelp):
		return exitOK
	case errors.Is(err, sbf.ErrInterrupted):
		fmt.Fprintf(os.Stderr, "sbf: %v\n", err)
		return exitInterrupted
	case sbf.IsInputError(err):
		fmt.Fprintf(os.Stderr, "sbf: %v\n", err)
		return exitInputError
	default:
		fmt.Fprintf(os.Stderr, "sbf: %v\n", err)
		return exitFailure
	}
}

// changedOverrides turns the flags the user actually set into config overrides
func changedOverrides(fs *pflag.FlagSet, keys map[string]string) []string {
	var out []string
	fs.Visit(func(f *pflag.Flag) {
		if key, ok := keys[f.Name]; ok {
			out = append(out, key+":"+f.Value.String())
		}
	})
	return out
}

// engineFlags are the config keys a subcommand flag can override
var engineFlags = map[string]string{
	"block-size":    "size",
	"hash":          "hash",
	"probability":   "target_probability",
	"seed":          "seed",
	"backend":       "backend",
	"batch-size":    "batch_size",
	"bloom":         "bloom",
	"hash-workers":  "hash_workers",
	"probe-workers": "probe_workers",
	"read-mode":     "read_mode",
	"format":        "format",
}

func addEngineFlags(fs *pflag.FlagSet) {
	fs.StringP("block-size", "b", "4K", "block size (e.g. 512, 4K, 1M)")
	fs.String("hash", "xxh3", "block fingerprint algorithm (xxh3|md5|blake3)")
	fs.Float64P("probability", "p", sbf.DefaultTargetProbability, "target detection probability in [0,1]")
	fs.Uint64("seed", 0, "sampler seed (0 = random)")
	fs.String("backend", sbf.BackendSQLite, "index backend (sqlite|badger|memory)")
	fs.Int("batch-size", sbf.DefaultBatchSize, "index entries per insert transaction")
	fs.Bool("bloom", true, "use a bloom prefilter while probing")
	fs.Int("hash-workers", sbf.DefaultHashWorkers, "concurrent files hashed while building")
	fs.Int("probe-workers", sbf.DefaultProbeWorkers, "concurrent files probed while scanning")
	fs.String("read-mode", sbf.ReadModePread, "block read mode (pread|mmap)")
}

func runScan(args []string) error {
	var g globalOptions
	var knownDir, indexPath, outPath, targetDir string

	fs := pflag.NewFlagSet("sbf scan", pflag.ContinueOnError)
	g.addFlags(fs)
	addEngineFlags(fs)
	fs.StringVarP(&knownDir, "known", "k", "", "known-content directory to index")
	fs.StringVarP(&indexPath, "index", "i", "", "existing index to reuse instead of --known")
	fs.StringVarP(&outPath, "out", "o", "", "where to store the index built from --known")
	fs.StringVarP(&targetDir, "target", "t", "", "target directory to sample")
	fs.StringP("format", "f", sbf.FormatHuman, "output format (human|json|markdown|yaml)")
	fs.Usage = func() { scanUsage(fs) }
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return &sbf.InputError{Reason: fmt.Sprintf("unexpected argument: %s", fs.Arg(0))}
	}

	cfg, err := g.loadConfig(changedOverrides(fs, engineFlags))
	if err != nil {
		return err
	}
	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		return err
	}

	req := &sbf.Request{
		Parameters: sbf.Parameters{
			BlockSize:         engineCfg.BlockSize,
			TargetProbability: engineCfg.TargetProbability,
		},
	}
	for role, path := range map[string]string{
		sbf.RoleTargetFolder: targetDir,
		sbf.RoleKnownDataset: knownDir,
		sbf.RoleKnownIndex:   indexPath,
		sbf.RoleOutputIndex:  outPath,
	} {
		if path == "" {
			continue
		}
		in, err := sbf.NewInput(role, path)
		if err != nil {
			return err
		}
		req.Inputs = append(req.Inputs, in)
	}

	job, err := req.Validate(engineCfg.Backend)
	if err != nil {
		return err
	}

	report, err := job.Run(engineCfg, setupSignalHandler())
	if err != nil {
		return err
	}
	if job.Mode == sbf.ModeBuild {
		sbf.VerboseLog(1, "index stored at %s", job.IndexPath)
	}
	return sbf.RenderResult(os.Stdout, report, cfg.GetOutputConfig().Format)
}

func runIndex(args []string) error {
	var g globalOptions
	var knownDir, outPath string

	fs := pflag.NewFlagSet("sbf index", pflag.ContinueOnError)
	g.addFlags(fs)
	addEngineFlags(fs)
	fs.StringVarP(&knownDir, "known", "k", "", "known-content directory to index")
	fs.StringVarP(&outPath, "out", "o", "", "where to store the index")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if knownDir == "" {
		return &sbf.InputError{Field: "--known", Reason: "is required"}
	}
	if outPath == "" {
		return &sbf.InputError{Field: "--out", Reason: "is required"}
	}

	cfg, err := g.loadConfig(changedOverrides(fs, engineFlags))
	if err != nil {
		return err
	}
	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		return err
	}
	engine, err := sbf.NewScanEngine(engineCfg)
	if err != nil {
		return err
	}

	count, err := engine.BuildIndex(knownDir, outPath, setupSignalHandler())
	if err != nil {
		return err
	}
	fmt.Printf("Indexed %d distinct blocks of %s from %s into %s\n",
		count, sbf.FormatHumanSize(int64(engineCfg.BlockSize)), knownDir, outPath)
	return nil
}

func runEstimate(args []string) error {
	var knownCount, population int64
	var probability float64

	fs := pflag.NewFlagSet("sbf estimate", pflag.ContinueOnError)
	fs.Int64VarP(&knownCount, "known-count", "C", 0, "number of known (marked) blocks")
	fs.Int64VarP(&population, "population", "N", 0, "number of target blocks")
	fs.Float64VarP(&probability, "probability", "p", sbf.DefaultTargetProbability, "target detection probability in [0,1]")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if knownCount < 0 || population < 0 {
		return &sbf.InputError{Reason: "--known-count and --population must not be negative"}
	}
	if err := sbf.ValidateTargetProbability(probability); err != nil {
		return &sbf.InputError{Field: "--probability", Reason: err.Error()}
	}

	n := sbf.MinSamples(knownCount, population, probability)
	fmt.Printf("samples:      %d\n", n)
	fmt.Printf("miss chance:  %s\n", strconv.FormatFloat(sbf.MissProbability(knownCount, population, n), 'g', 6, 64))
	return nil
}

func scanUsage(fs *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, "Usage: sbf scan --target DIR (--known DIR --out INDEX | --index INDEX) [options]\n\n")
	fs.PrintDefaults()
}

func showHelp() {
	fmt.Print(`sbf - small block forensics

Usage:
  sbf scan     --target DIR (--known DIR --out INDEX | --index INDEX) [options]
  sbf index    --known DIR --out INDEX [options]
  sbf estimate --known-count C --population N [--probability P]
  sbf version

Scan samples just enough random blocks of the target tree to find a block of
the known content with the requested probability, stopping at the first match.

Run 'sbf <command> --help' for the options of a command.
`)
}
