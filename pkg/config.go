package sbforensics

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-ini/ini"
)

// Config represents the sbforensics configuration file
type Config struct {
	configPath string
	ini        *ini.File
}

// BlockConfig represents block hashing configuration
type BlockConfig struct {
	Size int    // Block size in bytes
	Hash string // Fingerprint algorithm
}

// SamplingConfig represents sampling configuration
type SamplingConfig struct {
	TargetProbability float64 // Desired detection probability in [0,1]
	Seed              uint64  // Sampler seed (0 = derive from clock)
}

// IndexConfig represents content index configuration
type IndexConfig struct {
	Backend     string  // sqlite, badger or memory
	BatchSize   int     // Entries per insert transaction
	Bloom       bool    // Prime a bloom prefilter before probing
	BloomFPRate float64 // Bloom filter false-positive rate
}

// PerformanceConfig represents performance-related configuration
type PerformanceConfig struct {
	HashWorkers  int    // Concurrent file hashers while building
	ProbeWorkers int    // Concurrent file probers while scanning
	ReadMode     string // pread or mmap
}

// OutputConfig represents output format configuration
type OutputConfig struct {
	Format string // human, json, markdown, yaml
}

// VerboseConfig represents verbosity configuration
type VerboseConfig struct {
	Level int    // Default verbose level (0=quiet, 1=basic, 2=detailed, 3=trace)
	Debug string // Default debug flags (comma-separated)
}

// ServerConfig represents HTTP front end configuration
type ServerConfig struct {
	Listen string
}

// AllConfig represents all configuration options
type AllConfig struct {
	Block       *BlockConfig
	Sampling    *SamplingConfig
	Index       *IndexConfig
	Performance *PerformanceConfig
	Output      *OutputConfig
	Verbose     *VerboseConfig
	Server      *ServerConfig
}

// DefaultConfigPath returns the per-user config file location
func DefaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "sbforensics", "config")
}

// NewDefaultConfig returns an in-memory configuration holding the defaults
func NewDefaultConfig() *Config {
	cfg := &Config{ini: ini.Empty()}
	if err := cfg.setDefaults(); err != nil {
		// only fails on duplicate section names, which setDefaults never creates
		panic(err)
	}
	return cfg
}

// LoadConfig loads configuration from configPath, writing a default file when it does not exist
func LoadConfig(configPath string) (*Config, error) {
	if configPath == "" {
		return NewDefaultConfig(), nil
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := NewDefaultConfig()
		cfg.configPath = configPath
		if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create config directory: %w", err)
		}
		if err := cfg.Save(); err != nil {
			return nil, fmt.Errorf("failed to save default config: %w", err)
		}
		return cfg, nil
	}

	iniFile, err := ini.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}
	return &Config{configPath: configPath, ini: iniFile}, nil
}

// setDefaults sets default configuration values
func (c *Config) setDefaults() error {
	defaults := []struct {
		section string
		keys    [][2]string
	}{
		{"block", [][2]string{{"size", FormatHumanSize(DefaultBlockSize)}, {"hash", "xxh3"}}},
		{"sampling", [][2]string{{"target_probability", strconv.FormatFloat(DefaultTargetProbability, 'f', -1, 64)}, {"seed", "0"}}},
		{"index", [][2]string{
			{"backend", BackendSQLite},
			{"batch_size", strconv.Itoa(DefaultBatchSize)},
			{"bloom", "true"},
			{"bloom_fp_rate", strconv.FormatFloat(DefaultBloomFPRate, 'f', -1, 64)},
		}},
		{"performance", [][2]string{
			{"hash_workers", strconv.Itoa(DefaultHashWorkers)},
			{"probe_workers", strconv.Itoa(DefaultProbeWorkers)},
			{"read_mode", ReadModePread},
		}},
		{"output", [][2]string{{"format", FormatHuman}}},
		{"verbose", [][2]string{{"level", "0"}, {"debug", ""}}},
		{"server", [][2]string{{"listen", DefaultListenAddr}}},
	}

	for _, d := range defaults {
		section, err := c.ini.NewSection(d.section)
		if err != nil {
			return fmt.Errorf("failed to create %s section: %w", d.section, err)
		}
		for _, kv := range d.keys {
			if _, err := section.NewKey(kv[0], kv[1]); err != nil {
				return fmt.Errorf("failed to set default %s.%s: %w", d.section, kv[0], err)
			}
		}
	}
	return nil
}

// GetBlockConfig returns the block configuration
func (c *Config) GetBlockConfig() *BlockConfig {
	blockConfig := &BlockConfig{
		Size: DefaultBlockSize, // fallback default
		Hash: "xxh3",           // fallback default
	}

	if c.ini.HasSection("block") {
		section := c.ini.Section("block")
		if section.HasKey("size") {
			if size, err := ParseHumanSize(section.Key("size").String()); err == nil {
				blockConfig.Size = size
			}
		}
		if section.HasKey("hash") {
			blockConfig.Hash = section.Key("hash").String()
		}
	}

	return blockConfig
}

// GetSamplingConfig returns the sampling configuration
func (c *Config) GetSamplingConfig() *SamplingConfig {
	samplingConfig := &SamplingConfig{
		TargetProbability: DefaultTargetProbability,
	}

	if c.ini.HasSection("sampling") {
		section := c.ini.Section("sampling")
		if section.HasKey("target_probability") {
			if p, err := section.Key("target_probability").Float64(); err == nil {
				samplingConfig.TargetProbability = p
			}
		}
		if section.HasKey("seed") {
			if seed, err := section.Key("seed").Uint64(); err == nil {
				samplingConfig.Seed = seed
			}
		}
	}

	return samplingConfig
}

// GetIndexConfig returns the content index configuration
func (c *Config) GetIndexConfig() *IndexConfig {
	indexConfig := &IndexConfig{
		Backend:     BackendSQLite,
		BatchSize:   DefaultBatchSize,
		Bloom:       true,
		BloomFPRate: DefaultBloomFPRate,
	}

	if c.ini.HasSection("index") {
		section := c.ini.Section("index")
		if section.HasKey("backend") {
			indexConfig.Backend = strings.ToLower(section.Key("backend").String())
		}
		if section.HasKey("batch_size") {
			if n, err := section.Key("batch_size").Int(); err == nil {
				indexConfig.BatchSize = n
			}
		}
		if section.HasKey("bloom") {
			if b, err := section.Key("bloom").Bool(); err == nil {
				indexConfig.Bloom = b
			}
		}
		if section.HasKey("bloom_fp_rate") {
			if r, err := section.Key("bloom_fp_rate").Float64(); err == nil {
				indexConfig.BloomFPRate = r
			}
		}
	}

	return indexConfig
}

// GetPerformanceConfig returns the performance configuration
func (c *Config) GetPerformanceConfig() *PerformanceConfig {
	performanceConfig := &PerformanceConfig{
		HashWorkers:  DefaultHashWorkers,
		ProbeWorkers: DefaultProbeWorkers,
		ReadMode:     ReadModePread,
	}

	if c.ini.HasSection("performance") {
		section := c.ini.Section("performance")
		if section.HasKey("hash_workers") {
			if workers, err := section.Key("hash_workers").Int(); err == nil {
				performanceConfig.HashWorkers = workers
			}
		}
		if section.HasKey("probe_workers") {
			if workers, err := section.Key("probe_workers").Int(); err == nil {
				performanceConfig.ProbeWorkers = workers
			}
		}
		if section.HasKey("read_mode") {
			performanceConfig.ReadMode = strings.ToLower(section.Key("read_mode").String())
		}
	}

	return performanceConfig
}

// GetOutputConfig returns the output configuration
func (c *Config) GetOutputConfig() *OutputConfig {
	outputConfig := &OutputConfig{
		Format: FormatHuman, // fallback default
	}

	if c.ini.HasSection("output") {
		section := c.ini.Section("output")
		if section.HasKey("format") {
			outputConfig.Format = section.Key("format").String()
		}
	}

	return outputConfig
}

// GetVerboseConfig returns the verbose configuration
func (c *Config) GetVerboseConfig() *VerboseConfig {
	verboseConfig := &VerboseConfig{}

	if c.ini.HasSection("verbose") {
		section := c.ini.Section("verbose")
		if section.HasKey("level") {
			if level, err := section.Key("level").Int(); err == nil {
				verboseConfig.Level = level
			}
		}
		if section.HasKey("debug") {
			verboseConfig.Debug = section.Key("debug").String()
		}
	}

	return verboseConfig
}

// GetServerConfig returns the HTTP server configuration
func (c *Config) GetServerConfig() *ServerConfig {
	serverConfig := &ServerConfig{Listen: DefaultListenAddr}

	if c.ini.HasSection("server") {
		section := c.ini.Section("server")
		if section.HasKey("listen") {
			if listen := section.Key("listen").String(); listen != "" {
				serverConfig.Listen = listen
			}
		}
	}

	return serverConfig
}

// GetAllConfig returns all configuration options
func (c *Config) GetAllConfig() *AllConfig {
	return &AllConfig{
		Block:       c.GetBlockConfig(),
		Sampling:    c.GetSamplingConfig(),
		Index:       c.GetIndexConfig(),
		Performance: c.GetPerformanceConfig(),
		Output:      c.GetOutputConfig(),
		Verbose:     c.GetVerboseConfig(),
		Server:      c.GetServerConfig(),
	}
}

// Save saves the configuration to disk; an in-memory config has nowhere to go
func (c *Config) Save() error {
	if c.configPath == "" {
		return nil
	}
	return c.ini.SaveTo(c.configPath)
}

// overrideKeys maps override keys to their section
var overrideKeys = map[string]string{
	"size":               "block",
	"hash":               "block",
	"target_probability": "sampling",
	"seed":               "sampling",
	"backend":            "index",
	"batch_size":         "index",
	"bloom":              "index",
	"bloom_fp_rate":      "index",
	"hash_workers":       "performance",
	"probe_workers":      "performance",
	"read_mode":          "performance",
	"format":             "output",
	"level":              "verbose",
	"debug":              "verbose",
	"listen":             "server",
}

// ApplyOverrides applies command-line overrides to the configuration
// Accepts strings like "size:8K", "backend:badger", "level:2", "debug:build,probe"
func (c *Config) ApplyOverrides(overrides []string) error {
	for _, override := range overrides {
		parts := strings.SplitN(override, ":", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid override format '%s', expected 'key:value'", override)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		sectionName, ok := overrideKeys[key]
		if !ok {
			return fmt.Errorf("unsupported override key '%s'", key)
		}
		c.ini.Section(sectionName).Key(key).SetValue(value)
	}

	return c.Validate()
}

// Validate checks every configured value
func (c *Config) Validate() error {
	all := c.GetAllConfig()
	if c.ini.Section("block").HasKey("size") {
		if _, err := ParseHumanSize(c.ini.Section("block").Key("size").String()); err != nil {
			return fmt.Errorf("invalid block size: %w", err)
		}
	}
	checks := []error{
		ValidateHashAlgorithm(all.Block.Hash),
		ValidateTargetProbability(all.Sampling.TargetProbability),
		ValidateBackend(all.Index.Backend),
		ValidateBatchSize(all.Index.BatchSize),
		ValidateWorkers("hash_workers", all.Performance.HashWorkers),
		ValidateWorkers("probe_workers", all.Performance.ProbeWorkers),
		ValidateReadMode(all.Performance.ReadMode),
		ValidateOutputFormat(all.Output.Format),
		ValidateVerboseLevel(all.Verbose.Level),
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}
	return nil
}

// EngineConfig derives the validated engine configuration
func (c *Config) EngineConfig() (EngineConfig, error) {
	if err := c.Validate(); err != nil {
		return EngineConfig{}, err
	}
	all := c.GetAllConfig()
	return EngineConfig{
		BlockSize:         all.Block.Size,
		TargetProbability: all.Sampling.TargetProbability,
		HashName:          all.Block.Hash,
		Seed:              all.Sampling.Seed,
		Backend:           all.Index.Backend,
		BatchSize:         all.Index.BatchSize,
		Bloom:             all.Index.Bloom,
		BloomFPRate:       all.Index.BloomFPRate,
		HashWorkers:       all.Performance.HashWorkers,
		ProbeWorkers:      all.Performance.ProbeWorkers,
		ReadMode:          all.Performance.ReadMode,
	}, nil
}

// ValidateHashAlgorithm validates that a hash algorithm is supported
func ValidateHashAlgorithm(algorithm string) error {
	if _, ok := HashTypeFromName(algorithm); !ok {
		return fmt.Errorf("unsupported hash algorithm: %s (supported: xxh3, md5, blake3)", algorithm)
	}
	return nil
}

// ValidateTargetProbability validates that a probability lies in [0,1]
func ValidateTargetProbability(p float64) error {
	if p < 0 || p > 1 || p != p {
		return fmt.Errorf("invalid target probability: %v (supported: 0-1)", p)
	}
	return nil
}

// ValidateBlockSize validates that a block size is positive
func ValidateBlockSize(size int) error {
	if size <= 0 {
		return fmt.Errorf("block size must be positive, got: %d", size)
	}
	return nil
}

// ValidateBackend validates that an index backend is supported
func ValidateBackend(backend string) error {
	switch strings.ToLower(backend) {
	case BackendSQLite, BackendBadger, BackendMemory:
		return nil
	default:
		return fmt.Errorf("unsupported index backend: %s (supported: sqlite, badger, memory)", backend)
	}
}

// ValidateBatchSize validates the insert batch size
func ValidateBatchSize(n int) error {
	if n < 1 {
		return fmt.Errorf("batch size must be at least 1, got: %d", n)
	}
	return nil
}

// ValidateWorkers validates that a worker count is reasonable
func ValidateWorkers(name string, workers int) error {
	if workers < 1 {
		return fmt.Errorf("%s must be at least 1, got: %d", name, workers)
	}
	if workers > 64 {
		return fmt.Errorf("%s should not exceed 64, got: %d", name, workers)
	}
	return nil
}

// ValidateReadMode validates the block read mode
func ValidateReadMode(mode string) error {
	switch strings.ToLower(mode) {
	case ReadModePread, ReadModeMmap:
		return nil
	default:
		return fmt.Errorf("unsupported read mode: %s (supported: pread, mmap)", mode)
	}
}

// ValidateOutputFormat validates that an output format is supported
func ValidateOutputFormat(format string) error {
	switch strings.ToLower(format) {
	case FormatHuman, FormatJSON, FormatMarkdown, FormatYAML:
		return nil
	default:
		return fmt.Errorf("unsupported output format: %s (supported: human, json, markdown, yaml)", format)
	}
}

// ValidateVerboseLevel validates that a verbose level is valid
func ValidateVerboseLevel(level int) error {
	if level < 0 || level > 3 {
		return fmt.Errorf("invalid verbose level: %d (supported: 0-3)", level)
	}
	return nil
}
