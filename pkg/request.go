package sbforensics

import (
	"fmt"
	"math"
)

// Input is one of the fixed set of path roles a scan request can carry
type Input interface {
	// Role returns the wire name of the input role
	Role() string
	// Location returns the path supplied for the role
	Location() string
	isInput()
}

// Input role wire names
const (
	RoleTargetFolder = "TARGET_FOLDER"
	RoleKnownDataset = "KNOWN_DATASET"
	RoleKnownIndex   = "INPUT_SQL"
	RoleOutputIndex  = "OUTPUT_SQL_PATH"
)

// TargetFolder is the directory tree to sample
type TargetFolder struct{ Path string }

// KnownDataset is a directory of known content to index
type KnownDataset struct{ Path string }

// KnownIndex is a previously built index to reuse
type KnownIndex struct{ Path string }

// OutputIndex is where a freshly built index is stored
type OutputIndex struct{ Path string }

func (i TargetFolder) Role() string     { return RoleTargetFolder }
func (i TargetFolder) Location() string { return i.Path }
func (TargetFolder) isInput()           {}

func (i KnownDataset) Role() string     { return RoleKnownDataset }
func (i KnownDataset) Location() string { return i.Path }
func (KnownDataset) isInput()           {}

func (i KnownIndex) Role() string     { return RoleKnownIndex }
func (i KnownIndex) Location() string { return i.Path }
func (KnownIndex) isInput()           {}

func (i OutputIndex) Role() string     { return RoleOutputIndex }
func (i OutputIndex) Location() string { return i.Path }
func (OutputIndex) isInput()           {}

// NewInput builds the Input for a wire role name
func NewInput(role, path string) (Input, error) {
	switch role {
	case RoleTargetFolder:
		return TargetFolder{Path: path}, nil
	case RoleKnownDataset:
		return KnownDataset{Path: path}, nil
	case RoleKnownIndex:
		return KnownIndex{Path: path}, nil
	case RoleOutputIndex:
		return OutputIndex{Path: path}, nil
	default:
		return nil, &InputError{Field: role, Reason: "is not a recognised input"}
	}
}

// Parameters are the numeric scan parameters of a request
type Parameters struct {
	BlockSize         int     `json:"block_size"`
	TargetProbability float64 `json:"target_probability"`
}

// Request is an unvalidated scan request as received from a front end
type Request struct {
	Inputs     []Input
	Parameters Parameters
}

// Job is a validated request, ready to run
type Job struct {
	Mode       string // ModeBuild or ModeReuse
	TargetDir  string
	KnownDir   string // ModeBuild only
	IndexPath  string // output index for ModeBuild, reused index for ModeReuse
	Parameters Parameters
}

// Validate checks the request once and returns the job it describes.
// Every failure is an *InputError; no hashing happens before Validate succeeds.
func (r *Request) Validate(backend string) (*Job, error) {
	var target, known, knownIndex, output *string
	for _, in := range r.Inputs {
		path := in.Location()
		switch in.(type) {
		case TargetFolder:
			target = &path
		case KnownDataset:
			known = &path
		case KnownIndex:
			knownIndex = &path
		case OutputIndex:
			output = &path
		}
	}

	if target == nil || !isDirPath(*target) {
		return nil, &InputError{Field: RoleTargetFolder, Reason: fmt.Sprintf("%s is not provided or is not a valid path", valueOrNone(target))}
	}
	if known == nil && knownIndex == nil {
		return nil, &InputError{Reason: fmt.Sprintf("Either %s or %s must be specified", RoleKnownDataset, RoleKnownIndex)}
	}
	if known != nil && knownIndex != nil {
		return nil, &InputError{Reason: fmt.Sprintf("Both %s and %s cannot be specified", RoleKnownDataset, RoleKnownIndex)}
	}
	if err := r.Parameters.validate(); err != nil {
		return nil, err
	}

	job := &Job{TargetDir: *target, Parameters: r.Parameters}
	if known != nil {
		if !isDirPath(*known) {
			return nil, &InputError{Field: RoleKnownDataset, Reason: fmt.Sprintf("%s is not a valid path", *known)}
		}
		if output == nil || *output == "" {
			return nil, &InputError{Field: RoleOutputIndex, Reason: "is not provided"}
		}
		job.Mode = ModeBuild
		job.KnownDir = *known
		job.IndexPath = *output
		return job, nil
	}

	if !IndexExists(*knownIndex, backend) {
		return nil, &InputError{Field: RoleKnownIndex, Reason: fmt.Sprintf("%s is not a valid path", *knownIndex), Err: ErrIndexNotFound}
	}
	job.Mode = ModeReuse
	job.IndexPath = *knownIndex
	return job, nil
}

func (p Parameters) validate() error {
	if p.BlockSize <= 0 {
		return &InputError{Field: "block_size", Reason: fmt.Sprintf("must be a positive integer, got %d", p.BlockSize)}
	}
	if math.IsNaN(p.TargetProbability) || p.TargetProbability < 0 || p.TargetProbability > 1 {
		return &InputError{Field: "target_probability", Reason: fmt.Sprintf("must be between 0 and 1, got %v", p.TargetProbability)}
	}
	return nil
}

func valueOrNone(s *string) string {
	if s == nil {
		return "(none)"
	}
	return *s
}

// Run executes the job on an engine configured from base with the job's parameters
func (j *Job) Run(base EngineConfig, shutdownChan <-chan struct{}) (*ScanReport, error) {
	cfg := base
	cfg.BlockSize = j.Parameters.BlockSize
	cfg.TargetProbability = j.Parameters.TargetProbability

	engine, err := NewScanEngine(cfg)
	if err != nil {
		return nil, err
	}

	switch j.Mode {
	case ModeBuild:
		return engine.BuildAndScan(j.KnownDir, j.TargetDir, j.IndexPath, shutdownChan)
	case ModeReuse:
		return engine.ReuseAndScan(j.IndexPath, j.TargetDir, shutdownChan)
	default:
		return nil, fmt.Errorf("unknown job mode %q", j.Mode)
	}
}
