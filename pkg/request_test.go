package sbforensics

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewInput(t *testing.T) {
	for _, role := range []string{RoleTargetFolder, RoleKnownDataset, RoleKnownIndex, RoleOutputIndex} {
		in, err := NewInput(role, "/some/path")
		if err != nil {
			t.Fatalf("NewInput(%s) failed: %v", role, err)
		}
		if in.Role() != role || in.Location() != "/some/path" {
			t.Errorf("NewInput(%s) = %s %s", role, in.Role(), in.Location())
		}
	}

	_, err := NewInput("SCRATCH_DIR", "/tmp")
	if !IsInputError(err) {
		t.Errorf("Expected an input error for an unknown role, got %v", err)
	}
}

func TestRequestValidate(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "target")
	known := filepath.Join(root, "known")
	writeTestFile(t, filepath.Join(target, "f"), []byte("data"))
	writeTestFile(t, filepath.Join(known, "f"), []byte("data"))
	index := writeTestFile(t, filepath.Join(root, "known.db"), []byte("not really sqlite"))
	output := filepath.Join(root, "out.db")

	params := Parameters{BlockSize: 4096, TargetProbability: 0.95}

	testCases := []struct {
		name    string
		inputs  []Input
		params  Parameters
		mode    string
		errText string
	}{
		{
			name:   "build",
			inputs: []Input{TargetFolder{target}, KnownDataset{known}, OutputIndex{output}},
			params: params,
			mode:   ModeBuild,
		},
		{
			name:   "reuse",
			inputs: []Input{KnownIndex{index}, TargetFolder{target}},
			params: params,
			mode:   ModeReuse,
		},
		{
			name:    "missing target",
			inputs:  []Input{KnownDataset{known}, OutputIndex{output}},
			params:  params,
			errText: "TARGET_FOLDER (none) is not provided or is not a valid path",
		},
		{
			name:    "target is a file",
			inputs:  []Input{TargetFolder{index}, KnownIndex{index}},
			params:  params,
			errText: "is not provided or is not a valid path",
		},
		{
			name:    "neither known input",
			inputs:  []Input{TargetFolder{target}},
			params:  params,
			errText: "Either KNOWN_DATASET or INPUT_SQL must be specified",
		},
		{
			name:    "both known inputs",
			inputs:  []Input{TargetFolder{target}, KnownDataset{known}, KnownIndex{index}, OutputIndex{output}},
			params:  params,
			errText: "Both KNOWN_DATASET and INPUT_SQL cannot be specified",
		},
		{
			name:    "zero block size",
			inputs:  []Input{TargetFolder{target}, KnownIndex{index}},
			params:  Parameters{BlockSize: 0, TargetProbability: 0.5},
			errText: "block_size must be a positive integer",
		},
		{
			name:    "probability out of range",
			inputs:  []Input{TargetFolder{target}, KnownIndex{index}},
			params:  Parameters{BlockSize: 512, TargetProbability: 1.5},
			errText: "target_probability must be between 0 and 1",
		},
		{
			name:    "known dataset missing",
			inputs:  []Input{TargetFolder{target}, KnownDataset{filepath.Join(root, "nope")}, OutputIndex{output}},
			params:  params,
			errText: "KNOWN_DATASET",
		},
		{
			name:    "no output index",
			inputs:  []Input{TargetFolder{target}, KnownDataset{known}},
			params:  params,
			errText: "OUTPUT_SQL_PATH is not provided",
		},
		{
			name:    "index missing",
			inputs:  []Input{TargetFolder{target}, KnownIndex{filepath.Join(root, "missing.db")}},
			params:  params,
			errText: "INPUT_SQL",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := &Request{Inputs: tc.inputs, Parameters: tc.params}
			job, err := req.Validate(BackendSQLite)
			if tc.errText != "" {
				if !IsInputError(err) {
					t.Fatalf("Expected an input error, got %v", err)
				}
				if !strings.Contains(err.Error(), tc.errText) {
					t.Errorf("Expected error containing %q, got %q", tc.errText, err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate failed: %v", err)
			}
			if job.Mode != tc.mode || job.TargetDir != target || job.Parameters != tc.params {
				t.Errorf("Unexpected job: %+v", job)
			}
		})
	}
}

func TestRequestValidateIndexNotFound(t *testing.T) {
	target := t.TempDir()
	req := &Request{
		Inputs:     []Input{TargetFolder{target}, KnownIndex{filepath.Join(target, "missing.db")}},
		Parameters: Parameters{BlockSize: 4096, TargetProbability: 0.5},
	}
	_, err := req.Validate(BackendSQLite)
	if !errors.Is(err, ErrIndexNotFound) {
		t.Errorf("Expected ErrIndexNotFound, got %v", err)
	}
}

func TestJobRun(t *testing.T) {
	knownDir, targetDir, fileA, fileB := matchFixture(t)
	indexPath := filepath.Join(t.TempDir(), "known.db")

	req := &Request{
		Inputs:     []Input{TargetFolder{targetDir}, KnownDataset{knownDir}, OutputIndex{indexPath}},
		Parameters: Parameters{BlockSize: 4096, TargetProbability: 1},
	}
	job, err := req.Validate(BackendSQLite)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	base := DefaultEngineConfig()
	base.BlockSize = 1 // replaced by the job's parameters
	base.Seed = 7
	report, err := job.Run(base, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	requireMatch(t, report.Result, fileB, 0, fileA, 1)

	reuse := &Request{
		Inputs:     []Input{TargetFolder{targetDir}, KnownIndex{indexPath}},
		Parameters: Parameters{BlockSize: 4096, TargetProbability: 1},
	}
	job, err = reuse.Validate(BackendSQLite)
	if err != nil {
		t.Fatalf("Validate of reuse failed: %v", err)
	}
	report, err = job.Run(base, nil)
	if err != nil {
		t.Fatalf("Run of reuse failed: %v", err)
	}
	requireMatch(t, report.Result, fileB, 0, fileA, 1)
	if report.Stats.Mode != ModeReuse {
		t.Errorf("Expected mode %s, got %s", ModeReuse, report.Stats.Mode)
	}
}
