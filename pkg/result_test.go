package sbforensics

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func sampleReport(found bool) *ScanReport {
	report := &ScanReport{
		Result: NoMatch(),
		Stats: ScanStats{
			Mode:           ModeBuild,
			KnownCount:     2,
			TargetFiles:    1,
			TargetBlocks:   1,
			PlannedSamples: 1,
			ProbedBlocks:   1,
			Seed:           42,
			Elapsed:        1500 * time.Millisecond,
		},
	}
	if found {
		report.Result = MatchAt("/t/B", 0, IndexLocation{SourcePath: "/k/A", BlockNum: 1})
	}
	return report
}

func TestScanResultJSONShape(t *testing.T) {
	data, err := json.Marshal(NoMatch())
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != `{"found":false}` {
		t.Errorf("Expected only the found flag on a miss, got %s", data)
	}

	data, err = json.Marshal(sampleReport(true).Result)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	want := map[string]any{
		"found":                      true,
		"target_file":                "/t/B",
		"known_dataset_file":         "/k/A",
		"block_num_in_target":        float64(0),
		"block_num_in_known_dataset": float64(1),
	}
	for key, value := range want {
		if fields[key] != value {
			t.Errorf("Field %s: expected %v, got %v", key, value, fields[key])
		}
	}
	if len(fields) != len(want) {
		t.Errorf("Expected %d fields, got %d: %s", len(want), len(fields), data)
	}
}

func TestMatchAtCopiesLocation(t *testing.T) {
	loc := IndexLocation{SourcePath: "/k/A", BlockNum: 3}
	r := MatchAt("/t/B", 7, loc)
	loc.SourcePath = "changed"
	if *r.KnownDatasetFile != "/k/A" || *r.BlockNumInKnownDataset != 3 || *r.BlockNumInTarget != 7 {
		t.Errorf("MatchAt should not alias its inputs, got %+v", r)
	}
}

func TestRenderResultFormats(t *testing.T) {
	testCases := []struct {
		format string
		found  bool
		want   []string
		absent []string
	}{
		{FormatHuman, true, []string{"Known content found", "/t/B", "/k/A", "seed:", "1.5s"}, nil},
		{FormatHuman, false, []string{"No known content found"}, []string{"target file:"}},
		{FormatMarkdown, true, []string{"**Found:** true", "| Target | `/t/B` | 0 |", "| Known dataset | `/k/A` | 1 |"}, nil},
		{FormatMarkdown, false, []string{"**Found:** false", "| Seed | 42 |"}, []string{"| Target |"}},
		{"JSON", true, []string{`"target_file": "/t/B"`, `"elapsed_ns": 1500000000`}, nil},
		{FormatJSON, false, []string{`"found": false`, `"target_files": 1`}, []string{`"target_file"`, `"known_dataset_file"`, `"block_num_in_target"`}},
	}

	for _, tc := range testCases {
		t.Run(tc.format, func(t *testing.T) {
			var buf bytes.Buffer
			if err := RenderResult(&buf, sampleReport(tc.found), tc.format); err != nil {
				t.Fatalf("RenderResult failed: %v", err)
			}
			out := buf.String()
			for _, s := range tc.want {
				if !strings.Contains(out, s) {
					t.Errorf("Expected output to contain %q:\n%s", s, out)
				}
			}
			for _, s := range tc.absent {
				if strings.Contains(out, s) {
					t.Errorf("Expected output not to contain %q:\n%s", s, out)
				}
			}
		})
	}
}

func TestRenderResultYAML(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderResult(&buf, sampleReport(true), FormatYAML); err != nil {
		t.Fatalf("RenderResult failed: %v", err)
	}

	var decoded struct {
		Result map[string]any `yaml:"result"`
		Stats  map[string]any `yaml:"stats"`
	}
	if err := yaml.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v\n%s", err, buf.String())
	}
	if decoded.Result["found"] != true || decoded.Result["target_file"] != "/t/B" || decoded.Result["block_num_in_known_dataset"] != 1 {
		t.Errorf("Unexpected result: %v", decoded.Result)
	}
	if decoded.Stats["mode"] != ModeBuild || decoded.Stats["seed"] != 42 {
		t.Errorf("Unexpected stats: %v", decoded.Stats)
	}
}

func TestRenderResultErrors(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderResult(&buf, sampleReport(false), "xml"); err == nil {
		t.Error("Expected an error for an unknown format")
	}
	if err := RenderResult(&buf, nil, FormatJSON); err == nil {
		t.Error("Expected an error for a nil report")
	}
}
