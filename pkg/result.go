package sbforensics

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"
)

// ScanResult is the outcome of one scan. The four detail fields are either all
// set (Found) or all nil; use NoMatch and MatchAt to build one.
type ScanResult struct {
	Found                  bool    `json:"found" yaml:"found"`
	TargetFile             *string `json:"target_file,omitempty" yaml:"target_file,omitempty"`
	KnownDatasetFile       *string `json:"known_dataset_file,omitempty" yaml:"known_dataset_file,omitempty"`
	BlockNumInTarget       *int64  `json:"block_num_in_target,omitempty" yaml:"block_num_in_target,omitempty"`
	BlockNumInKnownDataset *int64  `json:"block_num_in_known_dataset,omitempty" yaml:"block_num_in_known_dataset,omitempty"`
}

// NoMatch returns the result of a scan that found no known block
func NoMatch() ScanResult {
	return ScanResult{}
}

// MatchAt returns the result of a scan whose target block matched a known block
func MatchAt(targetFile string, targetBlock int64, loc IndexLocation) ScanResult {
	knownFile := loc.SourcePath
	knownBlock := loc.BlockNum
	return ScanResult{
		Found:                  true,
		TargetFile:             &targetFile,
		KnownDatasetFile:       &knownFile,
		BlockNumInTarget:       &targetBlock,
		BlockNumInKnownDataset: &knownBlock,
	}
}

// ScanStats describes the work a scan did
type ScanStats struct {
	Mode           string        `json:"mode" yaml:"mode"`
	KnownCount     int64         `json:"known_count" yaml:"known_count"`
	TargetFiles    int           `json:"target_files" yaml:"target_files"`
	TargetBlocks   int64         `json:"target_blocks" yaml:"target_blocks"`
	PlannedSamples int64         `json:"planned_samples" yaml:"planned_samples"`
	ProbedBlocks   int64         `json:"probed_blocks" yaml:"probed_blocks"`
	BloomSkips     int64         `json:"bloom_skips" yaml:"bloom_skips"`
	Seed           uint64        `json:"seed" yaml:"seed"`
	Elapsed        time.Duration `json:"elapsed_ns" yaml:"elapsed"`
}

// ScanReport pairs a result with the statistics of the scan that produced it
type ScanReport struct {
	Result ScanResult `json:"result" yaml:"result"`
	Stats  ScanStats  `json:"stats" yaml:"stats"`
}

// RenderResult writes report to w in the named format
func RenderResult(w io.Writer, report *ScanReport, format string) error {
	if report == nil {
		return fmt.Errorf("no report to render")
	}

	switch strings.ToLower(format) {
	case FormatHuman, "":
		return renderHuman(w, report)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return err
		}
		return enc.Close()
	case FormatMarkdown:
		return renderMarkdown(w, report)
	default:
		return fmt.Errorf("unsupported output format: %s (supported: human, json, markdown, yaml)", format)
	}
}

func renderHuman(w io.Writer, report *ScanReport) error {
	r := report.Result
	if r.Found {
		fmt.Fprintln(w, "Known content found")
	} else {
		fmt.Fprintln(w, "No known content found in sampled blocks")
	}

	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if r.Found {
		fmt.Fprintf(writer, "  target file:\t%s\n", *r.TargetFile)
		fmt.Fprintf(writer, "  target block:\t%d\n", *r.BlockNumInTarget)
		fmt.Fprintf(writer, "  known file:\t%s\n", *r.KnownDatasetFile)
		fmt.Fprintf(writer, "  known block:\t%d\n", *r.BlockNumInKnownDataset)
	}
	s := report.Stats
	fmt.Fprintf(writer, "  known blocks:\t%d\n", s.KnownCount)
	fmt.Fprintf(writer, "  target:\t%d files, %d blocks\n", s.TargetFiles, s.TargetBlocks)
	fmt.Fprintf(writer, "  samples:\t%d planned, %d probed\n", s.PlannedSamples, s.ProbedBlocks)
	if s.BloomSkips > 0 {
		fmt.Fprintf(writer, "  bloom skips:\t%d\n", s.BloomSkips)
	}
	fmt.Fprintf(writer, "  seed:\t%d\n", s.Seed)
	fmt.Fprintf(writer, "  elapsed:\t%s\n", s.Elapsed.Round(time.Millisecond))
	return writer.Flush()
}

func renderMarkdown(w io.Writer, report *ScanReport) error {
	r := report.Result
	var b strings.Builder
	b.WriteString("## Scan result\n\n")
	fmt.Fprintf(&b, "**Found:** %t\n\n", r.Found)
	if r.Found {
		b.WriteString("| | File | Block |\n|---|---|---|\n")
		fmt.Fprintf(&b, "| Target | `%s` | %d |\n", *r.TargetFile, *r.BlockNumInTarget)
		fmt.Fprintf(&b, "| Known dataset | `%s` | %d |\n\n", *r.KnownDatasetFile, *r.BlockNumInKnownDataset)
	}
	s := report.Stats
	b.WriteString("| Statistic | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Known blocks | %d |\n", s.KnownCount)
	fmt.Fprintf(&b, "| Target files | %d |\n", s.TargetFiles)
	fmt.Fprintf(&b, "| Target blocks | %d |\n", s.TargetBlocks)
	fmt.Fprintf(&b, "| Planned samples | %d |\n", s.PlannedSamples)
	fmt.Fprintf(&b, "| Probed blocks | %d |\n", s.ProbedBlocks)
	fmt.Fprintf(&b, "| Seed | %d |\n", s.Seed)
	fmt.Fprintf(&b, "| Elapsed | %s |\n", s.Elapsed.Round(time.Millisecond))
	_, err := io.WriteString(w, b.String())
	return err
}
