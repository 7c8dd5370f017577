package harvest

import (
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// PublishResult is the outcome of one publisher call.
type PublishResult struct {
	Publisher string `yaml:"publisher"`
	OK        bool   `yaml:"ok"`
	Error     string `yaml:"error,omitempty"`
}

// PartitionReport summarizes one partition run.
type PartitionReport struct {
	Partition      string          `yaml:"partition"`
	Region         string          `yaml:"region"`
	Year           int             `yaml:"year"`
	ExpectedPages  int             `yaml:"expected_pages"`
	ReportedPages  int             `yaml:"reported_pages"`
	Truncated      bool            `yaml:"truncated,omitempty"`
	TotalResults   int             `yaml:"total_results"`
	PagesFetched   int             `yaml:"pages_fetched"`
	PagesRecovered []int           `yaml:"pages_recovered,omitempty"`
	PagesMissing   []int           `yaml:"pages_missing,omitempty"`
	Status         MergeStatus     `yaml:"status"`
	Records        int             `yaml:"records"`
	Published      []PublishResult `yaml:"published,omitempty"`
	Errors         []string        `yaml:"errors,omitempty"`
	Duration       time.Duration   `yaml:"duration"`
}

// RunReport summarizes a pipeline run.
type RunReport struct {
	RunID      string            `yaml:"run_id"`
	Region     string            `yaml:"region"`
	YearStart  int               `yaml:"year_start"`
	YearEnd    int               `yaml:"year_end"`
	StartedAt  time.Time         `yaml:"started_at"`
	FinishedAt time.Time         `yaml:"finished_at"`
	Partitions []PartitionReport `yaml:"partitions"`
}

// Counts returns the number of partitions per merge status.
func (r *RunReport) Counts() map[MergeStatus]int {
	counts := make(map[MergeStatus]int, 3)
	for _, p := range r.Partitions {
		counts[p.Status]++
	}
	return counts
}

// Complete reports whether every partition merged.
func (r *RunReport) Complete() bool {
	for _, p := range r.Partitions {
		if p.Status != MergeCompleted {
			return false
		}
	}
	return true
}

// WriteYAML encodes the report as YAML.
func (r *RunReport) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return enc.Close()
}

// Log writes one line per partition and a summary line.
func (r *RunReport) Log(logger zerolog.Logger) {
	for _, p := range r.Partitions {
		ev := logger.Info()
		if p.Status != MergeCompleted || p.Truncated {
			ev = logger.Warn()
		}
		ev.Str("run_id", r.RunID).
			Str("partition", p.Partition).
			Str("status", string(p.Status)).
			Int("expected_pages", p.ExpectedPages).
			Int("reported_pages", p.ReportedPages).
			Bool("truncated", p.Truncated).
			Int("pages_fetched", p.PagesFetched).
			Ints("pages_recovered", p.PagesRecovered).
			Ints("pages_missing", p.PagesMissing).
			Int("records", p.Records).
			Strs("errors", p.Errors).
			Msg("Partition report")
	}

	counts := r.Counts()
	logger.Info().
		Str("run_id", r.RunID).
		Int("partitions", len(r.Partitions)).
		Int("merged", counts[MergeCompleted]).
		Int("skipped", counts[MergeSkipped]).
		Int("failed", counts[MergeFailed]).
		Dur("duration", r.FinishedAt.Sub(r.StartedAt)).
		Msg("Run complete")
}
