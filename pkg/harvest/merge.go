package harvest

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// MergeStatus is the outcome of a merge attempt.
type MergeStatus string

const (
	MergeCompleted MergeStatus = "merged"
	MergeSkipped   MergeStatus = "skipped"
	MergeFailed    MergeStatus = "failed"
)

// MergeResult carries the merged artifact when Status is MergeCompleted.
type MergeResult struct {
	Status  MergeStatus
	Merged  *Merged
	Missing []int
}

// MergeEngine combines the page artifacts of a partition.
type MergeEngine struct {
	pages  PageSink
	merged MergedSink
	logger zerolog.Logger
}

func NewMergeEngine(pages PageSink, merged MergedSink) *MergeEngine {
	return &MergeEngine{
		pages:  pages,
		merged: merged,
		logger: log.With().Str("component", "harvest-merge").Logger(),
	}
}

// Merge writes the merged artifact of state's partition. It does nothing and
// returns MergeSkipped when any page is still missing. Only pages
// 1..ExpectedPages of the enumeration snapshot are read.
func (m *MergeEngine) Merge(ctx context.Context, state *PartitionState) (MergeResult, error) {
	p := state.Partition

	if missing := state.Missing.Snapshot(); len(missing) > 0 {
		m.logger.Warn().
			Str("partition", p.String()).
			Ints("missing", missing).
			Msg("Merge skipped, partition incomplete")
		return MergeResult{Status: MergeSkipped, Missing: missing}, nil
	}

	var artifacts []Artifact
	if state.ExpectedPages > 0 {
		pages := make([]int, state.ExpectedPages)
		for i := range pages {
			pages[i] = i + 1
		}

		var err error
		artifacts, err = m.pages.ReadPages(ctx, p, pages)
		if err != nil {
			return MergeResult{Status: MergeFailed}, fmt.Errorf("read pages of %s: %w", p, err)
		}
		if len(artifacts) != len(pages) {
			return MergeResult{Status: MergeFailed},
				fmt.Errorf("read pages of %s: got %d artifacts, want %d", p, len(artifacts), len(pages))
		}
	}

	return m.write(ctx, p, artifacts)
}

// MergeStored merges every stored page artifact of p without checking for
// missing pages. A partition without stored pages yields ErrNoStoredPages
// and nothing is written.
func (m *MergeEngine) MergeStored(ctx context.Context, p Partition) (MergeResult, error) {
	artifacts, err := m.pages.ReadPages(ctx, p, nil)
	if err != nil {
		return MergeResult{Status: MergeFailed}, fmt.Errorf("read pages of %s: %w", p, err)
	}
	if len(artifacts) == 0 {
		m.logger.Warn().Str("partition", p.String()).Msg("Merge skipped, no stored pages")
		return MergeResult{Status: MergeSkipped}, fmt.Errorf("%w for %s", ErrNoStoredPages, p)
	}
	return m.write(ctx, p, artifacts)
}

func (m *MergeEngine) write(ctx context.Context, p Partition, artifacts []Artifact) (MergeResult, error) {
	merged := Merged{Partition: p, Records: MergeArtifacts(artifacts)}

	if err := m.merged.WriteMerged(ctx, merged); err != nil {
		return MergeResult{Status: MergeFailed}, fmt.Errorf("%w: merged %s: %w", ErrSinkWriteFailed, p, err)
	}

	mergedRecords.Add(float64(len(merged.Records)))
	m.logger.Info().
		Str("partition", p.String()).
		Int("pages", len(artifacts)).
		Int("records", len(merged.Records)).
		Msg("Partition merged")

	return MergeResult{Status: MergeCompleted, Merged: &merged}, nil
}

// MergeArtifacts concatenates artifacts in page order, drops duplicate ids
// and sorts by revenue descending.
func MergeArtifacts(artifacts []Artifact) []Record {
	ordered := slices.Clone(artifacts)
	slices.SortStableFunc(ordered, func(a, b Artifact) int {
		return cmp.Compare(a.Unit.Page, b.Unit.Page)
	})

	n := 0
	for _, a := range ordered {
		n += len(a.Records)
	}
	records := make([]Record, 0, n)
	for _, a := range ordered {
		records = append(records, a.Records...)
	}

	records = Dedupe(records)
	SortByRevenue(records)
	return records
}

// Dedupe keeps the first record of each id, preserving order.
func Dedupe(records []Record) []Record {
	seen := make(map[int64]struct{}, len(records))
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if _, ok := seen[r.ID]; ok {
			continue
		}
		seen[r.ID] = struct{}{}
		out = append(out, r)
	}
	return out
}

// SortByRevenue sorts in place by revenue descending. Ties keep their order.
func SortByRevenue(records []Record) {
	slices.SortStableFunc(records, func(a, b Record) int {
		return cmp.Compare(b.Financial.Revenue, a.Financial.Revenue)
	})
}
