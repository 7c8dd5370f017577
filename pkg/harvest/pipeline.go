package harvest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Options configure a Pipeline.
type Options struct {
	// Workers bounds in-flight page fetches across all partitions.
	Workers int
	// PartitionConcurrency is how many partitions run at once.
	PartitionConcurrency int
	// UnitTimeout bounds one fetch unit. Zero means no limit.
	UnitTimeout time.Duration
	// ReconcilePasses is the number of retry passes over missing pages.
	ReconcilePasses int
	// MaxPages clamps the enumerated page count.
	MaxPages int
}

// DefaultOptions returns the harvest defaults.
func DefaultOptions() Options {
	return Options{
		Workers:              DefaultWorkers,
		PartitionConcurrency: 1,
		UnitTimeout:          2 * time.Minute,
		ReconcilePasses:      1,
		MaxPages:             DefaultMaxPages,
	}
}

// RunRequest selects the partitions of a run. Years are inclusive.
type RunRequest struct {
	Region    string
	YearStart int
	YearEnd   int
}

// Partitions expands the request in year order.
func (r RunRequest) Partitions() []Partition {
	if r.YearEnd < r.YearStart {
		return nil
	}
	out := make([]Partition, 0, r.YearEnd-r.YearStart+1)
	for y := r.YearStart; y <= r.YearEnd; y++ {
		out = append(out, Partition{Region: r.Region, Year: y})
	}
	return out
}

// Pipeline runs enumerate, fetch, reconcile, merge and publish for each
// partition.
type Pipeline struct {
	enumerator  *Enumerator
	fetcher     UnitFetcher
	pages       PageSink
	coordinator *Coordinator
	reconciler  *Reconciler
	merger      *MergeEngine
	publishers  []Publisher
	opts        Options
	logger      zerolog.Logger
}

// NewPipeline wires a pipeline on top of the catalog and sinks. Publishers
// run in order after each successful merge.
func NewPipeline(c Catalog, pages PageSink, merged MergedSink, opts Options, publishers ...Publisher) *Pipeline {
	return NewPipelineWithFetcher(c, NewFetcher(c), pages, merged, opts, publishers...)
}

// NewPipelineWithFetcher is NewPipeline with a custom unit fetcher.
func NewPipelineWithFetcher(c Catalog, f UnitFetcher, pages PageSink, merged MergedSink, opts Options, publishers ...Publisher) *Pipeline {
	if opts.PartitionConcurrency <= 0 {
		opts.PartitionConcurrency = 1
	}
	return &Pipeline{
		enumerator:  NewEnumerator(c, opts.MaxPages),
		fetcher:     f,
		pages:       pages,
		coordinator: NewCoordinator(f, pages, opts.Workers, opts.UnitTimeout),
		reconciler:  NewReconciler(f, pages, opts.ReconcilePasses, opts.UnitTimeout),
		merger:      NewMergeEngine(pages, merged),
		publishers:  publishers,
		opts:        opts,
		logger:      log.With().Str("component", "harvest-pipeline").Logger(),
	}
}

// Enumerator exposes the page enumerator for single-partition commands.
func (p *Pipeline) Enumerator() *Enumerator { return p.enumerator }

// Merger exposes the merge engine for operator merges.
func (p *Pipeline) Merger() *MergeEngine { return p.merger }

// Publishers returns the configured publishers.
func (p *Pipeline) Publishers() []Publisher { return p.publishers }

// Run processes every partition of req. Partition failures are reported, not
// returned. The error is non-nil only for an invalid request.
func (p *Pipeline) Run(ctx context.Context, req RunRequest) (*RunReport, error) {
	if req.Region == "" {
		return nil, fmt.Errorf("region is required")
	}
	partitions := req.Partitions()
	if len(partitions) == 0 {
		return nil, fmt.Errorf("invalid year range %d..%d", req.YearStart, req.YearEnd)
	}

	report := &RunReport{
		RunID:      uuid.NewString(),
		Region:     req.Region,
		YearStart:  req.YearStart,
		YearEnd:    req.YearEnd,
		StartedAt:  time.Now().UTC(),
		Partitions: make([]PartitionReport, len(partitions)),
	}

	logger := p.logger.With().Str("run_id", report.RunID).Logger()
	logger.Info().
		Str("region", req.Region).
		Int("year_start", req.YearStart).
		Int("year_end", req.YearEnd).
		Int("partition_concurrency", p.opts.PartitionConcurrency).
		Msg("Run started")

	sem := make(chan struct{}, p.opts.PartitionConcurrency)
	var wg sync.WaitGroup
	for i, part := range partitions {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, part Partition) {
			defer func() {
				<-sem
				wg.Done()
			}()
			report.Partitions[i] = p.RunPartition(ctx, part)
		}(i, part)
	}
	wg.Wait()

	report.FinishedAt = time.Now().UTC()
	return report, nil
}

// RunPartition runs one partition end to end.
func (p *Pipeline) RunPartition(ctx context.Context, part Partition) (rep PartitionReport) {
	start := time.Now()
	rep = PartitionReport{Partition: part.String(), Region: part.Region, Year: part.Year}
	defer func() {
		rep.Duration = time.Since(start)
		partitionDuration.Observe(rep.Duration.Seconds())
		partitionsTotal.WithLabelValues(string(rep.Status)).Inc()
	}()

	enum, err := p.enumerator.Enumerate(ctx, part)
	if err != nil {
		p.logger.Error().Err(err).Str("partition", part.String()).Msg("Partition enumeration failed")
		rep.Status = MergeFailed
		rep.Errors = append(rep.Errors, err.Error())
		return rep
	}
	rep.ExpectedPages = len(enum.Pages)
	rep.ReportedPages = enum.ReportedPages
	rep.Truncated = enum.Truncated
	rep.TotalResults = enum.TotalResults

	state := NewPartitionState(part, len(enum.Pages))
	pass := p.coordinator.Run(ctx, state, enum.Pages)
	rep.PagesFetched = len(pass.Fetched)

	if !state.Missing.IsEmpty() {
		rec := p.reconciler.Reconcile(ctx, state)
		rep.PagesRecovered = rec.Recovered
		for _, page := range rec.StillMissing {
			if err, ok := rec.Errors[page]; ok {
				rep.Errors = append(rep.Errors, fmt.Sprintf("page %d: %v", page, err))
			} else if err, ok := pass.Failed[page]; ok {
				rep.Errors = append(rep.Errors, fmt.Sprintf("page %d: %v", page, err))
			}
		}
	}
	rep.PagesMissing = state.Missing.Snapshot()

	res, err := p.merger.Merge(ctx, state)
	rep.Status = res.Status
	if err != nil {
		p.logger.Error().Err(err).Str("partition", part.String()).Msg("Partition merge failed")
		rep.Errors = append(rep.Errors, err.Error())
		return rep
	}
	if res.Status != MergeCompleted {
		return rep
	}

	rep.Records = len(res.Merged.Records)
	rep.Published = p.Publish(ctx, *res.Merged)
	for _, pr := range rep.Published {
		if !pr.OK {
			rep.Errors = append(rep.Errors, fmt.Sprintf("publish %s: %s", pr.Publisher, pr.Error))
		}
	}
	return rep
}

// FetchPage fetches and stores a single page outside of a partition run.
func (p *Pipeline) FetchPage(ctx context.Context, u FetchUnit) (*Artifact, error) {
	return persistUnit(ctx, p.fetcher, p.pages, u, p.opts.UnitTimeout)
}

// Publish hands m to every publisher in order. A failing publisher does not
// stop the ones after it.
func (p *Pipeline) Publish(ctx context.Context, m Merged) []PublishResult {
	results := make([]PublishResult, 0, len(p.publishers))
	for _, pub := range p.publishers {
		res := PublishResult{Publisher: pub.Name(), OK: true}
		if err := pub.Publish(ctx, m); err != nil {
			res.OK = false
			res.Error = err.Error()
			publishTotal.WithLabelValues(pub.Name(), "error").Inc()
			p.logger.Error().
				Err(err).
				Str("publisher", pub.Name()).
				Str("partition", m.Partition.String()).
				Msg("Publish failed")
		} else {
			publishTotal.WithLabelValues(pub.Name(), "ok").Inc()
		}
		results = append(results, res)
	}
	return results
}
