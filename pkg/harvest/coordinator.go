package harvest

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultWorkers bounds in-flight fetches.
const DefaultWorkers = 8

// PassResult summarizes one coordinator pass.
type PassResult struct {
	Fetched []int
	Failed  map[int]error
}

type unitResult struct {
	page     int
	artifact *Artifact
	err      error
}

// Coordinator fans fetch units out to a worker pool and fans the artifacts
// back in. The in-flight bound is shared by every partition that uses the
// same Coordinator.
type Coordinator struct {
	fetcher     UnitFetcher
	sink        PageSink
	workers     int
	slots       chan struct{}
	unitTimeout time.Duration
	logger      zerolog.Logger
}

// NewCoordinator creates a coordinator with the given worker count.
func NewCoordinator(f UnitFetcher, sink PageSink, workers int, unitTimeout time.Duration) *Coordinator {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Coordinator{
		fetcher:     f,
		sink:        sink,
		workers:     workers,
		slots:       make(chan struct{}, workers),
		unitTimeout: unitTimeout,
		logger:      log.With().Str("component", "harvest-coordinator").Logger(),
	}
}

// Run attempts every page exactly once. Failed pages are added to
// state.Missing and successful artifacts are appended to state.Artifacts.
func (c *Coordinator) Run(ctx context.Context, state *PartitionState, pages []int) PassResult {
	result := PassResult{Failed: make(map[int]error)}
	if len(pages) == 0 {
		return result
	}

	start := time.Now()
	queue := make(chan int, len(pages))
	for _, p := range pages {
		queue <- p
	}
	close(queue)

	workers := min(c.workers, len(pages))
	results := make(chan unitResult, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go c.worker(ctx, state, queue, results, &wg, i)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	for r := range results {
		if r.err != nil {
			result.Failed[r.page] = r.err
			continue
		}
		state.Artifacts = append(state.Artifacts, *r.artifact)
		result.Fetched = append(result.Fetched, r.page)
	}
	slices.Sort(result.Fetched)

	c.logger.Info().
		Str("partition", state.Partition.String()).
		Int("fetched", len(result.Fetched)).
		Int("failed", len(result.Failed)).
		Dur("duration", time.Since(start)).
		Msg("Fetch pass complete")

	return result
}

func (c *Coordinator) worker(ctx context.Context, state *PartitionState, queue <-chan int, results chan<- unitResult, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	processed := 0

	for page := range queue {
		unit := FetchUnit{Partition: state.Partition, Page: page}

		artifact, err := c.attempt(ctx, unit)
		if err != nil {
			state.Missing.Add(page)
			pagesTotal.WithLabelValues("failed").Inc()
			c.logger.Warn().
				Err(err).
				Int("worker_id", workerID).
				Str("unit", unit.String()).
				Msg("Page fetch failed")
		} else {
			pagesTotal.WithLabelValues("fetched").Inc()
		}

		results <- unitResult{page: page, artifact: artifact, err: err}
		processed++
	}

	c.logger.Debug().
		Int("worker_id", workerID).
		Int("pages_processed", processed).
		Msg("Worker completed")
}

// attempt waits for a shared slot, then fetches and persists the unit. Units
// reached after cancellation fail with the context error without touching
// upstream.
func (c *Coordinator) attempt(ctx context.Context, unit FetchUnit) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, &PageError{Unit: unit, Err: err}
	}

	select {
	case c.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, &PageError{Unit: unit, Err: ctx.Err()}
	}
	inflightFetches.Inc()
	defer func() {
		inflightFetches.Dec()
		<-c.slots
	}()

	return persistUnit(ctx, c.fetcher, c.sink, unit, c.unitTimeout)
}
