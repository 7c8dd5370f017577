package harvest

import (
	"context"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ReconcileResult summarizes a reconciliation.
type ReconcileResult struct {
	Attempted    int
	Recovered    []int
	StillMissing []int
	Errors       map[int]error
}

// Reconciler re-attempts missing pages sequentially in ascending order.
type Reconciler struct {
	fetcher     UnitFetcher
	sink        PageSink
	passes      int
	unitTimeout time.Duration
	logger      zerolog.Logger
}

// NewReconciler creates a reconciler. passes <= 0 means a single pass.
func NewReconciler(f UnitFetcher, sink PageSink, passes int, unitTimeout time.Duration) *Reconciler {
	if passes <= 0 {
		passes = 1
	}
	return &Reconciler{
		fetcher:     f,
		sink:        sink,
		passes:      passes,
		unitTimeout: unitTimeout,
		logger:      log.With().Str("component", "harvest-reconciler").Logger(),
	}
}

// Reconcile works from a snapshot of state.Missing taken at the start of each
// pass. Pages are attempted at most once per pass. Missing never grows.
func (r *Reconciler) Reconcile(ctx context.Context, state *PartitionState) ReconcileResult {
	result := ReconcileResult{Errors: make(map[int]error)}

	for pass := 1; pass <= r.passes; pass++ {
		snapshot := state.Missing.Snapshot()
		if len(snapshot) == 0 {
			break
		}

		for _, page := range snapshot {
			if ctx.Err() != nil {
				break
			}
			unit := FetchUnit{Partition: state.Partition, Page: page}
			result.Attempted++

			artifact, err := persistUnit(ctx, r.fetcher, r.sink, unit, r.unitTimeout)
			if err != nil {
				result.Errors[page] = err
				r.logger.Warn().
					Err(err).
					Int("pass", pass).
					Str("unit", unit.String()).
					Msg("Page retry failed")
				continue
			}

			state.Missing.Remove(page)
			state.Artifacts = append(state.Artifacts, *artifact)
			delete(result.Errors, page)
			result.Recovered = append(result.Recovered, page)
			pagesTotal.WithLabelValues("recovered").Inc()
		}
	}

	slices.Sort(result.Recovered)
	result.StillMissing = state.Missing.Snapshot()
	pagesTotal.WithLabelValues("unrecovered").Add(float64(len(result.StillMissing)))

	r.logger.Info().
		Str("partition", state.Partition.String()).
		Int("attempted", result.Attempted).
		Int("recovered", len(result.Recovered)).
		Ints("still_missing", result.StillMissing).
		Msg("Reconciliation complete")

	return result
}
