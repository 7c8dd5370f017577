package harvest

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/catalog-harvester/pkg/catalog"
)

// UnitFetcher turns a fetch unit into an outcome. Implementations must not
// panic past Fetch and must report failures through Outcome.Err.
type UnitFetcher interface {
	Fetch(ctx context.Context, u FetchUnit) Outcome
}

// Fetcher fetches one discover page and resolves details and credits for
// every listed movie.
type Fetcher struct {
	catalog Catalog
}

func NewFetcher(c Catalog) *Fetcher {
	return &Fetcher{catalog: c}
}

// Fetch builds the artifact for u. Any failure, including a panic in the
// catalog layer, becomes a *PageError.
func (f *Fetcher) Fetch(ctx context.Context, u FetchUnit) (out Outcome) {
	out.Unit = u
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{Unit: u, Err: &PageError{Unit: u, Err: fmt.Errorf("panic: %v", r)}}
		}
	}()

	records, err := f.collect(ctx, u)
	if err != nil {
		out.Err = &PageError{Unit: u, Err: err}
		return out
	}

	out.Artifact = &Artifact{Unit: u, Records: records}
	return out
}

func (f *Fetcher) collect(ctx context.Context, u FetchUnit) ([]Record, error) {
	page, err := f.catalog.Discover(ctx, catalog.DiscoverQuery{Region: u.Region, Year: u.Year, Page: u.Page})
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(page.Results))
	for _, summary := range page.Results {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		details, err := f.catalog.MovieDetails(ctx, summary.ID)
		if err != nil {
			return nil, err
		}
		credits, err := f.catalog.MovieCredits(ctx, summary.ID)
		if err != nil {
			return nil, err
		}
		records = append(records, NormalizeRecord(details, credits))
	}
	return records, nil
}

// persistUnit fetches u and writes its artifact. A write failure counts as a
// failed unit because the artifact is not durable.
func persistUnit(ctx context.Context, f UnitFetcher, sink PageSink, u FetchUnit, timeout time.Duration) (*Artifact, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	outcome := f.Fetch(ctx, u)
	if outcome.Err != nil {
		return nil, outcome.Err
	}
	if outcome.Artifact == nil {
		return nil, &PageError{Unit: u, Err: fmt.Errorf("empty outcome")}
	}

	if err := sink.WritePage(ctx, *outcome.Artifact); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSinkWriteFailed, u, err)
	}
	return outcome.Artifact, nil
}
