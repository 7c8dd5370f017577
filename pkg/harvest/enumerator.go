package harvest

import (
	"context"
	"fmt"

	"github.com/Sternrassler/catalog-harvester/pkg/catalog"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultMaxPages is the highest page the discover endpoint serves.
const DefaultMaxPages = 500

// Catalog is the remote catalog API. *catalog.Service satisfies it.
type Catalog interface {
	Discover(ctx context.Context, q catalog.DiscoverQuery) (*catalog.DiscoverPage, error)
	MovieDetails(ctx context.Context, id int64) (*catalog.MovieDetails, error)
	MovieCredits(ctx context.Context, id int64) (*catalog.Credits, error)
}

// Enumeration is the page snapshot of a partition. ReportedPages is the
// upstream total_pages before clamping; Truncated is set when it exceeded the
// page limit.
type Enumeration struct {
	Pages         []int
	TotalResults  int
	ReportedPages int
	Truncated     bool
}

// Enumerator discovers how many pages a partition has.
type Enumerator struct {
	catalog  Catalog
	maxPages int
	logger   zerolog.Logger
}

// NewEnumerator creates an enumerator. maxPages <= 0 uses DefaultMaxPages.
func NewEnumerator(c Catalog, maxPages int) *Enumerator {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	return &Enumerator{
		catalog:  c,
		maxPages: maxPages,
		logger:   log.With().Str("component", "harvest-enumerator").Logger(),
	}
}

// Enumerate probes page 1 and returns pages 1..total_pages. A failed probe
// yields ErrUpstreamUnavailable.
func (e *Enumerator) Enumerate(ctx context.Context, p Partition) (Enumeration, error) {
	first, err := e.catalog.Discover(ctx, catalog.DiscoverQuery{Region: p.Region, Year: p.Year, Page: 1})
	if err != nil {
		return Enumeration{}, fmt.Errorf("%w: enumerate %s: %w", ErrUpstreamUnavailable, p, err)
	}

	total := max(first.TotalPages, 0)
	reported := total
	if total > e.maxPages {
		e.logger.Warn().
			Str("partition", p.String()).
			Int("total_pages", total).
			Int("max_pages", e.maxPages).
			Msg("Page count clamped")
		total = e.maxPages
	}

	pages := make([]int, total)
	for i := range pages {
		pages[i] = i + 1
	}

	e.logger.Info().
		Str("partition", p.String()).
		Int("pages", total).
		Int("total_results", first.TotalResults).
		Msg("Partition enumerated")

	return Enumeration{
		Pages:         pages,
		TotalResults:  first.TotalResults,
		ReportedPages: reported,
		Truncated:     reported > total,
	}, nil
}
