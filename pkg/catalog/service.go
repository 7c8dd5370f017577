// Package catalog maps the movie catalog endpoints used by the harvester
// (discover, details, credits) onto typed Go values.
package catalog

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultMinRuntime excludes shorts from discover listings.
const DefaultMinRuntime = 40

// JSONGetter performs a GET relative to the catalog base URL and decodes the
// JSON response. *client.Client satisfies it.
type JSONGetter interface {
	GetJSON(ctx context.Context, endpoint string, query url.Values, out any) error
}

// Options tune the discover filter and the lookup memo.
type Options struct {
	IncludeAdult         bool
	MinRuntime           int
	CertificationCountry string
	CertificationLTE     string
	Language             string

	// MemoSize bounds the in-process details and credits memo. Zero disables it.
	MemoSize int
}

// DefaultOptions mirrors the discover filter used for harvesting.
func DefaultOptions() Options {
	return Options{
		MinRuntime: DefaultMinRuntime,
		MemoSize:   4096,
	}
}

// Service issues catalog API calls.
type Service struct {
	getter  JSONGetter
	opts    Options
	details *lru.Cache[int64, *MovieDetails]
	credits *lru.Cache[int64, *Credits]
	logger  zerolog.Logger
}

// New creates a catalog service on top of getter.
func New(getter JSONGetter, opts Options) (*Service, error) {
	if getter == nil {
		return nil, fmt.Errorf("catalog getter is required")
	}

	s := &Service{
		getter: getter,
		opts:   opts,
		logger: log.With().Str("component", "catalog").Logger(),
	}

	if opts.MemoSize > 0 {
		var err error
		if s.details, err = lru.New[int64, *MovieDetails](opts.MemoSize); err != nil {
			return nil, fmt.Errorf("create details memo: %w", err)
		}
		if s.credits, err = lru.New[int64, *Credits](opts.MemoSize); err != nil {
			return nil, fmt.Errorf("create credits memo: %w", err)
		}
	}

	return s, nil
}

// Discover fetches one page of /discover/movie for a region and release year.
func (s *Service) Discover(ctx context.Context, q DiscoverQuery) (*DiscoverPage, error) {
	if q.Page <= 0 {
		q.Page = 1
	}

	var page DiscoverPage
	if err := s.getter.GetJSON(ctx, "/discover/movie", s.discoverParams(q), &page); err != nil {
		return nil, fmt.Errorf("discover %s/%d page %d: %w", q.Region, q.Year, q.Page, err)
	}
	return &page, nil
}

func (s *Service) discoverParams(q DiscoverQuery) url.Values {
	v := url.Values{}
	v.Set("region", q.Region)
	v.Set("primary_release_year", strconv.Itoa(q.Year))
	v.Set("page", strconv.Itoa(q.Page))
	v.Set("include_adult", strconv.FormatBool(s.opts.IncludeAdult))
	if s.opts.MinRuntime > 0 {
		v.Set("with_runtime.gte", strconv.Itoa(s.opts.MinRuntime))
	}
	if s.opts.CertificationCountry != "" && s.opts.CertificationLTE != "" {
		v.Set("certification_country", s.opts.CertificationCountry)
		v.Set("certification.lte", s.opts.CertificationLTE)
	}
	if s.opts.Language != "" {
		v.Set("language", s.opts.Language)
	}
	return v
}

// MovieDetails fetches /movie/{id}.
func (s *Service) MovieDetails(ctx context.Context, id int64) (*MovieDetails, error) {
	if s.details != nil {
		if d, ok := s.details.Get(id); ok {
			s.logger.Debug().Int64("movie_id", id).Msg("Details memo hit")
			return d, nil
		}
	}

	var d MovieDetails
	if err := s.getter.GetJSON(ctx, "/movie/"+strconv.FormatInt(id, 10), s.languageParams(), &d); err != nil {
		return nil, fmt.Errorf("movie %d details: %w", id, err)
	}

	if s.details != nil {
		s.details.Add(id, &d)
	}
	return &d, nil
}

// MovieCredits fetches /movie/{id}/credits.
func (s *Service) MovieCredits(ctx context.Context, id int64) (*Credits, error) {
	if s.credits != nil {
		if c, ok := s.credits.Get(id); ok {
			s.logger.Debug().Int64("movie_id", id).Msg("Credits memo hit")
			return c, nil
		}
	}

	var c Credits
	if err := s.getter.GetJSON(ctx, "/movie/"+strconv.FormatInt(id, 10)+"/credits", s.languageParams(), &c); err != nil {
		return nil, fmt.Errorf("movie %d credits: %w", id, err)
	}

	if s.credits != nil {
		s.credits.Add(id, &c)
	}
	return &c, nil
}

func (s *Service) languageParams() url.Values {
	if s.opts.Language == "" {
		return nil
	}
	return url.Values{"language": {s.opts.Language}}
}
