// Package store loads merged partitions into a normalized Postgres schema.
package store

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/Sternrassler/catalog-harvester/pkg/harvest"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultMaxOpenConns is the default maximum number of open connections
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections
	DefaultMaxIdleConns = 5
	// DefaultConnMaxLifetime is the default maximum connection lifetime
	DefaultConnMaxLifetime = 5 * time.Minute
	// DefaultPingTimeout is the default timeout for ping operations
	DefaultPingTimeout = 5 * time.Second
)

//go:embed schema.sql
var schemaSQL string

const (
	upsertMovie = `INSERT INTO movies (id, title, original_title, original_language, plot, release_date, runtime)
VALUES (:id, :title, :original_title, :original_language, :plot, :release_date, :runtime)
ON CONFLICT (id) DO UPDATE SET
    title = EXCLUDED.title,
    original_title = EXCLUDED.original_title,
    original_language = EXCLUDED.original_language,
    plot = EXCLUDED.plot,
    release_date = EXCLUDED.release_date,
    runtime = EXCLUDED.runtime,
    updated_at = now()`

	linkPartition = `INSERT INTO movie_partitions (movie_id, region, year) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`

	upsertGenre       = `INSERT INTO genres (id, name) VALUES ($1, $2) ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`
	upsertContributor = `INSERT INTO contributors (id, name) VALUES ($1, $2) ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`
	upsertCompany     = `INSERT INTO companies (id, name, origin_country) VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, origin_country = EXCLUDED.origin_country`
	upsertCountry = `INSERT INTO countries (iso, name) VALUES ($1, $2) ON CONFLICT (iso) DO UPDATE SET name = EXCLUDED.name`

	linkGenre    = `INSERT INTO movie_genres (movie_id, genre_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	linkDirector = `INSERT INTO movie_directors (movie_id, contributor_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	linkCast     = `INSERT INTO movie_cast (movie_id, billing_order, contributor_id) VALUES ($1, $2, $3)
ON CONFLICT (movie_id, billing_order) DO UPDATE SET contributor_id = EXCLUDED.contributor_id`
	linkCompany = `INSERT INTO movie_companies (movie_id, company_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	linkCountry = `INSERT INTO movie_countries (movie_id, country_iso) VALUES ($1, $2) ON CONFLICT DO NOTHING`

	upsertFinancials = `INSERT INTO movie_financials (movie_id, budget, revenue) VALUES ($1, $2, $3)
ON CONFLICT (movie_id) DO UPDATE SET budget = EXCLUDED.budget, revenue = EXCLUDED.revenue`
)

// clearLinks empties the per-movie join tables so a reload replaces them.
var clearLinks = []struct{ table, query string }{
	{"movie_genres", `DELETE FROM movie_genres WHERE movie_id = $1`},
	{"movie_directors", `DELETE FROM movie_directors WHERE movie_id = $1`},
	{"movie_cast", `DELETE FROM movie_cast WHERE movie_id = $1`},
	{"movie_companies", `DELETE FROM movie_companies WHERE movie_id = $1`},
	{"movie_countries", `DELETE FROM movie_countries WHERE movie_id = $1`},
}

type movieRow struct {
	ID               int64  `db:"id"`
	Title            string `db:"title"`
	OriginalTitle    string `db:"original_title"`
	OriginalLanguage string `db:"original_language"`
	Plot             string `db:"plot"`
	ReleaseDate      string `db:"release_date"`
	Runtime          int    `db:"runtime"`
}

// Store implements harvest.Publisher on Postgres.
type Store struct {
	db     *sqlx.DB
	logger zerolog.Logger
}

// Open connects to Postgres with the given DSN and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, DefaultPingTimeout)
	defer cancel()

	if pingErr := db.PingContext(pingCtx); pingErr != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", pingErr)
	}

	return New(db), nil
}

// New wraps an existing connection.
func New(db *sqlx.DB) *Store {
	return &Store{
		db:     db,
		logger: log.With().Str("component", "store").Logger(),
	}
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Name() string { return "store" }

// Publish upserts every record of m in one transaction. Any failure rolls the
// whole partition back.
func (s *Store) Publish(ctx context.Context, m harvest.Merged) error {
	start := time.Now()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %w", harvest.ErrSinkWriteFailed, err)
	}

	for _, r := range m.Records {
		if err := upsertRecord(ctx, tx, m.Partition, r); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.Error().Err(rbErr).Msg("Rollback failed")
			}
			return fmt.Errorf("%w: movie %d: %w", harvest.ErrSinkWriteFailed, r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", harvest.ErrSinkWriteFailed, err)
	}

	s.logger.Info().
		Str("partition", m.Partition.String()).
		Int("records", len(m.Records)).
		Dur("duration", time.Since(start)).
		Msg("Partition loaded")
	return nil
}

// MovieIDs returns the ids of the movies loaded for a partition in ascending
// order. A movie can belong to several partitions.
func (s *Store) MovieIDs(ctx context.Context, p harvest.Partition) ([]int64, error) {
	var ids []int64
	err := s.db.SelectContext(ctx, &ids,
		`SELECT movie_id FROM movie_partitions WHERE region = $1 AND year = $2 ORDER BY movie_id`, p.Region, p.Year)
	if err != nil {
		return nil, fmt.Errorf("select movie ids: %w", err)
	}
	return ids, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func upsertRecord(ctx context.Context, tx *sqlx.Tx, p harvest.Partition, r harvest.Record) error {
	row := movieRow{
		ID:               r.ID,
		Title:            r.Title,
		OriginalTitle:    r.OriginalTitle,
		OriginalLanguage: r.OriginalLanguage,
		Plot:             r.Overview,
		ReleaseDate:      r.ReleaseDate,
		Runtime:          r.Runtime,
	}
	if _, err := tx.NamedExecContext(ctx, upsertMovie, row); err != nil {
		return fmt.Errorf("upsert movie: %w", err)
	}
	if err := exec(ctx, tx, "movie partition", linkPartition, r.ID, p.Region, p.Year); err != nil {
		return err
	}
	for _, c := range clearLinks {
		if _, err := tx.ExecContext(ctx, c.query, r.ID); err != nil {
			return fmt.Errorf("clear %s: %w", c.table, err)
		}
	}

	for _, g := range r.Genres {
		if err := exec(ctx, tx, "genre", upsertGenre, g.ID, g.Name); err != nil {
			return err
		}
		if err := exec(ctx, tx, "movie genre", linkGenre, r.ID, g.ID); err != nil {
			return err
		}
	}

	for _, d := range r.Directors {
		if err := exec(ctx, tx, "director", upsertContributor, d.ID, d.Name); err != nil {
			return err
		}
		if err := exec(ctx, tx, "movie director", linkDirector, r.ID, d.ID); err != nil {
			return err
		}
	}

	for i, c := range r.Cast {
		if err := exec(ctx, tx, "cast member", upsertContributor, c.ID, c.Name); err != nil {
			return err
		}
		if err := exec(ctx, tx, "movie cast", linkCast, r.ID, i, c.ID); err != nil {
			return err
		}
	}

	for _, c := range r.Companies {
		if err := exec(ctx, tx, "company", upsertCompany, c.ID, c.Name, c.OriginCountry); err != nil {
			return err
		}
		if err := exec(ctx, tx, "movie company", linkCompany, r.ID, c.ID); err != nil {
			return err
		}
	}

	for _, c := range r.Countries {
		if err := exec(ctx, tx, "country", upsertCountry, c.ISO, c.Name); err != nil {
			return err
		}
		if err := exec(ctx, tx, "movie country", linkCountry, r.ID, c.ISO); err != nil {
			return err
		}
	}

	return exec(ctx, tx, "financials", upsertFinancials, r.ID, r.Financial.Budget, r.Financial.Revenue)
}

func exec(ctx context.Context, tx *sqlx.Tx, what, query string, args ...any) error {
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert %s: %w", what, err)
	}
	return nil
}
