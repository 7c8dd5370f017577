package harvest

import (
	"strings"

	"github.com/Sternrassler/catalog-harvester/pkg/catalog"
)

const (
	// NoOverview replaces an empty plot.
	NoOverview = "No info."
	// NoInfo replaces empty company fields.
	NoInfo = "no info"

	directorJob = "Director"
)

var overviewReplacer = strings.NewReplacer("\n", "", "\r", "", "\t", " ")

// NormalizeRecord builds a Record from the details and credits of one movie.
// credits may be nil.
func NormalizeRecord(d *catalog.MovieDetails, credits *catalog.Credits) Record {
	r := Record{
		ID:               d.ID,
		Title:            d.Title,
		OriginalTitle:    d.OriginalTitle,
		OriginalLanguage: d.OriginalLanguage,
		Overview:         cleanOverview(d.Overview),
		ReleaseDate:      d.ReleaseDate,
		Runtime:          d.Runtime,
		Directors:        []Credit{},
		Cast:             []Credit{},
		Genres:           make([]Genre, 0, len(d.Genres)),
		Countries:        make([]Country, 0, len(d.ProductionCountries)),
		Companies:        make([]Company, 0, len(d.ProductionCompanies)),
		Financial:        Financial{Budget: d.Budget, Revenue: d.Revenue},
	}

	if credits != nil {
		for _, c := range credits.Crew {
			if c.Job == directorJob {
				r.Directors = append(r.Directors, Credit{ID: c.ID, Name: c.Name})
			}
		}
		r.Cast = make([]Credit, 0, len(credits.Cast))
		for _, c := range credits.Cast {
			r.Cast = append(r.Cast, Credit{ID: c.ID, Name: c.Name})
		}
	}

	for _, g := range d.Genres {
		r.Genres = append(r.Genres, Genre{ID: g.ID, Name: g.Name})
	}
	for _, c := range d.ProductionCountries {
		r.Countries = append(r.Countries, Country{ISO: c.ISO3166_1, Name: c.Name})
	}
	for _, c := range d.ProductionCompanies {
		r.Companies = append(r.Companies, Company{
			ID:            c.ID,
			Name:          orNoInfo(c.Name),
			OriginCountry: orNoInfo(c.OriginCountry),
		})
	}

	return r
}

func cleanOverview(s string) string {
	if s == "" {
		return NoOverview
	}
	return overviewReplacer.Replace(s)
}

func orNoInfo(s string) string {
	if s == "" {
		return NoInfo
	}
	return s
}
