package storage

import (
	"bytes"
	"fmt"

	"github.com/Sternrassler/catalog-harvester/pkg/harvest"
	"github.com/parquet-go/parquet-go"
)

type creditRow struct {
	ID   int64  `parquet:"id"`
	Name string `parquet:"name"`
}

type genreRow struct {
	ID   int64  `parquet:"id"`
	Name string `parquet:"name"`
}

type countryRow struct {
	ISO  string `parquet:"iso_3166_1"`
	Name string `parquet:"name"`
}

type companyRow struct {
	ID            int64  `parquet:"id"`
	Name          string `parquet:"name"`
	OriginCountry string `parquet:"origin_country"`
}

// recordRow is the parquet schema of a harvested movie.
type recordRow struct {
	ID               int64        `parquet:"id"`
	Title            string       `parquet:"title"`
	OriginalTitle    string       `parquet:"original_title"`
	OriginalLanguage string       `parquet:"original_language"`
	Plot             string       `parquet:"plot"`
	ReleaseDate      string       `parquet:"release_date"`
	Runtime          int32        `parquet:"runtime"`
	Directors        []creditRow  `parquet:"directors,list"`
	Cast             []creditRow  `parquet:"cast,list"`
	Genres           []genreRow   `parquet:"genres,list"`
	Countries        []countryRow `parquet:"production_countries,list"`
	Companies        []companyRow `parquet:"production_companies,list"`
	Budget           int64        `parquet:"budget"`
	Revenue          int64        `parquet:"revenue"`
}

// EncodeRecords writes records as a zstd-compressed parquet file. The same
// records always produce the same bytes.
func EncodeRecords(records []harvest.Record) ([]byte, error) {
	rows := make([]recordRow, len(records))
	for i, r := range records {
		rows[i] = toRow(r)
	}

	var buf bytes.Buffer
	if err := parquet.Write(&buf, rows, parquet.Compression(&parquet.Zstd)); err != nil {
		return nil, fmt.Errorf("encode parquet: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeRecords reads a parquet file written by EncodeRecords.
func DecodeRecords(data []byte) ([]harvest.Record, error) {
	rows, err := parquet.Read[recordRow](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("decode parquet: %w", err)
	}

	records := make([]harvest.Record, len(rows))
	for i, row := range rows {
		records[i] = fromRow(row)
	}
	return records, nil
}

func toRow(r harvest.Record) recordRow {
	row := recordRow{
		ID:               r.ID,
		Title:            r.Title,
		OriginalTitle:    r.OriginalTitle,
		OriginalLanguage: r.OriginalLanguage,
		Plot:             r.Overview,
		ReleaseDate:      r.ReleaseDate,
		Runtime:          int32(r.Runtime),
		Directors:        make([]creditRow, len(r.Directors)),
		Cast:             make([]creditRow, len(r.Cast)),
		Genres:           make([]genreRow, len(r.Genres)),
		Countries:        make([]countryRow, len(r.Countries)),
		Companies:        make([]companyRow, len(r.Companies)),
		Budget:           r.Financial.Budget,
		Revenue:          r.Financial.Revenue,
	}
	for i, c := range r.Directors {
		row.Directors[i] = creditRow(c)
	}
	for i, c := range r.Cast {
		row.Cast[i] = creditRow(c)
	}
	for i, g := range r.Genres {
		row.Genres[i] = genreRow(g)
	}
	for i, c := range r.Countries {
		row.Countries[i] = countryRow(c)
	}
	for i, c := range r.Companies {
		row.Companies[i] = companyRow(c)
	}
	return row
}

func fromRow(row recordRow) harvest.Record {
	r := harvest.Record{
		ID:               row.ID,
		Title:            row.Title,
		OriginalTitle:    row.OriginalTitle,
		OriginalLanguage: row.OriginalLanguage,
		Overview:         row.Plot,
		ReleaseDate:      row.ReleaseDate,
		Runtime:          int(row.Runtime),
		Directors:        make([]harvest.Credit, len(row.Directors)),
		Cast:             make([]harvest.Credit, len(row.Cast)),
		Genres:           make([]harvest.Genre, len(row.Genres)),
		Countries:        make([]harvest.Country, len(row.Countries)),
		Companies:        make([]harvest.Company, len(row.Companies)),
		Financial:        harvest.Financial{Budget: row.Budget, Revenue: row.Revenue},
	}
	for i, c := range row.Directors {
		r.Directors[i] = harvest.Credit(c)
	}
	for i, c := range row.Cast {
		r.Cast[i] = harvest.Credit(c)
	}
	for i, g := range row.Genres {
		r.Genres[i] = harvest.Genre(g)
	}
	for i, c := range row.Countries {
		r.Countries[i] = harvest.Country(c)
	}
	for i, c := range row.Companies {
		r.Companies[i] = harvest.Company(c)
	}
	return r
}
