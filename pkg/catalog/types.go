package catalog

// DiscoverQuery selects one page of the discover listing.
type DiscoverQuery struct {
	Region string
	Year   int
	Page   int
}

// DiscoverPage is one page of /discover/movie.
type DiscoverPage struct {
	Page         int            `json:"page"`
	TotalPages   int            `json:"total_pages"`
	TotalResults int            `json:"total_results"`
	Results      []MovieSummary `json:"results"`
}

// MovieSummary is the slim listing entry returned by discover.
type MovieSummary struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

// Genre is a catalog genre.
type Genre struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// ProductionCompany funds or produces a movie.
type ProductionCompany struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	OriginCountry string `json:"origin_country"`
}

// ProductionCountry is an ISO 3166-1 country credited on a movie.
type ProductionCountry struct {
	ISO3166_1 string `json:"iso_3166_1"`
	Name      string `json:"name"`
}

// MovieDetails is the body of /movie/{id}.
type MovieDetails struct {
	ID                  int64               `json:"id"`
	Title               string              `json:"title"`
	OriginalTitle       string              `json:"original_title"`
	OriginalLanguage    string              `json:"original_language"`
	Overview            string              `json:"overview"`
	ReleaseDate         string              `json:"release_date"`
	Runtime             int                 `json:"runtime"`
	Budget              int64               `json:"budget"`
	Revenue             int64               `json:"revenue"`
	Genres              []Genre             `json:"genres"`
	ProductionCompanies []ProductionCompany `json:"production_companies"`
	ProductionCountries []ProductionCountry `json:"production_countries"`
}

// CastMember is a billed performer.
type CastMember struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Order int    `json:"order"`
}

// CrewMember is an off-screen contributor.
type CrewMember struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Job        string `json:"job"`
	Department string `json:"department"`
}

// Credits is the body of /movie/{id}/credits.
type Credits struct {
	ID   int64        `json:"id"`
	Cast []CastMember `json:"cast"`
	Crew []CrewMember `json:"crew"`
}
