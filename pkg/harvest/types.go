package harvest

import (
	"fmt"
)

// Partition is one region × release-year slice of the catalog.
type Partition struct {
	Region string
	Year   int
}

func (p Partition) String() string {
	return fmt.Sprintf("%s/%d", p.Region, p.Year)
}

// FetchUnit is a single page of a partition.
type FetchUnit struct {
	Partition
	Page int
}

func (u FetchUnit) String() string {
	return fmt.Sprintf("%s#%d", u.Partition, u.Page)
}

// Credit is a person credited on a movie.
type Credit struct {
	ID   int64  `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// Genre is a catalog genre.
type Genre struct {
	ID   int64  `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// Country is a production country.
type Country struct {
	ISO  string `json:"iso_3166_1" yaml:"iso_3166_1"`
	Name string `json:"name" yaml:"name"`
}

// Company is a production company.
type Company struct {
	ID            int64  `json:"id" yaml:"id"`
	Name          string `json:"name" yaml:"name"`
	OriginCountry string `json:"origin_country" yaml:"origin_country"`
}

// Financial holds budget and revenue. Zero means unknown.
type Financial struct {
	Budget  int64 `json:"budget" yaml:"budget"`
	Revenue int64 `json:"revenue" yaml:"revenue"`
}

// Record is one normalized movie. Slices are never nil.
type Record struct {
	ID               int64
	Title            string
	OriginalTitle    string
	OriginalLanguage string
	Overview         string
	ReleaseDate      string
	Runtime          int
	Directors        []Credit
	Cast             []Credit
	Genres           []Genre
	Countries        []Country
	Companies        []Company
	Financial        Financial
}

// Artifact is the immutable result of one successful fetch unit.
type Artifact struct {
	Unit    FetchUnit
	Records []Record
}

// Outcome is what a fetch attempt produced. It succeeded iff Err is nil.
type Outcome struct {
	Unit     FetchUnit
	Artifact *Artifact
	Err      error
}

// Merged is the deduplicated, revenue-ordered dataset of a partition.
type Merged struct {
	Partition Partition
	Records   []Record
}

// PartitionState is owned by a single partition run.
type PartitionState struct {
	Partition     Partition
	ExpectedPages int
	Missing       *MissingPages
	Artifacts     []Artifact
}

// NewPartitionState creates the state for a partition with the enumerated
// page count.
func NewPartitionState(p Partition, expectedPages int) *PartitionState {
	return &PartitionState{
		Partition:     p,
		ExpectedPages: expectedPages,
		Missing:       NewMissingPages(),
	}
}
