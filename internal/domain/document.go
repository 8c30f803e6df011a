package domain

// Wire field names. The index mapping, the query translation and the result
// projection all use these verbatim.
const (
	FieldTitle       = "title"
	FieldOverview    = "overview"
	FieldReleaseDate = "release_date"
	FieldPopularity  = "popularity"
	FieldVoteAverage = "vote_average"
	FieldVoteCount   = "vote_count"
)

// Defaults applied by the normalizer when a field is absent or unusable.
const (
	UnknownTitle = "Unknown Title"
	EpochDate    = "1970-01-01"
	DateLayout   = "2006-01-02"
)

// DefaultIndexName is the index the original dataset is loaded into.
const DefaultIndexName = "imdb_movies"

// Document is the canonical indexed unit. Every Document that leaves the
// normalizer has all six fields populated; ReleaseDate is always a
// well-formed YYYY-MM-DD string.
type Document struct {
	ID          string  `json:"-"`
	Title       string  `json:"title"`
	Overview    string  `json:"overview"`
	ReleaseDate string  `json:"release_date"`
	Popularity  float64 `json:"popularity"`
	VoteAverage float64 `json:"vote_average"`
	VoteCount   int     `json:"vote_count"`
}

// Fields returns the document body as a field map keyed by wire name.
func (d Document) Fields() map[string]any {
	return map[string]any{
		FieldTitle:       d.Title,
		FieldOverview:    d.Overview,
		FieldReleaseDate: d.ReleaseDate,
		FieldPopularity:  d.Popularity,
		FieldVoteAverage: d.VoteAverage,
		FieldVoteCount:   d.VoteCount,
	}
}

// RawRecord is one dataset row: field name to raw, untyped value. Absent
// cells are either missing keys or nil.
type RawRecord map[string]any

// BulkItem pairs a document with its backend key.
type BulkItem struct {
	ID       string
	Document Document
}

// BulkItemResult is the backend's verdict on one BulkItem.
type BulkItemResult struct {
	ID     string
	Status int
	Error  string
}

// Failed reports whether the backend rejected the item.
func (r BulkItemResult) Failed() bool {
	return r.Error != "" || r.Status >= 300
}

// SearchResult is what a search returns for one hit: the six document fields
// and nothing else.
type SearchResult struct {
	Title       string  `json:"title"`
	Overview    string  `json:"overview"`
	ReleaseDate string  `json:"release_date"`
	Popularity  float64 `json:"popularity"`
	VoteAverage float64 `json:"vote_average"`
	VoteCount   int     `json:"vote_count"`
}
