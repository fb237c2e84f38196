package model

// HistogramBucket is one time bucket of a date histogram. Key is the bucket
// start in epoch milliseconds.
type HistogramBucket struct {
	Key      int64  `json:"key"`
	KeyAsISO string `json:"key_as_string"`
	DocCount int64  `json:"doc_count"`
}

// Histogram holds the non-empty buckets of a date histogram and the mean
// document count over those buckets.
type Histogram struct {
	Buckets  []HistogramBucket `json:"buckets"`
	AvgCount float64           `json:"avg_count"`
}

// TermBucket is one entry of a term frequency ranking.
type TermBucket struct {
	Key      string `json:"key"`
	DocCount int64  `json:"doc_count"`
}

// TopTerms is a top-N ranking with statistics over the returned buckets only.
type TopTerms struct {
	Buckets     []TermBucket `json:"buckets"`
	CountAvg    float64      `json:"count_avg"`
	CountMedian float64      `json:"count_median"`
}

// RangeBucket counts documents whose value falls in [From, To).
type RangeBucket struct {
	Key      string   `json:"key"`
	From     *float64 `json:"from,omitempty"`
	To       *float64 `json:"to,omitempty"`
	DocCount int64    `json:"doc_count"`
}

// PeerStrength is an undirected collaboration edge. Peers is sorted.
type PeerStrength struct {
	Peers    [2]string `json:"peers"`
	Strength int64     `json:"strength"`
}

// EventsCounter is the activity of one event type.
type EventsCounter struct {
	EventsCount  int64 `json:"events_count"`
	AuthorsCount int64 `json:"authors_count"`
}

// ClosedRatios are percentages rounded to one decimal. A nil ratio has a
// zero denominator.
type ClosedRatios struct {
	MergedCreated    *float64 `json:"merged/created_ratio"`
	AbandonedCreated *float64 `json:"abandoned/created_ratio"`
	AbandonedMerged  *float64 `json:"abandoned/merged_ratio"`
}

// AuthorCount credits an author with a number of occurrences.
type AuthorCount struct {
	Author string `json:"author"`
	Count  int64  `json:"count"`
}

// FirstEventStats describes how fast changes receive their first comment or
// review.
type FirstEventStats struct {
	ChangesCount int           `json:"changes_count"`
	AvgDelay     int64         `json:"first_event_delay_avg"`
	TopAuthors   []AuthorCount `json:"top_authors"`
}
