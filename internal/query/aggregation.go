package query

import "review-metrics-service/internal/model"

// AuthorsPrecisionThreshold is the distinct count below which author
// cardinality estimates are expected to be close to exact.
const AuthorsPrecisionThreshold = 3000

// Cardinality estimates the number of distinct values of Field.
type Cardinality struct {
	Field              string
	PrecisionThreshold int
}

// DateHistogram buckets documents on Field at a fixed Interval ("3h", "1d").
// Empty buckets are not returned.
type DateHistogram struct {
	Field    string
	Interval string
}

// TermsAgg ranks the values of Field by descending document count.
type TermsAgg struct {
	Field string
	Size  int
}

// RangeSpec is one numeric bucket; From is inclusive, To is exclusive and a
// nil bound is open.
type RangeSpec struct {
	Key  string
	From *float64
	To   *float64
}

// Contains reports whether v falls into the bucket.
func (r RangeSpec) Contains(v float64) bool {
	if r.From != nil && v < *r.From {
		return false
	}
	if r.To != nil && v >= *r.To {
		return false
	}
	return true
}

// RangesAgg counts documents per numeric range of Field.
type RangesAgg struct {
	Field  string
	Ranges []RangeSpec
}

// Avg is the arithmetic mean of Field.
type Avg struct {
	Field string
}

const (
	day = 24 * 3600
)

func bound(v float64) *float64 { return &v }

// MergedDurationRanges splits merge durations (seconds) into at most one day,
// one to seven days, seven to thirty-one days and above. Durations are whole
// seconds so each upper bound is inclusive.
var MergedDurationRanges = []RangeSpec{
	{Key: "0-1d", From: bound(0), To: bound(day + 1)},
	{Key: "1d-7d", From: bound(day + 1), To: bound(7*day + 1)},
	{Key: "7d-31d", From: bound(7*day + 1), To: bound(31*day + 1)},
	{Key: "31d+", From: bound(31*day + 1)},
}

// AggregatableFields lists the keyword fields that can be ranked or counted.
var AggregatableFields = []string{
	model.FieldType,
	model.FieldRepositoryFullname,
	model.FieldRepositoryFullnameAndNumber,
	model.FieldAuthor,
	model.FieldOnAuthor,
	model.FieldApproval,
	model.FieldState,
}

// IsAggregatable reports whether field may be used in a terms or cardinality
// aggregation.
func IsAggregatable(field string) bool {
	for _, f := range AggregatableFields {
		if f == field {
			return true
		}
	}
	return false
}
