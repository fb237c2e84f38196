package repository

import (
	"context"
	"errors"
	"iter"
	"time"

	"review-metrics-service/internal/model"
	"review-metrics-service/internal/query"
)

var (
	// ErrUnknownIndex is returned when the requested index does not exist or
	// is not a valid identifier for the backend.
	ErrUnknownIndex = errors.New("unknown index")

	// ErrUnsupportedField is returned when an aggregation targets a field the
	// backend cannot aggregate on.
	ErrUnsupportedField = errors.New("unsupported field")
)

// DateLayout is the textual form of histogram bucket keys.
const DateLayout = "2006-01-02T15:04:05.000Z"

// EventRepository is the event store contract the metric functions are
// computed against.
type EventRepository interface {
	// Count returns the number of documents matching filter.
	Count(ctx context.Context, index string, filter query.Filter) (int64, error)

	// Cardinality estimates the number of distinct values of a field.
	Cardinality(ctx context.Context, index string, filter query.Filter, agg query.Cardinality) (int64, error)

	// DateHistogram returns the non-empty time buckets in ascending order and
	// their mean document count.
	DateHistogram(ctx context.Context, index string, filter query.Filter, agg query.DateHistogram) (model.Histogram, error)

	// Terms returns at most agg.Size buckets by descending count, ties broken
	// by key.
	Terms(ctx context.Context, index string, filter query.Filter, agg query.TermsAgg) ([]model.TermBucket, error)

	// Ranges returns one bucket per requested range, in request order.
	Ranges(ctx context.Context, index string, filter query.Filter, agg query.RangesAgg) ([]model.RangeBucket, error)

	// Avg returns the mean of a numeric field, or nil when nothing matched.
	Avg(ctx context.Context, index string, filter query.Filter, agg query.Avg) (*float64, error)

	// Scan lazily yields every matching document with at least the requested
	// fields set. Stopping the iteration releases the backend cursor.
	Scan(ctx context.Context, index string, filter query.Filter, fields []string) iter.Seq2[model.Event, error]
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func rangeBucket(spec query.RangeSpec, count int64) model.RangeBucket {
	return model.RangeBucket{Key: spec.Key, From: spec.From, To: spec.To, DocCount: count}
}

func histogramAverage(buckets []model.HistogramBucket) float64 {
	if len(buckets) == 0 {
		return 0
	}
	var total int64
	for _, b := range buckets {
		total += b.DocCount
	}
	return float64(total) / float64(len(buckets))
}

func bucketKeyString(key int64) string {
	return time.UnixMilli(key).UTC().Format(DateLayout)
}
