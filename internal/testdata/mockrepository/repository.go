package mockrepository

import (
	"context"
	"iter"

	"review-metrics-service/internal/model"
	"review-metrics-service/internal/query"
	"review-metrics-service/internal/repository"

	"github.com/stretchr/testify/mock"
)

type Repository struct {
	mock.Mock
}

// Interface compliance check
var _ repository.EventRepository = &Repository{}

func (m *Repository) Count(ctx context.Context, index string, filter query.Filter) (int64, error) {
	args := m.Called(ctx, index, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *Repository) Cardinality(ctx context.Context, index string, filter query.Filter, agg query.Cardinality) (int64, error) {
	args := m.Called(ctx, index, filter, agg)
	return args.Get(0).(int64), args.Error(1)
}

func (m *Repository) DateHistogram(ctx context.Context, index string, filter query.Filter, agg query.DateHistogram) (model.Histogram, error) {
	args := m.Called(ctx, index, filter, agg)
	return args.Get(0).(model.Histogram), args.Error(1)
}

func (m *Repository) Terms(ctx context.Context, index string, filter query.Filter, agg query.TermsAgg) ([]model.TermBucket, error) {
	args := m.Called(ctx, index, filter, agg)
	if v := args.Get(0); v != nil {
		return v.([]model.TermBucket), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Repository) Ranges(ctx context.Context, index string, filter query.Filter, agg query.RangesAgg) ([]model.RangeBucket, error) {
	args := m.Called(ctx, index, filter, agg)
	if v := args.Get(0); v != nil {
		return v.([]model.RangeBucket), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Repository) Avg(ctx context.Context, index string, filter query.Filter, agg query.Avg) (*float64, error) {
	args := m.Called(ctx, index, filter, agg)
	if v := args.Get(0); v != nil {
		return v.(*float64), args.Error(1)
	}
	return nil, args.Error(1)
}

// Scan returns the sequence configured on the mock; tests usually build it
// with Events or Failing.
func (m *Repository) Scan(ctx context.Context, index string, filter query.Filter, fields []string) iter.Seq2[model.Event, error] {
	args := m.Called(ctx, index, filter, fields)
	return args.Get(0).(iter.Seq2[model.Event, error])
}

// Events yields the given documents.
func Events(events ...model.Event) iter.Seq2[model.Event, error] {
	return func(yield func(model.Event, error) bool) {
		for _, e := range events {
			if !yield(e, nil) {
				return
			}
		}
	}
}

// Failing yields err once.
func Failing(err error) iter.Seq2[model.Event, error] {
	return func(yield func(model.Event, error) bool) {
		yield(model.Event{}, err)
	}
}
