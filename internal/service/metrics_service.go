package service

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"review-metrics-service/internal/model"
	"review-metrics-service/internal/query"
	"review-metrics-service/internal/repository"
)

// MetricsService computes review metrics for a repository over an event
// index. Every method normalizes params first and never returns an error:
// backend failures are reported through the result status.
type MetricsService interface {
	CountEvents(ctx context.Context, index, repositoryFullname string, params model.Params) model.Result[int64]
	CountAuthors(ctx context.Context, index, repositoryFullname string, params model.Params) model.Result[int64]
	EventsHistogram(ctx context.Context, index, repositoryFullname string, params model.Params) model.Result[model.Histogram]

	TopTerms(ctx context.Context, index, repositoryFullname, field string, params model.Params) model.Result[model.TopTerms]
	EventsTopAuthors(ctx context.Context, index, repositoryFullname string, params model.Params) model.Result[model.TopTerms]
	ChangesTopApproval(ctx context.Context, index, repositoryFullname string, params model.Params) model.Result[model.TopTerms]
	ChangesTopCommented(ctx context.Context, index, repositoryFullname string, params model.Params) model.Result[model.TopTerms]
	ChangesTopReviewed(ctx context.Context, index, repositoryFullname string, params model.Params) model.Result[model.TopTerms]
	AuthorsTopReviewed(ctx context.Context, index, repositoryFullname string, params model.Params) model.Result[model.TopTerms]
	AuthorsTopCommented(ctx context.Context, index, repositoryFullname string, params model.Params) model.Result[model.TopTerms]

	PeersExchangeStrength(ctx context.Context, index, repositoryFullname string, params model.Params) model.Result[[]model.PeerStrength]
	ChangeMergedCountByDuration(ctx context.Context, index, repositoryFullname string, params model.Params) model.Result[[]model.RangeBucket]
	PRMergedAvgDuration(ctx context.Context, index, repositoryFullname string, params model.Params) model.Result[float64]
	ChangesEventsCounters(ctx context.Context, index, repositoryFullname string, params model.Params) model.Result[map[model.EventType]model.EventsCounter]
	ChangesClosedRatios(ctx context.Context, index, repositoryFullname string, params model.Params) model.Result[model.ClosedRatios]

	FirstCommentOnChanges(ctx context.Context, index, repositoryFullname string, params model.Params) model.Result[model.FirstEventStats]
	FirstReviewOnChanges(ctx context.Context, index, repositoryFullname string, params model.Params) model.Result[model.FirstEventStats]
}

// metricsService wires the metric recipes to an event repository.
type metricsService struct {
	repo   repository.EventRepository
	batch  BatchRunner
	logger *zap.Logger
}

// NewMetricsService constructs a MetricsService.
func NewMetricsService(repo repository.EventRepository, batch BatchRunner, logger *zap.Logger) MetricsService {
	return &metricsService{
		repo:   repo,
		batch:  batch,
		logger: logger.Named("metrics"),
	}
}

// call identifies one metric invocation in logs.
type call struct {
	metric string
	index  string
	repo   string
}

func failure[T any](s *metricsService, c call, err error) model.Result[T] {
	s.logger.Warn("backend failure",
		zap.String("metric", c.metric),
		zap.String("index", c.index),
		zap.String("repository", c.repo),
		zap.Error(err),
	)
	return model.Failure[T](err)
}

func (s *metricsService) CountEvents(ctx context.Context, index, repositoryFullname string, params model.Params) model.Result[int64] {
	c := call{MetricCountEvents, index, repositoryFullname}
	n, err := s.countEvents(ctx, index, repositoryFullname, model.Normalize(params))
	if err != nil {
		return failure[int64](s, c, err)
	}
	return model.OK(n)
}

func (s *metricsService) CountAuthors(ctx context.Context, index, repositoryFullname string, params model.Params) model.Result[int64] {
	c := call{MetricCountAuthors, index, repositoryFullname}
	n, err := s.countAuthors(ctx, index, repositoryFullname, model.Normalize(params))
	if err != nil {
		return failure[int64](s, c, err)
	}
	return model.OK(n)
}

func (s *metricsService) EventsHistogram(ctx context.Context, index, repositoryFullname string, params model.Params) model.Result[model.Histogram] {
	c := call{MetricEventsHisto, index, repositoryFullname}
	params = model.Normalize(params)

	hist, err := s.repo.DateHistogram(ctx, index, query.New(repositoryFullname, params, true),
		query.DateHistogram{Field: model.FieldCreatedAt, Interval: params.Interval})
	if err != nil {
		return failure[model.Histogram](s, c, err)
	}
	if len(hist.Buckets) == 0 {
		return model.Empty[model.Histogram]()
	}
	return model.OK(hist)
}

func (s *metricsService) TopTerms(ctx context.Context, index, repositoryFullname, field string, params model.Params) model.Result[model.TopTerms] {
	c := call{"top_" + field, index, repositoryFullname}
	if !query.IsAggregatable(field) {
		return failure[model.TopTerms](s, c, fmt.Errorf("%w: %s", repository.ErrUnsupportedField, field))
	}
	return s.topTerms(ctx, c, field, model.Normalize(params))
}

func (s *metricsService) EventsTopAuthors(ctx context.Context, index, repositoryFullname string, params model.Params) model.Result[model.TopTerms] {
	return s.topTerms(ctx, call{MetricEventsTopAuthors, index, repositoryFullname},
		model.FieldAuthor, model.Normalize(params))
}

func (s *metricsService) ChangesTopApproval(ctx context.Context, index, repositoryFullname string, params model.Params) model.Result[model.TopTerms] {
	return s.topTerms(ctx, call{MetricChangesTopApproval, index, repositoryFullname},
		model.FieldApproval, model.Normalize(params).WithEtype(model.ChangeReviewedEvent))
}

func (s *metricsService) ChangesTopCommented(ctx context.Context, index, repositoryFullname string, params model.Params) model.Result[model.TopTerms] {
	return s.topTerms(ctx, call{MetricChangesTopCommented, index, repositoryFullname},
		model.FieldRepositoryFullnameAndNumber, model.Normalize(params).WithEtype(model.ChangeCommentedEvent))
}

func (s *metricsService) ChangesTopReviewed(ctx context.Context, index, repositoryFullname string, params model.Params) model.Result[model.TopTerms] {
	return s.topTerms(ctx, call{MetricChangesTopReviewed, index, repositoryFullname},
		model.FieldRepositoryFullnameAndNumber, model.Normalize(params).WithEtype(model.ChangeReviewedEvent))
}

func (s *metricsService) AuthorsTopReviewed(ctx context.Context, index, repositoryFullname string, params model.Params) model.Result[model.TopTerms] {
	return s.topTerms(ctx, call{MetricAuthorsTopReviewed, index, repositoryFullname},
		model.FieldOnAuthor, model.Normalize(params).WithEtype(model.ChangeReviewedEvent))
}

func (s *metricsService) AuthorsTopCommented(ctx context.Context, index, repositoryFullname string, params model.Params) model.Result[model.TopTerms] {
	return s.topTerms(ctx, call{MetricAuthorsTopCommented, index, repositoryFullname},
		model.FieldOnAuthor, model.Normalize(params).WithEtype(model.ChangeCommentedEvent))
}

// topTerms ranks field values; the statistics cover the returned buckets
// only, not the long tail.
func (s *metricsService) topTerms(ctx context.Context, c call, field string, params model.Params) model.Result[model.TopTerms] {
	buckets, err := s.terms(ctx, c.index, c.repo, field, params)
	if err != nil {
		return failure[model.TopTerms](s, c, err)
	}
	if len(buckets) == 0 {
		return model.Empty[model.TopTerms]()
	}
	counts := bucketCounts(buckets)
	return model.OK(model.TopTerms{
		Buckets:     buckets,
		CountAvg:    mean(counts),
		CountMedian: median(counts),
	})
}

func (s *metricsService) ChangeMergedCountByDuration(ctx context.Context, index, repositoryFullname string, params model.Params) model.Result[[]model.RangeBucket] {
	c := call{MetricChangeMergedCountByDuration, index, repositoryFullname}

	buckets, err := s.repo.Ranges(ctx, index, mergedChangesFilter(repositoryFullname, params),
		query.RangesAgg{Field: model.FieldDuration, Ranges: query.MergedDurationRanges})
	if err != nil {
		return failure[[]model.RangeBucket](s, c, err)
	}
	return model.OK(buckets)
}

func (s *metricsService) PRMergedAvgDuration(ctx context.Context, index, repositoryFullname string, params model.Params) model.Result[float64] {
	c := call{MetricPRMergedAvgDuration, index, repositoryFullname}

	avg, err := s.repo.Avg(ctx, index, mergedChangesFilter(repositoryFullname, params),
		query.Avg{Field: model.FieldDuration})
	if err != nil {
		return failure[float64](s, c, err)
	}
	if avg == nil {
		return model.Empty[float64]()
	}
	return model.OK(*avg)
}

// mergedChangesFilter selects merged Change documents, which every other
// metric excludes.
func mergedChangesFilter(repositoryFullname string, params model.Params) query.Filter {
	params = model.Normalize(params).WithEtype(model.Change)
	params.State = model.ChangeStateMerged
	return query.New(repositoryFullname, params, false)
}

func (s *metricsService) ChangesEventsCounters(ctx context.Context, index, repositoryFullname string, params model.Params) model.Result[map[model.EventType]model.EventsCounter] {
	c := call{MetricChangesEventsCounters, index, repositoryFullname}
	params = model.Normalize(params)

	var mu sync.Mutex
	counters := make(map[model.EventType]model.EventsCounter, len(model.ActionEventTypes))
	requests := make([]Request, 0, 2*len(model.ActionEventTypes))
	for _, etype := range model.ActionEventTypes {
		p := params.WithEtype(etype)
		requests = append(requests,
			Request{
				Key: fmt.Sprintf("events_count[%s]", etype),
				Run: func(ctx context.Context) error {
					n, err := s.countEvents(ctx, index, repositoryFullname, p)
					if err != nil {
						return err
					}
					mu.Lock()
					defer mu.Unlock()
					counter := counters[etype]
					counter.EventsCount = n
					counters[etype] = counter
					return nil
				},
			},
			Request{
				Key: fmt.Sprintf("authors_count[%s]", etype),
				Run: func(ctx context.Context) error {
					n, err := s.countAuthors(ctx, index, repositoryFullname, p)
					if err != nil {
						return err
					}
					mu.Lock()
					defer mu.Unlock()
					counter := counters[etype]
					counter.AuthorsCount = n
					counters[etype] = counter
					return nil
				},
			},
		)
	}

	if err := s.batch.Run(ctx, requests); err != nil {
		return failure[map[model.EventType]model.EventsCounter](s, c, err)
	}
	return model.OK(counters)
}

func (s *metricsService) ChangesClosedRatios(ctx context.Context, index, repositoryFullname string, params model.Params) model.Result[model.ClosedRatios] {
	c := call{MetricChangesClosedRatios, index, repositoryFullname}
	params = model.Normalize(params)

	etypes := []model.EventType{model.ChangeCreatedEvent, model.ChangeMergedEvent, model.ChangeAbandonedEvent}
	counts, err := s.countByType(ctx, index, repositoryFullname, params, etypes)
	if err != nil {
		return failure[model.ClosedRatios](s, c, err)
	}

	created := counts[model.ChangeCreatedEvent]
	merged := counts[model.ChangeMergedEvent]
	abandoned := counts[model.ChangeAbandonedEvent]
	ratios := model.ClosedRatios{
		MergedCreated:    percentRatio(merged, created),
		AbandonedCreated: percentRatio(abandoned, created),
		AbandonedMerged:  percentRatio(abandoned, merged),
	}
	if ratios.MergedCreated == nil && ratios.AbandonedMerged == nil {
		return model.Empty[model.ClosedRatios]()
	}
	return model.OK(ratios)
}

func (s *metricsService) countByType(ctx context.Context, index, repositoryFullname string, params model.Params, etypes []model.EventType) (map[model.EventType]int64, error) {
	var mu sync.Mutex
	counts := make(map[model.EventType]int64, len(etypes))
	requests := make([]Request, 0, len(etypes))
	for _, etype := range etypes {
		p := params.WithEtype(etype)
		requests = append(requests, Request{
			Key: string(etype),
			Run: func(ctx context.Context) error {
				n, err := s.countEvents(ctx, index, repositoryFullname, p)
				if err != nil {
					return err
				}
				mu.Lock()
				counts[etype] = n
				mu.Unlock()
				return nil
			},
		})
	}
	if err := s.batch.Run(ctx, requests); err != nil {
		return nil, err
	}
	return counts, nil
}

func (s *metricsService) countEvents(ctx context.Context, index, repositoryFullname string, params model.Params) (int64, error) {
	return s.repo.Count(ctx, index, query.New(repositoryFullname, params, true))
}

func (s *metricsService) countAuthors(ctx context.Context, index, repositoryFullname string, params model.Params) (int64, error) {
	return s.repo.Cardinality(ctx, index, query.New(repositoryFullname, params, true), query.Cardinality{
		Field:              model.FieldAuthor,
		PrecisionThreshold: query.AuthorsPrecisionThreshold,
	})
}

func (s *metricsService) terms(ctx context.Context, index, repositoryFullname, field string, params model.Params) ([]model.TermBucket, error) {
	return s.repo.Terms(ctx, index, query.New(repositoryFullname, params, true), query.TermsAgg{
		Field: field,
		Size:  params.Size,
	})
}
