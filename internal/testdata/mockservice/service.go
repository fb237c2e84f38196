package mockservice

import (
	"context"

	"review-metrics-service/internal/model"
	"review-metrics-service/internal/service"

	"github.com/stretchr/testify/mock"
)

type Service struct {
	mock.Mock
}

var _ service.MetricsService = &Service{}

func (m *Service) TopTerms(ctx context.Context, index, repositoryFullname, field string, params model.Params) model.Result[model.TopTerms] {
	args := m.Called(ctx, index, repositoryFullname, field, params)
	return args.Get(0).(model.Result[model.TopTerms])
}

func (m *Service) CountEvents(ctx context.Context, index, repositoryFullname string, params model.Params) model.Result[int64] {
	args := m.Called(ctx, index, repositoryFullname, params)
	return args.Get(0).(model.Result[int64])
}

func (m *Service) CountAuthors(ctx context.Context, index, repositoryFullname string, params model.Params) model.Result[int64] {
	args := m.Called(ctx, index, repositoryFullname, params)
	return args.Get(0).(model.Result[int64])
}

func (m *Service) EventsHistogram(ctx context.Context, index, repositoryFullname string, params model.Params) model.Result[model.Histogram] {
	args := m.Called(ctx, index, repositoryFullname, params)
	return args.Get(0).(model.Result[model.Histogram])
}

func (m *Service) EventsTopAuthors(ctx context.Context, index, repositoryFullname string, params model.Params) model.Result[model.TopTerms] {
	args := m.Called(ctx, index, repositoryFullname, params)
	return args.Get(0).(model.Result[model.TopTerms])
}

func (m *Service) ChangesTopApproval(ctx context.Context, index, repositoryFullname string, params model.Params) model.Result[model.TopTerms] {
	args := m.Called(ctx, index, repositoryFullname, params)
	return args.Get(0).(model.Result[model.TopTerms])
}

func (m *Service) ChangesTopCommented(ctx context.Context, index, repositoryFullname string, params model.Params) model.Result[model.TopTerms] {
	args := m.Called(ctx, index, repositoryFullname, params)
	return args.Get(0).(model.Result[model.TopTerms])
}

func (m *Service) ChangesTopReviewed(ctx context.Context, index, repositoryFullname string, params model.Params) model.Result[model.TopTerms] {
	args := m.Called(ctx, index, repositoryFullname, params)
	return args.Get(0).(model.Result[model.TopTerms])
}

func (m *Service) AuthorsTopReviewed(ctx context.Context, index, repositoryFullname string, params model.Params) model.Result[model.TopTerms] {
	args := m.Called(ctx, index, repositoryFullname, params)
	return args.Get(0).(model.Result[model.TopTerms])
}

func (m *Service) AuthorsTopCommented(ctx context.Context, index, repositoryFullname string, params model.Params) model.Result[model.TopTerms] {
	args := m.Called(ctx, index, repositoryFullname, params)
	return args.Get(0).(model.Result[model.TopTerms])
}

func (m *Service) PeersExchangeStrength(ctx context.Context, index, repositoryFullname string, params model.Params) model.Result[[]model.PeerStrength] {
	args := m.Called(ctx, index, repositoryFullname, params)
	return args.Get(0).(model.Result[[]model.PeerStrength])
}

func (m *Service) ChangeMergedCountByDuration(ctx context.Context, index, repositoryFullname string, params model.Params) model.Result[[]model.RangeBucket] {
	args := m.Called(ctx, index, repositoryFullname, params)
	return args.Get(0).(model.Result[[]model.RangeBucket])
}

func (m *Service) PRMergedAvgDuration(ctx context.Context, index, repositoryFullname string, params model.Params) model.Result[float64] {
	args := m.Called(ctx, index, repositoryFullname, params)
	return args.Get(0).(model.Result[float64])
}

func (m *Service) ChangesEventsCounters(ctx context.Context, index, repositoryFullname string, params model.Params) model.Result[map[model.EventType]model.EventsCounter] {
	args := m.Called(ctx, index, repositoryFullname, params)
	return args.Get(0).(model.Result[map[model.EventType]model.EventsCounter])
}

func (m *Service) ChangesClosedRatios(ctx context.Context, index, repositoryFullname string, params model.Params) model.Result[model.ClosedRatios] {
	args := m.Called(ctx, index, repositoryFullname, params)
	return args.Get(0).(model.Result[model.ClosedRatios])
}

func (m *Service) FirstCommentOnChanges(ctx context.Context, index, repositoryFullname string, params model.Params) model.Result[model.FirstEventStats] {
	args := m.Called(ctx, index, repositoryFullname, params)
	return args.Get(0).(model.Result[model.FirstEventStats])
}

func (m *Service) FirstReviewOnChanges(ctx context.Context, index, repositoryFullname string, params model.Params) model.Result[model.FirstEventStats] {
	args := m.Called(ctx, index, repositoryFullname, params)
	return args.Get(0).(model.Result[model.FirstEventStats])
}
