package service

import (
	"time"

	"review-metrics-service/internal/model"
	"review-metrics-service/internal/testdata/mockrepository"

	"github.com/stretchr/testify/mock"
)

func (s *MetricsServiceTestSuite) TestFirstCommentOnChanges() {
	s.add(
		event(model.ChangeCommentedEvent, "org/a#1", "carol", t0.Add(7200*time.Second)),
		event(model.ChangeCommentedEvent, "org/a#1", "bob", t0.Add(3600*time.Second)),
		event(model.ChangeReviewedEvent, "org/a#1", "dave", t0.Add(60*time.Second)),
	)

	res := s.service.FirstCommentOnChanges(s.ctx, index, "org/a", model.Params{})
	s.Require().True(res.IsOK())
	s.Equal(1, res.Value.ChangesCount)
	s.Equal(int64(3600), res.Value.AvgDelay)
	s.Equal([]model.AuthorCount{{Author: "bob", Count: 1}}, res.Value.TopAuthors)

	review := s.service.FirstReviewOnChanges(s.ctx, index, "org/a", model.Params{})
	s.Require().True(review.IsOK())
	s.Equal(int64(60), review.Value.AvgDelay)
	s.Equal("dave", review.Value.TopAuthors[0].Author)
}

func (s *MetricsServiceTestSuite) TestFirstCommentOnChanges_NoChanges() {
	res := s.service.FirstCommentOnChanges(s.ctx, index, "org/a", model.Params{})
	s.True(res.IsEmpty())
}

func (s *MetricsServiceFailureTestSuite) TestFirstEvent_MeanIsTruncatedAndDelaysSpanDays() {
	day := 24 * time.Hour
	events := mockrepository.Events(
		model.Event{RepositoryFullnameAndNumber: "org/a#1", Author: "bob", OnCreatedAt: t0, CreatedAt: t0.Add(2*day + 10*time.Second)},
		model.Event{RepositoryFullnameAndNumber: "org/a#2", Author: "carol", OnCreatedAt: t0, CreatedAt: t0.Add(3 * time.Second)},
		model.Event{RepositoryFullnameAndNumber: "org/a#3", Author: "bob", OnCreatedAt: t0, CreatedAt: t0.Add(1500 * time.Millisecond)},
	)
	s.repo.On("Scan", mock.Anything, index, mock.Anything, firstEventFields).Return(events).Once()

	res := s.service.FirstCommentOnChanges(s.ctx, index, "org/a", model.Params{})
	s.Require().True(res.IsOK())
	s.Equal(3, res.Value.ChangesCount)
	// (172810 + 3 + 1) / 3 = 57604.67, truncated.
	s.Equal(int64(57604), res.Value.AvgDelay)
	s.Equal([]model.AuthorCount{{Author: "bob", Count: 2}, {Author: "carol", Count: 1}}, res.Value.TopAuthors)
}

func (s *MetricsServiceTestSuite) TestSummarizeFirstEvents_TopTenByFrequency() {
	firsts := make(map[string]*firstEvent)
	for i := 0; i < 12; i++ {
		author := string(rune('a' + i))
		for n := 0; n <= i; n++ {
			change := author + string(rune('0'+n))
			firsts[change] = &firstEvent{changeCreatedAt: t0, createdAt: t0.Add(time.Minute), author: author}
		}
	}

	stats := summarizeFirstEvents(firsts)
	s.Len(stats.TopAuthors, 10)
	s.Equal(model.AuthorCount{Author: "l", Count: 12}, stats.TopAuthors[0])
	s.Equal(model.AuthorCount{Author: "c", Count: 3}, stats.TopAuthors[9])
	s.Equal(int64(60), stats.AvgDelay)
}
