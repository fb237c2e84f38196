package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"review-metrics-service/internal/model"
	"review-metrics-service/internal/query"
	"review-metrics-service/internal/testdata/mockclickhouseconnection"
	"review-metrics-service/internal/testdata/mockclickhouserows"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

const baseWhere = " WHERE match(repository_fullname, ?) AND NOT (type = ?)"

type ClickHouseRepositoryTestSuite struct {
	suite.Suite

	repository *clickhouseEventRepository
	connMock   *mockclickhouseconnection.Connection
	rowMock    *mockclickhouserows.Row
	rowsMock   *mockclickhouserows.Rows
	ctx        context.Context
}

func TestClickHouseRepository(t *testing.T) {
	suite.Run(t, new(ClickHouseRepositoryTestSuite))
}

func (s *ClickHouseRepositoryTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.connMock = &mockclickhouseconnection.Connection{}
	s.rowMock = &mockclickhouserows.Row{}
	s.rowsMock = &mockclickhouserows.Rows{}
	s.repository = NewClickHouseEventRepository(s.connMock, time.Second, zap.NewNop()).(*clickhouseEventRepository)
}

func (s *ClickHouseRepositoryTestSuite) TearDownTest() {
	s.connMock.AssertExpectations(s.T())
	s.rowMock.AssertExpectations(s.T())
	s.rowsMock.AssertExpectations(s.T())
}

func defaultFilter() query.Filter {
	return query.New("org/a", model.Normalize(model.Params{}), true)
}

func baseArgs(extra ...interface{}) []interface{} {
	return append([]interface{}{"^(?:org/a)$", "Change"}, extra...)
}

func (s *ClickHouseRepositoryTestSuite) TestCount_Success() {
	s.connMock.On("QueryRow", mock.Anything, "SELECT count() FROM monocle"+baseWhere, baseArgs()).
		Return(s.rowMock).Once()
	s.rowMock.On("Scan", mock.Anything).
		Run(func(args mock.Arguments) { *args.Get(0).(*uint64) = 3 }).
		Return(nil).Once()

	n, err := s.repository.Count(s.ctx, "monocle", defaultFilter())
	s.NoError(err)
	s.Equal(int64(3), n)
}

func (s *ClickHouseRepositoryTestSuite) TestCount_RendersEveryPredicate() {
	p := model.Normalize(model.Params{
		Gte:            model.Bound(t0),
		OnCCLte:        model.Bound(t0.Add(time.Hour)),
		Etype:          []model.EventType{model.ChangeCreatedEvent, model.ChangeMergedEvent},
		Author:         "alice",
		ExcludeAuthors: []string{"bot"},
	})
	expected := "SELECT count() FROM monocle WHERE match(repository_fullname, ?)" +
		" AND toUnixTimestamp64Milli(created_at) >= ?" +
		" AND toUnixTimestamp64Milli(on_created_at) <= ?" +
		" AND type IN (?, ?)" +
		" AND author = ?" +
		" AND NOT (author IN (?))" +
		" AND NOT (type = ?)"
	args := []interface{}{
		"^(?:org/a)$", t0.UnixMilli(), t0.Add(time.Hour).UnixMilli(),
		"ChangeCreatedEvent", "ChangeMergedEvent", "alice", "bot", "Change",
	}

	s.connMock.On("QueryRow", mock.Anything, expected, args).Return(s.rowMock).Once()
	s.rowMock.On("Scan", mock.Anything).Return(nil).Once()

	_, err := s.repository.Count(s.ctx, "monocle", query.New("org/a", p, true))
	s.NoError(err)
}

func (s *ClickHouseRepositoryTestSuite) TestCount_ScanError() {
	s.connMock.On("QueryRow", mock.Anything, mock.Anything, mock.Anything).Return(s.rowMock).Once()
	s.rowMock.On("Scan", mock.Anything).Return(errors.New("connection reset")).Once()

	_, err := s.repository.Count(s.ctx, "monocle", defaultFilter())
	s.ErrorContains(err, "connection reset")
}

func (s *ClickHouseRepositoryTestSuite) TestInvalidTableName() {
	_, err := s.repository.Count(s.ctx, "monocle; DROP TABLE x", defaultFilter())
	s.ErrorIs(err, ErrUnknownIndex)
}

func (s *ClickHouseRepositoryTestSuite) TestCardinality() {
	s.connMock.On("QueryRow", mock.Anything,
		"SELECT uniqCombined(author) FROM monocle"+baseWhere+" AND author != ''", baseArgs()).
		Return(s.rowMock).Once()
	s.rowMock.On("Scan", mock.Anything).
		Run(func(args mock.Arguments) { *args.Get(0).(*uint64) = 12 }).
		Return(nil).Once()

	n, err := s.repository.Cardinality(s.ctx, "monocle", defaultFilter(),
		query.Cardinality{Field: model.FieldAuthor, PrecisionThreshold: query.AuthorsPrecisionThreshold})
	s.NoError(err)
	s.Equal(int64(12), n)
}

func (s *ClickHouseRepositoryTestSuite) TestCardinality_UnsupportedField() {
	_, err := s.repository.Cardinality(s.ctx, "monocle", defaultFilter(), query.Cardinality{Field: "created_at; --"})
	s.ErrorIs(err, ErrUnsupportedField)
}

func (s *ClickHouseRepositoryTestSuite) TestDateHistogram() {
	width := int64(3 * time.Hour / time.Millisecond)
	expected := "SELECT intDiv(toUnixTimestamp64Milli(created_at), ?) * ? AS bucket, count() AS n FROM monocle" +
		baseWhere + " GROUP BY bucket ORDER BY bucket"
	s.connMock.On("Query", mock.Anything, expected, append([]interface{}{width, width}, baseArgs()...)).
		Return(s.rowsMock, nil).Once()

	keys := []int64{t0.UnixMilli(), t0.Add(6 * time.Hour).UnixMilli()}
	counts := []uint64{4, 2}
	s.rowsMock.On("Next").Return(true).Twice()
	s.rowsMock.On("Next").Return(false).Once()
	for i := range keys {
		key, n := keys[i], counts[i]
		s.rowsMock.On("Scan", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) {
				*args.Get(0).(*int64) = key
				*args.Get(1).(*uint64) = n
			}).
			Return(nil).Once()
	}
	s.rowsMock.On("Err").Return(nil).Once()
	s.rowsMock.On("Close").Return(nil).Once()

	hist, err := s.repository.DateHistogram(s.ctx, "monocle", defaultFilter(),
		query.DateHistogram{Field: model.FieldCreatedAt, Interval: "3h"})
	s.Require().NoError(err)
	s.Require().Len(hist.Buckets, 2)
	s.Equal("2020-03-01T10:00:00.000Z", hist.Buckets[0].KeyAsISO)
	s.Equal(3.0, hist.AvgCount)
}

func (s *ClickHouseRepositoryTestSuite) TestTerms() {
	expected := "SELECT author AS key, count() AS n FROM monocle" + baseWhere +
		" AND author != '' GROUP BY key ORDER BY n DESC, key ASC LIMIT ?"
	s.connMock.On("Query", mock.Anything, expected, baseArgs(5)).Return(s.rowsMock, nil).Once()

	s.rowsMock.On("Next").Return(true).Once()
	s.rowsMock.On("Next").Return(false).Once()
	s.rowsMock.On("Scan", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			*args.Get(0).(*string) = "bob"
			*args.Get(1).(*uint64) = 9
		}).
		Return(nil).Once()
	s.rowsMock.On("Err").Return(nil).Once()
	s.rowsMock.On("Close").Return(nil).Once()

	buckets, err := s.repository.Terms(s.ctx, "monocle", defaultFilter(), query.TermsAgg{Field: model.FieldAuthor, Size: 5})
	s.NoError(err)
	s.Equal([]model.TermBucket{{Key: "bob", DocCount: 9}}, buckets)
}

func (s *ClickHouseRepositoryTestSuite) TestTerms_QueryError() {
	s.connMock.On("Query", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("timeout")).Once()

	_, err := s.repository.Terms(s.ctx, "monocle", defaultFilter(), query.TermsAgg{Field: model.FieldAuthor, Size: 5})
	s.ErrorContains(err, "timeout")
}

func (s *ClickHouseRepositoryTestSuite) TestRanges() {
	filter := query.New("org/a", model.Normalize(model.Params{}), false)
	expected := "SELECT countIf(duration >= ? AND duration < ?), countIf(duration >= ? AND duration < ?)," +
		" countIf(duration >= ? AND duration < ?), countIf(duration >= ?)" +
		" FROM monocle WHERE match(repository_fullname, ?)"
	args := []interface{}{
		0.0, 86401.0, 86401.0, 604801.0, 604801.0, 2678401.0, 2678401.0,
		"^(?:org/a)$",
	}
	s.connMock.On("QueryRow", mock.Anything, expected, args).Return(s.rowMock).Once()
	s.rowMock.On("Scan", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			for i := 0; i < 4; i++ {
				*args.Get(i).(*uint64) = uint64(i + 1)
			}
		}).
		Return(nil).Once()

	buckets, err := s.repository.Ranges(s.ctx, "monocle", filter,
		query.RangesAgg{Field: model.FieldDuration, Ranges: query.MergedDurationRanges})
	s.Require().NoError(err)
	s.Require().Len(buckets, 4)
	for i, b := range buckets {
		s.Equal(query.MergedDurationRanges[i].Key, b.Key)
		s.Equal(int64(i+1), b.DocCount)
	}
}

func (s *ClickHouseRepositoryTestSuite) TestAvg_NoRows() {
	s.connMock.On("QueryRow", mock.Anything, "SELECT avg(duration), count() FROM monocle"+baseWhere, baseArgs()).
		Return(s.rowMock).Once()
	s.rowMock.On("Scan", mock.Anything, mock.Anything).Return(nil).Once()

	avg, err := s.repository.Avg(s.ctx, "monocle", defaultFilter(), query.Avg{Field: model.FieldDuration})
	s.NoError(err)
	s.Nil(avg)
}

func (s *ClickHouseRepositoryTestSuite) TestAvg() {
	s.connMock.On("QueryRow", mock.Anything, mock.Anything, mock.Anything).Return(s.rowMock).Once()
	s.rowMock.On("Scan", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			*args.Get(0).(*float64) = 3600
			*args.Get(1).(*uint64) = 2
		}).
		Return(nil).Once()

	avg, err := s.repository.Avg(s.ctx, "monocle", defaultFilter(), query.Avg{Field: model.FieldDuration})
	s.Require().NoError(err)
	s.Require().NotNil(avg)
	s.Equal(3600.0, *avg)
}

func (s *ClickHouseRepositoryTestSuite) TestScan() {
	fields := []string{model.FieldRepositoryFullnameAndNumber, model.FieldAuthor, model.FieldCreatedAt}
	expected := "SELECT repository_fullname_and_number, author, created_at FROM monocle" + baseWhere
	s.connMock.On("Query", mock.Anything, expected, baseArgs()).Return(s.rowsMock, nil).Once()

	s.rowsMock.On("Next").Return(true).Once()
	s.rowsMock.On("Next").Return(false).Once()
	s.rowsMock.On("Scan", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			*args.Get(0).(*string) = "org/a#1"
			*args.Get(1).(*string) = "alice"
			*args.Get(2).(*time.Time) = t0
		}).
		Return(nil).Once()
	s.rowsMock.On("Err").Return(nil).Once()
	s.rowsMock.On("Close").Return(nil).Once()

	var events []model.Event
	for ev, err := range s.repository.Scan(s.ctx, "monocle", defaultFilter(), fields) {
		s.Require().NoError(err)
		events = append(events, ev)
	}
	s.Require().Len(events, 1)
	s.Equal("org/a#1", events[0].RepositoryFullnameAndNumber)
	s.Equal("alice", events[0].Author)
	s.Equal(t0, events[0].CreatedAt)
}

func (s *ClickHouseRepositoryTestSuite) TestScan_BoundedByQueryTimeout() {
	hasDeadline := mock.MatchedBy(func(ctx context.Context) bool {
		deadline, ok := ctx.Deadline()
		return ok && time.Until(deadline) <= time.Second
	})
	s.connMock.On("Query", hasDeadline, mock.Anything, baseArgs()).
		Return(nil, context.DeadlineExceeded).Once()

	var errs []error
	for _, err := range s.repository.Scan(s.ctx, "monocle", defaultFilter(), []string{model.FieldAuthor}) {
		errs = append(errs, err)
	}
	s.Require().Len(errs, 1)
	s.ErrorIs(errs[0], context.DeadlineExceeded)
}

func (s *ClickHouseRepositoryTestSuite) TestScan_UnsupportedField() {
	var errs []error
	for _, err := range s.repository.Scan(s.ctx, "monocle", defaultFilter(), []string{"password"}) {
		errs = append(errs, err)
	}
	s.Require().Len(errs, 1)
	s.ErrorIs(errs[0], ErrUnsupportedField)
}
