package service

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"review-metrics-service/internal/model"
	"review-metrics-service/internal/query"
)

// firstEventTopAuthors is the number of first responders reported.
const firstEventTopAuthors = 10

var firstEventFields = []string{
	model.FieldRepositoryFullnameAndNumber,
	model.FieldCreatedAt,
	model.FieldOnCreatedAt,
	model.FieldAuthor,
}

// firstEvent is the earliest qualifying event seen so far on one change.
type firstEvent struct {
	changeCreatedAt time.Time
	createdAt       time.Time
	author          string
}

func (s *metricsService) FirstCommentOnChanges(ctx context.Context, index, repositoryFullname string, params model.Params) model.Result[model.FirstEventStats] {
	return s.firstEventOnChanges(ctx, call{MetricFirstCommentOnChanges, index, repositoryFullname},
		model.Normalize(params).WithEtype(model.ChangeCommentedEvent))
}

func (s *metricsService) FirstReviewOnChanges(ctx context.Context, index, repositoryFullname string, params model.Params) model.Result[model.FirstEventStats] {
	return s.firstEventOnChanges(ctx, call{MetricFirstReviewOnChanges, index, repositoryFullname},
		model.Normalize(params).WithEtype(model.ChangeReviewedEvent))
}

// firstEventOnChanges drains the scan once, keeping the earliest event of
// each change, then reports the mean delay since change creation and the
// most frequent first responders.
func (s *metricsService) firstEventOnChanges(ctx context.Context, c call, params model.Params) model.Result[model.FirstEventStats] {
	firsts := make(map[string]*firstEvent)

	events := s.repo.Scan(ctx, c.index, query.New(c.repo, params, true), firstEventFields)
	for ev, err := range events {
		if err != nil {
			return failure[model.FirstEventStats](s, c, fmt.Errorf("scan events: %w", err))
		}
		first, ok := firsts[ev.RepositoryFullnameAndNumber]
		if !ok {
			firsts[ev.RepositoryFullnameAndNumber] = &firstEvent{
				changeCreatedAt: ev.OnCreatedAt,
				createdAt:       ev.CreatedAt,
				author:          ev.Author,
			}
			continue
		}
		if ev.CreatedAt.Before(first.createdAt) {
			first.createdAt = ev.CreatedAt
			first.author = ev.Author
		}
	}

	if len(firsts) == 0 {
		return model.Empty[model.FirstEventStats]()
	}
	return model.OK(summarizeFirstEvents(firsts))
}

func summarizeFirstEvents(firsts map[string]*firstEvent) model.FirstEventStats {
	var totalDelay int64
	credits := make(map[string]int64)
	for _, first := range firsts {
		totalDelay += int64(first.createdAt.Sub(first.changeCreatedAt) / time.Second)
		credits[first.author]++
	}

	top := make([]model.AuthorCount, 0, len(credits))
	for author, n := range credits {
		top = append(top, model.AuthorCount{Author: author, Count: n})
	}
	slices.SortFunc(top, func(a, b model.AuthorCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Author, b.Author)
	})
	if len(top) > firstEventTopAuthors {
		top = top[:firstEventTopAuthors]
	}

	return model.FirstEventStats{
		ChangesCount: len(firsts),
		AvgDelay:     totalDelay / int64(len(firsts)),
		TopAuthors:   top,
	}
}
