package service

import (
	"context"
	"slices"

	"review-metrics-service/internal/model"
)

// Metric names as exposed by the bindings.
const (
	MetricCountEvents                 = "count_events"
	MetricCountAuthors                = "count_authors"
	MetricEventsHisto                 = "events_histo"
	MetricEventsTopAuthors            = "events_top_authors"
	MetricChangesTopApproval          = "changes_top_approval"
	MetricChangesTopCommented         = "changes_top_commented"
	MetricChangesTopReviewed          = "changes_top_reviewed"
	MetricAuthorsTopReviewed          = "authors_top_reviewed"
	MetricAuthorsTopCommented         = "authors_top_commented"
	MetricPeersExchangeStrength       = "peers_exchange_strength"
	MetricChangeMergedCountByDuration = "change_merged_count_by_duration"
	MetricPRMergedAvgDuration         = "pr_merged_avg_duration"
	MetricChangesEventsCounters       = "changes_events_counters"
	MetricChangesClosedRatios         = "changes_closed_ratios"
	MetricFirstCommentOnChanges       = "first_comment_on_changes"
	MetricFirstReviewOnChanges        = "first_review_on_changes"
)

// Metric runs one named metric against svc.
type Metric func(ctx context.Context, svc MetricsService, index, repositoryFullname string, params model.Params) model.Outcome

func erase[T any](m func(MetricsService, context.Context, string, string, model.Params) model.Result[T]) Metric {
	return func(ctx context.Context, svc MetricsService, index, repositoryFullname string, params model.Params) model.Outcome {
		return m(svc, ctx, index, repositoryFullname, params)
	}
}

var registry = map[string]Metric{
	MetricCountEvents:                 erase(MetricsService.CountEvents),
	MetricCountAuthors:                erase(MetricsService.CountAuthors),
	MetricEventsHisto:                 erase(MetricsService.EventsHistogram),
	MetricEventsTopAuthors:            erase(MetricsService.EventsTopAuthors),
	MetricChangesTopApproval:          erase(MetricsService.ChangesTopApproval),
	MetricChangesTopCommented:         erase(MetricsService.ChangesTopCommented),
	MetricChangesTopReviewed:          erase(MetricsService.ChangesTopReviewed),
	MetricAuthorsTopReviewed:          erase(MetricsService.AuthorsTopReviewed),
	MetricAuthorsTopCommented:         erase(MetricsService.AuthorsTopCommented),
	MetricPeersExchangeStrength:       erase(MetricsService.PeersExchangeStrength),
	MetricChangeMergedCountByDuration: erase(MetricsService.ChangeMergedCountByDuration),
	MetricPRMergedAvgDuration:         erase(MetricsService.PRMergedAvgDuration),
	MetricChangesEventsCounters:       erase(MetricsService.ChangesEventsCounters),
	MetricChangesClosedRatios:         erase(MetricsService.ChangesClosedRatios),
	MetricFirstCommentOnChanges:       erase(MetricsService.FirstCommentOnChanges),
	MetricFirstReviewOnChanges:        erase(MetricsService.FirstReviewOnChanges),
}

// Lookup returns the metric registered under name.
func Lookup(name string) (Metric, bool) {
	m, ok := registry[name]
	return m, ok
}

// Names lists the registered metrics in lexical order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
