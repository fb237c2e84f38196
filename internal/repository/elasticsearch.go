package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"go.uber.org/zap"

	"review-metrics-service/internal/model"
	"review-metrics-service/internal/query"
)

// Default scan configuration values.
const (
	DefaultScanPageSize  = 1000
	DefaultScanKeepAlive = time.Minute
)

// ElasticsearchConfig tunes the Elasticsearch event repository.
type ElasticsearchConfig struct {
	QueryTimeout  time.Duration
	ScanPageSize  int
	ScanKeepAlive time.Duration
}

type esEventRepository struct {
	es     *elasticsearch.Client
	logger *zap.Logger

	timeout   time.Duration
	pageSize  int
	keepAlive time.Duration
}

// NewElasticsearchEventRepository creates an EventRepository backed by
// Elasticsearch.
func NewElasticsearchEventRepository(es *elasticsearch.Client, cfg ElasticsearchConfig, logger *zap.Logger) EventRepository {
	if cfg.ScanPageSize <= 0 {
		cfg.ScanPageSize = DefaultScanPageSize
	}
	if cfg.ScanKeepAlive <= 0 {
		cfg.ScanKeepAlive = DefaultScanKeepAlive
	}
	return &esEventRepository{
		es:        es,
		logger:    logger.Named("elasticsearch"),
		timeout:   cfg.QueryTimeout,
		pageSize:  cfg.ScanPageSize,
		keepAlive: cfg.ScanKeepAlive,
	}
}

// -----------------------------------------------------------------------
// EventRepository implementation
// -----------------------------------------------------------------------

func (r *esEventRepository) Count(ctx context.Context, index string, filter query.Filter) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	body, err := json.Marshal(map[string]interface{}{"query": buildBoolQuery(filter)})
	if err != nil {
		return 0, fmt.Errorf("failed to build query: %w", err)
	}

	res, err := r.es.Count(
		r.es.Count.WithContext(ctx),
		r.es.Count.WithIndex(index),
		r.es.Count.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return 0, fmt.Errorf("count failed: %w", err)
	}
	defer res.Body.Close()

	if err := responseError(res, index); err != nil {
		return 0, err
	}

	var result struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("failed to decode response: %w", err)
	}
	return result.Count, nil
}

func (r *esEventRepository) Cardinality(ctx context.Context, index string, filter query.Filter, agg query.Cardinality) (int64, error) {
	aggs := map[string]interface{}{
		"agg1": map[string]interface{}{
			"cardinality": map[string]interface{}{
				"field":               agg.Field,
				"precision_threshold": agg.PrecisionThreshold,
			},
		},
	}

	var result struct {
		Aggregations struct {
			Agg1 struct {
				Value int64 `json:"value"`
			} `json:"agg1"`
		} `json:"aggregations"`
	}
	if err := r.aggregate(ctx, index, filter, aggs, &result); err != nil {
		return 0, err
	}
	return result.Aggregations.Agg1.Value, nil
}

func (r *esEventRepository) DateHistogram(ctx context.Context, index string, filter query.Filter, agg query.DateHistogram) (model.Histogram, error) {
	interval, err := esFixedInterval(agg.Interval)
	if err != nil {
		return model.Histogram{}, err
	}

	aggs := map[string]interface{}{
		"agg1": map[string]interface{}{
			"date_histogram": map[string]interface{}{
				"field":          agg.Field,
				"fixed_interval": interval,
				"min_doc_count":  1,
			},
		},
		"avg_count": map[string]interface{}{
			"avg_bucket": map[string]interface{}{
				"buckets_path": "agg1>_count",
			},
		},
	}

	var result struct {
		Aggregations struct {
			Agg1 struct {
				Buckets []struct {
					Key         int64  `json:"key"`
					KeyAsString string `json:"key_as_string"`
					DocCount    int64  `json:"doc_count"`
				} `json:"buckets"`
			} `json:"agg1"`
			AvgCount struct {
				Value *float64 `json:"value"`
			} `json:"avg_count"`
		} `json:"aggregations"`
	}
	if err := r.aggregate(ctx, index, filter, aggs, &result); err != nil {
		return model.Histogram{}, err
	}

	buckets := make([]model.HistogramBucket, 0, len(result.Aggregations.Agg1.Buckets))
	for _, b := range result.Aggregations.Agg1.Buckets {
		if b.DocCount == 0 {
			continue
		}
		key := b.KeyAsString
		if key == "" {
			key = bucketKeyString(b.Key)
		}
		buckets = append(buckets, model.HistogramBucket{Key: b.Key, KeyAsISO: key, DocCount: b.DocCount})
	}

	hist := model.Histogram{Buckets: buckets, AvgCount: histogramAverage(buckets)}
	if v := result.Aggregations.AvgCount.Value; v != nil {
		hist.AvgCount = *v
	}
	return hist, nil
}

func (r *esEventRepository) Terms(ctx context.Context, index string, filter query.Filter, agg query.TermsAgg) ([]model.TermBucket, error) {
	aggs := map[string]interface{}{
		"agg1": map[string]interface{}{
			"terms": map[string]interface{}{
				"field": agg.Field,
				"size":  agg.Size,
				"order": []map[string]string{
					{"_count": "desc"},
					{"_key": "asc"},
				},
			},
		},
	}

	var result struct {
		Aggregations struct {
			Agg1 struct {
				Buckets []aggBucket `json:"buckets"`
			} `json:"agg1"`
		} `json:"aggregations"`
	}
	if err := r.aggregate(ctx, index, filter, aggs, &result); err != nil {
		return nil, err
	}

	buckets := make([]model.TermBucket, 0, len(result.Aggregations.Agg1.Buckets))
	for _, b := range result.Aggregations.Agg1.Buckets {
		buckets = append(buckets, model.TermBucket{Key: b.Key, DocCount: b.DocCount})
	}
	return buckets, nil
}

func (r *esEventRepository) Ranges(ctx context.Context, index string, filter query.Filter, agg query.RangesAgg) ([]model.RangeBucket, error) {
	ranges := make([]map[string]interface{}, 0, len(agg.Ranges))
	for _, spec := range agg.Ranges {
		rng := map[string]interface{}{"key": spec.Key}
		if spec.From != nil {
			rng["from"] = *spec.From
		}
		if spec.To != nil {
			rng["to"] = *spec.To
		}
		ranges = append(ranges, rng)
	}
	aggs := map[string]interface{}{
		"agg1": map[string]interface{}{
			"range": map[string]interface{}{
				"field":  agg.Field,
				"ranges": ranges,
			},
		},
	}

	var result struct {
		Aggregations struct {
			Agg1 struct {
				Buckets []aggBucket `json:"buckets"`
			} `json:"agg1"`
		} `json:"aggregations"`
	}
	if err := r.aggregate(ctx, index, filter, aggs, &result); err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(result.Aggregations.Agg1.Buckets))
	for _, b := range result.Aggregations.Agg1.Buckets {
		counts[b.Key] = b.DocCount
	}
	out := make([]model.RangeBucket, 0, len(agg.Ranges))
	for _, spec := range agg.Ranges {
		out = append(out, rangeBucket(spec, counts[spec.Key]))
	}
	return out, nil
}

func (r *esEventRepository) Avg(ctx context.Context, index string, filter query.Filter, agg query.Avg) (*float64, error) {
	aggs := map[string]interface{}{
		"agg1": map[string]interface{}{
			"avg": map[string]interface{}{"field": agg.Field},
		},
	}

	var result struct {
		Aggregations struct {
			Agg1 struct {
				Value *float64 `json:"value"`
			} `json:"agg1"`
		} `json:"aggregations"`
	}
	if err := r.aggregate(ctx, index, filter, aggs, &result); err != nil {
		return nil, err
	}
	return result.Aggregations.Agg1.Value, nil
}

// Scan walks the matching documents with the scroll API, one page at a time.
func (r *esEventRepository) Scan(ctx context.Context, index string, filter query.Filter, fields []string) iter.Seq2[model.Event, error] {
	return func(yield func(model.Event, error) bool) {
		body, err := json.Marshal(map[string]interface{}{
			"_source": fields,
			"sort":    []string{"_doc"},
			"query":   buildBoolQuery(filter),
		})
		if err != nil {
			yield(model.Event{}, fmt.Errorf("failed to build query: %w", err))
			return
		}

		page, err := r.firstPage(ctx, index, body)
		if err != nil {
			yield(model.Event{}, err)
			return
		}
		scrollID := page.ScrollID
		defer func() { r.clearScroll(scrollID) }()

		for len(page.Hits.Hits) > 0 {
			for _, hit := range page.Hits.Hits {
				var ev model.Event
				if err := json.Unmarshal(hit.Source, &ev); err != nil {
					yield(model.Event{}, fmt.Errorf("decode hit %s: %w", hit.ID, err))
					return
				}
				if !yield(ev, nil) {
					return
				}
			}

			page, err = r.nextPage(ctx, scrollID)
			if err != nil {
				yield(model.Event{}, err)
				return
			}
			if page.ScrollID != "" {
				scrollID = page.ScrollID
			}
		}
	}
}

// -----------------------------------------------------------------------
// Request helpers
// -----------------------------------------------------------------------

func (r *esEventRepository) aggregate(ctx context.Context, index string, filter query.Filter, aggs map[string]interface{}, dest interface{}) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	body, err := json.Marshal(map[string]interface{}{
		"size":  0,
		"query": buildBoolQuery(filter),
		"aggs":  aggs,
	})
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}

	res, err := r.es.Search(
		r.es.Search.WithContext(ctx),
		r.es.Search.WithIndex(index),
		r.es.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	defer res.Body.Close()

	if err := responseError(res, index); err != nil {
		return err
	}
	if err := json.NewDecoder(res.Body).Decode(dest); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (r *esEventRepository) firstPage(ctx context.Context, index string, body []byte) (scrollPage, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.es.Search(
		r.es.Search.WithContext(ctx),
		r.es.Search.WithIndex(index),
		r.es.Search.WithBody(bytes.NewReader(body)),
		r.es.Search.WithSize(r.pageSize),
		r.es.Search.WithScroll(r.keepAlive),
	)
	if err != nil {
		return scrollPage{}, fmt.Errorf("search failed: %w", err)
	}
	return decodeScrollPage(res, index)
}

func (r *esEventRepository) nextPage(ctx context.Context, scrollID string) (scrollPage, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.es.Scroll(
		r.es.Scroll.WithContext(ctx),
		r.es.Scroll.WithScrollID(scrollID),
		r.es.Scroll.WithScroll(r.keepAlive),
	)
	if err != nil {
		return scrollPage{}, fmt.Errorf("scroll failed: %w", err)
	}
	return decodeScrollPage(res, "")
}

func (r *esEventRepository) clearScroll(scrollID string) {
	if scrollID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := r.es.ClearScroll(
		r.es.ClearScroll.WithContext(ctx),
		r.es.ClearScroll.WithScrollID(scrollID),
	)
	if err != nil {
		r.logger.Debug("failed to clear scroll", zap.Error(err))
		return
	}
	_, _ = io.Copy(io.Discard, res.Body)
	res.Body.Close()
}

func decodeScrollPage(res *esapi.Response, index string) (scrollPage, error) {
	defer res.Body.Close()

	if err := responseError(res, index); err != nil {
		return scrollPage{}, err
	}
	var page scrollPage
	if err := json.NewDecoder(res.Body).Decode(&page); err != nil {
		return scrollPage{}, fmt.Errorf("failed to decode response: %w", err)
	}
	return page, nil
}

func responseError(res *esapi.Response, index string) error {
	if !res.IsError() {
		return nil
	}
	if res.StatusCode == http.StatusNotFound && index != "" {
		return fmt.Errorf("%w: %s", ErrUnknownIndex, index)
	}
	return fmt.Errorf("search error: %s", res.String())
}

// esFixedInterval maps an interval onto a date_histogram fixed_interval,
// which has no week unit.
func esFixedInterval(interval string) (string, error) {
	if _, err := model.IntervalDuration(interval); err != nil {
		return "", err
	}
	if strings.HasSuffix(interval, "w") {
		n, _ := strconv.Atoi(strings.TrimSuffix(interval, "w"))
		return strconv.Itoa(n*7) + "d", nil
	}
	return interval, nil
}

// -----------------------------------------------------------------------
// Query builders
// -----------------------------------------------------------------------

func buildBoolQuery(filter query.Filter) map[string]interface{} {
	return map[string]interface{}{
		"bool": map[string]interface{}{
			"filter":   buildClauses(filter.Must),
			"must_not": buildClauses(filter.MustNot),
		},
	}
}

func buildClauses(preds []query.Predicate) []map[string]interface{} {
	clauses := make([]map[string]interface{}, 0, len(preds))
	for _, p := range preds {
		switch p := p.(type) {
		case query.Regexp:
			clauses = append(clauses, map[string]interface{}{
				"regexp": map[string]interface{}{
					p.Field: map[string]interface{}{"value": p.Pattern},
				},
			})
		case query.Range:
			rng := make(map[string]interface{})
			if p.Field == model.FieldCreatedAt || p.Field == model.FieldOnCreatedAt {
				rng["format"] = "epoch_millis"
			}
			if p.Gte != nil {
				rng["gte"] = *p.Gte
			}
			if p.Lte != nil {
				rng["lte"] = *p.Lte
			}
			clauses = append(clauses, map[string]interface{}{
				"range": map[string]interface{}{p.Field: rng},
			})
		case query.Terms:
			clauses = append(clauses, map[string]interface{}{
				"terms": map[string]interface{}{p.Field: p.Values},
			})
		case query.Term:
			clauses = append(clauses, map[string]interface{}{
				"term": map[string]interface{}{p.Field: p.Value},
			})
		}
	}
	return clauses
}

// -----------------------------------------------------------------------
// Elasticsearch response types
// -----------------------------------------------------------------------

type scrollPage struct {
	ScrollID string `json:"_scroll_id"`
	Hits     struct {
		Hits []searchHit `json:"hits"`
	} `json:"hits"`
}

type searchHit struct {
	Index  string          `json:"_index"`
	ID     string          `json:"_id"`
	Source json.RawMessage `json:"_source"`
}

type aggBucket struct {
	Key      string `json:"key"`
	DocCount int64  `json:"doc_count"`
}
