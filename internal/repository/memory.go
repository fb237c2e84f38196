package repository

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"os"
	"regexp"
	"slices"
	"sync"

	"review-metrics-service/internal/model"
	"review-metrics-service/internal/query"
)

// MemoryEventRepository keeps documents in process. It backs the tests and
// local runs against a JSON fixture.
type MemoryEventRepository struct {
	mu      sync.RWMutex
	indices map[string][]model.Event

	patterns sync.Map // pattern -> *regexp.Regexp
}

// NewMemoryEventRepository creates an empty in-memory store.
func NewMemoryEventRepository() *MemoryEventRepository {
	return &MemoryEventRepository{indices: make(map[string][]model.Event)}
}

// Add appends documents to an index, creating it when needed.
func (r *MemoryEventRepository) Add(index string, events ...model.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indices[index] = append(r.indices[index], events...)
}

// LoadFixture reads a JSON array of documents into index.
func (r *MemoryEventRepository) LoadFixture(index, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read fixture: %w", err)
	}
	var events []model.Event
	if err := json.Unmarshal(data, &events); err != nil {
		return fmt.Errorf("decode fixture: %w", err)
	}
	r.Add(index, events...)
	return nil
}

func (r *MemoryEventRepository) Count(ctx context.Context, index string, filter query.Filter) (int64, error) {
	docs, err := r.match(ctx, index, filter)
	if err != nil {
		return 0, err
	}
	return int64(len(docs)), nil
}

func (r *MemoryEventRepository) Cardinality(ctx context.Context, index string, filter query.Filter, agg query.Cardinality) (int64, error) {
	if !query.IsAggregatable(agg.Field) {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedField, agg.Field)
	}
	docs, err := r.match(ctx, index, filter)
	if err != nil {
		return 0, err
	}
	seen := make(map[string]struct{})
	for _, d := range docs {
		if v, _ := d.StringField(agg.Field); v != "" {
			seen[v] = struct{}{}
		}
	}
	return int64(len(seen)), nil
}

func (r *MemoryEventRepository) DateHistogram(ctx context.Context, index string, filter query.Filter, agg query.DateHistogram) (model.Histogram, error) {
	width, err := model.IntervalDuration(agg.Interval)
	if err != nil {
		return model.Histogram{}, err
	}
	docs, err := r.match(ctx, index, filter)
	if err != nil {
		return model.Histogram{}, err
	}

	widthMs := width.Milliseconds()
	if widthMs <= 0 {
		return model.Histogram{}, fmt.Errorf("invalid interval %q", agg.Interval)
	}
	counts := make(map[int64]int64)
	for _, d := range docs {
		ms, ok := d.NumericField(agg.Field)
		if !ok {
			return model.Histogram{}, fmt.Errorf("%w: %s", ErrUnsupportedField, agg.Field)
		}
		counts[floorDiv(ms, widthMs)*widthMs]++
	}

	buckets := make([]model.HistogramBucket, 0, len(counts))
	for key, n := range counts {
		buckets = append(buckets, model.HistogramBucket{Key: key, KeyAsISO: bucketKeyString(key), DocCount: n})
	}
	slices.SortFunc(buckets, func(a, b model.HistogramBucket) int { return cmp.Compare(a.Key, b.Key) })
	return model.Histogram{Buckets: buckets, AvgCount: histogramAverage(buckets)}, nil
}

func (r *MemoryEventRepository) Terms(ctx context.Context, index string, filter query.Filter, agg query.TermsAgg) ([]model.TermBucket, error) {
	if !query.IsAggregatable(agg.Field) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedField, agg.Field)
	}
	docs, err := r.match(ctx, index, filter)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64)
	for _, d := range docs {
		if v, _ := d.StringField(agg.Field); v != "" {
			counts[v]++
		}
	}
	buckets := make([]model.TermBucket, 0, len(counts))
	for key, n := range counts {
		buckets = append(buckets, model.TermBucket{Key: key, DocCount: n})
	}
	slices.SortFunc(buckets, func(a, b model.TermBucket) int {
		if c := cmp.Compare(b.DocCount, a.DocCount); c != 0 {
			return c
		}
		return cmp.Compare(a.Key, b.Key)
	})
	if agg.Size > 0 && len(buckets) > agg.Size {
		buckets = buckets[:agg.Size]
	}
	return buckets, nil
}

func (r *MemoryEventRepository) Ranges(ctx context.Context, index string, filter query.Filter, agg query.RangesAgg) ([]model.RangeBucket, error) {
	docs, err := r.match(ctx, index, filter)
	if err != nil {
		return nil, err
	}
	out := make([]model.RangeBucket, 0, len(agg.Ranges))
	for _, spec := range agg.Ranges {
		var n int64
		for _, d := range docs {
			v, ok := d.NumericField(agg.Field)
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrUnsupportedField, agg.Field)
			}
			if spec.Contains(float64(v)) {
				n++
			}
		}
		out = append(out, rangeBucket(spec, n))
	}
	return out, nil
}

func (r *MemoryEventRepository) Avg(ctx context.Context, index string, filter query.Filter, agg query.Avg) (*float64, error) {
	docs, err := r.match(ctx, index, filter)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	var sum float64
	for _, d := range docs {
		v, ok := d.NumericField(agg.Field)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedField, agg.Field)
		}
		sum += float64(v)
	}
	avg := sum / float64(len(docs))
	return &avg, nil
}

func (r *MemoryEventRepository) Scan(ctx context.Context, index string, filter query.Filter, fields []string) iter.Seq2[model.Event, error] {
	return func(yield func(model.Event, error) bool) {
		docs, err := r.match(ctx, index, filter)
		if err != nil {
			yield(model.Event{}, err)
			return
		}
		for _, d := range docs {
			if err := ctx.Err(); err != nil {
				yield(model.Event{}, err)
				return
			}
			if !yield(d, nil) {
				return
			}
		}
	}
}

func (r *MemoryEventRepository) match(ctx context.Context, index string, filter query.Filter) ([]model.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	docs, ok := r.indices[index]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownIndex, index)
	}

	var out []model.Event
	for _, d := range docs {
		matched, err := r.matchAll(d, filter)
		if err != nil {
			return nil, err
		}
		if matched {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *MemoryEventRepository) matchAll(d model.Event, filter query.Filter) (bool, error) {
	for _, p := range filter.Must {
		ok, err := r.eval(d, p)
		if err != nil || !ok {
			return false, err
		}
	}
	for _, p := range filter.MustNot {
		ok, err := r.eval(d, p)
		if err != nil || ok {
			return false, err
		}
	}
	return true, nil
}

func (r *MemoryEventRepository) eval(d model.Event, p query.Predicate) (bool, error) {
	switch p := p.(type) {
	case query.Regexp:
		re, err := r.compile(p.Pattern)
		if err != nil {
			return false, err
		}
		v, _ := d.StringField(p.Field)
		return re.MatchString(v), nil
	case query.Range:
		v, ok := d.NumericField(p.Field)
		if !ok {
			return false, fmt.Errorf("%w: %s", ErrUnsupportedField, p.Field)
		}
		if p.Gte != nil && v < *p.Gte {
			return false, nil
		}
		if p.Lte != nil && v > *p.Lte {
			return false, nil
		}
		return true, nil
	case query.Terms:
		v, _ := d.StringField(p.Field)
		return slices.Contains(p.Values, v), nil
	case query.Term:
		v, _ := d.StringField(p.Field)
		return v == p.Value, nil
	default:
		return false, fmt.Errorf("unsupported predicate %T", p)
	}
}

func (r *MemoryEventRepository) compile(pattern string) (*regexp.Regexp, error) {
	if re, ok := r.patterns.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return nil, fmt.Errorf("compile repository pattern: %w", err)
	}
	r.patterns.Store(pattern, re)
	return re, nil
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

var _ EventRepository = (*MemoryEventRepository)(nil)
