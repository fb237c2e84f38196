package repository

import (
	"context"
	"fmt"
	"iter"
	"regexp"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"go.uber.org/zap"

	"review-metrics-service/internal/model"
	"review-metrics-service/internal/query"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var stringColumns = map[string]bool{
	model.FieldType:                        true,
	model.FieldRepositoryFullname:          true,
	model.FieldRepositoryFullnameAndNumber: true,
	model.FieldAuthor:                      true,
	model.FieldOnAuthor:                    true,
	model.FieldApproval:                    true,
	model.FieldState:                       true,
}

var dateColumns = map[string]bool{
	model.FieldCreatedAt:   true,
	model.FieldOnCreatedAt: true,
}

type clickhouseEventRepository struct {
	conn    clickhouse.Conn
	logger  *zap.Logger
	timeout time.Duration
}

// NewClickHouseEventRepository creates an EventRepository backed by
// ClickHouse. The index of every call is the table name.
func NewClickHouseEventRepository(conn clickhouse.Conn, queryTimeout time.Duration, logger *zap.Logger) EventRepository {
	return &clickhouseEventRepository{
		conn:    conn,
		logger:  logger.Named("clickhouse"),
		timeout: queryTimeout,
	}
}

func (r *clickhouseEventRepository) Count(ctx context.Context, index string, filter query.Filter) (int64, error) {
	table, where, args, err := prepare(index, filter)
	if err != nil {
		return 0, err
	}
	q := fmt.Sprintf("SELECT count() FROM %s%s", table, where)

	var n uint64
	if err := r.queryRow(ctx, q, args, &n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return int64(n), nil
}

func (r *clickhouseEventRepository) Cardinality(ctx context.Context, index string, filter query.Filter, agg query.Cardinality) (int64, error) {
	if !stringColumns[agg.Field] {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedField, agg.Field)
	}
	table, where, args, err := prepare(index, filter)
	if err != nil {
		return 0, err
	}
	q := fmt.Sprintf("SELECT uniqCombined(%s) FROM %s%s", agg.Field, table, and(where, agg.Field+" != ''"))

	var n uint64
	if err := r.queryRow(ctx, q, args, &n); err != nil {
		return 0, fmt.Errorf("count distinct %s: %w", agg.Field, err)
	}
	return int64(n), nil
}

func (r *clickhouseEventRepository) DateHistogram(ctx context.Context, index string, filter query.Filter, agg query.DateHistogram) (model.Histogram, error) {
	if !dateColumns[agg.Field] {
		return model.Histogram{}, fmt.Errorf("%w: %s", ErrUnsupportedField, agg.Field)
	}
	width, err := model.IntervalDuration(agg.Interval)
	if err != nil {
		return model.Histogram{}, err
	}
	table, where, args, err := prepare(index, filter)
	if err != nil {
		return model.Histogram{}, err
	}

	widthMs := width.Milliseconds()
	if widthMs <= 0 {
		return model.Histogram{}, fmt.Errorf("invalid interval %q", agg.Interval)
	}
	q := fmt.Sprintf(
		"SELECT intDiv(toUnixTimestamp64Milli(%s), ?) * ? AS bucket, count() AS n FROM %s%s GROUP BY bucket ORDER BY bucket",
		agg.Field, table, where)
	args = append([]interface{}{widthMs, widthMs}, args...)

	var buckets []model.HistogramBucket
	err = r.queryRows(ctx, q, args, func(scan func(dest ...interface{}) error) error {
		var key int64
		var n uint64
		if err := scan(&key, &n); err != nil {
			return err
		}
		buckets = append(buckets, model.HistogramBucket{Key: key, KeyAsISO: bucketKeyString(key), DocCount: int64(n)})
		return nil
	})
	if err != nil {
		return model.Histogram{}, fmt.Errorf("histogram on %s: %w", agg.Field, err)
	}
	return model.Histogram{Buckets: buckets, AvgCount: histogramAverage(buckets)}, nil
}

func (r *clickhouseEventRepository) Terms(ctx context.Context, index string, filter query.Filter, agg query.TermsAgg) ([]model.TermBucket, error) {
	if !stringColumns[agg.Field] {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedField, agg.Field)
	}
	table, where, args, err := prepare(index, filter)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(
		"SELECT %s AS key, count() AS n FROM %s%s GROUP BY key ORDER BY n DESC, key ASC LIMIT ?",
		agg.Field, table, and(where, agg.Field+" != ''"))
	args = append(args, agg.Size)

	var buckets []model.TermBucket
	err = r.queryRows(ctx, q, args, func(scan func(dest ...interface{}) error) error {
		var b model.TermBucket
		var n uint64
		if err := scan(&b.Key, &n); err != nil {
			return err
		}
		b.DocCount = int64(n)
		buckets = append(buckets, b)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("top %s: %w", agg.Field, err)
	}
	return buckets, nil
}

func (r *clickhouseEventRepository) Ranges(ctx context.Context, index string, filter query.Filter, agg query.RangesAgg) ([]model.RangeBucket, error) {
	if agg.Field != model.FieldDuration {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedField, agg.Field)
	}
	if len(agg.Ranges) == 0 {
		return []model.RangeBucket{}, nil
	}
	table, where, args, err := prepare(index, filter)
	if err != nil {
		return nil, err
	}

	cols := make([]string, 0, len(agg.Ranges))
	var rangeArgs []interface{}
	for _, spec := range agg.Ranges {
		var conds []string
		if spec.From != nil {
			conds = append(conds, agg.Field+" >= ?")
			rangeArgs = append(rangeArgs, *spec.From)
		}
		if spec.To != nil {
			conds = append(conds, agg.Field+" < ?")
			rangeArgs = append(rangeArgs, *spec.To)
		}
		if len(conds) == 0 {
			conds = append(conds, "1")
		}
		cols = append(cols, "countIf("+strings.Join(conds, " AND ")+")")
	}
	q := fmt.Sprintf("SELECT %s FROM %s%s", strings.Join(cols, ", "), table, where)
	args = append(rangeArgs, args...)

	counts := make([]uint64, len(agg.Ranges))
	dest := make([]interface{}, len(counts))
	for i := range counts {
		dest[i] = &counts[i]
	}
	if err := r.queryRow(ctx, q, args, dest...); err != nil {
		return nil, fmt.Errorf("range buckets on %s: %w", agg.Field, err)
	}

	out := make([]model.RangeBucket, 0, len(agg.Ranges))
	for i, spec := range agg.Ranges {
		out = append(out, rangeBucket(spec, int64(counts[i])))
	}
	return out, nil
}

func (r *clickhouseEventRepository) Avg(ctx context.Context, index string, filter query.Filter, agg query.Avg) (*float64, error) {
	if agg.Field != model.FieldDuration {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedField, agg.Field)
	}
	table, where, args, err := prepare(index, filter)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf("SELECT avg(%s), count() FROM %s%s", agg.Field, table, where)

	var avg float64
	var n uint64
	if err := r.queryRow(ctx, q, args, &avg, &n); err != nil {
		return nil, fmt.Errorf("average %s: %w", agg.Field, err)
	}
	if n == 0 {
		return nil, nil
	}
	return &avg, nil
}

// Scan streams the selected columns; the driver reads result blocks as the
// iteration advances.
func (r *clickhouseEventRepository) Scan(ctx context.Context, index string, filter query.Filter, fields []string) iter.Seq2[model.Event, error] {
	return func(yield func(model.Event, error) bool) {
		for _, f := range fields {
			if !stringColumns[f] && !dateColumns[f] && f != model.FieldDuration {
				yield(model.Event{}, fmt.Errorf("%w: %s", ErrUnsupportedField, f))
				return
			}
		}
		table, where, args, err := prepare(index, filter)
		if err != nil {
			yield(model.Event{}, err)
			return
		}
		q := fmt.Sprintf("SELECT %s FROM %s%s", strings.Join(fields, ", "), table, where)

		ctx, cancel := withTimeout(ctx, r.timeout)
		defer cancel()

		r.logger.Debug("scan", zap.String("sql", q))
		rows, err := r.conn.Query(ctx, q, args...)
		if err != nil {
			yield(model.Event{}, fmt.Errorf("scan events: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var ev model.Event
			if err := rows.Scan(eventDestinations(&ev, fields)...); err != nil {
				yield(model.Event{}, fmt.Errorf("scan events: %w", err))
				return
			}
			if !yield(ev, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(model.Event{}, fmt.Errorf("scan events: %w", err))
		}
	}
}

func (r *clickhouseEventRepository) queryRow(ctx context.Context, q string, args []interface{}, dest ...interface{}) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	r.logger.Debug("query", zap.String("sql", q))
	return r.conn.QueryRow(ctx, q, args...).Scan(dest...)
}

func (r *clickhouseEventRepository) queryRows(ctx context.Context, q string, args []interface{}, each func(scan func(dest ...interface{}) error) error) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	r.logger.Debug("query", zap.String("sql", q))
	rows, err := r.conn.Query(ctx, q, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		if err := each(rows.Scan); err != nil {
			return err
		}
	}
	return rows.Err()
}

func eventDestinations(ev *model.Event, fields []string) []interface{} {
	dest := make([]interface{}, 0, len(fields))
	for _, f := range fields {
		switch f {
		case model.FieldType:
			dest = append(dest, (*string)(&ev.Type))
		case model.FieldRepositoryFullname:
			dest = append(dest, &ev.RepositoryFullname)
		case model.FieldRepositoryFullnameAndNumber:
			dest = append(dest, &ev.RepositoryFullnameAndNumber)
		case model.FieldAuthor:
			dest = append(dest, &ev.Author)
		case model.FieldOnAuthor:
			dest = append(dest, &ev.OnAuthor)
		case model.FieldApproval:
			dest = append(dest, &ev.Approval)
		case model.FieldState:
			dest = append(dest, &ev.State)
		case model.FieldCreatedAt:
			dest = append(dest, &ev.CreatedAt)
		case model.FieldOnCreatedAt:
			dest = append(dest, &ev.OnCreatedAt)
		case model.FieldDuration:
			dest = append(dest, &ev.Duration)
		}
	}
	return dest
}

// prepare validates the table name and renders the WHERE clause of filter.
func prepare(index string, filter query.Filter) (string, string, []interface{}, error) {
	if !tableNamePattern.MatchString(index) {
		return "", "", nil, fmt.Errorf("%w: %q", ErrUnknownIndex, index)
	}
	where, args, err := buildWhere(filter)
	if err != nil {
		return "", "", nil, err
	}
	return index, where, args, nil
}

func buildWhere(filter query.Filter) (string, []interface{}, error) {
	var conds []string
	var args []interface{}

	for _, p := range filter.Must {
		cond, condArgs, err := buildCondition(p)
		if err != nil {
			return "", nil, err
		}
		conds = append(conds, cond)
		args = append(args, condArgs...)
	}
	for _, p := range filter.MustNot {
		cond, condArgs, err := buildCondition(p)
		if err != nil {
			return "", nil, err
		}
		conds = append(conds, "NOT ("+cond+")")
		args = append(args, condArgs...)
	}

	if len(conds) == 0 {
		return "", nil, nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

func buildCondition(p query.Predicate) (string, []interface{}, error) {
	switch p := p.(type) {
	case query.Regexp:
		if !stringColumns[p.Field] {
			return "", nil, fmt.Errorf("%w: %s", ErrUnsupportedField, p.Field)
		}
		return fmt.Sprintf("match(%s, ?)", p.Field), []interface{}{"^(?:" + p.Pattern + ")$"}, nil
	case query.Range:
		var column string
		switch {
		case dateColumns[p.Field]:
			column = fmt.Sprintf("toUnixTimestamp64Milli(%s)", p.Field)
		case p.Field == model.FieldDuration:
			column = p.Field
		default:
			return "", nil, fmt.Errorf("%w: %s", ErrUnsupportedField, p.Field)
		}
		var conds []string
		var args []interface{}
		if p.Gte != nil {
			conds = append(conds, column+" >= ?")
			args = append(args, *p.Gte)
		}
		if p.Lte != nil {
			conds = append(conds, column+" <= ?")
			args = append(args, *p.Lte)
		}
		if len(conds) == 0 {
			return "1", nil, nil
		}
		return strings.Join(conds, " AND "), args, nil
	case query.Terms:
		if !stringColumns[p.Field] {
			return "", nil, fmt.Errorf("%w: %s", ErrUnsupportedField, p.Field)
		}
		if len(p.Values) == 0 {
			return "0", nil, nil
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(p.Values)), ", ")
		args := make([]interface{}, 0, len(p.Values))
		for _, v := range p.Values {
			args = append(args, v)
		}
		return fmt.Sprintf("%s IN (%s)", p.Field, placeholders), args, nil
	case query.Term:
		if !stringColumns[p.Field] {
			return "", nil, fmt.Errorf("%w: %s", ErrUnsupportedField, p.Field)
		}
		return p.Field + " = ?", []interface{}{p.Value}, nil
	default:
		return "", nil, fmt.Errorf("unsupported predicate %T", p)
	}
}

func and(where, cond string) string {
	if where == "" {
		return " WHERE " + cond
	}
	return where + " AND " + cond
}
