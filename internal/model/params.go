package model

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultInterval = "3h"
	DefaultSize     = 10
	// MaxSize caps ranking queries.
	MaxSize = 10000
)

// Parameter keys as accepted by the HTTP and CLI bindings.
const (
	ParamGte            = "gte"
	ParamLte            = "lte"
	ParamOnCCGte        = "on_cc_gte"
	ParamOnCCLte        = "on_cc_lte"
	ParamECSameDate     = "ec_same_date"
	ParamEtype          = "etype"
	ParamAuthor         = "author"
	ParamApproval       = "approval"
	ParamState          = "state"
	ParamExcludeAuthors = "exclude_authors"
	ParamInterval       = "interval"
	ParamSize           = "size"
)

// ParamKeys lists every recognized parameter key.
var ParamKeys = []string{
	ParamGte, ParamLte, ParamOnCCGte, ParamOnCCLte, ParamECSameDate, ParamEtype,
	ParamAuthor, ParamApproval, ParamState, ParamExcludeAuthors, ParamInterval, ParamSize,
}

var intervalPattern = regexp.MustCompile(`^([1-9][0-9]*)([smhdw])$`)

// ValidationError represents user input issues.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func validationErrorf(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// Params is the filter and shaping configuration of a metric query. Bounds
// are epoch milliseconds; a nil bound is unbounded.
type Params struct {
	Gte            *int64      `json:"gte,omitempty"`
	Lte            *int64      `json:"lte,omitempty"`
	OnCCGte        *int64      `json:"on_cc_gte,omitempty"`
	OnCCLte        *int64      `json:"on_cc_lte,omitempty"`
	ECSameDate     bool        `json:"ec_same_date,omitempty"`
	Etype          []EventType `json:"etype,omitempty"`
	Author         string      `json:"author,omitempty"`
	Approval       string      `json:"approval,omitempty"`
	State          string      `json:"state,omitempty"`
	ExcludeAuthors []string    `json:"exclude_authors"`
	Interval       string      `json:"interval"`
	Size           int         `json:"size"`
}

// Normalize returns a copy of p with defaults applied and the change creation
// window aligned on the event window when ECSameDate is set. It is idempotent.
func Normalize(p Params) Params {
	if p.Interval == "" {
		p.Interval = DefaultInterval
	}
	if p.Size == 0 {
		p.Size = DefaultSize
	}
	if p.ExcludeAuthors == nil {
		p.ExcludeAuthors = []string{}
	}
	if p.ECSameDate {
		p.OnCCGte = cloneBound(p.Gte)
		p.OnCCLte = cloneBound(p.Lte)
	}
	return p
}

// Validate checks a normalized parameter record.
func (p Params) Validate() error {
	if !intervalPattern.MatchString(p.Interval) {
		return validationErrorf("invalid interval %q: expected <n>s, <n>m, <n>h, <n>d or <n>w", p.Interval)
	}
	if width, err := IntervalDuration(p.Interval); err != nil || width <= 0 {
		return validationErrorf("invalid interval %q: out of range", p.Interval)
	}
	if p.Size <= 0 || p.Size > MaxSize {
		return validationErrorf("size must be between 1 and %d", MaxSize)
	}
	for _, t := range p.Etype {
		if !t.IsValid() {
			return validationErrorf("unknown event type %q", t)
		}
	}
	if p.Gte != nil && p.Lte != nil && *p.Gte > *p.Lte {
		return validationErrorf("gte must not be after lte")
	}
	if p.OnCCGte != nil && p.OnCCLte != nil && *p.OnCCGte > *p.OnCCLte {
		return validationErrorf("on_cc_gte must not be after on_cc_lte")
	}
	return nil
}

// WithEtype returns a copy of p restricted to the given event types.
func (p Params) WithEtype(types ...EventType) Params {
	p.Etype = slices.Clone(types)
	return p
}

// IntervalDuration converts a histogram interval such as "3h" or "2w" into a
// fixed duration.
func IntervalDuration(interval string) (time.Duration, error) {
	m := intervalPattern.FindStringSubmatch(interval)
	if m == nil {
		return 0, validationErrorf("invalid interval %q", interval)
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, validationErrorf("invalid interval %q", interval)
	}
	var unit time.Duration
	switch m[2] {
	case "s":
		unit = time.Second
	case "m":
		unit = time.Minute
	case "h":
		unit = time.Hour
	case "d":
		unit = 24 * time.Hour
	case "w":
		unit = 7 * 24 * time.Hour
	}
	if n > math.MaxInt64/int64(unit) {
		return 0, validationErrorf("invalid interval %q: out of range", interval)
	}
	return time.Duration(n) * unit, nil
}

// ParseParams builds a Params record from string values keyed by parameter
// name. Lists are comma separated; bounds are epoch milliseconds or RFC3339.
func ParseParams(values map[string]string) (Params, error) {
	var p Params
	var err error

	for key, raw := range values {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		switch key {
		case ParamGte:
			p.Gte, err = parseBound(key, raw)
		case ParamLte:
			p.Lte, err = parseBound(key, raw)
		case ParamOnCCGte:
			p.OnCCGte, err = parseBound(key, raw)
		case ParamOnCCLte:
			p.OnCCLte, err = parseBound(key, raw)
		case ParamECSameDate:
			p.ECSameDate, err = strconv.ParseBool(raw)
			if err != nil {
				err = validationErrorf("invalid %s: %q", key, raw)
			}
		case ParamEtype:
			for _, t := range splitList(raw) {
				p.Etype = append(p.Etype, EventType(t))
			}
		case ParamAuthor:
			p.Author = raw
		case ParamApproval:
			p.Approval = raw
		case ParamState:
			p.State = raw
		case ParamExcludeAuthors:
			p.ExcludeAuthors = splitList(raw)
		case ParamInterval:
			p.Interval = raw
		case ParamSize:
			p.Size, err = strconv.Atoi(raw)
			if err != nil {
				err = validationErrorf("invalid %s: %q", key, raw)
			}
		}
		if err != nil {
			return Params{}, err
		}
	}

	p = Normalize(p)
	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}

func parseBound(key, raw string) (*int64, error) {
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return &ms, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		ms := t.UnixMilli()
		return &ms, nil
	}
	return nil, validationErrorf("invalid %s: %q", key, raw)
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func cloneBound(b *int64) *int64 {
	if b == nil {
		return nil
	}
	v := *b
	return &v
}

// Bound is a convenience constructor for an epoch-millisecond bound.
func Bound(t time.Time) *int64 {
	ms := t.UnixMilli()
	return &ms
}
