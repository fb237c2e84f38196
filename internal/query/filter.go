// Package query turns metric parameters into backend-agnostic predicates and
// aggregation specifications.
package query

import (
	"review-metrics-service/internal/model"
)

// Predicate is a single boolean condition on a document field.
type Predicate interface {
	predicate()
}

// Regexp matches a keyword field against an anchored pattern.
type Regexp struct {
	Field   string
	Pattern string
}

// Range bounds a date or numeric field. Bounds are inclusive; a nil bound is
// not part of the condition.
type Range struct {
	Field string
	Gte   *int64
	Lte   *int64
}

// Terms matches documents whose field equals one of Values.
type Terms struct {
	Field  string
	Values []string
}

// Term matches documents whose field equals Value.
type Term struct {
	Field string
	Value string
}

func (Regexp) predicate() {}
func (Range) predicate()  {}
func (Terms) predicate()  {}
func (Term) predicate()   {}

// Filter is the conjunction of Must and the negation of every MustNot
// predicate.
type Filter struct {
	Must    []Predicate
	MustNot []Predicate
}

// BuildFilter returns the positive predicates selecting the documents of a
// repository that match params.
func BuildFilter(repositoryFullname string, params model.Params) []Predicate {
	onCCGte, onCCLte := params.OnCCGte, params.OnCCLte
	if params.ECSameDate {
		onCCGte, onCCLte = params.Gte, params.Lte
	}

	preds := []Predicate{
		Regexp{Field: model.FieldRepositoryFullname, Pattern: repositoryFullname},
	}
	if r, ok := boundedRange(model.FieldCreatedAt, params.Gte, params.Lte); ok {
		preds = append(preds, r)
	}
	if r, ok := boundedRange(model.FieldOnCreatedAt, onCCGte, onCCLte); ok {
		preds = append(preds, r)
	}
	if len(params.Etype) > 0 {
		values := make([]string, 0, len(params.Etype))
		for _, t := range params.Etype {
			values = append(values, string(t))
		}
		preds = append(preds, Terms{Field: model.FieldType, Values: values})
	}
	if params.Author != "" {
		preds = append(preds, Term{Field: model.FieldAuthor, Value: params.Author})
	}
	if params.State != "" {
		preds = append(preds, Term{Field: model.FieldState, Value: params.State})
	}
	if params.Approval != "" {
		preds = append(preds, Term{Field: model.FieldApproval, Value: params.Approval})
	}
	return preds
}

// BuildExclusion returns the negative predicates of params. Change documents
// are excluded unless excludeChange is false.
func BuildExclusion(params model.Params, excludeChange bool) []Predicate {
	var preds []Predicate
	if len(params.ExcludeAuthors) > 0 {
		preds = append(preds, Terms{Field: model.FieldAuthor, Values: append([]string(nil), params.ExcludeAuthors...)})
	}
	if excludeChange {
		preds = append(preds, Term{Field: model.FieldType, Value: string(model.Change)})
	}
	return preds
}

// New builds the full filter of a metric query.
func New(repositoryFullname string, params model.Params, excludeChange bool) Filter {
	return Filter{
		Must:    BuildFilter(repositoryFullname, params),
		MustNot: BuildExclusion(params, excludeChange),
	}
}

func boundedRange(field string, gte, lte *int64) (Range, bool) {
	if gte == nil && lte == nil {
		return Range{}, false
	}
	r := Range{Field: field}
	if gte != nil {
		v := *gte
		r.Gte = &v
	}
	if lte != nil {
		v := *lte
		r.Lte = &v
	}
	return r, true
}
