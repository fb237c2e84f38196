package model

import (
	"encoding/json"
)

// Status tells apart a computed metric, an undefined one and a failed
// backend call.
type Status string

const (
	StatusOK             Status = "ok"
	StatusEmpty          Status = "empty"
	StatusBackendFailure Status = "backend_failure"
)

// Result carries the outcome of a metric computation. Value is only
// meaningful when Status is StatusOK.
type Result[T any] struct {
	Status Status
	Value  T
	Err    error
}

// OK wraps a computed value.
func OK[T any](v T) Result[T] {
	return Result[T]{Status: StatusOK, Value: v}
}

// Empty marks a metric that has no defined value for the matched data.
func Empty[T any]() Result[T] {
	return Result[T]{Status: StatusEmpty}
}

// Failure marks a metric whose backend call failed.
func Failure[T any](err error) Result[T] {
	return Result[T]{Status: StatusBackendFailure, Err: err}
}

func (r Result[T]) IsOK() bool { return r.Status == StatusOK }

func (r Result[T]) IsEmpty() bool { return r.Status == StatusEmpty }

func (r Result[T]) IsFailure() bool { return r.Status == StatusBackendFailure }

// Outcome is the type-erased view of a Result used by the bindings.
type Outcome interface {
	OutcomeStatus() Status
	OutcomeError() error
	json.Marshaler
}

func (r Result[T]) OutcomeStatus() Status { return r.Status }

func (r Result[T]) OutcomeError() error { return r.Err }

type resultJSON struct {
	Status Status `json:"status"`
	Value  any    `json:"value,omitempty"`
	Error  string `json:"error,omitempty"`
}

func (r Result[T]) MarshalJSON() ([]byte, error) {
	out := resultJSON{Status: r.Status}
	switch r.Status {
	case StatusOK:
		out.Value = r.Value
	case StatusBackendFailure:
		if r.Err != nil {
			out.Error = r.Err.Error()
		}
	}
	return json.Marshal(out)
}
