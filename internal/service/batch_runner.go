package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Request is one independent backend round trip of a composite metric. Run
// stores its own result; Key identifies it in errors and logs.
type Request struct {
	Key string
	Run func(ctx context.Context) error
}

// BatchRunner executes the independent requests of a metric. Results are
// merged by key by the callers so execution order does not matter.
type BatchRunner interface {
	Run(ctx context.Context, requests []Request) error
}

type sequentialRunner struct {
	logger *zap.Logger
}

type concurrentRunner struct {
	limit  int
	logger *zap.Logger
}

// NewBatchRunner returns a runner executing at most concurrency requests at a
// time. A concurrency of one or less runs requests in sequence.
func NewBatchRunner(concurrency int, logger *zap.Logger) BatchRunner {
	logger = logger.Named("batch")
	if concurrency <= 1 {
		return &sequentialRunner{logger: logger}
	}
	return &concurrentRunner{limit: concurrency, logger: logger}
}

func (r *sequentialRunner) Run(ctx context.Context, requests []Request) error {
	var errs []error
	for _, req := range requests {
		if err := req.Run(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", req.Key, err))
		}
	}
	r.logger.Debug("batch done", zap.Int("requests", len(requests)), zap.Int("failed", len(errs)))
	return errors.Join(errs...)
}

func (r *concurrentRunner) Run(ctx context.Context, requests []Request) error {
	errs := make([]error, len(requests))

	var g errgroup.Group
	g.SetLimit(r.limit)
	for i, req := range requests {
		g.Go(func() error {
			if err := req.Run(ctx); err != nil {
				errs[i] = fmt.Errorf("%s: %w", req.Key, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	err := errors.Join(errs...)
	if err != nil {
		r.logger.Debug("batch failed", zap.Int("requests", len(requests)), zap.Error(err))
	}
	return err
}
