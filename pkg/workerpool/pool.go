// Package workerpool runs independent units of work with bounded parallelism.
package workerpool

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config configures a Pool.
type Config struct {
	MaxConcurrent int // defaults to runtime.NumCPU()
}

// DefaultConfig sizes the pool to the host parallelism.
func DefaultConfig() Config {
	return Config{MaxConcurrent: runtime.NumCPU()}
}

// Pool limits how many work items run at once. A semaphore bounds the
// outstanding items and results are collected as they complete.
type Pool struct {
	config Config
	logger *zap.Logger
}

// New creates a pool. Non-positive sizes fall back to DefaultConfig.
func New(config Config, logger *zap.Logger) *Pool {
	if config.MaxConcurrent < 1 {
		config.MaxConcurrent = DefaultConfig().MaxConcurrent
	}
	return &Pool{
		config: config,
		logger: logger.Named("worker-pool"),
	}
}

// Size returns the maximum number of concurrently running items.
func (p *Pool) Size() int {
	return p.config.MaxConcurrent
}

// WorkItem is one unit of work.
type WorkItem[T any] struct {
	ID      string
	Execute func(ctx context.Context) (T, error)
}

// WorkResult is the outcome of a WorkItem.
type WorkResult[T any] struct {
	ID       string
	Result   T
	Err      error
	Duration time.Duration
}

// Process runs every item and returns one result per item in completion
// order. A failing or panicking item never stops the others. Items still
// waiting for a slot when ctx is done report ctx.Err().
func Process[T any](
	ctx context.Context,
	pool *Pool,
	items []WorkItem[T],
	onProgress func(completed, total int),
) []WorkResult[T] {
	if len(items) == 0 {
		return nil
	}

	resultsChan := make(chan WorkResult[T], len(items))
	sem := make(chan struct{}, pool.config.MaxConcurrent)

	var wg sync.WaitGroup
	for _, item := range items {
		wg.Add(1)
		go func(item WorkItem[T]) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				resultsChan <- WorkResult[T]{ID: item.ID, Err: ctx.Err()}
				return
			}

			resultsChan <- run(ctx, pool.logger, item)
		}(item)
	}

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	results := make([]WorkResult[T], 0, len(items))
	for result := range resultsChan {
		results = append(results, result)
		if onProgress != nil {
			onProgress(len(results), len(items))
		}
	}
	return results
}

func run[T any](ctx context.Context, logger *zap.Logger, item WorkItem[T]) (res WorkResult[T]) {
	start := time.Now()
	res.ID = item.ID
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Work item panicked", zap.String("id", item.ID), zap.Any("panic", r))
			var zero T
			res.Result = zero
			res.Err = fmt.Errorf("work item %s panicked: %v", item.ID, r)
		}
		res.Duration = time.Since(start)
	}()

	res.Result, res.Err = item.Execute(ctx)
	return res
}
