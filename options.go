// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package executor

import (
	"errors"
	"fmt"

	"github.com/joeycumines/logiface"
)

// DefaultBatchSize is the number of tasks a worker polls before re-checking
// whether to wake another worker.
const DefaultBatchSize = 16

// executorOptions holds configuration options for executor creation.
type executorOptions struct {
	logger         *logiface.Logger[logiface.Event]
	panicHandler   func(err *PanicError)
	affinity       []int
	batchSize      int
	readyQueueSize int
	fakeTime       bool
	metricsEnabled bool
}

// --- Executor Options ---

// ExecutorOption configures an executor.
type ExecutorOption interface {
	applyExecutor(*executorOptions) error
}

// executorOptionImpl implements ExecutorOption.
type executorOptionImpl struct {
	applyExecutorFunc func(*executorOptions) error
}

func (x *executorOptionImpl) applyExecutor(opts *executorOptions) error {
	return x.applyExecutorFunc(opts)
}

// WithLogger sets the structured logger. A nil logger (the default) disables
// logging.
func WithLogger(logger *logiface.Logger[logiface.Event]) ExecutorOption {
	return &executorOptionImpl{func(opts *executorOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithBatchSize sets the number of tasks polled per worker iteration.
// Defaults to DefaultBatchSize.
func WithBatchSize(n int) ExecutorOption {
	return &executorOptionImpl{func(opts *executorOptions) error {
		if n < 1 {
			return fmt.Errorf("executor: invalid batch size %d", n)
		}
		opts.batchSize = n
		return nil
	}}
}

// WithFakeTime sets whether the executor runs on a fake clock, starting at
// zero and advanced only by Executor.SetFakeTime and friends. Only test
// executors accept it.
func WithFakeTime(enabled bool) ExecutorOption {
	return &executorOptionImpl{func(opts *executorOptions) error {
		opts.fakeTime = enabled
		return nil
	}}
}

// WithThreadAffinity pins worker i of a multi-threaded executor to
// cpus[i%len(cpus)]. Pinning is best effort, failures are logged. Not
// supported on all platforms.
func WithThreadAffinity(cpus ...int) ExecutorOption {
	return &executorOptionImpl{func(opts *executorOptions) error {
		for _, cpu := range cpus {
			if cpu < 0 {
				return fmt.Errorf("executor: invalid cpu %d", cpu)
			}
		}
		opts.affinity = cpus
		return nil
	}}
}

// WithMetrics enables poll latency sampling, reported by EHandle.Stats.
func WithMetrics(enabled bool) ExecutorOption {
	return &executorOptionImpl{func(opts *executorOptions) error {
		opts.metricsEnabled = enabled
		return nil
	}}
}

// WithReadyQueueCapacity sets the capacity of the lock-free portion of the
// ready queue, rounded up to a power of two. Tasks beyond it spill to a
// slower overflow.
func WithReadyQueueCapacity(n int) ExecutorOption {
	return &executorOptionImpl{func(opts *executorOptions) error {
		if n < 1 {
			return fmt.Errorf("executor: invalid ready queue capacity %d", n)
		}
		opts.readyQueueSize = n
		return nil
	}}
}

// WithPanicHandler sets a function called, on the polling goroutine, for
// every panic recovered from a task.
func WithPanicHandler(fn func(err *PanicError)) ExecutorOption {
	return &executorOptionImpl{func(opts *executorOptions) error {
		opts.panicHandler = fn
		return nil
	}}
}

var errFakeTimeUnsupported = errors.New("executor: fake time is only supported by test executors")

// resolveExecutorOptions applies ExecutorOption instances to executorOptions.
func resolveExecutorOptions(opts []ExecutorOption) (*executorOptions, error) {
	cfg := &executorOptions{
		batchSize:      DefaultBatchSize,
		readyQueueSize: defaultReadyQueueCapacity,
	}
	for _, opt := range opts {
		if opt == nil {
			continue // Skip nil options gracefully
		}
		if err := opt.applyExecutor(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
