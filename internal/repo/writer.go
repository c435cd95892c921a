// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CivGrid Contributors

package repo

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/civgrid/civgrid/internal/observability"
)

const saveQueueSize = 1024

// saveOp is one queued persistence write. apply runs the provider call;
// flush marks a drain barrier instead of a write.
type saveOp struct {
	collection string
	key        string
	apply      func(ctx context.Context) error
	flush      chan struct{}
}

// asyncWriter applies queued writes on a single goroutine so the hot
// path never blocks on disk or network. Writes are retried with backoff;
// a write that keeps failing is logged and dropped, the authoritative
// state stays in memory and the next flush rewrites everything.
type asyncWriter struct {
	log     *slog.Logger
	metrics *observability.Metrics
	ops     chan saveOp
	done    chan struct{}
}

func newAsyncWriter(log *slog.Logger, metrics *observability.Metrics) *asyncWriter {
	return &asyncWriter{
		log:     log,
		metrics: metrics,
		ops:     make(chan saveOp, saveQueueSize),
		done:    make(chan struct{}),
	}
}

func (w *asyncWriter) start() {
	go w.run()
}

func (w *asyncWriter) run() {
	defer close(w.done)
	for op := range w.ops {
		if op.flush != nil {
			close(op.flush)
			continue
		}
		w.metrics.SetQueueDepth(len(w.ops))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		backoff := retry.WithMaxRetries(5, retry.NewExponential(100*time.Millisecond))
		err := retry.Do(ctx, backoff, func(ctx context.Context) error {
			if err := op.apply(ctx); err != nil {
				return retry.RetryableError(err)
			}
			return nil
		})
		cancel()

		if err != nil {
			w.metrics.RecordSave(op.collection, "failed")
			w.log.Error("async save failed, record stays dirty in memory",
				"collection", op.collection, "key", op.key, "error", err)
			continue
		}
		w.metrics.RecordSave(op.collection, "ok")
	}
}

// enqueue queues a write. A full queue blocks the caller; that only
// happens when the provider has been failing for a while.
func (w *asyncWriter) enqueue(op saveOp) {
	select {
	case <-w.done:
		w.log.Warn("write dropped, writer stopped",
			"collection", op.collection, "key", op.key)
	default:
		w.ops <- op
	}
}

// drain blocks until every write queued before the call has been
// applied (or given up on).
func (w *asyncWriter) drain(ctx context.Context) error {
	barrier := make(chan struct{})
	select {
	case w.ops <- saveOp{flush: barrier}:
	case <-ctx.Done():
		return oops.With("operation", "drain_save_queue").Wrap(ctx.Err())
	case <-w.done:
		return nil
	}

	select {
	case <-barrier:
		return nil
	case <-ctx.Done():
		return oops.With("operation", "drain_save_queue").Wrap(ctx.Err())
	case <-w.done:
		return nil
	}
}

// stop drains and shuts the writer down.
func (w *asyncWriter) stop(ctx context.Context) error {
	if err := w.drain(ctx); err != nil {
		return err
	}
	close(w.ops)
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return oops.With("operation", "stop_writer").Wrap(ctx.Err())
	}
}

// clone deep-copies a record through its JSON form so the writer can
// marshal it off-thread while the original keeps mutating.
func clone[T any](src *T) (*T, error) {
	data, err := json.Marshal(src)
	if err != nil {
		return nil, err
	}
	dst := new(T)
	if err := json.Unmarshal(data, dst); err != nil {
		return nil, err
	}
	return dst, nil
}
