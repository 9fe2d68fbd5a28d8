// Copyright (c) Seismix
// SPDX-License-Identifier: Apache-2.0

package consumers

import (
	"context"
	"fmt"

	"github.com/go-kit/kit/metrics"

	"github.com/seismix/seismix/logger"
	"github.com/seismix/seismix/pkg/ticker"
)

// retainFactor bounds how many pending records a failed backend may pile
// up before the oldest are shed.
const retainFactor = 4

// Batcher accumulates records and hands them to the backend either when
// the batch size is reached or on the flush tick, whichever comes first.
// Enqueue never blocks: when the queue is full the oldest queued record is
// shed and counted.
type Batcher struct {
	consumer  BlockingConsumer
	batchSize int
	dropped   metrics.Counter
	shed      metrics.Counter
	logger    logger.Logger

	queue   chan Record
	pending []Record
}

// NewBatcher returns a batcher with a queue of queueSize records flushing
// at batchSize. Records dropped by a full queue count on dropped; records
// shed from a failing backend's retained batch count on shed.
func NewBatcher(consumer BlockingConsumer, batchSize, queueSize int, dropped, shed metrics.Counter, logger logger.Logger) *Batcher {
	return &Batcher{
		consumer:  consumer,
		batchSize: batchSize,
		dropped:   dropped,
		shed:      shed,
		logger:    logger,
		queue:     make(chan Record, queueSize),
	}
}

// Enqueue queues a record for persistence without blocking. When the queue
// is full the oldest record is dropped to make room and the drop counter
// is incremented.
func (b *Batcher) Enqueue(r Record) {
	for {
		select {
		case b.queue <- r:
			return
		default:
		}
		select {
		case <-b.queue:
			b.dropped.Add(1)
		default:
		}
	}
}

// Run drains the queue until the context is cancelled, then flushes what
// remains. Failed flushes retain their records and retry on the next tick,
// shedding the oldest once retention exceeds retainFactor batches.
func (b *Batcher) Run(ctx context.Context, tick ticker.Ticker) {
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			b.drain()
			b.flush(context.Background())
			return
		case r := <-b.queue:
			b.pending = append(b.pending, r)
			if len(b.pending) >= b.batchSize {
				b.flush(ctx)
			}
		case <-tick.Tick():
			b.drain()
			b.flush(ctx)
		}
	}
}

// drain moves everything currently queued into the pending batch.
func (b *Batcher) drain() {
	for {
		select {
		case r := <-b.queue:
			b.pending = append(b.pending, r)
		default:
			return
		}
	}
}

func (b *Batcher) flush(ctx context.Context) {
	if len(b.pending) == 0 {
		return
	}
	if err := b.consumer.ConsumeBlocking(ctx, b.pending); err != nil {
		b.logger.Warn(fmt.Sprintf("failed to flush %d records, retrying on next tick: %s", len(b.pending), err))
		if max := retainFactor * b.batchSize; len(b.pending) > max {
			n := len(b.pending) - max
			b.pending = b.pending[n:]
			b.shed.Add(float64(n))
			b.logger.Warn(fmt.Sprintf("shed %d oldest retained records", n))
		}
		return
	}
	b.pending = nil
}
