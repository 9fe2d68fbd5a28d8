// Copyright (c) Seismix
// SPDX-License-Identifier: Apache-2.0

package consumers_test

import (
	"context"
	"testing"
	"time"

	"github.com/go-kit/kit/metrics/generic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seismix/seismix/consumers"
	"github.com/seismix/seismix/consumers/mocks"
	"github.com/seismix/seismix/frames"
	"github.com/seismix/seismix/logger"
	"github.com/seismix/seismix/pkg/ticker"
)

const waitTimeout = time.Second

func record(sensorID uint64, at float64) consumers.Record {
	return consumers.Record{
		SensorID: sensorID,
		Reading:  frames.Reading{Channel: "EHZ", Time: at, Samples: []int64{1, 2, 3}},
	}
}

func TestBatcherFlushesOnTick(t *testing.T) {
	consumer := mocks.NewConsumer()
	dropped := generic.NewCounter("dropped")
	b := consumers.NewBatcher(consumer, 100, 10, dropped, generic.NewCounter("shed"), logger.NewMock())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tick := ticker.NewMock()
	go b.Run(ctx, tick)

	b.Enqueue(record(1, 1))
	b.Enqueue(record(1, 2))
	b.Enqueue(record(2, 3))
	tick.Fire()

	assert.Eventually(t, func() bool {
		return consumer.Total() == 3
	}, waitTimeout, time.Millisecond)
	assert.Zero(t, dropped.Value())
}

func TestBatcherFlushesOnBatchSize(t *testing.T) {
	consumer := mocks.NewConsumer()
	b := consumers.NewBatcher(consumer, 2, 10, generic.NewCounter("dropped"), generic.NewCounter("shed"), logger.NewMock())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx, ticker.NewMock())

	b.Enqueue(record(1, 1))
	b.Enqueue(record(1, 2))

	// The batch size is reached, so no tick is needed.
	assert.Eventually(t, func() bool {
		return consumer.Total() == 2
	}, waitTimeout, time.Millisecond)
}

func TestBatcherRetainsOnFailure(t *testing.T) {
	consumer := mocks.NewConsumer()
	consumer.FailNext = 1
	consumer.Err = assert.AnError
	b := consumers.NewBatcher(consumer, 100, 10, generic.NewCounter("dropped"), generic.NewCounter("shed"), logger.NewMock())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tick := ticker.NewMock()
	go b.Run(ctx, tick)

	b.Enqueue(record(1, 1))
	b.Enqueue(record(1, 2))
	tick.Fire()
	tick.Fire()

	assert.Eventually(t, func() bool {
		return consumer.Total() == 2
	}, waitTimeout, time.Millisecond, "failed batch must be retried, not lost")
	require.Len(t, consumer.Batches(), 1)
}

func TestBatcherFlushesOnShutdown(t *testing.T) {
	consumer := mocks.NewConsumer()
	b := consumers.NewBatcher(consumer, 100, 10, generic.NewCounter("dropped"), generic.NewCounter("shed"), logger.NewMock())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Run(ctx, ticker.NewMock())
		close(done)
	}()

	b.Enqueue(record(1, 1))
	cancel()
	select {
	case <-done:
	case <-time.After(waitTimeout):
		t.Fatal("batcher did not stop")
	}
	assert.Equal(t, 1, consumer.Total(), "queued records must be flushed on shutdown")
}

func TestBatcherCountsRetentionShedSeparately(t *testing.T) {
	consumer := mocks.NewConsumer()
	consumer.FailNext = 6
	consumer.Err = assert.AnError
	dropped := generic.NewCounter("dropped")
	shed := generic.NewCounter("shed")
	b := consumers.NewBatcher(consumer, 1, 10, dropped, shed, logger.NewMock())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tick := ticker.NewMock()
	go b.Run(ctx, tick)

	// Every flush fails, so retention grows past four batches and the
	// oldest records are shed.
	for i := 0; i < 6; i++ {
		b.Enqueue(record(1, float64(i+1)))
	}
	assert.Eventually(t, func() bool {
		return shed.Value() == 2
	}, waitTimeout, time.Millisecond)

	tick.Fire()
	assert.Eventually(t, func() bool {
		return consumer.Total() == 4
	}, waitTimeout, time.Millisecond, "retained records flush once the backend recovers")
	assert.Zero(t, dropped.Value(), "retention shedding must not count as a full queue")
}

func TestEnqueueShedsOldestWhenFull(t *testing.T) {
	consumer := mocks.NewConsumer()
	dropped := generic.NewCounter("dropped")
	b := consumers.NewBatcher(consumer, 100, 2, dropped, generic.NewCounter("shed"), logger.NewMock())

	// Not running yet: the queue fills and the oldest record is shed.
	b.Enqueue(record(1, 1))
	b.Enqueue(record(1, 2))
	b.Enqueue(record(1, 3))
	assert.Equal(t, float64(1), dropped.Value())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tick := ticker.NewMock()
	go b.Run(ctx, tick)
	tick.Fire()

	assert.Eventually(t, func() bool {
		return consumer.Total() == 2
	}, waitTimeout, time.Millisecond)
	batches := consumer.Batches()
	require.Len(t, batches, 1)
	assert.Equal(t, float64(2), batches[0][0].Reading.Time, "oldest record is the one shed")
}
