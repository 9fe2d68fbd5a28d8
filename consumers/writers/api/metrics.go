// Copyright (c) Seismix
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"time"

	"github.com/go-kit/kit/metrics"

	"github.com/seismix/seismix/consumers"
)

var _ consumers.BlockingConsumer = (*metricsMiddleware)(nil)

type metricsMiddleware struct {
	counter  metrics.Counter
	latency  metrics.Histogram
	consumer consumers.BlockingConsumer
}

// MetricsMiddleware instruments the reading writer by tracking request
// count and latency.
func MetricsMiddleware(consumer consumers.BlockingConsumer, counter metrics.Counter, latency metrics.Histogram) consumers.BlockingConsumer {
	return &metricsMiddleware{
		counter:  counter,
		latency:  latency,
		consumer: consumer,
	}
}

func (mm *metricsMiddleware) ConsumeBlocking(ctx context.Context, records []consumers.Record) error {
	defer func(begin time.Time) {
		mm.counter.With("method", "consume").Add(1)
		mm.latency.With("method", "consume").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.consumer.ConsumeBlocking(ctx, records)
}
