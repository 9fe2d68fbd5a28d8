// Copyright (c) Seismix
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"time"

	"github.com/go-kit/kit/metrics"

	"github.com/seismix/seismix/frames"
	"github.com/seismix/seismix/live"
	"github.com/seismix/seismix/sensors"
)

var _ live.Service = (*metricsMiddleware)(nil)

type metricsMiddleware struct {
	counter metrics.Counter
	latency metrics.Histogram
	svc     live.Service
}

// MetricsMiddleware instruments the live fan-out service by tracking
// request count and latency.
func MetricsMiddleware(svc live.Service, counter metrics.Counter, latency metrics.Histogram) live.Service {
	return &metricsMiddleware{
		counter: counter,
		latency: latency,
		svc:     svc,
	}
}

func (mm *metricsMiddleware) Attach(ctx context.Context, sensorID uint64, format live.Format, conn live.Conn) (*live.Client, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "attach").Add(1)
		mm.latency.With("method", "attach").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Attach(ctx, sensorID, format, conn)
}

func (mm *metricsMiddleware) Detach(c *live.Client) {
	defer func(begin time.Time) {
		mm.counter.With("method", "detach").Add(1)
		mm.latency.With("method", "detach").Observe(time.Since(begin).Seconds())
	}(time.Now())

	mm.svc.Detach(c)
}

func (mm *metricsMiddleware) Broadcast(sensorID uint64, reading frames.Reading) {
	defer func(begin time.Time) {
		mm.counter.With("method", "broadcast").Add(1)
		mm.latency.With("method", "broadcast").Observe(time.Since(begin).Seconds())
	}(time.Now())

	mm.svc.Broadcast(sensorID, reading)
}

func (mm *metricsMiddleware) Notify(sensorID uint64, text string) {
	defer func(begin time.Time) {
		mm.counter.With("method", "notify").Add(1)
		mm.latency.With("method", "notify").Observe(time.Since(begin).Seconds())
	}(time.Now())

	mm.svc.Notify(sensorID, text)
}

func (mm *metricsMiddleware) Sweep() {
	mm.svc.Sweep()
}

func (mm *metricsMiddleware) BroadcastMarkers(update live.MarkerUpdate, filter live.Filter) {
	defer func(begin time.Time) {
		mm.counter.With("method", "broadcast_markers").Add(1)
		mm.latency.With("method", "broadcast_markers").Observe(time.Since(begin).Seconds())
	}(time.Now())

	mm.svc.BroadcastMarkers(update, filter)
}

func (mm *metricsMiddleware) EvictSensor(id uint64, reason sensors.EvictReason) {
	defer func(begin time.Time) {
		mm.counter.With("method", "evict_sensor").Add(1)
		mm.latency.With("method", "evict_sensor").Observe(time.Since(begin).Seconds())
	}(time.Now())

	mm.svc.EvictSensor(id, reason)
}

func (mm *metricsMiddleware) Shutdown() {
	mm.svc.Shutdown()
}
