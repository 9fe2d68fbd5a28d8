// Copyright (c) Seismix
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"net"
	"time"

	"github.com/go-kit/kit/metrics"

	"github.com/seismix/seismix/ingest"
)

var _ ingest.Service = (*metricsMiddleware)(nil)

type metricsMiddleware struct {
	counter metrics.Counter
	latency metrics.Histogram
	svc     ingest.Service
}

// MetricsMiddleware instruments the ingestion service by tracking datagram
// count and handling latency.
func MetricsMiddleware(svc ingest.Service, counter metrics.Counter, latency metrics.Histogram) ingest.Service {
	return &metricsMiddleware{
		counter: counter,
		latency: latency,
		svc:     svc,
	}
}

func (mm *metricsMiddleware) HandleDatagram(src *net.UDPAddr, payload []byte) {
	defer func(begin time.Time) {
		mm.counter.With("method", "handle_datagram").Add(1)
		mm.latency.With("method", "handle_datagram").Observe(time.Since(begin).Seconds())
	}(time.Now())

	mm.svc.HandleDatagram(src, payload)
}
