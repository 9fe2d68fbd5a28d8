// Copyright (c) Seismix
// SPDX-License-Identifier: Apache-2.0

// Package ingest contains the UDP datagram ingestion service: it matches
// datagrams to catalog sensors by origin address, decodes them and feeds
// the live fan-out and the persistence queue.
package ingest

import (
	"fmt"
	"net"

	"github.com/go-kit/kit/metrics"

	"github.com/seismix/seismix/consumers"
	"github.com/seismix/seismix/frames"
	"github.com/seismix/seismix/logger"
	"github.com/seismix/seismix/sensors"
)

// logSampleEvery limits repeated per-address warnings. The first
// occurrence always logs.
const logSampleEvery = 100

// Registry is the catalog lookup the hot path needs. Satisfied by
// *sensors.Registry.
type Registry interface {
	Lookup(originAddr string) (sensors.Sensor, bool)
}

// Tracker records reading recency. Satisfied by *sensors.Liveness.
type Tracker interface {
	Touch(id uint64)
}

// Broadcaster pushes readings to live subscribers. Satisfied by the live
// fan-out service.
type Broadcaster interface {
	Broadcast(sensorID uint64, reading frames.Reading)
}

// Enqueuer queues readings for persistence. Satisfied by
// *consumers.Batcher.
type Enqueuer interface {
	Enqueue(r consumers.Record)
}

// Service specifies the datagram ingestion API.
type Service interface {
	// HandleDatagram processes one UDP payload from the given source.
	HandleDatagram(src *net.UDPAddr, payload []byte)
}

var _ Service = (*ingestService)(nil)

type ingestService struct {
	registry    Registry
	tracker     Tracker
	broadcaster Broadcaster
	enqueuer    Enqueuer
	logger      logger.Logger

	unknown   metrics.Counter
	malformed metrics.Counter

	// Touched only from the single datagram read loop, so no lock.
	unknownSeen   map[string]uint64
	malformedSeen map[string]uint64
}

// New instantiates the ingestion service.
func New(registry Registry, tracker Tracker, broadcaster Broadcaster, enqueuer Enqueuer, unknown, malformed metrics.Counter, logger logger.Logger) Service {
	return &ingestService{
		registry:      registry,
		tracker:       tracker,
		broadcaster:   broadcaster,
		enqueuer:      enqueuer,
		logger:        logger,
		unknown:       unknown,
		malformed:     malformed,
		unknownSeen:   map[string]uint64{},
		malformedSeen: map[string]uint64{},
	}
}

func (svc *ingestService) HandleDatagram(src *net.UDPAddr, payload []byte) {
	addr := src.IP.String()
	s, ok := svc.registry.Lookup(addr)
	if !ok {
		svc.unknown.Add(1)
		if sampled(svc.unknownSeen, addr) {
			svc.logger.Warn(fmt.Sprintf("dropping datagram from unregistered address %s", addr))
		}
		return
	}

	readings, err := frames.ParseDatagram(payload)
	if err != nil {
		svc.malformed.Add(1)
		if sampled(svc.malformedSeen, addr) {
			svc.logger.Warn(fmt.Sprintf("dropping malformed datagram from sensor %d at %s: %s", s.ID, addr, err))
		}
		return
	}

	svc.tracker.Touch(s.ID)
	for _, r := range readings {
		svc.enqueuer.Enqueue(consumers.Record{SensorID: s.ID, Reading: r})
		svc.broadcaster.Broadcast(s.ID, r)
	}
}

// sampled reports whether this occurrence should log: the first per key,
// then every logSampleEvery-th.
func sampled(seen map[string]uint64, key string) bool {
	n := seen[key]
	seen[key] = n + 1
	return n%logSampleEvery == 0
}
