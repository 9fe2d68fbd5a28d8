// Copyright (c) Seismix
// SPDX-License-Identifier: Apache-2.0

package ingest_test

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/go-kit/kit/metrics/generic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seismix/seismix/consumers"
	"github.com/seismix/seismix/frames"
	"github.com/seismix/seismix/ingest"
	"github.com/seismix/seismix/logger"
	"github.com/seismix/seismix/sensors"
	"github.com/seismix/seismix/sensors/mocks"
)

type sink struct {
	mu        sync.Mutex
	touched   []uint64
	enqueued  []consumers.Record
	broadcast []consumers.Record
}

func (s *sink) Touch(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched = append(s.touched, id)
}

func (s *sink) Enqueue(r consumers.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enqueued = append(s.enqueued, r)
}

func (s *sink) Broadcast(sensorID uint64, reading frames.Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcast = append(s.broadcast, consumers.Record{SensorID: sensorID, Reading: reading})
}

func newService(t *testing.T) (ingest.Service, *sink, *generic.Counter, *generic.Counter) {
	t.Helper()
	repo := mocks.NewRepository([]sensors.Sensor{
		{ID: 7, OriginAddr: "10.0.0.7", Type: "shake"},
	}, nil)
	reg := sensors.NewRegistry(repo, time.Second, logger.NewMock())
	require.Nil(t, reg.Refresh(context.Background(), nil))

	s := &sink{}
	unknown := generic.NewCounter("unknown")
	malformed := generic.NewCounter("malformed")
	svc := ingest.New(reg, s, s, s, unknown, malformed, logger.NewMock())
	return svc, s, unknown, malformed
}

func addr(ip string) *net.UDPAddr {
	return &net.UDPAddr{IP: net.ParseIP(ip), Port: 2098}
}

func TestHandleDatagramRegisteredSensor(t *testing.T) {
	svc, s, unknown, malformed := newService(t)

	svc.HandleDatagram(addr("10.0.0.7"), []byte("{'EHZ', 1700000000.0, 10, 20, 30}"))

	require.Len(t, s.touched, 1)
	assert.Equal(t, uint64(7), s.touched[0])

	require.Len(t, s.enqueued, 1)
	assert.Equal(t, "EHZ", s.enqueued[0].Reading.Channel)
	assert.Equal(t, []int64{10, 20, 30}, s.enqueued[0].Reading.Samples)

	require.Len(t, s.broadcast, 1)
	assert.Equal(t, uint64(7), s.broadcast[0].SensorID)

	assert.Zero(t, unknown.Value())
	assert.Zero(t, malformed.Value())
}

func TestHandleDatagramMultiFrame(t *testing.T) {
	svc, s, _, _ := newService(t)

	svc.HandleDatagram(addr("10.0.0.7"), []byte("{'EHZ', 1.0, 1}{'ENN', 2.0, 2}"))

	assert.Len(t, s.enqueued, 2)
	assert.Len(t, s.broadcast, 2)
	assert.Len(t, s.touched, 1, "one datagram is one touch")
}

func TestHandleDatagramUnknownOrigin(t *testing.T) {
	svc, s, unknown, _ := newService(t)

	svc.HandleDatagram(addr("192.168.1.50"), []byte("{'EHZ', 1.0, 1}"))

	assert.Empty(t, s.touched)
	assert.Empty(t, s.enqueued)
	assert.Empty(t, s.broadcast)
	assert.Equal(t, float64(1), unknown.Value())
}

func TestHandleDatagramMalformed(t *testing.T) {
	svc, s, _, malformed := newService(t)

	svc.HandleDatagram(addr("10.0.0.7"), []byte("not a frame"))

	assert.Empty(t, s.touched, "malformed datagrams must not count as liveness")
	assert.Empty(t, s.enqueued)
	assert.Equal(t, float64(1), malformed.Value())
}
