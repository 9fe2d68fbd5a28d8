// Copyright (c) Seismix
// SPDX-License-Identifier: Apache-2.0

// Package live contains the websocket fan-out service that streams sensor
// readings, messages and marker updates to dashboard subscribers.
package live

import (
	"context"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/seismix/seismix/frames"
	"github.com/seismix/seismix/logger"
	"github.com/seismix/seismix/markers"
	"github.com/seismix/seismix/pkg/errors"
	"github.com/seismix/seismix/pkg/uuid"
	"github.com/seismix/seismix/sensors"
)

// Application close codes sent to subscribers.
const (
	// CloseSensorNotFound is sent when the requested sensor does not exist.
	CloseSensorNotFound = 4404

	// CloseSensorDuplicate is sent when the requested sensor lost its
	// origin address to another catalog entry.
	CloseSensorDuplicate = 4409

	closeReasonNotFound  = "Couldn't find a sensor with that ID. Make sure the conversion from secondary to primary IDs is correct."
	closeReasonDuplicate = "The sensor with that ID is marked as a duplicate of another sensor."
	closeReasonShutdown  = "Server is shutting down."
)

var (
	// ErrNotFound indicates the requested sensor is not in the catalog.
	ErrNotFound = errors.New("sensor not found")

	// ErrDuplicate indicates the requested sensor is a duplicate entry.
	ErrDuplicate = errors.New("sensor is a duplicate of another sensor")

	errMarkerFetch = errors.New("failed to fetch markers for sensor type")
)

// Resolver is the catalog view the fan-out consults on attach. Satisfied by
// *sensors.Registry.
type Resolver interface {
	LookupByID(id uint64) (sensors.Sensor, bool)
	Type(name string) (sensors.SensorType, bool)
	Refreshed() bool
}

// Filter narrows a marker broadcast to a subset of subscribers. A zero
// filter matches everyone.
type Filter struct {
	SensorIDs   []uint64 `json:"sensor_ids,omitempty"`
	SensorTypes []string `json:"sensor_types,omitempty"`
}

func (f Filter) matches(s sensors.Sensor) bool {
	if len(f.SensorIDs) == 0 && len(f.SensorTypes) == 0 {
		return true
	}
	for _, id := range f.SensorIDs {
		if id == s.ID {
			return true
		}
	}
	for _, t := range f.SensorTypes {
		if t == s.Type {
			return true
		}
	}
	return false
}

// Service specifies the live fan-out API.
type Service interface {
	// Attach registers a subscriber connection for the given sensor and
	// sends the initial sensor-meta and add-markers events.
	Attach(ctx context.Context, sensorID uint64, format Format, conn Conn) (*Client, error)

	// Detach removes a subscriber. The connection is closed by the caller.
	Detach(c *Client)

	// Broadcast pushes a reading to every subscriber of the sensor.
	Broadcast(sensorID uint64, reading frames.Reading)

	// Notify pushes a human-readable status message to every subscriber of
	// the sensor.
	Notify(sensorID uint64, text string)

	// Sweep drops subscribers whose connections report closed, bounding
	// growth from clients that vanished without a close handshake. Once the
	// catalog has loaded it also closes subscriptions accepted transiently
	// at boot whose sensor turned out not to exist.
	Sweep()

	// BroadcastMarkers pushes a marker set change, remove-markers first and
	// then add-markers, to every subscriber matched by the filter.
	BroadcastMarkers(update MarkerUpdate, filter Filter)

	// EvictSensor force-closes every subscriber of a sensor that vanished
	// from the catalog or became a duplicate.
	EvictSensor(id uint64, reason sensors.EvictReason)

	// Shutdown closes every subscriber with a going-away close frame.
	Shutdown()
}

var _ Service = (*liveService)(nil)

type liveService struct {
	resolver Resolver
	markers  markers.Repository
	idp      uuid.IDProvider
	logger   logger.Logger

	mu   sync.RWMutex
	subs map[uint64]map[string]*Client
}

// New instantiates the live fan-out service.
func New(resolver Resolver, mrepo markers.Repository, idp uuid.IDProvider, logger logger.Logger) Service {
	return &liveService{
		resolver: resolver,
		markers:  mrepo,
		idp:      idp,
		logger:   logger,
		subs:     map[uint64]map[string]*Client{},
	}
}

func (svc *liveService) Attach(ctx context.Context, sensorID uint64, format Format, conn Conn) (*Client, error) {
	s, ok := svc.resolver.LookupByID(sensorID)
	switch {
	case !ok && svc.resolver.Refreshed():
		return nil, ErrNotFound
	case ok && s.Duplicate():
		return nil, ErrDuplicate
	}
	// Before the first catalog refresh completes, unknown sensors are
	// accepted transiently; the next sweep after the catalog loads closes
	// them if they turn out not to exist.

	id, err := svc.idp.ID()
	if err != nil {
		return nil, err
	}
	c := NewClient(id, sensorID, format, conn)

	svc.mu.Lock()
	if svc.subs[sensorID] == nil {
		svc.subs[sensorID] = map[string]*Client{}
	}
	svc.subs[sensorID][id] = c
	svc.mu.Unlock()

	if ok {
		if err := svc.sendInitial(ctx, c, s); err != nil {
			svc.Detach(c)
			c.Close(websocket.CloseInternalServerErr, "failed to send initial state")
			return nil, err
		}
	}
	return c, nil
}

// sendInitial pushes sensor-meta followed by the current marker set for the
// sensor's type.
func (svc *liveService) sendInitial(ctx context.Context, c *Client, s sensors.Sensor) error {
	meta := SensorMeta{
		ID:          s.ID,
		SecondaryID: s.SecondaryID,
		Type:        s.Type,
		Online:      s.Online,
	}
	if t, ok := svc.resolver.Type(s.Type); ok {
		meta.Channels = t.Channels
	}
	if err := c.Send(Event{Type: EventSensorMeta, Data: meta}); err != nil {
		return err
	}

	ms, err := svc.markers.RetrieveByType(ctx, s.Type)
	if err != nil {
		// Markers are decoration; the stream is still useful without them.
		svc.logger.Warn(fmt.Sprintf("%s", errors.Wrap(errMarkerFetch, err)))
		return nil
	}
	if len(ms) == 0 {
		return nil
	}
	return c.Send(Event{Type: EventAddMarkers, Data: ms})
}

func (svc *liveService) Detach(c *Client) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if m, ok := svc.subs[c.SensorID()]; ok {
		delete(m, c.ID())
		if len(m) == 0 {
			delete(svc.subs, c.SensorID())
		}
	}
}

// snapshot returns the subscribers of one sensor without holding the lock
// during sends.
func (svc *liveService) snapshot(sensorID uint64) []*Client {
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	m := svc.subs[sensorID]
	out := make([]*Client, 0, len(m))
	for _, c := range m {
		out = append(out, c)
	}
	return out
}

func (svc *liveService) Broadcast(sensorID uint64, reading frames.Reading) {
	ev := Event{Type: EventDatagram, Data: reading}
	for _, c := range svc.snapshot(sensorID) {
		svc.send(c, ev)
	}
}

// send writes one event and lazily drops the subscriber on failure.
func (svc *liveService) send(c *Client, ev Event) {
	if err := c.Send(ev); err != nil {
		svc.logger.Warn(fmt.Sprintf("dropping subscriber %s of sensor %d: %s", c.ID(), c.SensorID(), err))
		svc.Detach(c)
		c.Close(websocket.CloseInternalServerErr, "write failed")
	}
}

func (svc *liveService) Notify(sensorID uint64, text string) {
	ev := Event{Type: EventMessage, Data: text}
	for _, c := range svc.snapshot(sensorID) {
		svc.send(c, ev)
	}
}

func (svc *liveService) Sweep() {
	refreshed := svc.resolver.Refreshed()

	svc.mu.RLock()
	var dead []*Client
	var ghosts []uint64
	for sensorID, m := range svc.subs {
		if refreshed {
			if _, ok := svc.resolver.LookupByID(sensorID); !ok {
				ghosts = append(ghosts, sensorID)
				continue
			}
		}
		for _, c := range m {
			if c.Closed() {
				dead = append(dead, c)
			}
		}
	}
	svc.mu.RUnlock()

	for _, id := range ghosts {
		svc.EvictSensor(id, sensors.EvictNotFound)
	}
	for _, c := range dead {
		svc.Detach(c)
	}
	if len(dead) > 0 {
		svc.logger.Info(fmt.Sprintf("swept %d closed subscribers", len(dead)))
	}
}

func (svc *liveService) BroadcastMarkers(update MarkerUpdate, filter Filter) {
	svc.mu.RLock()
	var targets []*Client
	for sensorID, m := range svc.subs {
		s, ok := svc.resolver.LookupByID(sensorID)
		if !ok || !filter.matches(s) {
			continue
		}
		for _, c := range m {
			targets = append(targets, c)
		}
	}
	svc.mu.RUnlock()

	// Removals first so a replaced marker never shows twice.
	for _, c := range targets {
		if len(update.RemovedIDs) > 0 {
			svc.send(c, Event{Type: EventRemoveMarkers, Data: update.RemovedIDs})
		}
		if len(update.Added) > 0 && !c.Closed() {
			svc.send(c, Event{Type: EventAddMarkers, Data: update.Added})
		}
	}
}

func (svc *liveService) EvictSensor(id uint64, reason sensors.EvictReason) {
	code, text := CloseSensorNotFound, closeReasonNotFound
	if reason == sensors.EvictDuplicate {
		code, text = CloseSensorDuplicate, closeReasonDuplicate
	}
	for _, c := range svc.snapshot(id) {
		svc.Detach(c)
		c.Close(code, text)
	}
	svc.mu.RLock()
	n := len(svc.subs)
	svc.mu.RUnlock()
	svc.logger.Info(fmt.Sprintf("evicted subscribers of sensor %d, %d sensors still subscribed", id, n))
}

func (svc *liveService) Shutdown() {
	svc.mu.Lock()
	var all []*Client
	for _, m := range svc.subs {
		for _, c := range m {
			all = append(all, c)
		}
	}
	svc.subs = map[uint64]map[string]*Client{}
	svc.mu.Unlock()

	for _, c := range all {
		c.Close(websocket.CloseGoingAway, closeReasonShutdown)
	}
}
