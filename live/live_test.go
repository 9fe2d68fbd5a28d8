// Copyright (c) Seismix
// SPDX-License-Identifier: Apache-2.0

package live_test

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/seismix/seismix/frames"
	"github.com/seismix/seismix/live"
	"github.com/seismix/seismix/live/mocks"
	"github.com/seismix/seismix/logger"
	"github.com/seismix/seismix/markers"
	markermocks "github.com/seismix/seismix/markers/mocks"
	"github.com/seismix/seismix/pkg/uuid"
	"github.com/seismix/seismix/sensors"
	sensormocks "github.com/seismix/seismix/sensors/mocks"
)

func newService(t *testing.T, ss []sensors.Sensor, ms []markers.Marker) (live.Service, *sensors.Registry) {
	t.Helper()
	repo := sensormocks.NewRepository(ss, []sensors.SensorType{
		{Name: "shake", Channels: []sensors.Channel{{ID: 1, Name: "EHZ"}}},
	})
	reg := sensors.NewRegistry(repo, time.Second, logger.NewMock())
	require.Nil(t, reg.Refresh(context.Background(), nil))
	svc := live.New(reg, markermocks.NewRepository(ms), uuid.New(), logger.NewMock())
	return svc, reg
}

func parseClose(t *testing.T, payload []byte) (int, string) {
	t.Helper()
	require.GreaterOrEqual(t, len(payload), 2)
	return int(binary.BigEndian.Uint16(payload[:2])), string(payload[2:])
}

func decode(t *testing.T, payload []byte) live.Event {
	t.Helper()
	var ev live.Event
	require.Nil(t, msgpack.Unmarshal(payload, &ev))
	return ev
}

func TestAttachSendsInitialState(t *testing.T) {
	svc, _ := newService(t, []sensors.Sensor{
		{ID: 7, OriginAddr: "10.0.0.7", Type: "shake", SecondaryID: "RA1B2"},
	}, []markers.Marker{
		{ID: 1, SensorType: "shake", Label: "minor", Value: 120, Enabled: true},
	})

	conn := mocks.NewConn()
	c, err := svc.Attach(context.Background(), 7, live.FormatBinary, conn)
	require.Nil(t, err)
	require.NotNil(t, c)

	fs := conn.Frames()
	require.Len(t, fs, 2)
	assert.Equal(t, websocket.BinaryMessage, fs[0].Type)
	assert.Equal(t, live.EventSensorMeta, decode(t, fs[0].Payload).Type)
	assert.Equal(t, live.EventAddMarkers, decode(t, fs[1].Payload).Type)
}

func TestAttachUnknownSensor(t *testing.T) {
	svc, _ := newService(t, nil, nil)

	conn := mocks.NewConn()
	_, err := svc.Attach(context.Background(), 404, live.FormatBinary, conn)
	assert.ErrorIs(t, err, live.ErrNotFound)
}

func TestAttachDuplicateSensor(t *testing.T) {
	svc, _ := newService(t, []sensors.Sensor{
		{ID: 1, OriginAddr: "10.0.0.1", Type: "shake"},
		{ID: 2, OriginAddr: "10.0.0.1", Type: "shake"},
	}, nil)

	conn := mocks.NewConn()
	_, err := svc.Attach(context.Background(), 2, live.FormatBinary, conn)
	assert.ErrorIs(t, err, live.ErrDuplicate)
}

func TestAttachBeforeFirstRefresh(t *testing.T) {
	repo := sensormocks.NewRepository(nil, nil)
	reg := sensors.NewRegistry(repo, time.Second, logger.NewMock())
	svc := live.New(reg, markermocks.NewRepository(nil), uuid.New(), logger.NewMock())

	conn := mocks.NewConn()
	_, err := svc.Attach(context.Background(), 404, live.FormatBinary, conn)
	assert.Nil(t, err, "unknown sensors are accepted until the catalog loads")
}

func TestBroadcastReachesOnlyOwnSubscribers(t *testing.T) {
	svc, _ := newService(t, []sensors.Sensor{
		{ID: 1, OriginAddr: "10.0.0.1", Type: "shake"},
		{ID: 2, OriginAddr: "10.0.0.2", Type: "shake"},
	}, nil)

	c1 := mocks.NewConn()
	c2 := mocks.NewConn()
	_, err := svc.Attach(context.Background(), 1, live.FormatBinary, c1)
	require.Nil(t, err)
	_, err = svc.Attach(context.Background(), 2, live.FormatBinary, c2)
	require.Nil(t, err)
	before1, before2 := len(c1.Frames()), len(c2.Frames())

	svc.Broadcast(1, frames.Reading{Channel: "EHZ", Time: 1700000000, Samples: []int64{10, 20, 30}})

	fs := c1.Frames()
	require.Len(t, fs, before1+1)
	assert.Equal(t, live.EventDatagram, decode(t, fs[before1].Payload).Type)
	assert.Len(t, c2.Frames(), before2, "other sensors' subscribers must not receive the reading")
}

func TestBroadcastDropsFailedSubscriber(t *testing.T) {
	svc, _ := newService(t, []sensors.Sensor{
		{ID: 1, OriginAddr: "10.0.0.1", Type: "shake"},
	}, nil)

	conn := mocks.NewConn()
	_, err := svc.Attach(context.Background(), 1, live.FormatBinary, conn)
	require.Nil(t, err)

	conn.WriteErr = assert.AnError
	svc.Broadcast(1, frames.Reading{Channel: "EHZ", Time: 1, Samples: []int64{1}})
	assert.True(t, conn.Closed(), "failed subscriber must be torn down")

	// A second broadcast must not reach the dropped subscriber.
	conn.WriteErr = nil
	before := len(conn.Frames())
	svc.Broadcast(1, frames.Reading{Channel: "EHZ", Time: 2, Samples: []int64{2}})
	assert.Len(t, conn.Frames(), before)
}

func TestBroadcastMarkersRemoveBeforeAdd(t *testing.T) {
	svc, _ := newService(t, []sensors.Sensor{
		{ID: 1, OriginAddr: "10.0.0.1", Type: "shake"},
	}, nil)

	conn := mocks.NewConn()
	_, err := svc.Attach(context.Background(), 1, live.FormatBinary, conn)
	require.Nil(t, err)
	before := len(conn.Frames())

	svc.BroadcastMarkers(live.MarkerUpdate{
		Added:      []markers.Marker{{ID: 2, SensorType: "shake", Label: "major"}},
		RemovedIDs: []uint64{1},
	}, live.Filter{SensorTypes: []string{"shake"}})

	fs := conn.Frames()
	require.Len(t, fs, before+2)
	assert.Equal(t, live.EventRemoveMarkers, decode(t, fs[before].Payload).Type)
	assert.Equal(t, live.EventAddMarkers, decode(t, fs[before+1].Payload).Type)
}

func TestBroadcastMarkersFilterByType(t *testing.T) {
	svc, _ := newService(t, []sensors.Sensor{
		{ID: 1, OriginAddr: "10.0.0.1", Type: "shake"},
	}, nil)

	conn := mocks.NewConn()
	_, err := svc.Attach(context.Background(), 1, live.FormatBinary, conn)
	require.Nil(t, err)
	before := len(conn.Frames())

	svc.BroadcastMarkers(live.MarkerUpdate{
		RemovedIDs: []uint64{1},
	}, live.Filter{SensorTypes: []string{"boom"}})

	assert.Len(t, conn.Frames(), before, "filtered-out subscribers must not receive marker updates")
}

func TestEvictSensorClosesSubscribers(t *testing.T) {
	svc, _ := newService(t, []sensors.Sensor{
		{ID: 1, OriginAddr: "10.0.0.1", Type: "shake"},
	}, nil)

	conn := mocks.NewConn()
	c, err := svc.Attach(context.Background(), 1, live.FormatBinary, conn)
	require.Nil(t, err)

	svc.EvictSensor(1, sensors.EvictNotFound)
	assert.True(t, conn.Closed())
	assert.True(t, c.Closed())
}

func TestShutdownClosesEveryone(t *testing.T) {
	svc, _ := newService(t, []sensors.Sensor{
		{ID: 1, OriginAddr: "10.0.0.1", Type: "shake"},
		{ID: 2, OriginAddr: "10.0.0.2", Type: "shake"},
	}, nil)

	c1 := mocks.NewConn()
	c2 := mocks.NewConn()
	_, err := svc.Attach(context.Background(), 1, live.FormatBinary, c1)
	require.Nil(t, err)
	_, err = svc.Attach(context.Background(), 2, live.FormatBinary, c2)
	require.Nil(t, err)

	svc.Shutdown()
	assert.True(t, c1.Closed())
	assert.True(t, c2.Closed())
}

func TestTextFormatUsesJSON(t *testing.T) {
	svc, _ := newService(t, []sensors.Sensor{
		{ID: 1, OriginAddr: "10.0.0.1", Type: "shake"},
	}, nil)

	conn := mocks.NewConn()
	_, err := svc.Attach(context.Background(), 1, live.FormatText, conn)
	require.Nil(t, err)

	fs := conn.Frames()
	require.NotEmpty(t, fs)
	assert.Equal(t, websocket.TextMessage, fs[0].Type)
	assert.JSONEq(t, `{"type":"sensor-meta","data":{"id":1,"type":"shake","online":false,"channels":[{"id":1,"name":"EHZ"}]}}`, string(fs[0].Payload))
}

func TestNotifySendsMessageEvent(t *testing.T) {
	svc, _ := newService(t, []sensors.Sensor{
		{ID: 1, OriginAddr: "10.0.0.1", Type: "shake"},
	}, nil)

	conn := mocks.NewConn()
	_, err := svc.Attach(context.Background(), 1, live.FormatBinary, conn)
	require.Nil(t, err)
	before := len(conn.Frames())

	svc.Notify(1, "Sensor is now online.")

	fs := conn.Frames()
	require.Len(t, fs, before+1)
	ev := decode(t, fs[before].Payload)
	assert.Equal(t, live.EventMessage, ev.Type)
	assert.Equal(t, "Sensor is now online.", ev.Data)
}

func TestSweepDropsClosedSubscribers(t *testing.T) {
	svc, _ := newService(t, []sensors.Sensor{
		{ID: 1, OriginAddr: "10.0.0.1", Type: "shake"},
	}, nil)

	closedConn := mocks.NewConn()
	openConn := mocks.NewConn()
	closed, err := svc.Attach(context.Background(), 1, live.FormatBinary, closedConn)
	require.Nil(t, err)
	_, err = svc.Attach(context.Background(), 1, live.FormatBinary, openConn)
	require.Nil(t, err)

	closed.Close(websocket.CloseNormalClosure, "")
	svc.Sweep()

	before := len(openConn.Frames())
	svc.Broadcast(1, frames.Reading{Channel: "EHZ", Time: 1, Samples: []int64{1}})
	assert.Len(t, openConn.Frames(), before+1, "open subscriber still receives broadcasts after a sweep")
}

func TestSweepEvictsGhostSubscribersOnceCatalogLoads(t *testing.T) {
	repo := sensormocks.NewRepository(nil, nil)
	reg := sensors.NewRegistry(repo, time.Second, logger.NewMock())
	svc := live.New(reg, markermocks.NewRepository(nil), uuid.New(), logger.NewMock())

	conn := mocks.NewConn()
	c, err := svc.Attach(context.Background(), 404, live.FormatBinary, conn)
	require.Nil(t, err, "unknown sensors are accepted until the catalog loads")

	require.Nil(t, reg.Refresh(context.Background(), svc.EvictSensor))
	svc.Sweep()

	assert.True(t, conn.Closed(), "subscriber of a nonexistent sensor must be evicted once the catalog loads")
	assert.True(t, c.Closed())
	code, _ := parseClose(t, conn.CloseFrame())
	assert.Equal(t, live.CloseSensorNotFound, code)
}
