// Copyright (c) Seismix
// SPDX-License-Identifier: Apache-2.0

package sensors_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seismix/seismix/logger"
	"github.com/seismix/seismix/sensors"
	"github.com/seismix/seismix/sensors/mocks"
)

func TestRefreshBuildsAddressMap(t *testing.T) {
	repo := mocks.NewRepository([]sensors.Sensor{
		{ID: 1, OriginAddr: "10.0.0.1", Type: "shake"},
		{ID: 2, OriginAddr: "10.0.0.2", Type: "shake"},
		{ID: 3, Type: "shake"},
	}, []sensors.SensorType{
		{Name: "shake", Channels: []sensors.Channel{{ID: 1, Name: "EHZ"}}},
	})
	reg := sensors.NewRegistry(repo, time.Second, logger.NewMock())

	require.Nil(t, reg.Refresh(context.Background(), nil))

	s, ok := reg.Lookup("10.0.0.1")
	assert.True(t, ok)
	assert.Equal(t, uint64(1), s.ID)

	_, ok = reg.LookupByID(3)
	assert.False(t, ok, "sensor without origin address must not be served")

	typ, ok := reg.Type("shake")
	assert.True(t, ok)
	assert.Equal(t, "EHZ", typ.Channels[0].Name)
	assert.True(t, reg.Refreshed())
}

func TestRefreshDuplicateAddressFirstSeenWins(t *testing.T) {
	repo := mocks.NewRepository([]sensors.Sensor{
		{ID: 1, OriginAddr: "10.0.0.9"},
		{ID: 2, OriginAddr: "10.0.0.9"},
	}, nil)
	reg := sensors.NewRegistry(repo, time.Second, logger.NewMock())

	require.Nil(t, reg.Refresh(context.Background(), nil))

	s, ok := reg.Lookup("10.0.0.9")
	require.True(t, ok)
	assert.Equal(t, uint64(1), s.ID, "earlier catalog entry owns the address")

	dup, ok := reg.LookupByID(2)
	require.True(t, ok)
	assert.True(t, dup.Duplicate())
	assert.Equal(t, uint64(1), dup.DuplicateOf)
}

func TestRefreshEvictions(t *testing.T) {
	repo := mocks.NewRepository([]sensors.Sensor{
		{ID: 1, OriginAddr: "10.0.0.1"},
		{ID: 2, OriginAddr: "10.0.0.2"},
	}, nil)
	reg := sensors.NewRegistry(repo, time.Second, logger.NewMock())
	require.Nil(t, reg.Refresh(context.Background(), nil))

	repo.SetSensors([]sensors.Sensor{
		{ID: 2, OriginAddr: "10.0.0.5"},
		{ID: 3, OriginAddr: "10.0.0.5"},
	})

	evicted := map[uint64]sensors.EvictReason{}
	require.Nil(t, reg.Refresh(context.Background(), func(id uint64, reason sensors.EvictReason) {
		evicted[id] = reason
	}))

	assert.Equal(t, sensors.EvictNotFound, evicted[1], "vanished sensor must be evicted")
	assert.Equal(t, sensors.EvictDuplicate, evicted[3], "newly-duplicate sensor must be evicted")
	assert.Len(t, evicted, 2)
}

func TestRefreshCarriesOnlineState(t *testing.T) {
	repo := mocks.NewRepository([]sensors.Sensor{
		{ID: 1, OriginAddr: "10.0.0.1"},
	}, nil)
	reg := sensors.NewRegistry(repo, time.Second, logger.NewMock())
	require.Nil(t, reg.Refresh(context.Background(), nil))

	at := time.Now()
	reg.SetOnline(1, true, at)

	require.Nil(t, reg.Refresh(context.Background(), nil))

	s, ok := reg.Lookup("10.0.0.1")
	require.True(t, ok)
	assert.True(t, s.Online, "in-memory online flag must survive refresh")
	assert.Equal(t, at, s.StatusChangedAt)
}

func TestRefreshFailureKeepsSnapshot(t *testing.T) {
	repo := mocks.NewRepository([]sensors.Sensor{
		{ID: 1, OriginAddr: "10.0.0.1"},
	}, nil)
	reg := sensors.NewRegistry(repo, time.Second, logger.NewMock())
	require.Nil(t, reg.Refresh(context.Background(), nil))
	require.Nil(t, reg.Held())

	repo.RetrieveErr = fmt.Errorf("connection refused")
	err := reg.Refresh(context.Background(), nil)
	assert.NotNil(t, err)
	assert.NotNil(t, reg.Held(), "failed refresh must surface through Held")

	_, ok := reg.Lookup("10.0.0.1")
	assert.True(t, ok, "previous snapshot must stay in effect")

	repo.RetrieveErr = nil
	require.Nil(t, reg.Refresh(context.Background(), nil))
	assert.Nil(t, reg.Held(), "successful refresh must clear the held error")
}
