// Copyright (c) Seismix
// SPDX-License-Identifier: Apache-2.0

package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/seismix/seismix/sensors"
)

var _ sensors.Repository = (*Repository)(nil)

// Repository is an in-memory catalog for tests.
type Repository struct {
	mu      sync.Mutex
	sensors []sensors.Sensor
	types   []sensors.SensorType

	// RetrieveErr, when set, fails the next retrieval.
	RetrieveErr error
	// SetOnlineErr, when set, fails every SetOnline call.
	SetOnlineErr error

	writes []OnlineWrite
}

// OnlineWrite records a persisted state transition.
type OnlineWrite struct {
	ID     uint64
	Online bool
	At     time.Time
}

// NewRepository seeds the catalog.
func NewRepository(ss []sensors.Sensor, ts []sensors.SensorType) *Repository {
	return &Repository{sensors: ss, types: ts}
}

// SetSensors replaces the catalog contents.
func (r *Repository) SetSensors(ss []sensors.Sensor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sensors = ss
}

func (r *Repository) RetrieveAll(ctx context.Context) ([]sensors.Sensor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.RetrieveErr != nil {
		return nil, r.RetrieveErr
	}
	out := make([]sensors.Sensor, len(r.sensors))
	copy(out, r.sensors)
	return out, nil
}

func (r *Repository) RetrieveTypes(ctx context.Context) ([]sensors.SensorType, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.RetrieveErr != nil {
		return nil, r.RetrieveErr
	}
	out := make([]sensors.SensorType, len(r.types))
	copy(out, r.types)
	return out, nil
}

func (r *Repository) SetOnline(ctx context.Context, id uint64, online bool, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.SetOnlineErr != nil {
		return r.SetOnlineErr
	}
	r.writes = append(r.writes, OnlineWrite{ID: id, Online: online, At: at})
	return nil
}

// Writes returns all persisted transitions in order.
func (r *Repository) Writes() []OnlineWrite {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]OnlineWrite, len(r.writes))
	copy(out, r.writes)
	return out
}
