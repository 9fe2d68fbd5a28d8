// Copyright (c) Seismix
// SPDX-License-Identifier: Apache-2.0

// Package sensors contains the sensor catalog domain: sensor identity and
// metadata, the origin-address registry and the liveness state machine.
package sensors

import (
	"context"
	"time"
)

// Channel is one named data channel a sensor type emits, e.g. EHZ.
type Channel struct {
	ID   uint64 `json:"id" msgpack:"id" db:"id"`
	Name string `json:"name" msgpack:"name" db:"name"`
}

// SensorType groups sensors of the same hardware variant and defines the
// channels they emit.
type SensorType struct {
	Name     string    `json:"name"`
	Channels []Channel `json:"channels"`
}

// Sensor represents one physical field device. Identity on the wire is the
// origin address; the catalog ID is the stable identity everywhere else.
type Sensor struct {
	ID              uint64    `json:"id"`
	OriginAddr      string    `json:"origin_addr,omitempty"`
	Type            string    `json:"type,omitempty"`
	SecondaryID     string    `json:"secondary_id,omitempty"`
	Online          bool      `json:"online"`
	StatusChangedAt time.Time `json:"status_changed_at,omitempty"`

	// DuplicateOf holds the ID of the first catalog entry claiming the same
	// origin address. Zero for active sensors.
	DuplicateOf uint64 `json:"duplicate_of,omitempty"`
}

// Duplicate reports whether the sensor lost its address to an earlier
// catalog entry and is excluded from ingestion matching.
func (s Sensor) Duplicate() bool {
	return s.DuplicateOf != 0
}

// Repository specifies the sensor catalog persistence API.
type Repository interface {
	// RetrieveAll returns the full current sensor catalog.
	RetrieveAll(ctx context.Context) ([]Sensor, error)

	// RetrieveTypes returns all sensor types with their channel definitions.
	RetrieveTypes(ctx context.Context) ([]SensorType, error)

	// SetOnline persists a liveness state transition for the given sensor.
	SetOnline(ctx context.Context, id uint64, online bool, at time.Time) error
}
