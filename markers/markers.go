// Copyright (c) Seismix
// SPDX-License-Identifier: Apache-2.0

// Package markers contains chart annotation markers that overlay sensor
// data streams on subscriber dashboards.
package markers

import "context"

// Marker is a single chart annotation. Markers are scoped to a sensor type
// and optionally to a single channel of that type.
type Marker struct {
	ID         uint64  `json:"id" msgpack:"id" db:"id"`
	SensorType string  `json:"sensor_type" msgpack:"sensor_type" db:"sensor_type"`
	Channel    string  `json:"channel,omitempty" msgpack:"channel,omitempty" db:"channel"`
	Label      string  `json:"label" msgpack:"label" db:"label"`
	Style      string  `json:"style,omitempty" msgpack:"style,omitempty" db:"style"`
	Value      float64 `json:"value" msgpack:"value" db:"value"`
	Enabled    bool    `json:"enabled" msgpack:"enabled" db:"enabled"`
}

// Repository specifies the marker persistence API.
type Repository interface {
	// RetrieveByType returns all enabled markers for the given sensor type.
	RetrieveByType(ctx context.Context, sensorType string) ([]Marker, error)
}
