// Copyright (c) Seismix
// SPDX-License-Identifier: Apache-2.0

package live

import (
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/seismix/seismix/markers"
	"github.com/seismix/seismix/sensors"
)

// Event kinds carried in the envelope Type field.
const (
	EventSensorMeta    = "sensor-meta"
	EventDatagram      = "datagram"
	EventMessage       = "message"
	EventAddMarkers    = "add-markers"
	EventRemoveMarkers = "remove-markers"
)

// Event is the envelope for every frame pushed to a subscriber.
type Event struct {
	Type string      `json:"type" msgpack:"type"`
	Data interface{} `json:"data" msgpack:"data"`
}

// SensorMeta is the first event sent on every new subscription.
type SensorMeta struct {
	ID          uint64            `json:"id" msgpack:"id"`
	SecondaryID string            `json:"secondary_id,omitempty" msgpack:"secondary_id,omitempty"`
	Type        string            `json:"type" msgpack:"type"`
	Online      bool              `json:"online" msgpack:"online"`
	Channels    []sensors.Channel `json:"channels" msgpack:"channels"`
}

// MarkerUpdate carries a marker set change to subscribers.
type MarkerUpdate struct {
	Added      []markers.Marker `json:"added,omitempty" msgpack:"added,omitempty"`
	RemovedIDs []uint64         `json:"removed_ids,omitempty" msgpack:"removed_ids,omitempty"`
}

// Format selects the wire encoding of a subscription.
type Format int

const (
	// FormatBinary encodes events as msgpack in binary frames. The default.
	FormatBinary Format = iota

	// FormatText encodes events as JSON in text frames.
	FormatText
)

// ParseFormat maps the format query parameter to a Format. Empty selects
// binary.
func ParseFormat(s string) (Format, bool) {
	switch s {
	case "", "binary":
		return FormatBinary, true
	case "text":
		return FormatText, true
	default:
		return FormatBinary, false
	}
}

func (f Format) encode(ev Event) ([]byte, error) {
	if f == FormatText {
		return json.Marshal(ev)
	}
	return msgpack.Marshal(ev)
}
