// Copyright (c) Seismix
// SPDX-License-Identifier: Apache-2.0

// Package frames decodes raw datagrams produced by field sensor firmware.
// The wire format is a loosely-structured text frame, not valid JSON:
//
//	{'EHZ', 1700000000.0, 10, 20, 30}
//
// One datagram may carry several concatenated frames. Input comes from
// uncontrolled hardware, so malformed frames are a normal condition and are
// reported as errors, never panics.
package frames

import (
	"strconv"
	"strings"

	"github.com/seismix/seismix/pkg/errors"
)

// MaxChannelLen bounds the channel code carried in a frame.
const MaxChannelLen = 3

var (
	// ErrMalformedFrame indicates a frame without the expected brace delimiters.
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrChannelTooLong indicates a channel code longer than three characters.
	ErrChannelTooLong = errors.New("channel code exceeds three characters")

	// ErrInvalidTimestamp indicates an unparseable epoch timestamp.
	ErrInvalidTimestamp = errors.New("invalid timestamp")

	// ErrNoSamples indicates a frame without any sample values.
	ErrNoSamples = errors.New("frame carries no samples")

	// ErrInvalidSample indicates an unparseable sample value.
	ErrInvalidSample = errors.New("invalid sample value")
)

// Reading is one decoded unit of telemetry.
type Reading struct {
	// Channel is the seismic channel code, e.g. "EHZ".
	Channel string `json:"channel" msgpack:"channel"`

	// Time is the epoch timestamp in seconds, with sub-second precision.
	Time float64 `json:"time" msgpack:"time"`

	// Samples holds the ordered raw counts.
	Samples []int64 `json:"samples" msgpack:"samples"`
}

// Parse decodes a single frame.
func Parse(raw []byte) (Reading, error) {
	body := strings.TrimSpace(string(raw))
	if len(body) < 2 || body[0] != '{' || body[len(body)-1] != '}' {
		return Reading{}, ErrMalformedFrame
	}
	return parseBody(body[1 : len(body)-1])
}

// ParseDatagram decodes every frame in one datagram. Firmware batches frames
// back to back ("{...}{...}"), so the payload is split on frame boundaries
// and each frame decoded independently. The first malformed frame aborts the
// whole datagram: partial hardware writes are not worth salvaging.
func ParseDatagram(raw []byte) ([]Reading, error) {
	body := strings.TrimSpace(string(raw))
	if len(body) < 2 || body[0] != '{' || body[len(body)-1] != '}' {
		return nil, ErrMalformedFrame
	}

	var readings []Reading
	for _, part := range strings.Split(body, "}{") {
		part = strings.TrimSpace(part)
		part = strings.TrimPrefix(part, "{")
		part = strings.TrimSuffix(part, "}")
		r, err := parseBody(part)
		if err != nil {
			return nil, err
		}
		readings = append(readings, r)
	}
	return readings, nil
}

func parseBody(body string) (Reading, error) {
	tokens := strings.Split(body, ",")
	if len(tokens) < 2 {
		return Reading{}, ErrMalformedFrame
	}

	channel := strings.Trim(strings.TrimSpace(tokens[0]), "'\"")
	if channel == "" {
		return Reading{}, ErrMalformedFrame
	}
	if len(channel) > MaxChannelLen {
		return Reading{}, ErrChannelTooLong
	}

	ts, err := strconv.ParseFloat(strings.TrimSpace(tokens[1]), 64)
	if err != nil {
		return Reading{}, errors.Wrap(ErrInvalidTimestamp, err)
	}

	if len(tokens) == 2 {
		return Reading{}, ErrNoSamples
	}

	samples := make([]int64, 0, len(tokens)-2)
	for _, tok := range tokens[2:] {
		v, err := strconv.ParseInt(strings.TrimSpace(tok), 10, 64)
		if err != nil {
			return Reading{}, errors.Wrap(ErrInvalidSample, err)
		}
		samples = append(samples, v)
	}

	return Reading{Channel: channel, Time: ts, Samples: samples}, nil
}
