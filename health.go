// Copyright (c) Seismix
// SPDX-License-Identifier: Apache-2.0

package seismix

import (
	"encoding/json"
	"net/http"
)

const (
	version       = "1.0.0"
	svcStatusOK   = "pass"
	svcStatusFail = "fail"
)

// HealthInfo contains health check endpoint response.
type HealthInfo struct {
	// Status contains service status.
	Status string `json:"status"`

	// Version contains service current version value.
	Version string `json:"version"`

	// Description contains service description.
	Description string `json:"description"`

	// Error holds a held failure from a background task, if any.
	Error string `json:"error,omitempty"`
}

// VersionInfo contains version endpoint response.
type VersionInfo struct {
	// Service contains service name.
	Service string `json:"service"`

	// Version contains service current version value.
	Version string `json:"version"`
}

// Version exposes an HTTP handler for retrieving service version.
func Version(service string) http.HandlerFunc {
	return func(rw http.ResponseWriter, _ *http.Request) {
		res := VersionInfo{service, version}

		data, _ := json.Marshal(res)

		_, _ = rw.Write(data)
	}
}

// Health exposes an HTTP handler for retrieving service health. The held
// function reports a failure retained by a background task (e.g. the last
// registry refresh error); the service keeps serving from its previous
// snapshot, but operators see the degradation here.
func Health(description string, held func() error) http.HandlerFunc {
	return func(rw http.ResponseWriter, _ *http.Request) {
		res := HealthInfo{
			Status:      svcStatusOK,
			Version:     version,
			Description: description,
		}
		if held != nil {
			if err := held(); err != nil {
				res.Status = svcStatusFail
				res.Error = err.Error()
			}
		}

		rw.Header().Set("Content-Type", "application/health+json")
		data, _ := json.Marshal(res)
		_, _ = rw.Write(data)
	}
}
