// Copyright (c) Seismix
// SPDX-License-Identifier: Apache-2.0

package mocks

import (
	"context"
	"sync"

	"github.com/seismix/seismix/markers"
)

var _ markers.Repository = (*Repository)(nil)

// Repository is an in-memory marker store for tests.
type Repository struct {
	mu      sync.Mutex
	byType  map[string][]markers.Marker
	// RetrieveErr, when set, fails every retrieval.
	RetrieveErr error
}

// NewRepository seeds the store.
func NewRepository(ms []markers.Marker) *Repository {
	byType := map[string][]markers.Marker{}
	for _, m := range ms {
		byType[m.SensorType] = append(byType[m.SensorType], m)
	}
	return &Repository{byType: byType}
}

func (r *Repository) RetrieveByType(ctx context.Context, sensorType string) ([]markers.Marker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.RetrieveErr != nil {
		return nil, r.RetrieveErr
	}
	out := make([]markers.Marker, len(r.byType[sensorType]))
	copy(out, r.byType[sensorType])
	return out, nil
}
