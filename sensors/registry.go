// Copyright (c) Seismix
// SPDX-License-Identifier: Apache-2.0

package sensors

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/seismix/seismix/logger"
	"github.com/seismix/seismix/pkg/errors"
	"github.com/seismix/seismix/pkg/ticker"
)

// ErrRefresh indicates a failed registry refresh. The previous snapshot
// stays in effect.
var ErrRefresh = errors.New("failed to refresh sensor registry")

// EvictReason explains why a sensor's subscribers are being force-closed.
type EvictReason int

const (
	// EvictNotFound means the sensor vanished from the catalog or lost its
	// origin address.
	EvictNotFound EvictReason = iota + 1

	// EvictDuplicate means the sensor now claims an address owned by an
	// earlier catalog entry.
	EvictDuplicate
)

// EvictFunc is called outside the registry lock for every sensor whose
// subscriber connections must be closed after a refresh.
type EvictFunc func(id uint64, reason EvictReason)

// Registry is the in-memory view of the sensor catalog, keyed by origin
// address. It is rebuilt off to the side on every refresh and swapped in
// atomically, so lookups never wait on catalog I/O.
type Registry struct {
	repo    Repository
	timeout time.Duration
	logger  logger.Logger

	mu        sync.RWMutex
	byAddr    map[string]Sensor
	byID      map[uint64]Sensor
	types     map[string]SensorType
	refreshed bool
	held      error
}

// NewRegistry returns an empty registry. It serves no sensors until the
// first successful Refresh.
func NewRegistry(repo Repository, timeout time.Duration, logger logger.Logger) *Registry {
	return &Registry{
		repo:    repo,
		timeout: timeout,
		logger:  logger,
		byAddr:  map[string]Sensor{},
		byID:    map[uint64]Sensor{},
		types:   map[string]SensorType{},
	}
}

// Refresh pulls the full catalog, rebuilds the address map and swaps it in.
// Address collisions are resolved first-seen-wins: later entries are marked
// duplicates and excluded from ingestion matching. Sensors that vanished,
// lost their address or became duplicates are reported through evict.
// On failure the previous snapshot remains authoritative and the error is
// held for health reporting.
func (r *Registry) Refresh(ctx context.Context, evict EvictFunc) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	catalog, err := r.repo.RetrieveAll(ctx)
	if err != nil {
		return r.fail(err)
	}
	typeList, err := r.repo.RetrieveTypes(ctx)
	if err != nil {
		return r.fail(err)
	}

	byAddr := make(map[string]Sensor, len(catalog))
	byID := make(map[uint64]Sensor, len(catalog))
	types := make(map[string]SensorType, len(typeList))
	for _, t := range typeList {
		types[t.Name] = t
	}

	r.mu.RLock()
	prev := r.byID
	r.mu.RUnlock()

	for _, s := range catalog {
		if s.OriginAddr == "" {
			continue
		}
		// Liveness owns the online flag; the catalog read may lag behind a
		// deferred state write, so the in-memory value wins.
		if old, ok := prev[s.ID]; ok {
			s.Online = old.Online
			s.StatusChangedAt = old.StatusChangedAt
		}
		if first, taken := byAddr[s.OriginAddr]; taken {
			s.DuplicateOf = first.ID
			byID[s.ID] = s
			r.logger.Warn(fmt.Sprintf("sensor %d claims origin address %s already held by sensor %d", s.ID, s.OriginAddr, first.ID))
			continue
		}
		s.DuplicateOf = 0
		byAddr[s.OriginAddr] = s
		byID[s.ID] = s
	}

	type eviction struct {
		id     uint64
		reason EvictReason
	}
	var evictions []eviction

	r.mu.Lock()
	for id, old := range r.byID {
		cur, ok := byID[id]
		switch {
		case !ok:
			evictions = append(evictions, eviction{id, EvictNotFound})
		case cur.Duplicate() && !old.Duplicate():
			evictions = append(evictions, eviction{id, EvictDuplicate})
		}
	}
	r.byAddr = byAddr
	r.byID = byID
	r.types = types
	r.refreshed = true
	r.held = nil
	r.mu.Unlock()

	if evict != nil {
		for _, e := range evictions {
			evict(e.id, e.reason)
		}
	}
	return nil
}

func (r *Registry) fail(err error) error {
	wrapped := errors.Wrap(ErrRefresh, err)
	r.mu.Lock()
	r.held = wrapped
	r.mu.Unlock()
	return wrapped
}

// Run refreshes the registry on every tick until the context is cancelled.
// Failures are logged and the previous snapshot stays in effect.
func (r *Registry) Run(ctx context.Context, tick ticker.Ticker, evict EvictFunc) {
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.Tick():
			if err := r.Refresh(ctx, evict); err != nil {
				r.logger.Warn(fmt.Sprintf("registry refresh failed, keeping previous snapshot: %s", err))
			}
		}
	}
}

// Lookup resolves an origin address to its active sensor.
func (r *Registry) Lookup(originAddr string) (Sensor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byAddr[originAddr]
	return s, ok
}

// LookupByID resolves a catalog ID, including duplicates, so that callers
// can distinguish a duplicate from an unknown sensor.
func (r *Registry) LookupByID(id uint64) (Sensor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	return s, ok
}

// Type returns channel definitions for the named sensor type.
func (r *Registry) Type(name string) (SensorType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[name]
	return t, ok
}

// All returns a snapshot of all known sensors, duplicates included.
func (r *Registry) All() []Sensor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make([]Sensor, 0, len(r.byID))
	for _, s := range r.byID {
		all = append(all, s)
	}
	return all
}

// SetOnline updates the in-memory online flag. Only the liveness state
// machine calls this.
func (r *Registry) SetOnline(id uint64, online bool, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.byID[id]; ok {
		s.Online = online
		s.StatusChangedAt = at
		r.byID[id] = s
		if !s.Duplicate() && s.OriginAddr != "" {
			r.byAddr[s.OriginAddr] = s
		}
	}
}

// Refreshed reports whether the first refresh has completed. Until then
// subscriber attaches for unknown sensors are accepted transiently to avoid
// boot races.
func (r *Registry) Refreshed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.refreshed
}

// Held returns the error from the last failed refresh, or nil. Surfaced by
// the health endpoint.
func (r *Registry) Held() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.held
}
