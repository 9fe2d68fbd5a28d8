// Copyright (c) Seismix
// SPDX-License-Identifier: Apache-2.0

package sensors

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/seismix/seismix/logger"
	"github.com/seismix/seismix/pkg/ticker"
)

// Liveness derives sensor online state from reading recency. Touch is
// called on the ingestion hot path and only records a timestamp; all
// catalog writes happen in the periodic sweep.
type Liveness struct {
	repo         Repository
	registry     *Registry
	offlineAfter time.Duration
	cooldown     time.Duration
	logger       logger.Logger
	now          func() time.Time

	// onTransition, when set, fires after the in-memory flag flips.
	onTransition func(id uint64, online bool)

	mu          sync.Mutex
	lastReading map[uint64]time.Time
	lastWrite   map[uint64]time.Time
	persisted   map[uint64]persistedState
}

type persistedState struct {
	online bool
	known  bool
}

// NewLiveness returns a liveness tracker over the given catalog view.
func NewLiveness(repo Repository, registry *Registry, offlineAfter, cooldown time.Duration, logger logger.Logger) *Liveness {
	return &Liveness{
		repo:         repo,
		registry:     registry,
		offlineAfter: offlineAfter,
		cooldown:     cooldown,
		logger:       logger,
		now:          time.Now,
		lastReading:  map[uint64]time.Time{},
		lastWrite:    map[uint64]time.Time{},
		persisted:    map[uint64]persistedState{},
	}
}

// OnTransition registers a callback fired whenever a sensor's in-memory
// online state flips. Set before Run.
func (l *Liveness) OnTransition(fn func(id uint64, online bool)) {
	l.onTransition = fn
}

// SetNow overrides the clock. Tests only.
func (l *Liveness) SetNow(now func() time.Time) {
	l.now = now
}

// Touch records that a reading arrived for the sensor. It never blocks on
// storage.
func (l *Liveness) Touch(id uint64) {
	now := l.now()
	l.mu.Lock()
	l.lastReading[id] = now
	l.mu.Unlock()
}

// Sweep recomputes online state for every active sensor. In-memory flags
// flip immediately; the catalog write is skipped while the sensor is inside
// its per-sensor cooldown window and retried on a later sweep once the
// state has settled.
func (l *Liveness) Sweep(ctx context.Context) {
	now := l.now()
	for _, s := range l.registry.All() {
		if s.Duplicate() {
			continue
		}

		l.mu.Lock()
		last, seen := l.lastReading[s.ID]
		l.mu.Unlock()

		desired := seen && now.Sub(last) < l.offlineAfter
		if desired != s.Online {
			l.registry.SetOnline(s.ID, desired, now)
			if l.onTransition != nil {
				l.onTransition(s.ID, desired)
			}
		}

		if !l.shouldPersist(s.ID, desired, now) {
			continue
		}
		if err := l.repo.SetOnline(ctx, s.ID, desired, now); err != nil {
			l.logger.Warn(fmt.Sprintf("failed to persist online state for sensor %d: %s", s.ID, err))
			continue
		}
		l.mu.Lock()
		l.lastWrite[s.ID] = now
		l.persisted[s.ID] = persistedState{online: desired, known: true}
		l.mu.Unlock()
	}
	l.prune()
}

// shouldPersist reports whether the durable state differs from desired and
// the sensor is outside its cooldown window.
func (l *Liveness) shouldPersist(id uint64, desired bool, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if p := l.persisted[id]; p.known && p.online == desired {
		return false
	}
	if w, ok := l.lastWrite[id]; ok && now.Sub(w) < l.cooldown {
		return false
	}
	return true
}

// prune drops tracking entries for sensors no longer in the catalog.
func (l *Liveness) prune() {
	known := map[uint64]struct{}{}
	for _, s := range l.registry.All() {
		known[s.ID] = struct{}{}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for id := range l.lastReading {
		if _, ok := known[id]; !ok {
			delete(l.lastReading, id)
			delete(l.lastWrite, id)
			delete(l.persisted, id)
		}
	}
}

// Run sweeps on every tick until the context is cancelled.
func (l *Liveness) Run(ctx context.Context, tick ticker.Ticker) {
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.Tick():
			l.Sweep(ctx)
		}
	}
}
