// Copyright (c) Seismix
// SPDX-License-Identifier: Apache-2.0

package ticker

import "time"

var _ Ticker = (*MockTicker)(nil)

// MockTicker ticks only when Fire is called, so tests drive periodic work
// deterministically.
type MockTicker struct {
	ch chan time.Time
}

// NewMock returns a test ticker.
func NewMock() *MockTicker {
	return &MockTicker{ch: make(chan time.Time)}
}

// Fire delivers a single tick, blocking until the consumer receives it.
func (t *MockTicker) Fire() {
	t.ch <- time.Now()
}

func (t *MockTicker) Tick() <-chan time.Time {
	return t.ch
}

func (t *MockTicker) Stop() {}
