// Copyright (c) Seismix
// SPDX-License-Identifier: Apache-2.0

package mocks

import (
	"context"
	"sync"

	"github.com/seismix/seismix/consumers"
)

var _ consumers.BlockingConsumer = (*Consumer)(nil)

// Consumer records every batch it receives, for tests.
type Consumer struct {
	mu sync.Mutex

	// FailNext, when positive, fails that many upcoming batches.
	FailNext int
	// Err is returned for failed batches.
	Err error

	batches [][]consumers.Record
}

// NewConsumer returns an empty recording consumer.
func NewConsumer() *Consumer {
	return &Consumer{}
}

func (c *Consumer) ConsumeBlocking(ctx context.Context, records []consumers.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailNext > 0 {
		c.FailNext--
		return c.Err
	}
	batch := make([]consumers.Record, len(records))
	copy(batch, records)
	c.batches = append(c.batches, batch)
	return nil
}

// Batches returns all successfully consumed batches in order.
func (c *Consumer) Batches() [][]consumers.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]consumers.Record, len(c.batches))
	copy(out, c.batches)
	return out
}

// Total returns the number of records across all consumed batches.
func (c *Consumer) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, b := range c.batches {
		n += len(b)
	}
	return n
}
