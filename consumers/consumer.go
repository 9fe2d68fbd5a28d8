// Copyright (c) Seismix
// SPDX-License-Identifier: Apache-2.0

// Package consumers contains the reading persistence pipeline: a bounded
// batching queue in front of pluggable storage backends.
package consumers

import (
	"context"

	"github.com/seismix/seismix/frames"
)

// Record is one reading bound to the sensor it came from.
type Record struct {
	SensorID uint64
	Reading  frames.Reading
}

// BlockingConsumer specifies a blocking batch-consuming API, used for
// writing reading batches to storage. A non-nil error indicates the whole
// batch failed and may be retried.
type BlockingConsumer interface {
	ConsumeBlocking(ctx context.Context, records []Record) error
}
