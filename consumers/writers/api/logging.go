// Copyright (c) Seismix
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"fmt"
	"time"

	"github.com/seismix/seismix/consumers"
	log "github.com/seismix/seismix/logger"
)

var _ consumers.BlockingConsumer = (*loggingMiddleware)(nil)

type loggingMiddleware struct {
	logger   log.Logger
	consumer consumers.BlockingConsumer
}

// LoggingMiddleware adds logging facilities to the reading writer.
func LoggingMiddleware(consumer consumers.BlockingConsumer, logger log.Logger) consumers.BlockingConsumer {
	return &loggingMiddleware{
		logger:   logger,
		consumer: consumer,
	}
}

func (lm *loggingMiddleware) ConsumeBlocking(ctx context.Context, records []consumers.Record) (err error) {
	defer func(begin time.Time) {
		message := fmt.Sprintf("Method consume of %d records took %s to complete", len(records), time.Since(begin))
		if err != nil {
			lm.logger.Warn(fmt.Sprintf("%s with error: %s.", message, err))
			return
		}
		lm.logger.Debug(fmt.Sprintf("%s without errors.", message))
	}(time.Now())

	return lm.consumer.ConsumeBlocking(ctx, records)
}
