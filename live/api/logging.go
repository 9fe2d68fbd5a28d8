// Copyright (c) Seismix
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"fmt"
	"time"

	"github.com/seismix/seismix/frames"
	"github.com/seismix/seismix/live"
	log "github.com/seismix/seismix/logger"
	"github.com/seismix/seismix/sensors"
)

var _ live.Service = (*loggingMiddleware)(nil)

type loggingMiddleware struct {
	logger log.Logger
	svc    live.Service
}

// LoggingMiddleware adds logging facilities to the live fan-out service.
func LoggingMiddleware(svc live.Service, logger log.Logger) live.Service {
	return &loggingMiddleware{logger, svc}
}

func (lm *loggingMiddleware) Attach(ctx context.Context, sensorID uint64, format live.Format, conn live.Conn) (c *live.Client, err error) {
	defer func(begin time.Time) {
		message := fmt.Sprintf("Method attach for sensor %d took %s to complete", sensorID, time.Since(begin))
		if err != nil {
			lm.logger.Warn(fmt.Sprintf("%s with error: %s.", message, err))
			return
		}
		lm.logger.Info(fmt.Sprintf("%s without errors.", message))
	}(time.Now())

	return lm.svc.Attach(ctx, sensorID, format, conn)
}

func (lm *loggingMiddleware) Detach(c *live.Client) {
	lm.logger.Debug(fmt.Sprintf("Method detach for subscriber %s of sensor %d", c.ID(), c.SensorID()))
	lm.svc.Detach(c)
}

func (lm *loggingMiddleware) Broadcast(sensorID uint64, reading frames.Reading) {
	lm.svc.Broadcast(sensorID, reading)
}

func (lm *loggingMiddleware) Notify(sensorID uint64, text string) {
	lm.logger.Debug(fmt.Sprintf("Method notify for sensor %d: %s", sensorID, text))
	lm.svc.Notify(sensorID, text)
}

func (lm *loggingMiddleware) Sweep() {
	lm.svc.Sweep()
}

func (lm *loggingMiddleware) BroadcastMarkers(update live.MarkerUpdate, filter live.Filter) {
	defer func(begin time.Time) {
		lm.logger.Info(fmt.Sprintf("Method broadcast_markers with %d added and %d removed took %s to complete", len(update.Added), len(update.RemovedIDs), time.Since(begin)))
	}(time.Now())

	lm.svc.BroadcastMarkers(update, filter)
}

func (lm *loggingMiddleware) EvictSensor(id uint64, reason sensors.EvictReason) {
	lm.logger.Info(fmt.Sprintf("Method evict_sensor for sensor %d with reason %d", id, reason))
	lm.svc.EvictSensor(id, reason)
}

func (lm *loggingMiddleware) Shutdown() {
	lm.logger.Info("Method shutdown closing all subscribers")
	lm.svc.Shutdown()
}
