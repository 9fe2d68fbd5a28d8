// Copyright (c) Seismix
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"fmt"
	"net"

	"github.com/seismix/seismix/ingest"
	log "github.com/seismix/seismix/logger"
)

var _ ingest.Service = (*loggingMiddleware)(nil)

type loggingMiddleware struct {
	logger log.Logger
	svc    ingest.Service
}

// LoggingMiddleware adds logging facilities to the ingestion service.
func LoggingMiddleware(svc ingest.Service, logger log.Logger) ingest.Service {
	return &loggingMiddleware{logger, svc}
}

// HandleDatagram is on the hot path, so the middleware logs at debug only.
func (lm *loggingMiddleware) HandleDatagram(src *net.UDPAddr, payload []byte) {
	lm.logger.Debug(fmt.Sprintf("Method handle_datagram of %d bytes from %s", len(payload), src.IP))
	lm.svc.HandleDatagram(src, payload)
}
