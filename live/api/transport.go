// Copyright (c) Seismix
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-zoo/bone"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/seismix/seismix"
	"github.com/seismix/seismix/live"
	log "github.com/seismix/seismix/logger"
	"github.com/seismix/seismix/markers"
	"github.com/seismix/seismix/pkg/errors"
)

const maxBroadcastBody = 1 << 20

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// MakeHandler returns an http handler with the subscriber handshake and
// marker broadcast endpoints.
func MakeHandler(svc live.Service, l log.Logger, held func() error) http.Handler {
	mux := bone.New()
	mux.GetFunc("/consume/:id/live", handshake(svc, l))
	mux.PostFunc("/markers/broadcast", broadcastMarkers(svc, l))
	mux.GetFunc("/health", seismix.Health("sensor stream fan-out service", held))
	mux.GetFunc("/version", seismix.Version("live"))
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

func handshake(svc live.Service, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sensorID, err := strconv.ParseUint(bone.GetValue(r, "id"), 10, 64)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		format, ok := live.ParseFormat(r.URL.Query().Get("format"))
		if !ok {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn(fmt.Sprintf("failed to upgrade connection to websocket: %s", err))
			return
		}

		client, err := svc.Attach(r.Context(), sensorID, format, conn)
		if err != nil {
			code, reason := closeFor(err)
			msg := websocket.FormatCloseMessage(code, reason)
			_ = conn.WriteMessage(websocket.CloseMessage, msg)
			conn.Close()
			return
		}

		go listen(svc, client, conn)
	}
}

// closeFor maps an attach error to the application close code sent before
// tearing the connection down.
func closeFor(err error) (int, string) {
	switch {
	case errors.Contains(err, live.ErrNotFound):
		return live.CloseSensorNotFound, "Couldn't find a sensor with that ID. Make sure the conversion from secondary to primary IDs is correct."
	case errors.Contains(err, live.ErrDuplicate):
		return live.CloseSensorDuplicate, "The sensor with that ID is marked as a duplicate of another sensor."
	default:
		return websocket.CloseInternalServerErr, "subscription failed"
	}
}

// listen drains inbound frames so close handshakes and pings are processed.
// Subscribers never send application data.
func listen(svc live.Service, client *live.Client, conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			svc.Detach(client)
			client.Close(websocket.CloseNormalClosure, "")
			return
		}
	}
}

type broadcastReq struct {
	Added      []markers.Marker `json:"added,omitempty"`
	RemovedIDs []uint64         `json:"removed_ids,omitempty"`
	Filter     live.Filter      `json:"filter,omitempty"`
}

func broadcastMarkers(svc live.Service, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBroadcastBody))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		var req broadcastReq
		if err := json.Unmarshal(body, &req); err != nil {
			logger.Warn(fmt.Sprintf("failed to decode marker broadcast: %s", err))
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if len(req.Added) == 0 && len(req.RemovedIDs) == 0 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		svc.BroadcastMarkers(live.MarkerUpdate{Added: req.Added, RemovedIDs: req.RemovedIDs}, req.Filter)
		w.WriteHeader(http.StatusAccepted)
	}
}
