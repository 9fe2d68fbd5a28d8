// Copyright (c) Seismix
// SPDX-License-Identifier: Apache-2.0

package live

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const closeWriteTimeout = 5 * time.Second

// Conn is the subset of a websocket connection the fan-out needs. Satisfied
// by *websocket.Conn.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// Client is one subscriber connection bound to a single sensor.
type Client struct {
	id       string
	sensorID uint64
	format   Format
	conn     Conn

	mutex  sync.Mutex
	closed bool
}

// NewClient wraps an established connection.
func NewClient(id string, sensorID uint64, format Format, conn Conn) *Client {
	return &Client{
		id:       id,
		sensorID: sensorID,
		format:   format,
		conn:     conn,
	}
}

// ID returns the subscription identifier.
func (c *Client) ID() string {
	return c.id
}

// SensorID returns the sensor this subscription is bound to.
func (c *Client) SensorID() uint64 {
	return c.sensorID
}

// Send encodes the event in the subscription's format and writes it. Sends
// after Close are silently dropped.
func (c *Client) Send(ev Event) error {
	payload, err := c.format.encode(ev)
	if err != nil {
		return err
	}

	mt := websocket.BinaryMessage
	if c.format == FormatText {
		mt = websocket.TextMessage
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.closed {
		return nil
	}
	return c.conn.WriteMessage(mt, payload)
}

// Close sends a close frame with the given code and reason and tears the
// connection down. Safe to call more than once.
func (c *Client) Close(code int, reason string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.closed {
		return
	}
	c.closed = true

	msg := websocket.FormatCloseMessage(code, reason)
	deadline := time.Now().Add(closeWriteTimeout)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, deadline)
	_ = c.conn.Close()
}

// Closed reports whether Close has been called.
func (c *Client) Closed() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.closed
}
