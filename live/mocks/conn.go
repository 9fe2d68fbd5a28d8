// Copyright (c) Seismix
// SPDX-License-Identifier: Apache-2.0

package mocks

import (
	"sync"
	"time"

	"github.com/seismix/seismix/live"
)

var _ live.Conn = (*Conn)(nil)

// Frame is one message written to the mock connection.
type Frame struct {
	Type    int
	Payload []byte
}

// Conn records everything written to it, for tests.
type Conn struct {
	mu sync.Mutex

	// WriteErr, when set, fails every data write.
	WriteErr error

	frames    []Frame
	closeCode int
	closeData []byte
	closed    bool
}

// NewConn returns an empty mock connection.
func NewConn() *Conn {
	return &Conn{}
}

func (c *Conn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.WriteErr != nil {
		return c.WriteErr
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	c.frames = append(c.frames, Frame{Type: messageType, Payload: cp})
	return nil
}

func (c *Conn) WriteControl(messageType int, data []byte, deadline time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeCode = messageType
	cp := make([]byte, len(data))
	copy(cp, data)
	c.closeData = cp
	return nil
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Frames returns all recorded data frames.
func (c *Conn) Frames() []Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Frame, len(c.frames))
	copy(out, c.frames)
	return out
}

// Closed reports whether Close was called.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// CloseFrame returns the recorded close control payload.
func (c *Conn) CloseFrame() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeData
}
