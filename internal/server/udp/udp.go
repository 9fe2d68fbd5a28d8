// Copyright (c) Seismix
// SPDX-License-Identifier: Apache-2.0

package udp

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/seismix/seismix/internal/server"
	"github.com/seismix/seismix/logger"
)

const (
	udpProtocol = "udp"
	// Largest payload that fits a single datagram; field units send far less.
	maxPktLen = 65507

	readRetryDelay = 5 * time.Millisecond
)

// HandlerFunc processes one received datagram. It must not block: everything
// on this path is in-memory work, so packets are handled sequentially to
// preserve per-sender ordering.
type HandlerFunc func(src *net.UDPAddr, payload []byte)

type Server struct {
	server.BaseServer
	handler  HandlerFunc
	conn     *net.UDPConn
	stopOnce sync.Once
}

var _ server.Server = (*Server)(nil)

func New(ctx context.Context, cancel context.CancelFunc, name string, config server.Config, handler HandlerFunc, logger logger.Logger) server.Server {
	listenFullAddress := fmt.Sprintf("%s:%s", config.Host, config.Port)
	return &Server{
		BaseServer: server.BaseServer{
			Ctx:     ctx,
			Cancel:  cancel,
			Name:    name,
			Address: listenFullAddress,
			Config:  config,
			Logger:  logger,
		},
		handler: handler,
	}
}

func (s *Server) Start() error {
	s.Protocol = udpProtocol
	addr, err := net.ResolveUDPAddr(udpProtocol, s.Address)
	if err != nil {
		return fmt.Errorf("%s service failed to resolve UDP address %s: %w", s.Name, s.Address, err)
	}
	conn, err := net.ListenUDP(udpProtocol, addr)
	if err != nil {
		return fmt.Errorf("%s service failed to bind UDP address %s: %w", s.Name, s.Address, err)
	}
	s.conn = conn
	s.Logger.Info(fmt.Sprintf("%s service %s server listening at %s", s.Name, s.Protocol, s.Address))

	errCh := make(chan error)
	go func() {
		errCh <- s.listen(conn)
	}()

	select {
	case <-s.Ctx.Done():
		return s.Stop()
	case err := <-errCh:
		return err
	}
}

func (s *Server) listen(conn *net.UDPConn) error {
	buf := make([]byte, maxPktLen)
	for {
		n, src, err := conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-s.Ctx.Done():
				return nil
			default:
			}
			if neterr, ok := err.(net.Error); ok && neterr.Timeout() {
				time.Sleep(readRetryDelay)
				continue
			}
			return err
		}
		payload := make([]byte, n)
		copy(payload, buf[:n])
		s.handler(src, payload)
	}
}

// Stop is safe to call more than once: the signal handler and the listen
// loop both stop the server on shutdown.
func (s *Server) Stop() error {
	defer s.Cancel()
	var err error
	s.stopOnce.Do(func() {
		if s.conn != nil {
			if closeErr := s.conn.Close(); closeErr != nil {
				s.Logger.Error(fmt.Sprintf("%s service %s server error occurred during shutdown at %s: %s", s.Name, s.Protocol, s.Address, closeErr))
				err = closeErr
				return
			}
		}
		s.Logger.Info(fmt.Sprintf("%s %s service shutdown of udp at %s", s.Name, s.Protocol, s.Address))
	})
	return err
}
