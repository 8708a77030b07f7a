// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtuovertcp

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ffutop/modbus-master/transport"
)

// ServeFunc serves one connection until ctx is done or the port fails.
type ServeFunc func(ctx context.Context, port transport.Port) error

// Server listens on a TCP address and hands every accepted connection,
// wrapped as a Port, to a ServeFunc.
type Server struct {
	Address string
	Log     logrus.FieldLogger

	mu       sync.Mutex
	listener net.Listener
}

// NewServer creates a new RTU over TCP Server.
func NewServer(address string, log logrus.FieldLogger) *Server {
	return &Server{
		Address: address,
		Log:     log,
	}
}

// Listen binds the listening socket. Start calls it when it was not called before.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.Address, err)
	}
	s.listener = listener
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start accepts connections until ctx is done.
func (s *Server) Start(ctx context.Context, serve ServeFunc) error {
	if err := s.Listen(); err != nil {
		return err
	}
	s.Log.WithField("addr", s.Addr()).Info("RTU over TCP server listening")

	go func() {
		<-ctx.Done()
		s.Close()
	}()

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		s.mu.Lock()
		listener := s.listener
		s.mu.Unlock()
		if listener == nil {
			return nil
		}
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				if s.Addr() == nil {
					return nil
				}
				s.Log.WithError(err).Error("Failed to accept connection")
				return err
			}
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleConnection(ctx, conn, serve)
		}()
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn, serve ServeFunc) {
	log := s.Log.WithField("addr", conn.RemoteAddr())
	log.Info("New RTU over TCP client connected")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	port := transport.NewStream(conn, transport.WithLogger(log))
	go func() {
		<-ctx.Done()
		port.Close()
	}()

	if err := serve(ctx, port); err != nil && ctx.Err() == nil {
		log.WithError(err).Warn("RTU over TCP connection closed")
	}
}

// Close closes the server listener.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		err := s.listener.Close()
		s.listener = nil
		return err
	}
	return nil
}
