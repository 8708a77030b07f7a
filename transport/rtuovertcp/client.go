// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package rtuovertcp carries unmodified RTU frames, CRC included, over a TCP
// stream, as serial device servers do. It is not Modbus TCP: there is no MBAP header.
package rtuovertcp

import (
	"context"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ffutop/modbus-master/transport"
)

const (
	tcpTimeout = 10 * time.Second
)

// Dial connects to a serial device server at address and returns the connection as a Port.
// A zero timeout means the package default.
func Dial(ctx context.Context, address string, timeout time.Duration, log logrus.FieldLogger) (*transport.Stream, error) {
	if timeout <= 0 {
		timeout = tcpTimeout
	}
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, &transport.OpError{Op: "open", Err: err}
	}
	log.WithField("address", address).Info("connected to RTU over TCP device")
	return transport.NewStream(conn, transport.WithLogger(log)), nil
}
