// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package serial opens configured serial devices as transport Ports.
package serial

import (
	"errors"
	"fmt"
	"strings"
	"time"

	gridserial "github.com/grid-x/serial"
	"github.com/sirupsen/logrus"
	bugst "go.bug.st/serial"

	"github.com/ffutop/modbus-master/internal/config"
	"github.com/ffutop/modbus-master/transport"
)

const (
	DriverGridX = "gridx"
	DriverBugST = "bugst"

	// serialTimeout bounds a single device read so the read loop notices Close.
	serialTimeout = 100 * time.Millisecond
)

// Open opens the device described by cfg. When cfg.Device is empty and
// cfg.Product is set, the first port whose USB product name matches is used.
func Open(cfg config.SerialConfig, log logrus.FieldLogger) (*transport.Stream, error) {
	device := cfg.Device
	if device == "" && cfg.Product != "" {
		found, err := FindByProduct(cfg.Product)
		if err != nil {
			return nil, &transport.OpError{Op: "open", Err: err}
		}
		device = found
	}
	if device == "" {
		return nil, &transport.OpError{Op: "open", Err: errors.New("no serial device configured")}
	}

	log = log.WithFields(logrus.Fields{"device": device, "baudRate": cfg.BaudRate, "driver": driverName(cfg.Driver)})
	switch driverName(cfg.Driver) {
	case DriverGridX:
		return openGridX(device, cfg, log)
	case DriverBugST:
		return openBugST(device, cfg, log)
	default:
		return nil, &transport.OpError{Op: "open", Err: fmt.Errorf("unknown serial driver %q", cfg.Driver)}
	}
}

func driverName(driver string) string {
	if driver == "" {
		return DriverGridX
	}
	return strings.ToLower(driver)
}

func openGridX(device string, cfg config.SerialConfig, log logrus.FieldLogger) (*transport.Stream, error) {
	c := gridserial.Config{
		Address:  device,
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		StopBits: cfg.StopBits,
		Parity:   cfg.Parity,
		Timeout:  readTimeout(cfg),
	}
	if cfg.RS485.Enabled {
		c.RS485.Enabled = true
		c.RS485.DelayRtsBeforeSend = cfg.RS485.DelayRtsBeforeSend
		c.RS485.DelayRtsAfterSend = cfg.RS485.DelayRtsAfterSend
		c.RS485.RtsHighDuringSend = cfg.RS485.RtsHighDuringSend
		c.RS485.RtsHighAfterSend = cfg.RS485.RtsHighAfterSend
		c.RS485.RxDuringTx = cfg.RS485.RxDuringTx
	}

	port, err := gridserial.Open(&c)
	if err != nil {
		return nil, &transport.OpError{Op: "open", Err: fmt.Errorf("could not open %s: %w", device, err)}
	}
	log.Info("serial port opened")
	return transport.NewStream(port,
		transport.WithLogger(log),
		transport.WithTimeoutError(func(err error) bool { return errors.Is(err, gridserial.ErrTimeout) }),
	), nil
}

func openBugST(device string, cfg config.SerialConfig, log logrus.FieldLogger) (*transport.Stream, error) {
	mode := &bugst.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
	}
	switch cfg.Parity {
	case "E":
		mode.Parity = bugst.EvenParity
	case "O":
		mode.Parity = bugst.OddParity
	default:
		mode.Parity = bugst.NoParity
	}
	if cfg.StopBits == 2 {
		mode.StopBits = bugst.TwoStopBits
	} else {
		mode.StopBits = bugst.OneStopBit
	}

	port, err := bugst.Open(device, mode)
	if err != nil {
		return nil, &transport.OpError{Op: "open", Err: fmt.Errorf("could not open %s: %w", device, err)}
	}
	if err := port.SetReadTimeout(readTimeout(cfg)); err != nil {
		port.Close()
		return nil, &transport.OpError{Op: "open", Err: err}
	}
	log.Info("serial port opened")
	return transport.NewStream(port,
		transport.WithLogger(log),
		transport.WithInputReset(port.ResetInputBuffer),
	), nil
}

func readTimeout(cfg config.SerialConfig) time.Duration {
	if cfg.ReadTimeout > 0 && cfg.ReadTimeout < serialTimeout {
		return cfg.ReadTimeout
	}
	return serialTimeout
}
