// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package master

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ffutop/modbus-master/transport"
)

const (
	defaultResponseTimeout = time.Second
	defaultRequestPause    = 100 * time.Millisecond
)

// Timing controls frame boundary detection and pacing on the line.
type Timing struct {
	// ResponseTimeout bounds the wait for the first byte of a reply.
	ResponseTimeout time.Duration
	// InterByteTimeout is the silence that ends a reply frame.
	InterByteTimeout time.Duration
	// RequestPause is the minimum idle time between the end of one
	// transaction and the next request, giving slaves turnaround time.
	RequestPause time.Duration
}

// DefaultTiming derives the inter-byte timeout from baudRate (3.5 character times).
func DefaultTiming(baudRate int) Timing {
	return Timing{
		ResponseTimeout:  defaultResponseTimeout,
		InterByteTimeout: transport.FrameSilence(baudRate),
		RequestPause:     defaultRequestPause,
	}
}

type options struct {
	timing   Timing
	log      logrus.FieldLogger
	observer Observer
}

func defaultOptions() options {
	return options{
		timing: DefaultTiming(9600),
		log:    logrus.StandardLogger(),
	}
}

// Option configures an Engine or Client.
type Option func(*options)

// WithTiming sets the engine timing. Zero timeouts keep their default;
// RequestPause is taken as given.
func WithTiming(t Timing) Option {
	return func(o *options) {
		if t.ResponseTimeout > 0 {
			o.timing.ResponseTimeout = t.ResponseTimeout
		}
		if t.InterByteTimeout > 0 {
			o.timing.InterByteTimeout = t.InterByteTimeout
		}
		if t.RequestPause >= 0 {
			o.timing.RequestPause = t.RequestPause
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(o *options) {
		o.log = log
	}
}

// WithObserver reports every transaction to obs.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		o.observer = obs
	}
}
