// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package master

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ffutop/modbus-master/modbus"
	"github.com/ffutop/modbus-master/modbus/rtu"
	"github.com/ffutop/modbus-master/transport"
)

var (
	// ErrNoResponse is returned when the slave stays silent for the whole response timeout.
	ErrNoResponse = errors.New("modbus: no response from slave")
	// ErrTransport wraps write, read and flush failures of the port.
	ErrTransport = errors.New("modbus: transport failure")
)

// State is the phase of a single transaction.
type State int

const (
	StateIdle State = iota
	StateSending
	StateAwaitingResponse
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateAwaitingResponse:
		return "awaiting-response"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Engine runs request/response exchanges over one Port, one at a time.
// It never retries: each call performs at most one write and one read.
type Engine struct {
	port     transport.Port
	timing   Timing
	log      logrus.FieldLogger
	observer Observer

	// gate holds a token while a transaction owns the port.
	gate chan struct{}

	// Guarded by gate.
	lastDone  time.Time
	abandoned bool
	lastWrite time.Time
}

// NewEngine creates an Engine that owns port.
func NewEngine(port transport.Port, opts ...Option) *Engine {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Engine{
		port:     port,
		timing:   o.timing,
		log:      o.log,
		observer: o.observer,
		gate:     make(chan struct{}, 1),
	}
}

// Timing returns the timing the engine was built with.
func (e *Engine) Timing() Timing {
	return e.timing
}

// Execute sends pdu to slaveID and waits for the reply.
//
// A device exception is a successful exchange: it is returned in
// Response.Exception with a nil error. Broadcast requests (slave 0) return an
// empty Response as soon as the request is written.
//
// Callers queue on a gate, so a second Execute never starts before the first
// completes or fails; waiting for the gate honours ctx.
func (e *Engine) Execute(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (*rtu.Response, error) {
	select {
	case e.gate <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-e.gate }()

	start := time.Now()
	resp, err := e.transact(ctx, slaveID, pdu)
	e.lastDone = time.Now()

	if e.observer != nil {
		outcome := OutcomeOf(err)
		if resp != nil && resp.Exception != nil {
			outcome = OutcomeException
		}
		e.observer.ObserveTransaction(slaveID, pdu.FunctionCode, outcome, err, time.Since(start))
	}
	return resp, err
}

type transaction struct {
	log   logrus.FieldLogger
	state State
}

func (tx *transaction) to(state State) {
	tx.log.WithFields(logrus.Fields{"from": tx.state, "to": state}).Trace("transaction state")
	tx.state = state
}

func (tx *transaction) fail(err error) error {
	tx.to(StateFailed)
	tx.log.WithError(err).Debug("transaction failed")
	return err
}

func (e *Engine) transact(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (*rtu.Response, error) {
	tx := &transaction{
		log:   e.log.WithFields(logrus.Fields{"slaveID": slaveID, "func": pdu.FunctionCode}),
		state: StateIdle,
	}

	aduRequest, err := rtu.EncodeRequest(slaveID, pdu)
	if err != nil {
		return nil, tx.fail(err)
	}

	if err := e.settle(ctx, tx); err != nil {
		return nil, tx.fail(err)
	}

	tx.to(StateSending)
	tx.log.WithField("request", hex.EncodeToString(aduRequest)).Debug("send to modbus slave")
	e.lastWrite = time.Now()
	if err := e.port.Write(ctx, aduRequest); err != nil {
		if ctx.Err() != nil {
			e.abandoned = true
			return nil, tx.fail(err)
		}
		return nil, tx.fail(fmt.Errorf("%w: %w", ErrTransport, err))
	}

	if slaveID == modbus.BroadcastAddress {
		tx.to(StateComplete)
		return &rtu.Response{SlaveID: slaveID}, nil
	}

	tx.to(StateAwaitingResponse)
	aduResponse, err := e.port.ReadUntilSilence(ctx, rtu.MaxSize, e.timing.InterByteTimeout, e.timing.ResponseTimeout)
	switch {
	case err == nil:
	case errors.Is(err, transport.ErrTimeout):
		return nil, tx.fail(fmt.Errorf("%w: %w", ErrNoResponse, err))
	case ctx.Err() != nil:
		// The reply may still arrive; the next transaction drains it first.
		e.abandoned = true
		return nil, tx.fail(ctx.Err())
	default:
		return nil, tx.fail(fmt.Errorf("%w: %w", ErrTransport, err))
	}
	tx.log.WithField("response", hex.EncodeToString(aduResponse)).Debug("recv from modbus slave")

	resp, err := rtu.DecodeResponse(aduResponse, slaveID, pdu.FunctionCode)
	if err != nil {
		return nil, tx.fail(err)
	}
	tx.to(StateComplete)
	return resp, nil
}

// settle prepares the line for a new request: it drains a reply left over by an
// abandoned transaction, discards any other stale input and observes the
// request pause since the previous transaction.
func (e *Engine) settle(ctx context.Context, tx *transaction) error {
	if e.abandoned {
		quietUntil := e.lastWrite.Add(e.timing.ResponseTimeout)
		for {
			remaining := time.Until(quietUntil)
			if remaining <= 0 {
				break
			}
			late, err := e.port.ReadUntilSilence(ctx, rtu.MaxSize, e.timing.InterByteTimeout, remaining)
			if errors.Is(err, transport.ErrTimeout) {
				break
			}
			if err != nil {
				if ctx.Err() != nil {
					return err
				}
				return fmt.Errorf("%w: %w", ErrTransport, err)
			}
			tx.log.WithField("response", hex.EncodeToString(late)).Warn("discarding late response of abandoned transaction")
		}
		e.abandoned = false
	}

	n, err := e.port.Flush()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	if n > 0 {
		tx.log.WithField("bytes", n).Warn("discarded stale input before request")
	}

	if e.lastDone.IsZero() || e.timing.RequestPause <= 0 {
		return nil
	}
	if wait := e.timing.RequestPause - time.Since(e.lastDone); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}

// Close closes the port.
func (e *Engine) Close() error {
	return e.port.Close()
}
