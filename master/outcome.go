// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package master

import (
	"context"
	"errors"
	"time"

	"github.com/ffutop/modbus-master/modbus"
	"github.com/ffutop/modbus-master/modbus/rtu"
)

// Outcome classifies a finished transaction.
type Outcome int

const (
	// OutcomeSuccess is a valid reply carrying the requested data.
	OutcomeSuccess Outcome = iota
	// OutcomeException is a valid reply in which the device refused the request.
	OutcomeException
	// OutcomeFailure covers everything else: no reply, a malformed reply,
	// a transport error or cancellation.
	OutcomeFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeException:
		return "exception"
	default:
		return "failure"
	}
}

// OutcomeOf classifies an error returned by Client methods.
func OutcomeOf(err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}
	var excErr *modbus.ExceptionError
	if errors.As(err, &excErr) {
		return OutcomeException
	}
	return OutcomeFailure
}

// Reason gives a short label for err, suitable for metrics.
func Reason(err error) string {
	var (
		excErr   *modbus.ExceptionError
		frameErr *rtu.FrameError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &excErr):
		return "exception"
	case errors.Is(err, ErrNoResponse):
		return "timeout"
	case errors.As(err, &frameErr):
		return "frame"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "transport"
	}
}

// Observer receives one call per transaction attempted by an Engine.
type Observer interface {
	ObserveTransaction(slaveID, functionCode byte, outcome Outcome, err error, elapsed time.Duration)
}
