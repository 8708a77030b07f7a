// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package transport defines the byte-stream port the RTU engine talks through.
//
// RTU frames carry no delimiter or length prefix. A Port therefore delivers raw
// bytes and the read operation infers the end of a frame from line silence.
package transport

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTimeout is returned when no byte arrives before the response timeout.
	ErrTimeout = errors.New("transport: timed out waiting for response")
	// ErrClosed is returned by operations on a closed port.
	ErrClosed = errors.New("transport: port closed")
)

// OpError wraps an I/O failure of the underlying device.
type OpError struct {
	Op  string // "open", "write", "read" or "flush"
	Err error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("transport: %s failed: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// Port is an already configured byte-stream device.
type Port interface {
	// Write transmits the whole of p.
	Write(ctx context.Context, p []byte) error

	// ReadUntilSilence accumulates bytes until one of:
	//   - interByteTimeout passes without a new byte after at least one was received
	//   - maxBytes have been received
	//   - overallTimeout passes with nothing received, which fails with ErrTimeout
	ReadUntilSilence(ctx context.Context, maxBytes int, interByteTimeout, overallTimeout time.Duration) ([]byte, error)

	// Flush discards every byte received and not yet read, returning how many.
	Flush() (int, error)

	Close() error
}

// FrameSilence returns 3.5 character times at baudRate, the RTU inter-frame gap.
// Above 19200 baud the Modbus serial line guide fixes the silence at 1750µs.
func FrameSilence(baudRate int) time.Duration {
	return CharacterDelay(baudRate, 0)
}

// CharacterDelay returns chars inter-character gaps (t1.5) plus one
// inter-frame gap (t3.5) at baudRate.
func CharacterDelay(baudRate, chars int) time.Duration {
	var characterDelay, frameDelay int

	if baudRate <= 0 || baudRate > 19200 {
		characterDelay = 750
		frameDelay = 1750
	} else {
		characterDelay = 15000000 / baudRate
		frameDelay = 35000000 / baudRate
	}
	return time.Duration(characterDelay*chars+frameDelay) * time.Microsecond
}
