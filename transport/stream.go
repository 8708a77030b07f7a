// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package transport

import (
	"context"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	defaultMaxBytes = 256
	rxQueueSize     = 64
	readBufferSize  = 512
)

// Stream adapts an io.ReadWriteCloser (serial device, TCP connection, pipe)
// into a Port. A background goroutine reads the device continuously so that
// silence can be measured without relying on device read timeouts.
type Stream struct {
	rwc        io.ReadWriteCloser
	log        logrus.FieldLogger
	isTimeout  func(error) bool
	resetInput func() error

	rx        chan []byte
	done      chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	pending []byte
	err     error
}

// StreamOption configures a Stream.
type StreamOption func(*Stream)

// WithLogger sets the logger used for frame dumps and read failures.
func WithLogger(log logrus.FieldLogger) StreamOption {
	return func(s *Stream) {
		s.log = log
	}
}

// WithTimeoutError tells the stream which read errors are device read
// timeouts. Those are retried instead of ending the stream.
func WithTimeoutError(isTimeout func(error) bool) StreamOption {
	return func(s *Stream) {
		s.isTimeout = isTimeout
	}
}

// WithInputReset registers a driver level input-buffer reset, called by Flush.
func WithInputReset(reset func() error) StreamOption {
	return func(s *Stream) {
		s.resetInput = reset
	}
}

// NewStream starts reading rwc and returns it as a Port.
func NewStream(rwc io.ReadWriteCloser, opts ...StreamOption) *Stream {
	s := &Stream{
		rwc:       rwc,
		log:       logrus.StandardLogger(),
		isTimeout: isTimeoutError,
		rx:        make(chan []byte, rxQueueSize),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.readLoop()
	return s
}

func isTimeoutError(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

func (s *Stream) readLoop() {
	defer close(s.rx)

	buf := make([]byte, readBufferSize)
	for {
		n, err := s.rwc.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case s.rx <- chunk:
			case <-s.done:
				return
			}
		}
		if err == nil {
			continue
		}
		if s.isTimeout(err) {
			continue
		}
		select {
		case <-s.done:
		default:
			s.log.WithError(err).Warn("transport: read loop stopped")
			s.mu.Lock()
			s.err = &OpError{Op: "read", Err: err}
			s.mu.Unlock()
		}
		return
	}
}

func (s *Stream) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Write implements Port.
func (s *Stream) Write(ctx context.Context, p []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed() {
		return ErrClosed
	}
	s.log.WithField("data", hex.EncodeToString(p)).Debug("transport: write")
	if _, err := s.rwc.Write(p); err != nil {
		return &OpError{Op: "write", Err: err}
	}
	return nil
}

// ReadUntilSilence implements Port. A maxBytes of zero or less means MaxSize of an RTU ADU.
func (s *Stream) ReadUntilSilence(ctx context.Context, maxBytes int, interByteTimeout, overallTimeout time.Duration) ([]byte, error) {
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}

	s.mu.Lock()
	frame := s.pending
	s.pending = nil
	s.mu.Unlock()
	if len(frame) >= maxBytes {
		return s.truncate(frame, maxBytes), nil
	}

	overall := time.NewTimer(overallTimeout)
	defer overall.Stop()
	silence := time.NewTimer(interByteTimeout)
	defer silence.Stop()

	deadline, idle := overall.C, (<-chan time.Time)(nil)
	if len(frame) > 0 {
		deadline, idle = nil, silence.C
	} else {
		silence.Stop()
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.done:
			return nil, ErrClosed
		case <-deadline:
			return nil, ErrTimeout
		case <-idle:
			return frame, nil
		case chunk, ok := <-s.rx:
			if !ok {
				if len(frame) > 0 {
					return frame, nil
				}
				return nil, s.readErr()
			}
			frame = append(frame, chunk...)
			if len(frame) >= maxBytes {
				return s.truncate(frame, maxBytes), nil
			}
			deadline = nil
			silence.Reset(interByteTimeout)
			idle = silence.C
		}
	}
}

// truncate keeps the bytes beyond maxBytes for the next read or Flush.
func (s *Stream) truncate(frame []byte, maxBytes int) []byte {
	if len(frame) > maxBytes {
		s.mu.Lock()
		s.pending = append(append([]byte(nil), frame[maxBytes:]...), s.pending...)
		s.mu.Unlock()
	}
	return frame[:maxBytes:maxBytes]
}

func (s *Stream) readErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	return ErrClosed
}

// Flush implements Port.
func (s *Stream) Flush() (int, error) {
	s.mu.Lock()
	n := len(s.pending)
	s.pending = nil
	s.mu.Unlock()

drain:
	for {
		select {
		case chunk, ok := <-s.rx:
			if !ok {
				break drain
			}
			n += len(chunk)
		default:
			break drain
		}
	}

	if s.resetInput != nil {
		if err := s.resetInput(); err != nil {
			return n, &OpError{Op: "flush", Err: err}
		}
	}
	return n, nil
}

// Close implements Port.
func (s *Stream) Close() (err error) {
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.rwc.Close()
	})
	return
}
