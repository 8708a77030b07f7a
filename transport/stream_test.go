// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.
package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"
)

const (
	testSilence = 20 * time.Millisecond
	testTimeout = 200 * time.Millisecond
)

func newPipeStream(t *testing.T) (*Stream, net.Conn) {
	t.Helper()
	local, remote := net.Pipe()
	s := NewStream(local)
	t.Cleanup(func() {
		s.Close()
		remote.Close()
	})
	return s, remote
}

func TestStream_ReadUntilSilence(t *testing.T) {
	s, remote := newPipeStream(t)

	go func() {
		remote.Write([]byte{0x01, 0x03, 0x02})
		time.Sleep(2 * time.Millisecond)
		remote.Write([]byte{0xAA, 0xBB})
	}()

	got, err := s.ReadUntilSilence(context.Background(), 256, testSilence, testTimeout)
	if err != nil {
		t.Fatalf("ReadUntilSilence failed: %v", err)
	}
	if want := []byte{0x01, 0x03, 0x02, 0xAA, 0xBB}; !bytes.Equal(got, want) {
		t.Errorf("Want: %X\nGot:  %X", want, got)
	}
}

func TestStream_SilenceSplitsFrames(t *testing.T) {
	s, remote := newPipeStream(t)

	go func() {
		remote.Write([]byte{0x01, 0x02})
		time.Sleep(5 * testSilence)
		remote.Write([]byte{0x03, 0x04})
	}()

	first, err := s.ReadUntilSilence(context.Background(), 256, testSilence, testTimeout)
	if err != nil {
		t.Fatalf("first read failed: %v", err)
	}
	second, err := s.ReadUntilSilence(context.Background(), 256, testSilence, testTimeout)
	if err != nil {
		t.Fatalf("second read failed: %v", err)
	}
	if !bytes.Equal(first, []byte{0x01, 0x02}) || !bytes.Equal(second, []byte{0x03, 0x04}) {
		t.Errorf("frames not split on silence: %X / %X", first, second)
	}
}

func TestStream_TimeoutLeavesPortReusable(t *testing.T) {
	s, remote := newPipeStream(t)

	start := time.Now()
	_, err := s.ReadUntilSilence(context.Background(), 256, testSilence, 50*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("want ErrTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("timed out early after %v", elapsed)
	}

	go remote.Write([]byte{0x05})
	got, err := s.ReadUntilSilence(context.Background(), 256, testSilence, testTimeout)
	if err != nil || !bytes.Equal(got, []byte{0x05}) {
		t.Fatalf("port not reusable after timeout: %X, %v", got, err)
	}
}

func TestStream_MaxBytesAndFlush(t *testing.T) {
	s, remote := newPipeStream(t)

	go remote.Write([]byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9})

	got, err := s.ReadUntilSilence(context.Background(), 4, testSilence, testTimeout)
	if err != nil {
		t.Fatalf("ReadUntilSilence failed: %v", err)
	}
	if !bytes.Equal(got, []byte{0, 1, 2, 3}) {
		t.Errorf("capped read = %X", got)
	}

	time.Sleep(testSilence)
	n, err := s.Flush()
	if err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if n != 6 {
		t.Errorf("Flush discarded %d bytes, want 6", n)
	}
	if _, err := s.ReadUntilSilence(context.Background(), 256, testSilence, 30*time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Errorf("flushed bytes still readable: %v", err)
	}
}

func TestStream_FlushCallsInputReset(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()

	resets := 0
	s := NewStream(local, WithInputReset(func() error { resets++; return nil }))
	defer s.Close()

	if _, err := s.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if resets != 1 {
		t.Errorf("input reset called %d times, want 1", resets)
	}
}

func TestStream_ContextCancel(t *testing.T) {
	s, _ := newPipeStream(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := s.ReadUntilSilence(ctx, 256, testSilence, time.Second); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("want context.DeadlineExceeded, got %v", err)
	}
}

func TestStream_Write(t *testing.T) {
	s, remote := newPipeStream(t)

	received := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 16)
		n, _ := io.ReadAtLeast(remote, buf, 3)
		received <- buf[:n]
	}()

	if err := s.Write(context.Background(), []byte{0x01, 0x06, 0x00}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if got := <-received; !bytes.Equal(got, []byte{0x01, 0x06, 0x00}) {
		t.Errorf("remote received %X", got)
	}
}

func TestStream_Closed(t *testing.T) {
	s, _ := newPipeStream(t)
	s.Close()

	if err := s.Write(context.Background(), []byte{0x01}); !errors.Is(err, ErrClosed) {
		t.Errorf("Write after Close: want ErrClosed, got %v", err)
	}
	if _, err := s.ReadUntilSilence(context.Background(), 256, testSilence, testTimeout); !errors.Is(err, ErrClosed) {
		t.Errorf("read after Close: want ErrClosed, got %v", err)
	}
}

type failingPort struct {
	readErr  error
	writeErr error
}

func (p *failingPort) Read(b []byte) (int, error)  { return 0, p.readErr }
func (p *failingPort) Write(b []byte) (int, error) { return 0, p.writeErr }
func (p *failingPort) Close() error                { return nil }

func TestStream_DeviceErrors(t *testing.T) {
	device := errors.New("device unplugged")
	s := NewStream(&failingPort{readErr: device, writeErr: device})
	defer s.Close()

	var opErr *OpError
	err := s.Write(context.Background(), []byte{0x01})
	if !errors.As(err, &opErr) || opErr.Op != "write" || !errors.Is(err, device) {
		t.Errorf("Write: want write OpError wrapping device error, got %v", err)
	}

	_, err = s.ReadUntilSilence(context.Background(), 256, testSilence, testTimeout)
	if !errors.As(err, &opErr) || opErr.Op != "read" || !errors.Is(err, device) {
		t.Errorf("read: want read OpError wrapping device error, got %v", err)
	}
}

func TestFrameSilence(t *testing.T) {
	tests := []struct {
		baud int
		want time.Duration
	}{
		{9600, 3645 * time.Microsecond},
		{19200, 1822 * time.Microsecond},
		{115200, 1750 * time.Microsecond},
		{0, 1750 * time.Microsecond},
	}
	for _, tt := range tests {
		if got := FrameSilence(tt.baud); got != tt.want {
			t.Errorf("FrameSilence(%d) = %v, want %v", tt.baud, got, tt.want)
		}
	}
}
