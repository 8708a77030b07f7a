// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import "fmt"

// FrameErrorKind classifies a corrupted or unexpected frame.
type FrameErrorKind int

const (
	TooShort FrameErrorKind = iota + 1
	ChecksumMismatch
	SlaveMismatch
	FunctionMismatch
	PayloadLengthMismatch
	EchoMismatch
	FrameTooLong
)

func (k FrameErrorKind) String() string {
	switch k {
	case TooShort:
		return "too short"
	case ChecksumMismatch:
		return "checksum mismatch"
	case SlaveMismatch:
		return "slave mismatch"
	case FunctionMismatch:
		return "function mismatch"
	case PayloadLengthMismatch:
		return "payload length mismatch"
	case EchoMismatch:
		return "echo mismatch"
	case FrameTooLong:
		return "frame too long"
	default:
		return fmt.Sprintf("frame error %d", int(k))
	}
}

// FrameError is returned when a frame fails validation.
// errors.Is matches any FrameError of the same Kind, so the Err* sentinels
// below can be used as targets.
type FrameError struct {
	Kind   FrameErrorKind
	Detail string
}

func (e *FrameError) Error() string {
	if e.Detail == "" {
		return "modbus: " + e.Kind.String()
	}
	return "modbus: " + e.Kind.String() + ": " + e.Detail
}

func (e *FrameError) Is(target error) bool {
	t, ok := target.(*FrameError)
	return ok && t.Kind == e.Kind
}

var (
	ErrTooShort              = &FrameError{Kind: TooShort}
	ErrChecksumMismatch      = &FrameError{Kind: ChecksumMismatch}
	ErrSlaveMismatch         = &FrameError{Kind: SlaveMismatch}
	ErrFunctionMismatch      = &FrameError{Kind: FunctionMismatch}
	ErrPayloadLengthMismatch = &FrameError{Kind: PayloadLengthMismatch}
	ErrEchoMismatch          = &FrameError{Kind: EchoMismatch}
	ErrFrameTooLong          = &FrameError{Kind: FrameTooLong}
)

func frameErrorf(kind FrameErrorKind, format string, v ...interface{}) error {
	return &FrameError{Kind: kind, Detail: fmt.Sprintf(format, v...)}
}
