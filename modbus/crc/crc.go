// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package crc implements the Modbus CRC16 (reflected polynomial 0xA001, initial value 0xFFFF).
package crc

const (
	initial    uint16 = 0xFFFF
	polynomial uint16 = 0xA001
)

// CRC is a running Modbus CRC16. The zero value must be Reset before use.
type CRC struct {
	value uint16
}

// Reset restarts the checksum at the initial value.
func (crc *CRC) Reset() *CRC {
	crc.value = initial
	return crc
}

// PushBytes feeds bs into the checksum.
func (crc *CRC) PushBytes(bs []byte) *CRC {
	v := crc.value
	for _, b := range bs {
		v ^= uint16(b)
		for i := 0; i < 8; i++ {
			if v&0x0001 != 0 {
				v = (v >> 1) ^ polynomial
			} else {
				v >>= 1
			}
		}
	}
	crc.value = v
	return crc
}

// Value returns the current checksum.
func (crc *CRC) Value() uint16 {
	return crc.value
}

// Checksum computes the CRC16 of data. An empty slice yields 0xFFFF.
func Checksum(data []byte) uint16 {
	var crc CRC
	return crc.Reset().PushBytes(data).Value()
}

// Append appends the checksum of frame to it, low byte first.
func Append(frame []byte) []byte {
	sum := Checksum(frame)
	return append(frame, byte(sum), byte(sum>>8))
}

// Verify checks the trailing two bytes of frame against the checksum of the rest.
// Frames shorter than the checksum itself never verify.
func Verify(frame []byte) bool {
	n := len(frame)
	if n < 2 {
		return false
	}
	return Checksum(frame[:n-2]) == uint16(frame[n-1])<<8|uint16(frame[n-2])
}
