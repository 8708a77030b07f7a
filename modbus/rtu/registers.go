// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"encoding/binary"
)

// ReadRegistersRequest builds the data of a 0x03/0x04 request.
func ReadRegistersRequest(address, quantity uint16) []byte {
	data := make([]byte, 4)
	binary.BigEndian.PutUint16(data[0:2], address)
	binary.BigEndian.PutUint16(data[2:4], quantity)
	return data
}

// WriteSingleRegisterRequest builds the data of a 0x06 request.
func WriteSingleRegisterRequest(address, value uint16) []byte {
	return ReadRegistersRequest(address, value)
}

// WriteMultipleRegistersRequest builds the data of a 0x10 request.
func WriteMultipleRegistersRequest(address uint16, values []uint16) []byte {
	data := make([]byte, 5, 5+2*len(values))
	binary.BigEndian.PutUint16(data[0:2], address)
	binary.BigEndian.PutUint16(data[2:4], uint16(len(values)))
	data[4] = byte(2 * len(values))
	return append(data, EncodeRegisterValues(values)...)
}

// EncodeRegisterValues packs values big-endian.
func EncodeRegisterValues(values []uint16) []byte {
	data := make([]byte, 2*len(values))
	for i, v := range values {
		binary.BigEndian.PutUint16(data[2*i:], v)
	}
	return data
}

// EncodeRegisterResponse builds the data of a 0x03/0x04 reply: byte count then values.
func EncodeRegisterResponse(values []uint16) []byte {
	return append([]byte{byte(2 * len(values))}, EncodeRegisterValues(values)...)
}

// DecodeRegisterResponse unpacks the data of a 0x03/0x04 reply and checks it
// carries exactly quantity registers.
func DecodeRegisterResponse(data []byte, quantity uint16) ([]uint16, error) {
	if len(data) < 1 {
		return nil, frameErrorf(PayloadLengthMismatch, "response data is empty")
	}
	count := int(data[0])
	if count%2 != 0 {
		return nil, frameErrorf(PayloadLengthMismatch, "byte count '%v' is odd", count)
	}
	if count != len(data)-1 {
		return nil, frameErrorf(PayloadLengthMismatch, "byte count '%v' does not match data length '%v'", count, len(data)-1)
	}
	if count != 2*int(quantity) {
		return nil, frameErrorf(PayloadLengthMismatch, "response carries '%v' registers, requested '%v'", count/2, quantity)
	}
	values := make([]uint16, quantity)
	for i := range values {
		values[i] = binary.BigEndian.Uint16(data[1+2*i:])
	}
	return values, nil
}

// VerifyWriteSingleRegister checks that a 0x06 reply echoes the request.
func VerifyWriteSingleRegister(data []byte, address, value uint16) error {
	if len(data) != 4 {
		return frameErrorf(PayloadLengthMismatch, "response data length '%v' does not equal '4'", len(data))
	}
	if a, v := binary.BigEndian.Uint16(data[0:2]), binary.BigEndian.Uint16(data[2:4]); a != address || v != value {
		return frameErrorf(EchoMismatch, "response address '%v' value '%v' does not match request '%v' '%v'", a, v, address, value)
	}
	return nil
}

// VerifyWriteMultipleRegisters checks that a 0x10 reply echoes start address and quantity.
func VerifyWriteMultipleRegisters(data []byte, address, quantity uint16) error {
	if len(data) != 4 {
		return frameErrorf(PayloadLengthMismatch, "response data length '%v' does not equal '4'", len(data))
	}
	if a, q := binary.BigEndian.Uint16(data[0:2]), binary.BigEndian.Uint16(data[2:4]); a != address || q != quantity {
		return frameErrorf(EchoMismatch, "response address '%v' quantity '%v' does not match request '%v' '%v'", a, q, address, quantity)
	}
	return nil
}
