// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"github.com/ffutop/modbus-master/modbus"
	"github.com/ffutop/modbus-master/modbus/crc"
)

// ApplicationDataUnit is a slave address plus PDU, the unit carried on the serial line.
type ApplicationDataUnit struct {
	SlaveID byte
	Pdu     modbus.ProtocolDataUnit
}

// Decode checks length and checksum of raw and splits it into address and PDU.
// The returned PDU data aliases raw.
func Decode(raw []byte) (adu *ApplicationDataUnit, err error) {
	length := len(raw)
	// Minimum size (including address, function and CRC)
	if length < MinSize {
		err = frameErrorf(TooShort, "length '%v' does not meet minimum '%v'", length, MinSize)
		return
	}

	if !crc.Verify(raw) {
		err = frameErrorf(ChecksumMismatch, "crc '%04X' does not match expected '%04X'",
			uint16(raw[length-1])<<8|uint16(raw[length-2]), crc.Checksum(raw[:length-2]))
		return
	}
	adu = &ApplicationDataUnit{}
	adu.SlaveID = raw[0]
	adu.Pdu.FunctionCode = raw[1]
	adu.Pdu.Data = raw[2 : length-2]
	return
}

// Encode encodes PDU in an RTU frame:
//
//	Slave Address   : 1 byte
//	Function        : 1 byte
//	Data            : 0 up to 252 bytes
//	CRC             : 2 bytes, low byte first
func (adu *ApplicationDataUnit) Encode() (raw []byte, err error) {
	length := len(adu.Pdu.Data) + MinSize
	if length > MaxSize {
		err = frameErrorf(FrameTooLong, "length of data '%v' must not be bigger than '%v'", length, MaxSize)
		return
	}
	raw = make([]byte, 2, length)
	raw[0] = adu.SlaveID
	raw[1] = adu.Pdu.FunctionCode
	raw = append(raw, adu.Pdu.Data...)
	raw = crc.Append(raw)
	return
}
