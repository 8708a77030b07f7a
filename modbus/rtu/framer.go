// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"fmt"

	"github.com/ffutop/modbus-master/modbus"
)

// Response is a checksummed reply that matched the request's slave address.
// Exactly one of Pdu and Exception is meaningful: Exception is non-nil when the
// device answered with an exception frame.
type Response struct {
	SlaveID   byte
	Pdu       modbus.ProtocolDataUnit
	Exception *modbus.ExceptionResponse
}

// EncodeRequest frames a request for slaveID. RTU has no length prefix; the
// frame boundary is the line silence that follows it.
func EncodeRequest(slaveID byte, pdu modbus.ProtocolDataUnit) ([]byte, error) {
	adu := &ApplicationDataUnit{SlaveID: slaveID, Pdu: pdu}
	return adu.Encode()
}

// DecodeResponse validates raw as the reply to a request sent to slaveID with functionCode.
//
// Checks run in order: minimum length, CRC, slave address, exception bit,
// function code. A frame with the exception bit set is returned as an
// exception whatever its function code; the first data byte is the code.
func DecodeResponse(raw []byte, slaveID, functionCode byte) (*Response, error) {
	adu, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	if adu.SlaveID != slaveID {
		return nil, frameErrorf(SlaveMismatch, "response slave id '%v' does not match request '%v'", adu.SlaveID, slaveID)
	}

	resp := &Response{SlaveID: adu.SlaveID, Pdu: adu.Pdu}
	if adu.Pdu.IsException() {
		if len(adu.Pdu.Data) == 0 {
			return nil, frameErrorf(PayloadLengthMismatch, "exception response carries no exception code")
		}
		resp.Exception = &modbus.ExceptionResponse{
			FunctionCode:  adu.Pdu.FunctionCode &^ modbus.ExceptionBit,
			ExceptionCode: modbus.ExceptionCode(adu.Pdu.Data[0]),
		}
		return resp, nil
	}
	if adu.Pdu.FunctionCode != functionCode {
		return nil, frameErrorf(FunctionMismatch, "response function '%v' does not match request '%v'", adu.Pdu.FunctionCode, functionCode)
	}
	return resp, nil
}

// DecodeRequest validates raw as a request frame received by a slave.
// It checks the checksum and that the frame length is the one the function code implies.
func DecodeRequest(raw []byte) (*ApplicationDataUnit, error) {
	adu, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	expected, err := CalculateRequestLength(adu.Pdu.FunctionCode, raw)
	if err != nil {
		// Unknown functions are passed on so the slave can reply IllegalFunction.
		return adu, nil
	}
	if expected != len(raw) {
		return nil, frameErrorf(PayloadLengthMismatch, "request length '%v' does not match expected '%v'", len(raw), expected)
	}
	return adu, nil
}

// CalculateRequestLength returns the expected total length of the Request RTU ADU based on the header.
func CalculateRequestLength(funcCode byte, header []byte) (int, error) {
	switch funcCode {
	case modbus.FuncCodeReadHoldingRegisters,
		modbus.FuncCodeReadInputRegisters,
		modbus.FuncCodeWriteSingleRegister:
		// Fixed 8 bytes: [SlaveID, Func, Addr(2), Val(2), CRC(2)]
		return 8, nil
	case modbus.FuncCodeWriteMultipleRegisters:
		// Req: [SlaveID, Func, Addr(2), Quant(2), ByteCount(1), Data(N), CRC(2)]
		if len(header) < 7 {
			return 0, fmt.Errorf("need 7 bytes to determine length for 0x%02X, got %d", funcCode, len(header))
		}
		byteCount := int(header[6])
		return 7 + byteCount + 2, nil
	default:
		return 0, fmt.Errorf("unsupported function code: 0x%02X", funcCode)
	}
}
