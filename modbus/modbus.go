// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package modbus holds the protocol level types shared by the framer,
// the transaction engine and the simulator.
package modbus

import "fmt"

// Function Codes
const (
	FuncCodeReadHoldingRegisters   = 0x03
	FuncCodeReadInputRegisters     = 0x04
	FuncCodeWriteSingleRegister    = 0x06
	FuncCodeWriteMultipleRegisters = 0x10
)

// ExceptionBit is set in the function code of an exception response.
const ExceptionBit = 0x80

// Protocol limits for register functions.
const (
	MaxReadRegisters  = 125
	MaxWriteRegisters = 123

	// BroadcastAddress addresses every slave; slaves never reply to it.
	BroadcastAddress = 0
	MaxSlaveAddress  = 247
)

// ProtocolDataUnit is the function code and data of a frame, independent of the ADU.
type ProtocolDataUnit struct {
	FunctionCode byte
	Data         []byte
}

// IsException reports whether the PDU is an exception response.
func (pdu ProtocolDataUnit) IsException() bool {
	return pdu.FunctionCode&ExceptionBit != 0
}

// ExceptionCode is the one byte reason carried by an exception response.
type ExceptionCode byte

const (
	ExceptionCodeIllegalFunction                    ExceptionCode = 0x01
	ExceptionCodeIllegalDataAddress                 ExceptionCode = 0x02
	ExceptionCodeIllegalDataValue                   ExceptionCode = 0x03
	ExceptionCodeServerDeviceFailure                ExceptionCode = 0x04
	ExceptionCodeAcknowledge                        ExceptionCode = 0x05
	ExceptionCodeServerDeviceBusy                   ExceptionCode = 0x06
	ExceptionCodeMemoryParityError                  ExceptionCode = 0x08
	ExceptionCodeGatewayPathUnavailable             ExceptionCode = 0x0A
	ExceptionCodeGatewayTargetDeviceFailedToRespond ExceptionCode = 0x0B
)

var exceptionNames = map[ExceptionCode]string{
	ExceptionCodeIllegalFunction:                    "illegal function",
	ExceptionCodeIllegalDataAddress:                 "illegal data address",
	ExceptionCodeIllegalDataValue:                   "illegal data value",
	ExceptionCodeServerDeviceFailure:                "server device failure",
	ExceptionCodeAcknowledge:                        "acknowledge",
	ExceptionCodeServerDeviceBusy:                   "server device busy",
	ExceptionCodeMemoryParityError:                  "memory parity error",
	ExceptionCodeGatewayPathUnavailable:             "gateway path unavailable",
	ExceptionCodeGatewayTargetDeviceFailedToRespond: "gateway target device failed to respond",
}

func (ec ExceptionCode) String() string {
	if s, ok := exceptionNames[ec]; ok {
		return s
	}
	return fmt.Sprintf("unknown exception 0x%02X", byte(ec))
}

// ExceptionResponse is a validly framed reply in which the device refused the request.
type ExceptionResponse struct {
	// FunctionCode is the original function code, without the exception bit.
	FunctionCode  byte
	ExceptionCode ExceptionCode
}

// ExceptionError reports a device exception to callers.
// It is never produced for transport or framing failures.
type ExceptionError struct {
	FunctionCode  byte
	ExceptionCode ExceptionCode
}

func (e *ExceptionError) Error() string {
	return fmt.Sprintf("modbus: exception '%v' (%s), function '%v'", byte(e.ExceptionCode), e.ExceptionCode, e.FunctionCode)
}

// Err converts the response into an error value.
func (r *ExceptionResponse) Err() error {
	return &ExceptionError{FunctionCode: r.FunctionCode, ExceptionCode: r.ExceptionCode}
}
