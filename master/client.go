// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package master

import (
	"context"
	"errors"
	"fmt"

	"github.com/ffutop/modbus-master/modbus"
	"github.com/ffutop/modbus-master/modbus/rtu"
	"github.com/ffutop/modbus-master/transport"
)

// ErrInvalidArgument is returned before any byte is written when a request
// cannot be expressed on the wire.
var ErrInvalidArgument = errors.New("modbus: invalid argument")

// Client issues register requests to one slave address.
// Clients derived with WithSlave share the Engine and therefore the line.
type Client struct {
	engine  *Engine
	slaveID byte
}

// NewClient creates a client that owns port and addresses slaveID.
func NewClient(port transport.Port, slaveID byte, opts ...Option) *Client {
	return &Client{engine: NewEngine(port, opts...), slaveID: slaveID}
}

// NewClientWithEngine creates a client sharing an existing engine.
func NewClientWithEngine(engine *Engine, slaveID byte) *Client {
	return &Client{engine: engine, slaveID: slaveID}
}

// WithSlave returns a client on the same line that addresses slaveID.
func (c *Client) WithSlave(slaveID byte) *Client {
	return &Client{engine: c.engine, slaveID: slaveID}
}

// SlaveID returns the address the client talks to.
func (c *Client) SlaveID() byte {
	return c.slaveID
}

// Engine returns the engine shared by the client.
func (c *Client) Engine() *Engine {
	return c.engine
}

// Close closes the underlying port.
func (c *Client) Close() error {
	return c.engine.Close()
}

// ReadHoldingRegisters reads quantity holding registers starting at address.
func (c *Client) ReadHoldingRegisters(ctx context.Context, address, quantity uint16) ([]uint16, error) {
	return c.readRegisters(ctx, modbus.FuncCodeReadHoldingRegisters, address, quantity)
}

// ReadInputRegisters reads quantity input registers starting at address.
func (c *Client) ReadInputRegisters(ctx context.Context, address, quantity uint16) ([]uint16, error) {
	return c.readRegisters(ctx, modbus.FuncCodeReadInputRegisters, address, quantity)
}

func (c *Client) readRegisters(ctx context.Context, functionCode byte, address, quantity uint16) ([]uint16, error) {
	if err := c.checkSlave(false); err != nil {
		return nil, err
	}
	if err := checkRange(address, quantity, modbus.MaxReadRegisters); err != nil {
		return nil, err
	}
	resp, err := c.send(ctx, modbus.ProtocolDataUnit{
		FunctionCode: functionCode,
		Data:         rtu.ReadRegistersRequest(address, quantity),
	})
	if err != nil {
		return nil, err
	}
	return rtu.DecodeRegisterResponse(resp.Pdu.Data, quantity)
}

// WriteSingleRegister writes value to the register at address.
// A broadcast write returns once the request is on the line.
func (c *Client) WriteSingleRegister(ctx context.Context, address, value uint16) error {
	if err := c.checkSlave(true); err != nil {
		return err
	}
	resp, err := c.send(ctx, modbus.ProtocolDataUnit{
		FunctionCode: modbus.FuncCodeWriteSingleRegister,
		Data:         rtu.WriteSingleRegisterRequest(address, value),
	})
	if err != nil || c.slaveID == modbus.BroadcastAddress {
		return err
	}
	return rtu.VerifyWriteSingleRegister(resp.Pdu.Data, address, value)
}

// WriteMultipleRegisters writes values to consecutive registers starting at address.
func (c *Client) WriteMultipleRegisters(ctx context.Context, address uint16, values []uint16) error {
	if err := c.checkSlave(true); err != nil {
		return err
	}
	if err := checkRange(address, uint16(min(len(values), 0xFFFF)), modbus.MaxWriteRegisters); err != nil {
		return err
	}
	resp, err := c.send(ctx, modbus.ProtocolDataUnit{
		FunctionCode: modbus.FuncCodeWriteMultipleRegisters,
		Data:         rtu.WriteMultipleRegistersRequest(address, values),
	})
	if err != nil || c.slaveID == modbus.BroadcastAddress {
		return err
	}
	return rtu.VerifyWriteMultipleRegisters(resp.Pdu.Data, address, uint16(len(values)))
}

// Send transmits an arbitrary PDU and returns the reply PDU.
// A device exception is returned as *modbus.ExceptionError.
func (c *Client) Send(ctx context.Context, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	if err := c.checkSlave(true); err != nil {
		return modbus.ProtocolDataUnit{}, err
	}
	if pdu.FunctionCode == 0 || pdu.IsException() {
		return modbus.ProtocolDataUnit{}, fmt.Errorf("%w: function code 0x%02x", ErrInvalidArgument, pdu.FunctionCode)
	}
	resp, err := c.send(ctx, pdu)
	if err != nil {
		return modbus.ProtocolDataUnit{}, err
	}
	return resp.Pdu, nil
}

func (c *Client) send(ctx context.Context, pdu modbus.ProtocolDataUnit) (*rtu.Response, error) {
	resp, err := c.engine.Execute(ctx, c.slaveID, pdu)
	if err != nil {
		return nil, err
	}
	if resp.Exception != nil {
		return nil, resp.Exception.Err()
	}
	return resp, nil
}

func (c *Client) checkSlave(allowBroadcast bool) error {
	if c.slaveID > modbus.MaxSlaveAddress {
		return fmt.Errorf("%w: slave id %d out of range 0..%d", ErrInvalidArgument, c.slaveID, modbus.MaxSlaveAddress)
	}
	if c.slaveID == modbus.BroadcastAddress && !allowBroadcast {
		return fmt.Errorf("%w: broadcast address cannot be read", ErrInvalidArgument)
	}
	return nil
}

func checkRange(address, quantity, limit uint16) error {
	if quantity < 1 || quantity > limit {
		return fmt.Errorf("%w: quantity %d out of range 1..%d", ErrInvalidArgument, quantity, limit)
	}
	if int(address)+int(quantity) > 0x10000 {
		return fmt.Errorf("%w: address %d + quantity %d exceeds register space", ErrInvalidArgument, address, quantity)
	}
	return nil
}
