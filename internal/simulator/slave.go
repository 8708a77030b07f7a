// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package simulator implements a Modbus RTU slave answering register
// requests from an in-memory or persisted register map.
package simulator

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ffutop/modbus-master/internal/config"
	"github.com/ffutop/modbus-master/internal/simulator/model"
	"github.com/ffutop/modbus-master/internal/simulator/persistence"
	"github.com/ffutop/modbus-master/modbus"
	"github.com/ffutop/modbus-master/modbus/rtu"
	"github.com/ffutop/modbus-master/transport"
)

// Slave executes register requests against a RegisterMap.
type Slave struct {
	// InterByteTimeout is the silence that ends a request frame.
	InterByteTimeout time.Duration
	// ResponseDelay is waited before each reply, as a slow device would.
	ResponseDelay time.Duration

	id      byte
	regs    *model.RegisterMap
	storage persistence.Storage
	log     logrus.FieldLogger
}

// NewSlave creates a slave answering to id.
func NewSlave(id byte, regs *model.RegisterMap, storage persistence.Storage, log logrus.FieldLogger) *Slave {
	if storage == nil {
		storage = persistence.NewMemoryStorage()
	}
	return &Slave{
		InterByteTimeout: transport.FrameSilence(9600),

		id:      id,
		regs:    regs,
		storage: storage,
		log:     log.WithField("slaveID", id),
	}
}

// FromConfig loads the register map from the configured storage and seeds it
// with the configured register values.
func FromConfig(cfg config.SimulatorConfig, log logrus.FieldLogger) (*Slave, error) {
	storage, err := persistence.New(cfg.Persistence, log)
	if err != nil {
		return nil, err
	}
	regs, err := storage.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load registers: %w", err)
	}
	for address, value := range cfg.HoldingRegisters {
		regs.WriteHoldingRegisters(address, []uint16{value})
	}
	for address, value := range cfg.InputRegisters {
		regs.SetInputRegisters(address, []uint16{value})
	}
	if err := storage.Save(regs); err != nil {
		storage.Close()
		return nil, fmt.Errorf("failed to save seeded registers: %w", err)
	}
	return NewSlave(cfg.SlaveID, regs, storage, log), nil
}

// ID returns the slave address.
func (s *Slave) ID() byte {
	return s.id
}

// Registers returns the register map the slave serves.
func (s *Slave) Registers() *model.RegisterMap {
	return s.regs
}

// Close releases the storage.
func (s *Slave) Close() error {
	return s.storage.Close()
}

// Process executes the function code against the register map.
// Unsupported functions get an IllegalFunction exception.
func (s *Slave) Process(req modbus.ProtocolDataUnit) modbus.ProtocolDataUnit {
	switch req.FunctionCode {
	case modbus.FuncCodeReadHoldingRegisters:
		return s.handleReadRegisters(req, s.regs.ReadHoldingRegisters)
	case modbus.FuncCodeReadInputRegisters:
		return s.handleReadRegisters(req, s.regs.ReadInputRegisters)
	case modbus.FuncCodeWriteSingleRegister:
		return s.handleWriteSingleRegister(req)
	case modbus.FuncCodeWriteMultipleRegisters:
		return s.handleWriteMultipleRegisters(req)
	default:
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalFunction)
	}
}

func (s *Slave) handleReadRegisters(req modbus.ProtocolDataUnit, read func(address, quantity uint16) ([]uint16, error)) modbus.ProtocolDataUnit {
	if len(req.Data) != 4 {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	quantity := binary.BigEndian.Uint16(req.Data[2:4])

	if quantity < 1 || quantity > modbus.MaxReadRegisters {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}

	values, err := read(address, quantity)
	if err != nil {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress)
	}
	return modbus.ProtocolDataUnit{
		FunctionCode: req.FunctionCode,
		Data:         rtu.EncodeRegisterResponse(values),
	}
}

func (s *Slave) handleWriteSingleRegister(req modbus.ProtocolDataUnit) modbus.ProtocolDataUnit {
	if len(req.Data) != 4 {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	value := binary.BigEndian.Uint16(req.Data[2:4])

	if err := s.regs.WriteHoldingRegisters(address, []uint16{value}); err != nil {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress)
	}
	s.storage.OnWrite(model.TableHoldingRegisters, address, 1)

	return req // Echo request
}

func (s *Slave) handleWriteMultipleRegisters(req modbus.ProtocolDataUnit) modbus.ProtocolDataUnit {
	if len(req.Data) < 7 {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	quantity := binary.BigEndian.Uint16(req.Data[2:4])
	byteCount := int(req.Data[4])

	if quantity < 1 || quantity > modbus.MaxWriteRegisters {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	if byteCount != 2*int(quantity) || len(req.Data)-5 != byteCount {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}

	values := make([]uint16, quantity)
	for i := range values {
		values[i] = binary.BigEndian.Uint16(req.Data[5+2*i:])
	}
	if err := s.regs.WriteHoldingRegisters(address, values); err != nil {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress)
	}
	s.storage.OnWrite(model.TableHoldingRegisters, address, quantity)

	respData := make([]byte, 4)
	binary.BigEndian.PutUint16(respData[0:2], address)
	binary.BigEndian.PutUint16(respData[2:4], quantity)
	return modbus.ProtocolDataUnit{
		FunctionCode: req.FunctionCode,
		Data:         respData,
	}
}

func exception(funcCode byte, code modbus.ExceptionCode) modbus.ProtocolDataUnit {
	return modbus.ProtocolDataUnit{
		FunctionCode: funcCode | modbus.ExceptionBit,
		Data:         []byte{byte(code)},
	}
}
