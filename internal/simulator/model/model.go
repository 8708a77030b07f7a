// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package model

import (
	"errors"
	"fmt"
	"sync"
)

const (
	MaxAddress = 65535
)

// TableType represents the type of Modbus register table.
type TableType int

const (
	TableHoldingRegisters TableType = iota
	TableInputRegisters
)

func (t TableType) String() string {
	if t == TableInputRegisters {
		return "input"
	}
	return "holding"
}

// ErrAddressRange is returned for a block that leaves the 16-bit address space.
var ErrAddressRange = errors.New("address range out of bounds")

// RegisterMap holds the register tables of a simulated slave.
// It uses a flat model covering the full 16-bit address space.
type RegisterMap struct {
	mu sync.RWMutex

	// 4x Holding Registers (Read/Write).
	HoldingRegisters []uint16
	// 3x Input Registers (Read Only on the wire).
	InputRegisters []uint16
}

// NewRegisterMap creates a register map initialized to zero.
func NewRegisterMap() *RegisterMap {
	return &RegisterMap{
		HoldingRegisters: make([]uint16, MaxAddress+1),
		InputRegisters:   make([]uint16, MaxAddress+1),
	}
}

// ReadHoldingRegisters returns a copy of quantity holding registers from address.
func (m *RegisterMap) ReadHoldingRegisters(address, quantity uint16) ([]uint16, error) {
	return m.read(m.HoldingRegisters, address, quantity)
}

// ReadInputRegisters returns a copy of quantity input registers from address.
func (m *RegisterMap) ReadInputRegisters(address, quantity uint16) ([]uint16, error) {
	return m.read(m.InputRegisters, address, quantity)
}

// WriteHoldingRegisters stores values from address on.
func (m *RegisterMap) WriteHoldingRegisters(address uint16, values []uint16) error {
	return m.write(m.HoldingRegisters, address, values)
}

// SetInputRegisters seeds input registers. Masters cannot write them.
func (m *RegisterMap) SetInputRegisters(address uint16, values []uint16) error {
	return m.write(m.InputRegisters, address, values)
}

func (m *RegisterMap) read(table []uint16, address, quantity uint16) ([]uint16, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := validateRange(address, int(quantity)); err != nil {
		return nil, err
	}
	values := make([]uint16, quantity)
	copy(values, table[address:])
	return values, nil
}

func (m *RegisterMap) write(table []uint16, address uint16, values []uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := validateRange(address, len(values)); err != nil {
		return err
	}
	copy(table[address:], values)
	return nil
}

func validateRange(address uint16, quantity int) error {
	if quantity == 0 {
		return fmt.Errorf("%w: quantity must be greater than 0", ErrAddressRange)
	}
	// address is 0-based.
	if int(address)+quantity > MaxAddress+1 {
		return fmt.Errorf("%w: %d registers from %d", ErrAddressRange, quantity, address)
	}
	return nil
}
