// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"unsafe"

	"github.com/ffutop/modbus-master/internal/simulator/model"
)

// On-disk layout shared by MmapStorage and FileStorage:
//   - HoldingRegisters: 65536 * 2 bytes (Offset 0)
//   - InputRegisters: 65536 * 2 bytes (Offset 131072)
const (
	sizeHolding = (model.MaxAddress + 1) * 2
	sizeInput   = (model.MaxAddress + 1) * 2
	totalSize   = sizeHolding + sizeInput

	offsetHolding = 0
	offsetInput   = offsetHolding + sizeHolding
)

// mapBytesToModel constructs a RegisterMap backed by data.
// The uint16 views use host endianness, so a data file is only portable
// between hosts of the same byte order.
func mapBytesToModel(data []byte) *model.RegisterMap {
	m := &model.RegisterMap{}

	holdingBytes := data[offsetHolding : offsetHolding+sizeHolding]
	m.HoldingRegisters = unsafe.Slice((*uint16)(unsafe.Pointer(&holdingBytes[0])), sizeHolding/2)

	inputBytes := data[offsetInput : offsetInput+sizeInput]
	m.InputRegisters = unsafe.Slice((*uint16)(unsafe.Pointer(&inputBytes[0])), sizeInput/2)

	return m
}
