// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.
package persistence

import (
	"path/filepath"
	"testing"

	"github.com/ffutop/modbus-master/internal/simulator/model"
)

// BenchmarkMemoryStorage_OnWrite benchmarks the OnWrite hook for MemoryStorage.
func BenchmarkMemoryStorage_OnWrite(b *testing.B) {
	ms := NewMemoryStorage()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ms.OnWrite(model.TableHoldingRegisters, 10, 1)
	}
}

func BenchmarkFileStorage_OnWrite(b *testing.B) {
	path := filepath.Join(b.TempDir(), "bench_file.bin")
	fs := NewFileStorage(path, quietLogger())
	regs, err := fs.Load()
	if err != nil {
		b.Fatalf("Failed to load file storage: %v", err)
	}
	defer fs.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		regs.HoldingRegisters[10] = uint16(i)
		fs.OnWrite(model.TableHoldingRegisters, 10, 1)
	}
}

// BenchmarkMmapStorage_OnWrite benchmarks the OnWrite hook for MmapStorage (msync).
func BenchmarkMmapStorage_OnWrite(b *testing.B) {
	path := filepath.Join(b.TempDir(), "bench_mmap.bin")
	ms := NewMmapStorage(path, quietLogger())
	regs, err := ms.Load()
	if err != nil {
		b.Fatalf("Failed to load mmap storage: %v", err)
	}
	defer ms.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		// Dirty the same page again every round.
		regs.HoldingRegisters[10] = uint16(i)
		ms.OnWrite(model.TableHoldingRegisters, 10, 1)
	}
}

// BenchmarkMmapStorage_Load covers file open, fstat and mmap system calls.
func BenchmarkMmapStorage_Load(b *testing.B) {
	path := filepath.Join(b.TempDir(), "bench_mmap_load.bin")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ms := NewMmapStorage(path, quietLogger())
		if _, err := ms.Load(); err != nil {
			b.Fatalf("Load failed: %v", err)
		}
		ms.Close()
	}
}

// BenchmarkRegisterMap_Write is the in-memory baseline.
func BenchmarkRegisterMap_Write(b *testing.B) {
	m := model.NewRegisterMap()
	values := []uint16{0}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		values[0] = uint16(i)
		m.WriteHoldingRegisters(10, values)
	}
}
