// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.
package persistence

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/ffutop/modbus-master/internal/config"
	"github.com/ffutop/modbus-master/internal/simulator/model"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestStorage_SurvivesReload(t *testing.T) {
	tests := []struct {
		name string
		open func(path string) Storage
	}{
		{"Mmap", func(path string) Storage { return NewMmapStorage(path, quietLogger()) }},
		{"File", func(path string) Storage { return NewFileStorage(path, quietLogger()) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "registers.bin")

			st := tt.open(path)
			regs, err := st.Load()
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if err := regs.WriteHoldingRegisters(0x28, []uint16{0x1234, 0xBEEF}); err != nil {
				t.Fatal(err)
			}
			if err := regs.SetInputRegisters(model.MaxAddress, []uint16{7}); err != nil {
				t.Fatal(err)
			}
			st.OnWrite(model.TableHoldingRegisters, 0x28, 2)
			if err := st.Close(); err != nil {
				t.Fatalf("Close failed: %v", err)
			}

			st = tt.open(path)
			defer st.Close()
			regs, err = st.Load()
			if err != nil {
				t.Fatalf("reload failed: %v", err)
			}
			got, _ := regs.ReadHoldingRegisters(0x28, 2)
			if got[0] != 0x1234 || got[1] != 0xBEEF {
				t.Errorf("holding registers after reload = %x", got)
			}
			if in, _ := regs.ReadInputRegisters(model.MaxAddress, 1); in[0] != 7 {
				t.Errorf("input register after reload = %v", in)
			}
		})
	}
}

func TestMemoryStorage(t *testing.T) {
	st := NewMemoryStorage()
	regs, err := st.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(regs.HoldingRegisters) != model.MaxAddress+1 || len(regs.InputRegisters) != model.MaxAddress+1 {
		t.Error("memory storage returned a short register map")
	}
	if err := st.Save(regs); err != nil {
		t.Error(err)
	}
}

func TestNew(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		cfg     config.PersistenceConfig
		want    string
		wantErr bool
	}{
		{config.PersistenceConfig{}, "memory", false},
		{config.PersistenceConfig{Type: "memory"}, "memory", false},
		{config.PersistenceConfig{Type: "mmap", Path: filepath.Join(dir, "a")}, "mmap", false},
		{config.PersistenceConfig{Type: "file", Path: filepath.Join(dir, "b")}, "file", false},
		{config.PersistenceConfig{Type: "sql"}, "", true},
	}
	for _, tt := range tests {
		st, err := New(tt.cfg, quietLogger())
		if (err != nil) != tt.wantErr {
			t.Errorf("New(%+v) error = %v", tt.cfg, err)
			continue
		}
		var got string
		switch st.(type) {
		case *MemoryStorage:
			got = "memory"
		case *MmapStorage:
			got = "mmap"
		case *FileStorage:
			got = "file"
		}
		if got != tt.want {
			t.Errorf("New(%+v) = %s, want %s", tt.cfg, got, tt.want)
		}
	}
}
