// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ffutop/modbus-master/internal/config"
	"github.com/ffutop/modbus-master/internal/simulator/model"
)

// Storage defines the interface for persisting the simulator register map.
type Storage interface {
	// Load returns the register map, creating an empty one when no data exists.
	Load() (*model.RegisterMap, error)

	// Save writes the register map back to storage.
	Save(m *model.RegisterMap) error

	// OnWrite is called after a master modified registers.
	OnWrite(table model.TableType, address, quantity uint16)

	Close() error
}

// New creates the storage selected by cfg.
func New(cfg config.PersistenceConfig, log logrus.FieldLogger) (Storage, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemoryStorage(), nil
	case "mmap":
		return NewMmapStorage(cfg.Path, log), nil
	case "file":
		return NewFileStorage(cfg.Path, log), nil
	default:
		return nil, fmt.Errorf("unknown persistence type %q", cfg.Type)
	}
}
