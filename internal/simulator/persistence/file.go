// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/ffutop/modbus-master/internal/simulator/model"
)

// FileStorage keeps the register map in memory and writes the whole
// image back to a file after each write. It uses the same layout as
// MmapStorage, for platforms where mapping is unavailable.
type FileStorage struct {
	path string
	log  logrus.FieldLogger
	file *os.File
	data []byte
}

// NewFileStorage creates a new FileStorage.
func NewFileStorage(path string, log logrus.FieldLogger) *FileStorage {
	return &FileStorage{
		path: path,
		log:  log,
	}
}

// Load reads the image, creating and sizing the file when needed.
func (fs *FileStorage) Load() (*model.RegisterMap, error) {
	f, err := os.OpenFile(fs.path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if fi.Size() != int64(totalSize) {
		if err := f.Truncate(int64(totalSize)); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to resize file: %w", err)
		}
	}

	data := make([]byte, totalSize)
	if _, err := io.ReadFull(f, data); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	fs.file = f
	fs.data = data
	return mapBytesToModel(data), nil
}

// Save writes the image to disk.
func (fs *FileStorage) Save(m *model.RegisterMap) error {
	return fs.sync()
}

// OnWrite writes the image after every write.
func (fs *FileStorage) OnWrite(table model.TableType, address, quantity uint16) {
	if err := fs.sync(); err != nil {
		fs.log.WithError(err).WithField("table", table).Error("failed to sync file")
	}
}

func (fs *FileStorage) sync() error {
	if fs.data == nil || fs.file == nil {
		return nil
	}
	if _, err := fs.file.WriteAt(fs.data, 0); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := fs.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync file to disk: %w", err)
	}
	return nil
}

// Close closes the file.
func (fs *FileStorage) Close() error {
	if fs.file == nil {
		return nil
	}
	err := fs.file.Close()
	fs.file = nil
	return err
}
