// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package logger builds the process logger from LogConfig.
package logger

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/ffutop/modbus-master/internal/config"
)

// PlainFormatter renders "timestamp | message" lines, dropping fields.
type PlainFormatter struct{}

// Format renders a single log entry
func (f *PlainFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	b := entry.Buffer
	if b == nil {
		b = &bytes.Buffer{}
	}
	timestamp := entry.Time.Format("2006-01-02T15:04:05.000-07:00")
	fmt.Fprintf(b, "%s | %s\n", timestamp, entry.Message)
	return b.Bytes(), nil
}

// New creates a logger for cfg. An unopenable log file falls back to stdout.
// The returned closer releases the log file, if any.
func New(cfg config.LogConfig) (*logrus.Logger, io.Closer) {
	log := logrus.New()
	log.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	switch cfg.Format {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	case "plain":
		log.SetFormatter(&PlainFormatter{})
	default:
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	var closer io.Closer = nopCloser{}
	if cfg.File != "" && cfg.File != "-" {
		f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			log.WithError(err).Warn("failed to open log file, falling back to stdout")
		} else {
			log.SetOutput(f)
			closer = f
		}
	}
	return log, closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
