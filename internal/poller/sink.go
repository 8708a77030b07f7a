// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package poller

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Result is the outcome of reading one slave once.
type Result struct {
	Poll     string    `yaml:"poll"`
	Time     time.Time `yaml:"time"`
	SlaveID  byte      `yaml:"slave_id"`
	Function string    `yaml:"function"`
	Address  uint16    `yaml:"address"`
	Values   []uint16  `yaml:"values,omitempty,flow"`
	Outcome  string    `yaml:"outcome"`
	Error    string    `yaml:"error,omitempty"`
}

// Sink receives poll results. Emit may be called from several goroutines.
type Sink interface {
	Emit(r Result) error
}

// NewSink returns the sink for format ("text" or "yaml") writing to w.
func NewSink(format string, w io.Writer) (Sink, error) {
	switch format {
	case "", "text":
		return &TextSink{w: w}, nil
	case "yaml":
		return &YAMLSink{enc: yaml.NewEncoder(w)}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}

// TextSink writes one line per result.
type TextSink struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *TextSink) Emit(r Result) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s poll=%s slave=%d %s@0x%04X %s",
		r.Time.Format(time.RFC3339), r.Poll, r.SlaveID, r.Function, r.Address, r.Outcome)
	if r.Values != nil {
		fmt.Fprintf(&b, " values=%v", r.Values)
	}
	if r.Error != "" {
		fmt.Fprintf(&b, " error=%q", r.Error)
	}
	b.WriteByte('\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := io.WriteString(s.w, b.String())
	return err
}

// YAMLSink writes every result as its own YAML document.
type YAMLSink struct {
	mu  sync.Mutex
	enc *yaml.Encoder
}

func (s *YAMLSink) Emit(r Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(r)
}
