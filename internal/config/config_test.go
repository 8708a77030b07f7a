// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.
package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig_File(t *testing.T) {
	path := writeConfig(t, `
mode: master
transport:
  type: serial
  serial:
    device: /dev/ttyUSB0
    baud_rate: 19200
    parity: e
    rs485:
      enabled: true
      delay_rts_before_send: 2ms
timing:
  response_timeout: 500ms
  inter_byte_timeout: 5ms
polls:
  - name: meters
    slave_ids: "1,3-4"
    function: INPUT
    address: 16
    quantity: 4
    interval: 2s
log:
  level: debug
output: yaml
`)

	cfg, err := LoadConfig(viper.New(), path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	s := cfg.Transport.Serial
	if s.Device != "/dev/ttyUSB0" || s.BaudRate != 19200 || s.Parity != "E" || s.DataBits != 8 || s.StopBits != 1 {
		t.Errorf("unexpected serial config %+v", s)
	}
	if !s.RS485.Enabled || s.RS485.DelayRtsBeforeSend != 2*time.Millisecond {
		t.Errorf("unexpected rs485 config %+v", s.RS485)
	}
	if cfg.Timing.ResponseTimeout != 500*time.Millisecond || cfg.Timing.InterByteTimeout != 5*time.Millisecond {
		t.Errorf("unexpected timing %+v", cfg.Timing)
	}
	if cfg.Timing.RequestPause != 100*time.Millisecond {
		t.Errorf("request pause default not applied: %v", cfg.Timing.RequestPause)
	}
	if len(cfg.Polls) != 1 {
		t.Fatalf("polls = %+v", cfg.Polls)
	}
	p := cfg.Polls[0]
	if p.Name != "meters" || p.Function != "input" || p.Address != 16 || p.Quantity != 4 || p.Interval != 2*time.Second {
		t.Errorf("unexpected poll %+v", p)
	}
	if cfg.Log.Level != "debug" || cfg.Output != "yaml" {
		t.Errorf("unexpected log/output %+v %q", cfg.Log, cfg.Output)
	}
}

func TestLoadConfig_DefaultsWithoutFile(t *testing.T) {
	cfg, err := LoadConfig(viper.New(), "")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Mode != ModeMaster || cfg.Transport.Type != TransportSerial {
		t.Errorf("unexpected mode/transport %q %q", cfg.Mode, cfg.Transport.Type)
	}
	if cfg.Transport.Serial.BaudRate != 9600 || cfg.Transport.Serial.Parity != "N" {
		t.Errorf("unexpected serial defaults %+v", cfg.Transport.Serial)
	}
	if !reflect.DeepEqual(cfg.Polls, []PollConfig{DefaultPoll()}) {
		t.Errorf("default poll not installed: %+v", cfg.Polls)
	}
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	if _, err := LoadConfig(viper.New(), filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing explicit config file")
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"Mode", "mode: gateway\n"},
		{"Transport", "transport:\n  type: tcp\n"},
		{"TcpAddress", "transport:\n  type: rtu-over-tcp\n"},
		{"Parity", "transport:\n  serial:\n    parity: X\n"},
		{"Output", "output: xml\n"},
		{"PollSlaves", "polls:\n  - slave_ids: \"0\"\n"},
		{"PollFunction", "polls:\n  - slave_ids: \"1\"\n    function: coils\n    quantity: 1\n"},
		{"PollQuantity", "polls:\n  - slave_ids: \"1\"\n    quantity: 126\n"},
		{"Persistence", "simulator:\n  persistence:\n    type: mmap\n"},
		{"SimulatorSlave", "simulator:\n  slave_id: 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadConfig(viper.New(), writeConfig(t, tt.content)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestBindFlags_Override(t *testing.T) {
	path := writeConfig(t, "transport:\n  serial:\n    device: /dev/ttyS0\n")

	v := viper.New()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	if err := BindFlags(v, fs); err != nil {
		t.Fatalf("BindFlags failed: %v", err)
	}
	if err := fs.Parse([]string{"--device", "/dev/ttyUSB1", "--timeout", "250ms"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(v, path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Transport.Serial.Device != "/dev/ttyUSB1" {
		t.Errorf("device flag not applied: %q", cfg.Transport.Serial.Device)
	}
	if cfg.Timing.ResponseTimeout != 250*time.Millisecond {
		t.Errorf("timeout flag not applied: %v", cfg.Timing.ResponseTimeout)
	}
}

func TestParseSlaveIDs(t *testing.T) {
	tests := []struct {
		input   string
		want    []byte
		wantErr bool
	}{
		{"1", []byte{1}, false},
		{"1,2", []byte{1, 2}, false},
		{" 1 , 5-7 ", []byte{1, 5, 6, 7}, false},
		{"247", []byte{247}, false},
		{"0", nil, true},
		{"248", nil, true},
		{"5-3", nil, true},
		{"1-2-3", nil, true},
		{"a", nil, true},
		{"", nil, true},
	}
	for _, tt := range tests {
		got, err := ParseSlaveIDs(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSlaveIDs(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParseSlaveIDs(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
