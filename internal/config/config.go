// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	ModeMaster    = "master"
	ModeSimulator = "simulator"

	TransportSerial     = "serial"
	TransportRTUOverTCP = "rtu-over-tcp"
)

// Config defines the global configuration structure
type Config struct {
	Mode      string          `mapstructure:"mode"` // master, simulator
	Transport TransportConfig `mapstructure:"transport"`
	Timing    TimingConfig    `mapstructure:"timing"`
	Polls     []PollConfig    `mapstructure:"polls"`
	Simulator SimulatorConfig `mapstructure:"simulator"`
	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Output    string          `mapstructure:"output"` // text, yaml
	Once      bool            `mapstructure:"once"`   // poll every slave once, then exit
}

// LogConfig defines logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // text, json, plain
	File   string `mapstructure:"file"`   // Log file path
}

// MetricsConfig enables the Prometheus endpoint when Address is set.
type MetricsConfig struct {
	Address string `mapstructure:"address"` // e.g. ":9100"
}

// TransportConfig selects the byte stream the RTU frames travel over.
type TransportConfig struct {
	Type   string       `mapstructure:"type"` // "serial", "rtu-over-tcp"
	Serial SerialConfig `mapstructure:"serial"`
	Tcp    TcpConfig    `mapstructure:"tcp"`
}

// TcpConfig defines TCP settings
type TcpConfig struct {
	Address string        `mapstructure:"address"` // e.g. "192.168.1.100:4001"
	Timeout time.Duration `mapstructure:"timeout"` // dial timeout
}

// SerialConfig defines RTU settings
type SerialConfig struct {
	Device      string        `mapstructure:"device"`
	Product     string        `mapstructure:"product"` // USB product name used when device is empty
	Driver      string        `mapstructure:"driver"`  // "gridx" (default), "bugst"
	BaudRate    int           `mapstructure:"baud_rate"`
	DataBits    int           `mapstructure:"data_bits"`
	Parity      string        `mapstructure:"parity"`
	StopBits    int           `mapstructure:"stop_bits"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"` // device read poll interval

	RS485 RS485Config `mapstructure:"rs485"`
}

// RS485Config defines RS485 specific settings
type RS485Config struct {
	Enabled            bool          `mapstructure:"enabled"`
	DelayRtsBeforeSend time.Duration `mapstructure:"delay_rts_before_send"`
	DelayRtsAfterSend  time.Duration `mapstructure:"delay_rts_after_send"`
	RtsHighDuringSend  bool          `mapstructure:"rts_high_during_send"`
	RtsHighAfterSend   bool          `mapstructure:"rts_high_after_send"`
	RxDuringTx         bool          `mapstructure:"rx_during_tx"`
}

// TimingConfig defines the transaction timing of the master.
type TimingConfig struct {
	ResponseTimeout  time.Duration `mapstructure:"response_timeout"`   // wait for the first response byte
	InterByteTimeout time.Duration `mapstructure:"inter_byte_timeout"` // silence ending a frame, 0 derives it from baud rate
	RequestPause     time.Duration `mapstructure:"request_pause"`      // idle time between transactions
}

// PollConfig defines one periodic read.
type PollConfig struct {
	Name     string        `mapstructure:"name"`
	SlaveIDs string        `mapstructure:"slave_ids"` // "1", "1,2", "1-10"
	Function string        `mapstructure:"function"`  // "holding", "input"
	Address  uint16        `mapstructure:"address"`
	Quantity uint16        `mapstructure:"quantity"`
	Interval time.Duration `mapstructure:"interval"`
}

// SimulatorConfig defines the simulated slave.
type SimulatorConfig struct {
	SlaveID          byte              `mapstructure:"slave_id"`
	Listen           string            `mapstructure:"listen"` // serve RTU over TCP instead of the serial transport
	Persistence      PersistenceConfig `mapstructure:"persistence"`
	HoldingRegisters map[uint16]uint16 `mapstructure:"holding_registers"`
	InputRegisters   map[uint16]uint16 `mapstructure:"input_registers"`
}

// PersistenceConfig defines data storage settings
type PersistenceConfig struct {
	Type string `mapstructure:"type"` // "memory", "mmap", "file"
	Path string `mapstructure:"path"` // File path for "mmap" and "file" types
}

// BindFlags registers the command line overrides on fs and binds them to v.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	fs.StringP("config", "c", "", "Configuration file path.")
	fs.StringP("mode", "m", ModeMaster, "Run as 'master' or 'simulator'.")
	fs.StringP("device", "p", "", "Serial port device name.")
	fs.String("product", "", "USB product name used to find the serial port.")
	fs.IntP("baud_rate", "s", 9600, "Serial port speed.")
	fs.StringP("tcp_address", "A", "", "Serial device server address for RTU over TCP.")
	fs.DurationP("timeout", "W", time.Second, "Response wait time.")
	fs.Duration("inter_byte_timeout", 0, "Silence ending a response frame (0 derives it from baud rate).")
	fs.DurationP("rqst_pause", "R", 100*time.Millisecond, "Pause between requests.")
	fs.StringP("log_level", "v", "info", "Log verbosity level (debug, info, warn, error).")
	fs.StringP("log_file", "L", "", "Log file name ('-' for logging to STDOUT only).")
	fs.StringP("output", "o", "text", "Result output format (text, yaml).")
	fs.Bool("once", false, "Poll every slave once and exit.")

	bindings := map[string]string{
		"config":                     "config",
		"mode":                       "mode",
		"transport.serial.device":    "device",
		"transport.serial.product":   "product",
		"transport.serial.baud_rate": "baud_rate",
		"transport.tcp.address":      "tcp_address",
		"timing.response_timeout":    "timeout",
		"timing.inter_byte_timeout":  "inter_byte_timeout",
		"timing.request_pause":       "rqst_pause",
		"log.level":                  "log_level",
		"log.file":                   "log_file",
		"output":                     "output",
		"once":                       "once",
	}
	for key, flag := range bindings {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", flag, err)
		}
	}
	return nil
}

// SetDefaults installs the defaults, matching the bench setup the tool grew out of:
// 9600 8N1, slaves 1 to 3, twelve holding registers from 0x28.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("mode", ModeMaster)
	v.SetDefault("transport.type", TransportSerial)
	v.SetDefault("transport.serial.baud_rate", 9600)
	v.SetDefault("transport.serial.data_bits", 8)
	v.SetDefault("transport.serial.parity", "N")
	v.SetDefault("transport.serial.stop_bits", 1)
	v.SetDefault("timing.response_timeout", time.Second)
	v.SetDefault("timing.request_pause", 100*time.Millisecond)
	v.SetDefault("simulator.slave_id", 1)
	v.SetDefault("simulator.persistence.type", "memory")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("output", "text")
}

// DefaultPoll is used when the configuration names no polls.
func DefaultPoll() PollConfig {
	return PollConfig{
		Name:     "default",
		SlaveIDs: "1-3",
		Function: "holding",
		Address:  0x28,
		Quantity: 0x0C,
		Interval: 0,
	}
}

// LoadConfig loads configuration from file. A missing file is not an error
// when configFile is empty; defaults and flags are used instead.
func LoadConfig(v *viper.Viper, configFile string) (*Config, error) {
	SetDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/modbus-master/")
		v.AddConfigPath("$HOME/.modbus-master")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configFile != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	fixup(&config)
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func fixup(c *Config) {
	c.Mode = strings.ToLower(c.Mode)
	c.Output = strings.ToLower(c.Output)
	c.Transport.Type = strings.ToLower(c.Transport.Type)
	c.Transport.Serial.Parity = strings.ToUpper(c.Transport.Serial.Parity)
	c.Simulator.Persistence.Type = strings.ToLower(c.Simulator.Persistence.Type)
	if c.Timing.ResponseTimeout == 0 {
		c.Timing.ResponseTimeout = time.Second
	}
	if len(c.Polls) == 0 {
		c.Polls = []PollConfig{DefaultPoll()}
	}
	for i := range c.Polls {
		c.Polls[i].Function = strings.ToLower(c.Polls[i].Function)
		if c.Polls[i].Function == "" {
			c.Polls[i].Function = "holding"
		}
	}
}

// Validate checks values viper cannot check by type alone.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeMaster, ModeSimulator:
	default:
		return fmt.Errorf("invalid mode %q", c.Mode)
	}
	switch c.Transport.Type {
	case TransportSerial:
	case TransportRTUOverTCP:
		if c.Transport.Tcp.Address == "" {
			return fmt.Errorf("transport.tcp.address is required for %s", TransportRTUOverTCP)
		}
	default:
		return fmt.Errorf("invalid transport type %q", c.Transport.Type)
	}
	switch c.Transport.Serial.Parity {
	case "N", "E", "O":
	default:
		return fmt.Errorf("invalid parity %q", c.Transport.Serial.Parity)
	}
	switch c.Output {
	case "text", "yaml":
	default:
		return fmt.Errorf("invalid output format %q", c.Output)
	}
	switch c.Simulator.Persistence.Type {
	case "", "memory":
	case "mmap", "file":
		if c.Simulator.Persistence.Path == "" {
			return fmt.Errorf("simulator.persistence.path is required for %s", c.Simulator.Persistence.Type)
		}
	default:
		return fmt.Errorf("invalid persistence type %q", c.Simulator.Persistence.Type)
	}
	if c.Simulator.SlaveID < 1 || c.Simulator.SlaveID > 247 {
		return fmt.Errorf("simulator.slave_id %d out of range 1..247", c.Simulator.SlaveID)
	}
	for _, p := range c.Polls {
		if _, err := ParseSlaveIDs(p.SlaveIDs); err != nil {
			return fmt.Errorf("poll %q: %w", p.Name, err)
		}
		if p.Function != "holding" && p.Function != "input" {
			return fmt.Errorf("poll %q: invalid function %q", p.Name, p.Function)
		}
		if p.Quantity < 1 || p.Quantity > 125 {
			return fmt.Errorf("poll %q: quantity %d out of range 1..125", p.Name, p.Quantity)
		}
	}
	return nil
}

// ParseSlaveIDs parses a string of slave IDs (e.g. "1,2,5-10") into a slice of bytes.
// Only unicast addresses 1 to 247 are accepted.
func ParseSlaveIDs(input string) ([]byte, error) {
	var ids []byte
	parts := strings.Split(input, ",")
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		start, end := part, part
		if strings.Contains(part, "-") {
			ranges := strings.Split(part, "-")
			if len(ranges) != 2 {
				return nil, fmt.Errorf("invalid range: %s", part)
			}
			start, end = ranges[0], ranges[1]
		}
		first, err := parseSlaveID(start)
		if err != nil {
			return nil, err
		}
		last, err := parseSlaveID(end)
		if err != nil {
			return nil, err
		}
		if first > last {
			return nil, fmt.Errorf("start of range %d is greater than end %d", first, last)
		}
		for i := first; i <= last; i++ {
			ids = append(ids, byte(i))
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no slave ids in %q", input)
	}
	return ids, nil
}

func parseSlaveID(s string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid id: %w", err)
	}
	if id < 1 || id > 247 {
		return 0, fmt.Errorf("id out of range: %d", id)
	}
	return id, nil
}
