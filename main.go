// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ffutop/modbus-master/internal/config"
	"github.com/ffutop/modbus-master/internal/logger"
	"github.com/ffutop/modbus-master/internal/metrics"
	"github.com/ffutop/modbus-master/internal/poller"
	"github.com/ffutop/modbus-master/internal/simulator"
	"github.com/ffutop/modbus-master/master"
	"github.com/ffutop/modbus-master/transport"
	"github.com/ffutop/modbus-master/transport/rtuovertcp"
	"github.com/ffutop/modbus-master/transport/serial"
)

// tcpInterByteTimeout replaces the baud derived frame silence on RTU over TCP,
// where segments of one frame can arrive milliseconds apart.
const tcpInterByteTimeout = 20 * time.Millisecond

func main() {
	fs := pflag.NewFlagSet(os.Args[0], pflag.ExitOnError)
	listPorts := fs.Bool("list-ports", false, "List serial ports and exit.")
	v := viper.New()
	if err := config.BindFlags(v, fs); err != nil {
		fmt.Printf("Failed to bind flags: %v\n", err)
		os.Exit(1)
	}
	fs.Parse(os.Args[1:])

	if *listPorts {
		if err := printPorts(); err != nil {
			fmt.Printf("Failed to list serial ports: %v\n", err)
			os.Exit(1)
		}
		return
	}

	configFile, _ := fs.GetString("config")
	cfg, err := config.LoadConfig(v, configFile)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, closer := logger.New(cfg.Log)
	defer closer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Shutting down...")
		cancel()
	}()

	switch cfg.Mode {
	case config.ModeSimulator:
		err = runSimulator(ctx, cfg, log)
	default:
		err = runMaster(ctx, cfg, log)
	}
	if err != nil {
		log.WithError(err).Error("Stopped with error")
		closer.Close()
		os.Exit(1)
	}
	log.Info("Goodbye.")
}

func runMaster(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	port, err := openPort(ctx, cfg, log)
	if err != nil {
		return err
	}

	opts := []master.Option{master.WithLogger(log), master.WithTiming(timing(cfg))}
	if cfg.Metrics.Address != "" {
		collector := metrics.New()
		opts = append(opts, master.WithObserver(collector))
		go func() {
			if err := collector.Serve(ctx, cfg.Metrics.Address, log); err != nil {
				log.WithError(err).Error("Metrics server stopped")
			}
		}()
	}
	client := master.NewClient(port, 1, opts...)
	defer client.Close()

	sink, err := poller.NewSink(cfg.Output, os.Stdout)
	if err != nil {
		return err
	}
	p, err := poller.New(client, cfg.Polls, sink, log)
	if err != nil {
		return err
	}

	if !cfg.Once {
		return p.Run(ctx)
	}
	stats, err := p.RunOnce(ctx)
	log.WithFields(logrus.Fields{
		"success":   stats.Success,
		"exception": stats.Exception,
		"failure":   stats.Failure,
	}).Info("Poll round complete")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if stats.Success+stats.Exception == 0 {
		return errors.New("no modbus slave answered")
	}
	return nil
}

func runSimulator(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	slave, err := simulator.FromConfig(cfg.Simulator, log)
	if err != nil {
		return err
	}
	defer slave.Close()
	slave.InterByteTimeout = timing(cfg).InterByteTimeout

	if cfg.Simulator.Listen != "" {
		slave.InterByteTimeout = max(slave.InterByteTimeout, tcpInterByteTimeout)
		return rtuovertcp.NewServer(cfg.Simulator.Listen, log).Start(ctx, slave.Serve)
	}

	port, err := openPort(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer port.Close()
	return slave.Serve(ctx, port)
}

func openPort(ctx context.Context, cfg *config.Config, log *logrus.Logger) (transport.Port, error) {
	switch cfg.Transport.Type {
	case config.TransportRTUOverTCP:
		return rtuovertcp.Dial(ctx, cfg.Transport.Tcp.Address, cfg.Transport.Tcp.Timeout, log)
	default:
		return serial.Open(cfg.Transport.Serial, log)
	}
}

func timing(cfg *config.Config) master.Timing {
	t := master.DefaultTiming(cfg.Transport.Serial.BaudRate)
	if cfg.Transport.Type == config.TransportRTUOverTCP {
		t.InterByteTimeout = tcpInterByteTimeout
	}
	if cfg.Timing.InterByteTimeout > 0 {
		t.InterByteTimeout = cfg.Timing.InterByteTimeout
	}
	t.ResponseTimeout = cfg.Timing.ResponseTimeout
	t.RequestPause = cfg.Timing.RequestPause
	return t
}

func printPorts() error {
	ports, err := serial.ListPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Println("Serial comport list is empty.")
		return nil
	}
	for _, p := range ports {
		if p.IsUSB {
			fmt.Printf("%s\t%s\t%s:%s\n", p.Name, p.Product, p.VID, p.PID)
		} else {
			fmt.Println(p.Name)
		}
	}
	return nil
}
