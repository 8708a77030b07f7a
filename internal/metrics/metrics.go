// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package metrics exports transaction counters and latencies for Prometheus.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/ffutop/modbus-master/master"
)

// Collector records every transaction of an Engine. It implements master.Observer.
type Collector struct {
	registry     *prometheus.Registry
	transactions *prometheus.CounterVec
	failures     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		transactions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modbus_master_transactions_total",
				Help: "Transactions by slave, function code and outcome.",
			},
			[]string{"slave", "function", "outcome"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modbus_master_failures_total",
				Help: "Failed transactions by reason.",
			},
			[]string{"slave", "reason"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "modbus_master_transaction_duration_seconds",
				Help:    "Time from taking the line to the end of the transaction.",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"function"},
		),
	}
	c.registry.MustRegister(c.transactions, c.failures, c.duration)
	return c
}

// ObserveTransaction implements master.Observer.
func (c *Collector) ObserveTransaction(slaveID, functionCode byte, outcome master.Outcome, err error, elapsed time.Duration) {
	slave := strconv.Itoa(int(slaveID))
	function := fmt.Sprintf("0x%02x", functionCode)
	c.transactions.WithLabelValues(slave, function, outcome.String()).Inc()
	if outcome == master.OutcomeFailure {
		c.failures.WithLabelValues(slave, master.Reason(err)).Inc()
	}
	c.duration.WithLabelValues(function).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics and /health on address until ctx is done.
func (c *Collector) Serve(ctx context.Context, address string, log logrus.FieldLogger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	srv := &http.Server{Addr: address, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.WithField("address", address).Info("metrics server started")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
