// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.
package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ffutop/modbus-master/master"
)

func scrape(t *testing.T, c *Collector) string {
	t.Helper()
	srv := httptest.NewServer(c.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(body)
}

func TestCollector(t *testing.T) {
	c := New()
	c.ObserveTransaction(1, 0x03, master.OutcomeSuccess, nil, 10*time.Millisecond)
	c.ObserveTransaction(1, 0x03, master.OutcomeSuccess, nil, 12*time.Millisecond)
	c.ObserveTransaction(2, 0x03, master.OutcomeFailure, master.ErrNoResponse, time.Second)
	c.ObserveTransaction(3, 0x06, master.OutcomeException, nil, 5*time.Millisecond)

	body := scrape(t, c)
	for _, want := range []string{
		`modbus_master_transactions_total{function="0x03",outcome="success",slave="1"} 2`,
		`modbus_master_transactions_total{function="0x03",outcome="failure",slave="2"} 1`,
		`modbus_master_transactions_total{function="0x06",outcome="exception",slave="3"} 1`,
		`modbus_master_failures_total{reason="timeout",slave="2"} 1`,
		`modbus_master_transaction_duration_seconds_count{function="0x03"} 3`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape missing %q", want)
		}
	}
	if strings.Contains(body, `reason="exception"`) {
		t.Error("exceptions must not count as failures")
	}
}

func TestCollector_SeparateRegistries(t *testing.T) {
	// Each collector owns its registry, so two can coexist in one process.
	a, b := New(), New()
	a.ObserveTransaction(1, 0x04, master.OutcomeSuccess, nil, time.Millisecond)
	if strings.Contains(scrape(t, b), "modbus_master_transactions_total{") {
		t.Error("observation leaked into another registry")
	}
}
