// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package poller reads register blocks from a list of slaves, once or periodically.
package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ffutop/modbus-master/internal/config"
	"github.com/ffutop/modbus-master/master"
)

const defaultInterval = time.Second

// Stats counts results by outcome.
type Stats struct {
	Success   int
	Exception int
	Failure   int
}

func (s *Stats) add(o Stats) {
	s.Success += o.Success
	s.Exception += o.Exception
	s.Failure += o.Failure
}

type job struct {
	cfg    config.PollConfig
	slaves []byte
}

// Poller runs the configured polls through one client. Requests from
// concurrent polls are serialized by the client's engine.
type Poller struct {
	client *master.Client
	jobs   []job
	sink   Sink
	log    logrus.FieldLogger
}

// New creates a poller for polls.
func New(client *master.Client, polls []config.PollConfig, sink Sink, log logrus.FieldLogger) (*Poller, error) {
	p := &Poller{client: client, sink: sink, log: log}
	for _, pc := range polls {
		slaves, err := config.ParseSlaveIDs(pc.SlaveIDs)
		if err != nil {
			return nil, fmt.Errorf("poll %q: %w", pc.Name, err)
		}
		p.jobs = append(p.jobs, job{cfg: pc, slaves: slaves})
	}
	return p, nil
}

// RunOnce reads every slave of every poll once, in order.
func (p *Poller) RunOnce(ctx context.Context) (Stats, error) {
	var total Stats
	for _, j := range p.jobs {
		stats, err := p.runJob(ctx, j)
		total.add(stats)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Run polls until ctx is done, each poll on its own interval.
func (p *Poller) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, j := range p.jobs {
		wg.Add(1)
		go func(j job) {
			defer wg.Done()
			interval := j.cfg.Interval
			if interval <= 0 {
				interval = defaultInterval
			}
			p.log.WithFields(logrus.Fields{"poll": j.cfg.Name, "interval": interval}).Info("starting poll")

			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				if _, err := p.runJob(ctx, j); err != nil {
					return
				}
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}
			}
		}(j)
	}

	<-ctx.Done()
	wg.Wait()
	return nil
}

// runJob returns an error only when ctx ends the round early.
func (p *Poller) runJob(ctx context.Context, j job) (Stats, error) {
	var stats Stats
	for _, slaveID := range j.slaves {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		r := p.poll(ctx, j.cfg, slaveID)
		switch r.Outcome {
		case master.OutcomeSuccess.String():
			stats.Success++
		case master.OutcomeException.String():
			stats.Exception++
		default:
			stats.Failure++
		}
		if err := p.sink.Emit(r); err != nil {
			p.log.WithError(err).Error("failed to emit poll result")
		}
	}
	return stats, nil
}

func (p *Poller) poll(ctx context.Context, pc config.PollConfig, slaveID byte) Result {
	client := p.client.WithSlave(slaveID)
	var (
		values []uint16
		err    error
	)
	if pc.Function == "input" {
		values, err = client.ReadInputRegisters(ctx, pc.Address, pc.Quantity)
	} else {
		values, err = client.ReadHoldingRegisters(ctx, pc.Address, pc.Quantity)
	}

	outcome := master.OutcomeOf(err)
	r := Result{
		Poll:     pc.Name,
		Time:     time.Now(),
		SlaveID:  slaveID,
		Function: pc.Function,
		Address:  pc.Address,
		Values:   values,
		Outcome:  outcome.String(),
	}
	log := p.log.WithFields(logrus.Fields{"poll": pc.Name, "slaveID": slaveID, "address": pc.Address, "quantity": pc.Quantity})
	switch outcome {
	case master.OutcomeSuccess:
		log.Debug("poll complete")
	case master.OutcomeException:
		r.Error = err.Error()
		log.WithError(err).Warn("slave refused request")
	default:
		r.Error = err.Error()
		log.WithError(err).WithField("reason", master.Reason(err)).Error("poll failed")
	}
	return r
}
