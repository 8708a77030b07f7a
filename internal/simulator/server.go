// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package simulator

import (
	"context"
	"encoding/hex"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ffutop/modbus-master/modbus"
	"github.com/ffutop/modbus-master/modbus/rtu"
	"github.com/ffutop/modbus-master/transport"
)

// idleWait bounds one wait for a request so ctx is rechecked regularly.
const idleWait = time.Second

// Serve answers requests read from port until ctx is done or the port fails.
// Frames with a bad checksum or addressed to another slave are dropped;
// broadcast requests are executed but never answered.
func (s *Slave) Serve(ctx context.Context, port transport.Port) error {
	s.log.Info("simulator serving")
	for {
		raw, err := port.ReadUntilSilence(ctx, rtu.MaxSize, s.InterByteTimeout, idleWait)
		switch {
		case err == nil:
		case errors.Is(err, transport.ErrTimeout):
			continue
		case ctx.Err() != nil, errors.Is(err, transport.ErrClosed):
			return nil
		default:
			return err
		}

		resp, ok := s.handleFrame(raw)
		if !ok {
			continue
		}
		if s.ResponseDelay > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(s.ResponseDelay):
			}
		}
		if err := port.Write(ctx, resp); err != nil {
			if ctx.Err() != nil || errors.Is(err, transport.ErrClosed) {
				return nil
			}
			return err
		}
	}
}

// handleFrame returns the encoded reply for raw, or false when no reply is due.
func (s *Slave) handleFrame(raw []byte) ([]byte, bool) {
	log := s.log.WithField("request", hex.EncodeToString(raw))

	adu, err := rtu.DecodeRequest(raw)
	if err != nil {
		log.WithError(err).Debug("dropping malformed request")
		return nil, false
	}
	if adu.SlaveID != s.id && adu.SlaveID != modbus.BroadcastAddress {
		log.Trace("ignoring request for another slave")
		return nil, false
	}

	pdu := s.Process(adu.Pdu)
	if adu.SlaveID == modbus.BroadcastAddress {
		log.Debug("executed broadcast request")
		return nil, false
	}
	if pdu.IsException() {
		log.WithField("exception", modbus.ExceptionCode(pdu.Data[0])).Debug("replying with exception")
	}

	resp, err := (&rtu.ApplicationDataUnit{SlaveID: s.id, Pdu: pdu}).Encode()
	if err != nil {
		log.WithError(err).Error("failed to encode reply")
		return nil, false
	}
	log.WithFields(logrus.Fields{"response": hex.EncodeToString(resp)}).Debug("replying")
	return resp, true
}
