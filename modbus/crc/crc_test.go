// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package crc

import (
	"math/rand"
	"testing"

	"github.com/sigurn/crc16"
)

func TestCRC(t *testing.T) {
	var crc CRC
	crc.Reset()
	crc.PushBytes([]byte{0x02, 0x07})

	if crc.Value() != 0x1241 {
		t.Fatalf("crc expected %v, actual %v", 0x1241, crc.Value())
	}
}

func TestCRC_Incremental(t *testing.T) {
	var crc CRC
	crc.Reset().PushBytes([]byte{0x01, 0x03}).PushBytes([]byte{0x00, 0x00, 0x00, 0x01})

	if crc.Value() != Checksum([]byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01}) {
		t.Fatalf("incremental crc %04X differs from one-shot", crc.Value())
	}
}

func TestChecksum_Empty(t *testing.T) {
	if got := Checksum(nil); got != 0xFFFF {
		t.Fatalf("empty checksum = %04X, want FFFF", got)
	}
}

func TestAppend_KnownFrame(t *testing.T) {
	// Read Holding Registers, slave 1, address 0, quantity 1.
	got := Append([]byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01})
	want := []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01, 0x84, 0x0A}
	if string(got) != string(want) {
		t.Fatalf("Append = % X, want % X", got, want)
	}
}

func TestChecksum_MatchesReferenceTable(t *testing.T) {
	table := crc16.MakeTable(crc16.CRC16_MODBUS)
	r := rand.New(rand.NewSource(1))

	for i := 0; i < 200; i++ {
		data := make([]byte, r.Intn(256))
		r.Read(data)
		if got, want := Checksum(data), crc16.Checksum(data, table); got != want {
			t.Fatalf("Checksum(% X) = %04X, want %04X", data, got, want)
		}
	}
}

func TestVerify_RoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(2))

	for i := 0; i < 500; i++ {
		data := make([]byte, r.Intn(254))
		r.Read(data)
		if !Verify(Append(data)) {
			t.Fatalf("Verify(Append(% X)) = false", data)
		}
	}
}

func TestVerify_SingleBitFlip(t *testing.T) {
	messages := [][]byte{
		{0x01},
		{0x01, 0x03},
		{0x01, 0x03, 0x00, 0x00, 0x00, 0x05},
		{0x11, 0x83, 0x02},
		{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF},
	}

	for _, msg := range messages {
		frame := Append(append([]byte(nil), msg...))
		for i := range frame {
			for bit := 0; bit < 8; bit++ {
				corrupted := append([]byte(nil), frame...)
				corrupted[i] ^= 1 << bit
				if Verify(corrupted) {
					t.Errorf("flip of byte %d bit %d in % X still verifies", i, bit, frame)
				}
			}
		}
	}
}

func TestVerify_Short(t *testing.T) {
	for _, frame := range [][]byte{nil, {0x01}} {
		if Verify(frame) {
			t.Errorf("Verify(% X) = true, want false", frame)
		}
	}
}
