// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/i2c"

	"github.com/relabs-tech/thermostat/internal/env"
)

// SHT31DefaultAddr is the address with the ADDR pin tied low.
const SHT31DefaultAddr = 0x44

// SHT31 commands (datasheet table 9, 13, 17).
var (
	sht31CmdMeasureHigh = []byte{0x24, 0x00} // single shot, high repeatability, no clock stretching
	sht31CmdSoftReset   = []byte{0x30, 0xA2}
	sht31CmdReadStatus  = []byte{0xF3, 0x2D}
)

const (
	sht31MeasureTime = 15 * time.Millisecond
	sht31ResetTime   = 2 * time.Millisecond
)

// SHT31 drives a Sensirion SHT3x over I2C. It is safe for concurrent use;
// command and read-back of one measurement are never interleaved.
type SHT31 struct {
	mu    sync.Mutex // held for a whole bus transaction sequence
	dev   i2c.Dev
	store *env.Store

	sleep func(time.Duration)
	now   func() time.Time
}

// NewSHT31 returns a driver for the sensor at addr on bus. The bus stays
// owned by the caller.
func NewSHT31(bus i2c.Bus, addr uint16, store *env.Store) *SHT31 {
	return &SHT31{
		dev:   i2c.Dev{Bus: bus, Addr: addr},
		store: store,
		sleep: time.Sleep,
		now:   time.Now,
	}
}

func (s *SHT31) Name() string { return "sht31" }

// Init soft-resets the sensor and reads back its status register. A status
// word with a valid checksum confirms the device answers on the bus.
func (s *SHT31) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.dev.Tx(sht31CmdSoftReset, nil); err != nil {
		return fmt.Errorf("sht31 at 0x%02X: soft reset: %w", s.dev.Addr, err)
	}
	s.sleep(sht31ResetTime)

	if err := s.dev.Tx(sht31CmdReadStatus, nil); err != nil {
		return fmt.Errorf("sht31 at 0x%02X: status command: %w", s.dev.Addr, err)
	}
	status := make([]byte, 3)
	if err := s.dev.Tx(nil, status); err != nil {
		return fmt.Errorf("sht31 at 0x%02X: status read: %w", s.dev.Addr, err)
	}
	if crc8(status[:2]) != status[2] {
		return fmt.Errorf("sht31 at 0x%02X: status checksum mismatch", s.dev.Addr)
	}
	return nil
}

// Sample triggers one high-repeatability measurement and stores the result.
func (s *SHT31) Sample(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tC, rh, err := s.measure(ctx)
	if err != nil {
		err = readFailed(s.Name(), err)
		s.store.Invalidate(err)
		return err
	}
	s.store.Set(env.NewReading(s.Name(), tC, rh, s.now()))
	return nil
}

func (s *SHT31) measure(ctx context.Context) (float64, float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	if err := s.dev.Tx(sht31CmdMeasureHigh, nil); err != nil {
		return 0, 0, fmt.Errorf("measure command: %w", err)
	}
	s.sleep(sht31MeasureTime)

	data := make([]byte, 6)
	if err := s.dev.Tx(nil, data); err != nil {
		return 0, 0, fmt.Errorf("read data: %w", err)
	}
	if crc8(data[0:2]) != data[2] {
		return 0, 0, fmt.Errorf("temperature checksum mismatch")
	}
	if crc8(data[3:5]) != data[5] {
		return 0, 0, fmt.Errorf("humidity checksum mismatch")
	}

	tC, rh := sht31Convert(binary.BigEndian.Uint16(data[0:2]), binary.BigEndian.Uint16(data[3:5]))
	return tC, rh, nil
}

func (s *SHT31) Celsius() float64 { return s.store.Snapshot().TemperatureC }

func (s *SHT31) Reading() env.Reading { return s.store.Snapshot() }

// Close is a no-op; the bus belongs to the caller.
func (s *SHT31) Close() error { return nil }

// sht31Convert applies the datasheet conversion formulas (section 4.13).
func sht31Convert(rawT, rawRH uint16) (tempC, relHumidity float64) {
	tempC = -45.0 + 175.0*float64(rawT)/65535.0
	relHumidity = 100.0 * float64(rawRH) / 65535.0
	if relHumidity > 100 {
		relHumidity = 100
	}
	return tempC, relHumidity
}

// crc8 is the Sensirion checksum: polynomial 0x31, init 0xFF, no reflection.
func crc8(data []byte) byte {
	crc := byte(0xFF)
	for _, b := range data {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ 0x31
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
