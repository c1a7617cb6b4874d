// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"context"
	"fmt"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/bmxx80"

	"github.com/relabs-tech/thermostat/internal/env"
)

// BME280DefaultAddr is the address with SDO tied low.
const BME280DefaultAddr = 0x76

// BME280 reads temperature and humidity from a Bosch BME280 over I2C.
// Pressure is measured by the chip but not used.
type BME280 struct {
	bus   i2c.Bus
	addr  uint16
	opts  bmxx80.Opts
	dev   *bmxx80.Dev
	store *env.Store
}

// NewBME280 returns a driver for the sensor at addr on bus. The device is
// opened by Init.
func NewBME280(bus i2c.Bus, addr uint16, store *env.Store) *BME280 {
	return &BME280{
		bus:   bus,
		addr:  addr,
		opts:  bmxx80.DefaultOpts,
		store: store,
	}
}

func (s *BME280) Name() string { return "bme280" }

func (s *BME280) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.dev != nil {
		return nil
	}
	dev, err := bmxx80.NewI2C(s.bus, s.addr, &s.opts)
	if err != nil {
		return fmt.Errorf("bme280 at 0x%02X: %w", s.addr, err)
	}
	s.dev = dev
	return nil
}

func (s *BME280) Sample(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		err = readFailed(s.Name(), err)
		s.store.Invalidate(err)
		return err
	}
	if s.dev == nil {
		err := readFailed(s.Name(), fmt.Errorf("not initialized"))
		s.store.Invalidate(err)
		return err
	}

	var e physic.Env
	if err := s.dev.Sense(&e); err != nil {
		err = readFailed(s.Name(), err)
		s.store.Invalidate(err)
		return err
	}

	rh := float64(e.Humidity) / float64(physic.PercentRH)
	s.store.Set(env.NewReading(s.Name(), e.Temperature.Celsius(), rh, time.Now()))
	return nil
}

func (s *BME280) Celsius() float64 { return s.store.Snapshot().TemperatureC }

func (s *BME280) Reading() env.Reading { return s.store.Snapshot() }

// Close puts the chip back to sleep.
func (s *BME280) Close() error {
	if s.dev == nil {
		return nil
	}
	return s.dev.Halt()
}
