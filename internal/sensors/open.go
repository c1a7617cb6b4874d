// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"

	"github.com/relabs-tech/thermostat/internal/config"
	"github.com/relabs-tech/thermostat/internal/env"
)

// Mock defaults: a cool room so the heater has something to do.
const (
	mockStartTempC = 17.0
	mockStartRH    = 45.0
)

// Open returns the driver selected by cfg.SensorDriver writing into store.
// bus may be nil for the mock driver.
func Open(cfg *config.Config, bus i2c.Bus, store *env.Store) (Sensor, error) {
	switch cfg.SensorDriver {
	case "sht31":
		if bus == nil {
			return nil, fmt.Errorf("sht31 needs an I2C bus")
		}
		return NewSHT31(bus, cfg.SensorI2CAddr, store), nil
	case "bme280":
		if bus == nil {
			return nil, fmt.Errorf("bme280 needs an I2C bus")
		}
		return NewBME280(bus, cfg.SensorI2CAddr, store), nil
	case "mock":
		return NewMock(store, mockStartTempC, mockStartRH), nil
	default:
		return nil, fmt.Errorf("unknown sensor driver %q", cfg.SensorDriver)
	}
}

// Policy returns the bring-up policy configured in cfg.
func Policy(cfg *config.Config) InitPolicy {
	return InitPolicy{
		Attempts: cfg.SensorInitAttempts,
		Backoff:  cfg.SensorInitBackoff(),
	}
}
