// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/thermostat/internal/config"
	"github.com/relabs-tech/thermostat/internal/env"
	"github.com/relabs-tech/thermostat/internal/sensors"
)

// RunSensorProbe brings up the configured sensor, takes samples and
// prints a report for each. It is meant for wiring checks on the bench.
func RunSensorProbe(ctx context.Context, samples int, out io.Writer) error {
	cfg := config.Get()
	if cfg == nil {
		return errors.New("config not initialized")
	}
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	bus, err := i2creg.Open(cfg.I2CBus)
	if err != nil {
		return fmt.Errorf("failed to open I2C bus %q: %w", cfg.I2CBus, err)
	}
	defer bus.Close()

	s, err := sensors.Open(cfg, bus, env.NewStore())
	if err != nil {
		return err
	}
	defer s.Close()

	return probe(ctx, s, sensors.Policy(cfg), samples, out)
}

func probe(ctx context.Context, s sensors.Sensor, p sensors.InitPolicy, samples int, out io.Writer) error {
	if err := sensors.Initialize(ctx, s, p); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s: initialized\n", s.Name())
	fmt.Fprint(out, env.FormatReport(s.Reading()))

	var failed int
	for i := 1; i < samples; i++ {
		if err := s.Sample(ctx); err != nil {
			fmt.Fprintf(out, "sample %d: %v\n", i+1, err)
			failed++
			continue
		}
		fmt.Fprint(out, env.FormatReport(s.Reading()))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d samples failed", failed, samples)
	}
	return nil
}
