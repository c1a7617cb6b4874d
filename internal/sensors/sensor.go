// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/thermostat/internal/env"
)

var (
	// ErrSensorUnavailable is the fatal bring-up failure: the sensor could
	// not be confirmed after the configured number of attempts.
	ErrSensorUnavailable = errors.New("sensor unavailable")

	// ErrReadFailed marks a transient sampling failure. The store is
	// invalidated and the next sample may succeed.
	ErrReadFailed = errors.New("sensor read failed")
)

// Sensor is the capability set every climate sensor driver implements.
// Drivers write into an env.Store owned by the host; consumers only ever
// see snapshots.
type Sensor interface {
	// Name identifies the driver in logs and readings.
	Name() string
	// Init performs one bring-up attempt. Use Initialize for the
	// retrying, fail-stop variant.
	Init(ctx context.Context) error
	// Sample runs one measurement cycle and overwrites the store. Errors
	// wrap ErrReadFailed.
	Sample(ctx context.Context) error
	// Celsius returns the temperature of the latest sample without sampling.
	Celsius() float64
	// Reading returns a read-only snapshot of the latest sample.
	Reading() env.Reading
	Close() error
}

// InitPolicy bounds the bring-up retries.
type InitPolicy struct {
	Attempts int
	Backoff  time.Duration
}

// DefaultInitPolicy tries five times, one second apart.
var DefaultInitPolicy = InitPolicy{Attempts: 5, Backoff: time.Second}

// InitError is returned by Initialize when every attempt failed. It matches
// ErrSensorUnavailable with errors.Is.
type InitError struct {
	Sensor   string
	Attempts int
	Err      error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("%s: %v after %d attempt(s): %v", e.Sensor, ErrSensorUnavailable, e.Attempts, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

func (e *InitError) Is(target error) bool { return target == ErrSensorUnavailable }

// Initialize brings the sensor up, retrying per policy, and takes the
// first sample. A non-nil error is always an *InitError and the caller
// must not run the control loop on this sensor.
func Initialize(ctx context.Context, s Sensor, p InitPolicy) error {
	if p.Attempts <= 0 {
		p.Attempts = DefaultInitPolicy.Attempts
	}
	l := log.WithField("sensor", s.Name())

	var err error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		if err = s.Init(ctx); err == nil {
			break
		}
		l.WithError(err).Warnf("sensor: init attempt %d/%d failed", attempt, p.Attempts)
		if attempt == p.Attempts {
			return &InitError{Sensor: s.Name(), Attempts: attempt, Err: err}
		}
		select {
		case <-ctx.Done():
			return &InitError{Sensor: s.Name(), Attempts: attempt, Err: ctx.Err()}
		case <-time.After(p.Backoff):
		}
	}

	// The first sample failing is transient: the store stays invalid and
	// the controller skips evaluation until a sample succeeds.
	if err := s.Sample(ctx); err != nil {
		l.WithError(err).Warn("sensor: initial sample failed")
	}
	l.Info("sensor: initialized")
	return nil
}

func readFailed(name string, err error) error {
	return fmt.Errorf("%s: %w: %w", name, ErrReadFailed, err)
}
