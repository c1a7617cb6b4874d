// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/relabs-tech/thermostat/internal/env"
)

// Mock is a software sensor for development without hardware and for tests.
// Its temperature can be set directly or left to drift with a heater.
type Mock struct {
	mu    sync.Mutex
	store *env.Store

	tempC float64
	rh    float64

	initFailures int
	sampleErr    error

	heating   func() bool
	driftStep float64

	inits   int
	samples int
}

// NewMock creates a mock sensor reporting tempC and rh until changed.
func NewMock(store *env.Store, tempC, rh float64) *Mock {
	return &Mock{store: store, tempC: tempC, rh: rh}
}

// Set changes the values reported by the next sample.
func (m *Mock) Set(tempC, rh float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tempC = tempC
	m.rh = rh
}

// FailInit makes the next n Init calls fail.
func (m *Mock) FailInit(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initFailures = n
}

// FailNextSample makes the next Sample fail with err.
func (m *Mock) FailNextSample(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sampleErr = err
}

// Drift simulates a heated room: every sample the temperature rises by step
// while heating reports true and falls by half a step otherwise.
func (m *Mock) Drift(heating func() bool, step float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.heating = heating
	m.driftStep = step
}

// Counts reports how many Init and Sample calls the mock has seen.
func (m *Mock) Counts() (inits, samples int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inits, m.samples
}

func (m *Mock) Name() string { return "mock" }

func (m *Mock) Init(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inits++
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.initFailures > 0 {
		m.initFailures--
		return errors.New("mock: no answer on bus")
	}
	return nil
}

func (m *Mock) Sample(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples++

	if m.sampleErr != nil {
		err := readFailed(m.Name(), m.sampleErr)
		m.sampleErr = nil
		m.store.Invalidate(err)
		return err
	}

	if m.heating != nil {
		if m.heating() {
			m.tempC += m.driftStep
		} else {
			m.tempC -= m.driftStep / 2
		}
	}
	m.store.Set(env.NewReading(m.Name(), m.tempC, m.rh, time.Now()))
	return nil
}

func (m *Mock) Celsius() float64 { return m.store.Snapshot().TemperatureC }

func (m *Mock) Reading() env.Reading { return m.store.Snapshot() }

func (m *Mock) Close() error { return nil }
