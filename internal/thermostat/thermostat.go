// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package thermostat implements a two-point hysteresis controller.
//
// While enabled, the controller evaluates once per refresh interval: it
// lets the host process the latest sample, then compares the temperature
// against the low and high limits. Below the low limit the host is asked to
// turn the heating on, above the high limit to turn it off, and inside the
// closed band [low, high] nothing happens.
//
// Periods are scheduled with a deadline: a tick evaluates when the clock
// has reached the deadline, and the deadline then moves forward in whole
// periods from where it was. Coarse or irregular polling therefore never
// loses a period and the schedule does not drift.
package thermostat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/thermostat/internal/env"
)

// ErrStaleReading is returned by Tick when the sensor has no valid reading
// for the period. No reaction handler runs.
var ErrStaleReading = errors.New("no valid reading")

// ReadingSource is what the controller needs from a sensor.
type ReadingSource interface {
	Reading() env.Reading
}

// Handlers are the host reactions. All three are required.
type Handlers struct {
	// ProcessData runs first on every evaluated period, typically to
	// sample the sensor and report.
	ProcessData func()
	// OnLowTemp runs when the temperature is below the low limit.
	OnLowTemp func()
	// OnHighTemp runs when the temperature is above the high limit.
	OnHighTemp func()
}

// Option customizes a Controller at construction.
type Option func(*Controller)

// WithLimits sets both limits; the band width becomes high-low.
func WithLimits(low, high float64) Option {
	return func(c *Controller) {
		c.limitLow = low
		c.limitHigh = high
		c.delta = high - low
	}
}

// WithRefreshInterval sets the control period.
func WithRefreshInterval(d time.Duration) Option {
	return func(c *Controller) { c.interval = d }
}

// Controller is the hysteresis control loop. It is safe for concurrent use;
// evaluations are serialized.
type Controller struct {
	sensor ReadingSource
	h      Handlers

	tickMu sync.Mutex // serializes evaluations

	mu         sync.Mutex
	enabled    bool
	actuatorOn bool
	limitLow   float64
	limitHigh  float64
	delta      float64
	interval   time.Duration

	armed        bool      // a deadline is scheduled
	lastSlot     time.Time // deadline of the last evaluated period
	nextDeadline time.Time
}

// New returns a disabled controller reading from sensor. The sensor is
// borrowed; the controller never closes it.
func New(sensor ReadingSource, h Handlers, opts ...Option) (*Controller, error) {
	if sensor == nil {
		return nil, fmt.Errorf("thermostat: nil sensor")
	}
	if h.ProcessData == nil || h.OnLowTemp == nil || h.OnHighTemp == nil {
		return nil, fmt.Errorf("thermostat: all handlers are required")
	}

	c := &Controller{
		sensor:    sensor,
		h:         h,
		limitLow:  DefaultLimitLow,
		limitHigh: DefaultLimitHigh,
		delta:     DefaultTempDelta,
		interval:  DefaultRefreshInterval,
	}
	for _, opt := range opts {
		opt(c)
	}

	if !finite(c.limitLow) || !finite(c.limitHigh) {
		return nil, &SettingError{Setting: "limits", Value: c.limitHigh, Reason: "not finite"}
	}
	if !(c.delta > 0) {
		return nil, &SettingError{Setting: "temp delta", Value: c.delta, Reason: "high limit must be above low limit"}
	}
	if c.interval <= 0 {
		return nil, &SettingError{Setting: "refresh interval", Value: float64(c.interval.Milliseconds()), Reason: "must be positive"}
	}
	return c, nil
}

// Enable starts evaluating. Enabling a disabled controller evaluates on
// the next tick instead of waiting a full period; periods missed while
// disabled are not replayed.
func (c *Controller) Enable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.enabled {
		return
	}
	c.enabled = true
	c.armed = false
	log.Println("thermostat: enabled")
}

// Disable stops evaluating from the next tick on. The actuator is left in
// its last state.
func (c *Controller) Disable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled {
		return
	}
	c.enabled = false
	log.Println("thermostat: disabled")
}

func (c *Controller) IsEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// Tick evaluates one control period if its deadline has been reached at
// now. It reports whether a period was evaluated. At most one period is
// evaluated per call.
func (c *Controller) Tick(now time.Time) (bool, error) {
	c.tickMu.Lock()
	defer c.tickMu.Unlock()

	if !c.due(now) {
		return false, nil
	}
	return true, c.evaluate()
}

// due advances the schedule and reports whether now falls on or after the
// current deadline. Missed periods are skipped, keeping the phase of the
// first evaluation.
func (c *Controller) due(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled {
		return false
	}
	slot := now
	if c.armed {
		if now.Before(c.nextDeadline) {
			return false
		}
		slot = c.nextDeadline
	}
	missed := now.Sub(slot) / c.interval
	slot = slot.Add(missed * c.interval)

	c.lastSlot = slot
	c.nextDeadline = slot.Add(c.interval)
	c.armed = true
	return true
}

// evaluate runs the handlers for one period. The controller lock is not
// held while handlers run.
func (c *Controller) evaluate() error {
	c.h.ProcessData()

	r := c.sensor.Reading()
	if !r.Valid {
		return ErrStaleReading
	}

	c.mu.Lock()
	low, high := c.limitLow, c.limitHigh
	c.mu.Unlock()

	switch t := r.TemperatureC; {
	case t < low:
		c.h.OnLowTemp()
		c.setActuator(true)
	case t > high:
		c.h.OnHighTemp()
		c.setActuator(false)
	}
	return nil
}

func (c *Controller) setActuator(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.actuatorOn = on
}

// Run drives Tick from a ticker every poll until ctx is done. Stale
// readings are logged and the loop keeps going.
func (c *Controller) Run(ctx context.Context, poll time.Duration) error {
	if poll <= 0 {
		return fmt.Errorf("thermostat: poll interval must be positive, got %v", poll)
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if _, err := c.Tick(now); err != nil {
				log.WithError(err).Warn("thermostat: evaluation skipped")
			}
		}
	}
}

// SetLimitLow sets the low limit and moves the high limit to low+delta.
func (c *Controller) SetLimitLow(v float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	high := v + c.delta
	if !finite(v) || !finite(high) {
		return &SettingError{Setting: "limit low", Value: v, Reason: "not a finite temperature"}
	}
	if !(high > v) {
		return &SettingError{Setting: "limit low", Value: v, Reason: "magnitude too large to keep a band above it"}
	}
	c.limitLow = v
	c.limitHigh = high
	log.Printf("thermostat: limits set to %.1f..%.1f °C", c.limitLow, c.limitHigh)
	return nil
}

// SetLimitHigh sets the high limit and moves the low limit to high-delta.
func (c *Controller) SetLimitHigh(v float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	low := v - c.delta
	if !finite(v) || !finite(low) {
		return &SettingError{Setting: "limit high", Value: v, Reason: "not a finite temperature"}
	}
	if !(v > low) {
		return &SettingError{Setting: "limit high", Value: v, Reason: "magnitude too large to keep a band below it"}
	}
	c.limitHigh = v
	c.limitLow = low
	log.Printf("thermostat: limits set to %.1f..%.1f °C", c.limitLow, c.limitHigh)
	return nil
}

// SetTempDelta sets the band width and re-derives the low limit from the
// high limit. The high limit never moves here.
func (c *Controller) SetTempDelta(v float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !finite(v) || v <= 0 {
		return &SettingError{Setting: "temp delta", Value: v, Reason: "must be a positive temperature difference"}
	}
	low := c.limitHigh - v
	if !finite(low) || !(c.limitHigh > low) {
		return &SettingError{Setting: "temp delta", Value: v, Reason: "low limit out of range"}
	}
	c.delta = v
	c.limitLow = low
	log.Printf("thermostat: delta set to %.1f °C, limits %.1f..%.1f °C", c.delta, c.limitLow, c.limitHigh)
	return nil
}

// SetRefreshInterval changes the control period. The next deadline is
// recomputed from the last evaluated period.
func (c *Controller) SetRefreshInterval(d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if d <= 0 {
		return &SettingError{Setting: "refresh interval", Value: float64(d.Milliseconds()), Reason: "must be positive"}
	}
	c.interval = d
	if c.armed {
		c.nextDeadline = c.lastSlot.Add(d)
	}
	log.Printf("thermostat: refresh interval set to %v", d)
	return nil
}

func (c *Controller) LimitLow() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.limitLow
}

func (c *Controller) LimitHigh() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.limitHigh
}

func (c *Controller) TempDelta() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delta
}

func (c *Controller) RefreshInterval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interval
}

// State returns a snapshot of the settings and status.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Enabled:           c.enabled,
		ActuatorOn:        c.actuatorOn,
		LimitLow:          c.limitLow,
		LimitHigh:         c.limitHigh,
		Delta:             c.delta,
		RefreshIntervalMS: c.interval.Milliseconds(),
	}
}
