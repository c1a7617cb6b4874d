// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package actuator

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
)

// Pattern flashes Beats times every Seconds with Duty percent on time.
type Pattern struct {
	Beats   int
	Seconds int
	Duty    int // 1..99, anything else means 50
}

var (
	// PatternNormal is one short flash per second.
	PatternNormal = Pattern{Beats: 1, Seconds: 1, Duty: 5}
	// PatternError is five flashes per second, shown on fatal errors.
	PatternError = Pattern{Beats: 5, Seconds: 1, Duty: 50}
)

// Level returns the LED level elapsed after the start of the pattern.
func (p Pattern) Level(elapsed time.Duration) gpio.Level {
	beats, secs, duty := p.Beats, p.Seconds, p.Duty
	if beats <= 0 {
		beats = 1
	}
	if secs <= 0 {
		secs = 1
	}
	if duty <= 0 || duty >= 100 {
		duty = 50
	}

	period := 1000 * int64(secs) / int64(beats)
	if period <= 0 {
		period = 1
	}
	onMS := period * int64(duty) / 100
	return gpio.Level(elapsed.Milliseconds()%period < onMS)
}

// Heartbeat blinks an LED with the current pattern.
type Heartbeat struct {
	pin   gpio.PinOut
	start time.Time

	mu      sync.Mutex
	pattern Pattern
}

// NewHeartbeat blinks pin with PatternNormal.
func NewHeartbeat(pin gpio.PinOut) *Heartbeat {
	return &Heartbeat{pin: pin, start: time.Now(), pattern: PatternNormal}
}

// OpenHeartbeat looks the pin up by name in the periph registry.
func OpenHeartbeat(name string) (*Heartbeat, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("heartbeat: pin %q not found", name)
	}
	return NewHeartbeat(p), nil
}

func (h *Heartbeat) SetPattern(p Pattern) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pattern = p
}

// Update writes the level for now.
func (h *Heartbeat) Update(now time.Time) error {
	h.mu.Lock()
	p := h.pattern
	h.mu.Unlock()
	return h.pin.Out(p.Level(now.Sub(h.start)))
}

// Run updates the LED every 10ms until ctx is done, then turns it off.
func (h *Heartbeat) Run(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := h.pin.Out(gpio.Low); err != nil {
				log.Printf("heartbeat: turn off: %v", err)
			}
			return ctx.Err()
		case now := <-ticker.C:
			if err := h.Update(now); err != nil {
				return fmt.Errorf("heartbeat: %w", err)
			}
		}
	}
}

// Alarm switches to PatternError and blinks for d. It is used right
// before a fatal exit.
func (h *Heartbeat) Alarm(ctx context.Context, d time.Duration) {
	h.SetPattern(PatternError)
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	_ = h.Run(ctx)
}
