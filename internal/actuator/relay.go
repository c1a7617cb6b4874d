// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package actuator drives the GPIO outputs: the heating relay and the
// heartbeat LED.
package actuator

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
)

// Relay switches the heating through a solid state relay. High is on.
type Relay struct {
	mu  sync.Mutex
	pin gpio.PinOut
	on  bool
}

// NewRelay takes ownership of pin and drives it low.
func NewRelay(pin gpio.PinOut) (*Relay, error) {
	if pin == nil {
		return nil, fmt.Errorf("relay: nil pin")
	}
	if err := pin.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("relay: drive %s low: %w", pin, err)
	}
	log.Printf("relay: %s initialized, heating off", pin)
	return &Relay{pin: pin}, nil
}

// OpenRelay looks the pin up by name in the periph registry.
// host.Init must have been called.
func OpenRelay(name string) (*Relay, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("relay: pin %q not found", name)
	}
	return NewRelay(p)
}

// On switches the heating on. Calling it while on does nothing.
func (r *Relay) On() error { return r.set(true) }

// Off switches the heating off. Calling it while off does nothing.
func (r *Relay) Off() error { return r.set(false) }

func (r *Relay) set(on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.on == on {
		return nil
	}

	level, word := gpio.Low, "off"
	if on {
		level, word = gpio.High, "on"
	}
	if err := r.pin.Out(level); err != nil {
		return fmt.Errorf("relay: switch %s: %w", word, err)
	}
	r.on = on
	log.Printf("relay: ===> heating switched %s", word)
	return nil
}

// IsOn reports the last level successfully written.
func (r *Relay) IsOn() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.on
}
