// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package thermostat

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Defaults match the factory settings of the wall unit.
const (
	DefaultLimitLow        = 18.0 // °C
	DefaultLimitHigh       = 21.0 // °C
	DefaultTempDelta       = DefaultLimitHigh - DefaultLimitLow
	DefaultRefreshInterval = 10 * time.Second
)

// ErrInvalidSetting is matched by every *SettingError.
var ErrInvalidSetting = errors.New("invalid setting")

// SettingError reports a rejected configuration change. The controller
// state is unchanged when a setter returns it.
type SettingError struct {
	Setting string
	Value   float64
	Reason  string
}

func (e *SettingError) Error() string {
	return fmt.Sprintf("%s %g rejected: %s", e.Setting, e.Value, e.Reason)
}

func (e *SettingError) Is(target error) bool { return target == ErrInvalidSetting }

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// State is a point-in-time copy of the controller settings and status.
type State struct {
	Enabled           bool    `json:"enabled"`
	ActuatorOn        bool    `json:"actuator_on"` // last commanded, not measured
	LimitLow          float64 `json:"limit_low_c"`
	LimitHigh         float64 `json:"limit_high_c"`
	Delta             float64 `json:"delta_c"`
	RefreshIntervalMS int64   `json:"refresh_interval_ms"`
}

// RefreshInterval returns the control period as a duration.
func (s State) RefreshInterval() time.Duration {
	return time.Duration(s.RefreshIntervalMS) * time.Millisecond
}

// FormatSettings renders the settings report.
func FormatSettings(s State) string {
	enabled := "disabled"
	if s.Enabled {
		enabled = "enabled"
	}
	switchState := "off"
	if s.ActuatorOn {
		switchState = "on"
	}

	var b strings.Builder
	b.WriteString("--- Thermostat settings ---\n")
	fmt.Fprintf(&b, "Upper limit      %6.1f °C\n", s.LimitHigh)
	fmt.Fprintf(&b, "Delta temp       %6.1f °C\n", s.Delta)
	fmt.Fprintf(&b, "Lower limit      %6.1f °C\n", s.LimitLow)
	fmt.Fprintf(&b, "Refresh interval %6d ms\n", s.RefreshIntervalMS)
	fmt.Fprintf(&b, "Thermostat is %s and switch is %s\n\n", enabled, switchState)
	return b.String()
}
