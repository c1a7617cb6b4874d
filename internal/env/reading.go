// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package env holds the climate reading produced by one sampling round and
// the math that derives secondary values from it.
package env

import (
	"math"
	"time"
)

// Magnus coefficients over water, valid for -45..60 °C.
const (
	magnusB = 17.62
	magnusC = 243.12 // °C

	absoluteZeroC = 273.15
)

// Reading represents one sampling round: the measured values and everything
// derived from them. Build it with NewReading so the derived fields always
// match the measured ones.
type Reading struct {
	Source string `json:"source"` // "sht31", "bme280", "mock"

	TemperatureC float64 `json:"temp_c"` // measured
	TemperatureF float64 `json:"temp_f"` // derived
	TemperatureK float64 `json:"temp_k"` // derived
	RelHumidity  float64 `json:"rel_humidity"`

	// DewPointC is only meaningful when HasDewPoint is set; humidity outside
	// (0,100] has no dew point.
	DewPointC   float64 `json:"dew_point_c"`
	HasDewPoint bool    `json:"has_dew_point"`

	Time  time.Time `json:"time"`
	Valid bool      `json:"valid"`
}

// NewReading builds a valid reading from the two measured quantities.
func NewReading(source string, tempC, relHumidity float64, t time.Time) Reading {
	dp, ok := DewPoint(tempC, relHumidity)
	return Reading{
		Source:       source,
		TemperatureC: tempC,
		TemperatureF: CelsiusToFahrenheit(tempC),
		TemperatureK: CelsiusToKelvin(tempC),
		RelHumidity:  relHumidity,
		DewPointC:    dp,
		HasDewPoint:  ok,
		Time:         t,
		Valid:        true,
	}
}

// CelsiusToFahrenheit converts °C to °F.
func CelsiusToFahrenheit(c float64) float64 {
	return c*9.0/5.0 + 32.0
}

// CelsiusToKelvin converts °C to K.
func CelsiusToKelvin(c float64) float64 {
	return c + absoluteZeroC
}

// DewPoint computes the dew point in °C with the Magnus approximation:
//
//	k  = ln(rh/100) + b*t / (c + t)
//	dp = c*k / (b - k)
//
// It returns false when rh is outside (0,100], where the logarithm is
// undefined or the air would be supersaturated.
func DewPoint(tempC, relHumidity float64) (float64, bool) {
	if !(relHumidity > 0 && relHumidity <= 100) || math.IsNaN(tempC) || math.IsInf(tempC, 0) {
		return 0, false
	}
	k := math.Log(relHumidity/100) + (magnusB*tempC)/(magnusC+tempC)
	return magnusC * k / (magnusB - k), true
}
