// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package env

import (
	"fmt"
	"strings"
)

// FormatReport renders a reading for humans. It never samples; callers
// that want fresh values sample first.
func FormatReport(r Reading) string {
	var b strings.Builder
	b.WriteString("---   Sensor Readings   ---\n")
	if !r.Valid {
		b.WriteString("no reading available\n\n")
		return b.String()
	}
	fmt.Fprintf(&b, "Tc               %6.1f °C\n", r.TemperatureC)
	fmt.Fprintf(&b, "Tf               %6.1f °F\n", r.TemperatureF)
	fmt.Fprintf(&b, "Tk               %6.1f °K\n", r.TemperatureK)
	if r.HasDewPoint {
		fmt.Fprintf(&b, "Dewpoint         %6.1f °C\n", r.DewPointC)
	} else {
		fmt.Fprintf(&b, "Dewpoint         %6s °C\n", "n/a")
	}
	fmt.Fprintf(&b, "Humidity         %6.1f %%rH\n", r.RelHumidity)
	b.WriteString("\n")
	return b.String()
}
