// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"image"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"

	"github.com/relabs-tech/thermostat/internal/env"
	"github.com/relabs-tech/thermostat/internal/thermostat"
)

const (
	displayW = 128
	displayH = 64
)

// RunDisplay shows the latest reading and the heater state on an SSD1306
// OLED, refreshed every interval until ctx is done.
func RunDisplay(ctx context.Context, bus i2c.Bus, addr uint16, interval time.Duration, st Status) error {
	opts := ssd1306.DefaultOpts
	opts.Addr = addr
	dev, err := ssd1306.NewI2C(bus, &opts)
	if err != nil {
		return fmt.Errorf("display: init at 0x%02X: %w", addr, err)
	}
	defer dev.Halt()
	log.Printf("display: initialized at 0x%02X", addr)

	if err := dev.Draw(dev.Bounds(), renderLines("Thermostat", "SHT31", "starting..."), image.Point{}); err != nil {
		log.Printf("display: error showing splash: %v", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			img := renderStatus(st.Reading(), st.State())
			if err := dev.Draw(dev.Bounds(), img, image.Point{}); err != nil {
				log.Printf("display: error updating: %v", err)
			}
		}
	}
}

// statusLines is the text shown for a reading and controller state.
func statusLines(r env.Reading, s thermostat.State) []string {
	heating := "off"
	if s.ActuatorOn {
		heating = "ON"
	}
	if !s.Enabled {
		heating += " (idle)"
	}

	if !r.Valid {
		return []string{"No reading", fmt.Sprintf("Band %.1f-%.1f", s.LimitLow, s.LimitHigh), "Heat: " + heating}
	}

	dew := "Dew:   n/a"
	if r.HasDewPoint {
		dew = fmt.Sprintf("Dew: %5.1f C", r.DewPointC)
	}
	return []string{
		fmt.Sprintf("T:   %5.1f C", r.TemperatureC),
		fmt.Sprintf("RH:  %5.1f %%", r.RelHumidity),
		dew,
		"Heat: " + heating,
	}
}

func renderStatus(r env.Reading, s thermostat.State) *image1bit.VerticalLSB {
	return renderLines(statusLines(r, s)...)
}

// renderLines draws up to four lines of 7x13 text.
func renderLines(lines ...string) *image1bit.VerticalLSB {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, displayW, displayH))

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	for i, line := range lines {
		if i == 4 {
			break
		}
		drawer.Dot = fixed.P(0, 13*(i+1))
		drawer.DrawString(line)
	}
	return img
}
