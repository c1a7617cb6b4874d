// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"context"
	"flag"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/thermostat/internal/app"
	"github.com/relabs-tech/thermostat/internal/config"
)

func main() {
	configPath := flag.String("config", "./thermostat_config.txt", "path to configuration file")
	samples := flag.Int("n", 3, "number of samples to take")
	flag.Parse()

	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunSensorProbe(context.Background(), *samples, os.Stdout); err != nil {
		log.Fatalf("probe failed: %v", err)
	}
}
