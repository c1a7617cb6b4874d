// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/thermostat/internal/app"
	"github.com/relabs-tech/thermostat/internal/config"
)

func main() {
	configPath := flag.String("config", "./thermostat_config.txt", "path to configuration file")
	flag.Parse()

	log.Println("starting thermostat monitor (MQTT subscriber)")

	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunMonitor(ctx); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
