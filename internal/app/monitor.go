// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/thermostat/internal/config"
	"github.com/relabs-tech/thermostat/internal/env"
	"github.com/relabs-tech/thermostat/internal/thermostat"
)

// RunMonitor prints every reading and state message published by the
// thermostat until ctx is done.
func RunMonitor(ctx context.Context) error {
	cfg := config.Get()
	if cfg == nil {
		return errors.New("config not initialized")
	}
	if cfg.MQTTBroker == "" {
		return fmt.Errorf("monitor: MQTT_BROKER is not configured")
	}

	client, err := ConnectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDMonitor)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	subs := map[string]func([]byte) string{
		cfg.TopicReading: formatReadingMessage,
		cfg.TopicState:   formatStateMessage,
	}
	for topic, format := range subs {
		if err := subscribe(client, topic, format, os.Stdout); err != nil {
			return err
		}
		log.Printf("monitor: subscribed to %s", topic)
	}

	<-ctx.Done()
	log.Println("monitor: shutting down")
	return nil
}

func subscribe(client mqtt.Client, topic string, format func([]byte) string, out io.Writer) error {
	token := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		fmt.Fprint(out, format(msg.Payload()))
	})
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("monitor: subscribe %s: %w", topic, err)
	}
	return nil
}

func formatReadingMessage(payload []byte) string {
	var r env.Reading
	if err := json.Unmarshal(payload, &r); err != nil {
		log.Printf("monitor: reading unmarshal error: %v", err)
		return ""
	}
	if !r.Valid {
		return fmt.Sprintf("[READ] %s: no reading available\n", r.Source)
	}
	dew := "   n/a"
	if r.HasDewPoint {
		dew = fmt.Sprintf("%6.1f", r.DewPointC)
	}
	return fmt.Sprintf("[READ] %s T=%6.1f°C RH=%6.1f%% dew=%s°C at %s\n",
		r.Source, r.TemperatureC, r.RelHumidity, dew, r.Time.Format("15:04:05"))
}

func formatStateMessage(payload []byte) string {
	var s thermostat.State
	if err := json.Unmarshal(payload, &s); err != nil {
		log.Printf("monitor: state unmarshal error: %v", err)
		return ""
	}
	enabled, heating := "disabled", "off"
	if s.Enabled {
		enabled = "enabled"
	}
	if s.ActuatorOn {
		heating = "on"
	}
	return fmt.Sprintf("[STAT] %s band=%.1f..%.1f°C every %dms heating %s\n",
		enabled, s.LimitLow, s.LimitHigh, s.RefreshIntervalMS, heating)
}
