// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration values.
type Config struct {
	// Sensor
	I2CBus              string // "" selects the first bus
	SensorDriver        string // "sht31", "bme280" or "mock"
	SensorI2CAddr       uint16
	SensorInitAttempts  int
	SensorInitBackoffMS int

	// Outputs
	RelayPin     string // GPIO driving the heating relay, "sim" for none
	HeartbeatPin string // "" disables the heartbeat LED

	// Control
	LimitLow          float64 // °C
	LimitHigh         float64 // °C, band width is LimitHigh-LimitLow
	RefreshIntervalMS int     // control period
	LoopPollMS        int     // how often the loop checks the deadline

	// MQTT, disabled when MQTTBroker is empty
	MQTTBroker          string
	MQTTClientID        string
	MQTTClientIDMonitor string
	TopicReading        string
	TopicState          string

	// Web Server, disabled when 0
	WebServerPort int

	// Display, disabled when DisplayI2CAddr is 0
	DisplayI2CAddr        uint16
	DisplayUpdateInterval int // milliseconds

	// Console, stdin when CONSOLE_SERIAL_PORT is empty
	ConsoleSerialPort string
	ConsoleBaudRate   int
}

// Package-level unexported variables for the singleton:
//   - globalConfig is only reachable through Get.
//   - configOnce makes InitGlobal run once.
//   - configMu guards globalConfig for concurrent readers.
//   - initErr keeps the result of the first load.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
	initErr      error
)

// defaultSensorAddr is used when SENSOR_I2C_ADDR is not set.
var defaultSensorAddr = map[string]uint16{
	"sht31":  0x44,
	"bme280": 0x76,
}

// Default returns the configuration used for keys absent from the file.
func Default() *Config {
	return &Config{
		SensorDriver:          "sht31",
		SensorInitAttempts:    5,
		SensorInitBackoffMS:   1000,
		RelayPin:              "GPIO4",
		LimitLow:              18.0,
		LimitHigh:             21.0,
		RefreshIntervalMS:     10000,
		LoopPollMS:            50,
		MQTTClientID:          "thermostat",
		MQTTClientIDMonitor:   "thermostat-monitor",
		TopicReading:          "thermostat/reading",
		TopicState:            "thermostat/state",
		DisplayUpdateInterval: 1000,
		ConsoleBaudRate:       115200,
	}
}

// Load reads the KEY=VALUE configuration file on top of Default.
// Blank lines and lines starting with '#' are ignored.
func Load(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	values, err := godotenv.Read(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Map order is random; sort so the first error reported is stable.
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	cfg := Default()
	for _, key := range keys {
		if err := cfg.setValue(key, strings.TrimSpace(values[key])); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}

	if cfg.SensorI2CAddr == 0 {
		cfg.SensorI2CAddr = defaultSensorAddr[cfg.SensorDriver]
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// Sensor
	case "I2C_BUS":
		c.I2CBus = value
	case "SENSOR_DRIVER":
		switch value {
		case "sht31", "bme280", "mock":
			c.SensorDriver = value
		default:
			return fmt.Errorf("SENSOR_DRIVER must be sht31, bme280 or mock, got %q", value)
		}
	case "SENSOR_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 7)
		if err != nil {
			return fmt.Errorf("invalid SENSOR_I2C_ADDR %q: %w", value, err)
		}
		c.SensorI2CAddr = uint16(addr)
	case "SENSOR_INIT_ATTEMPTS":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid SENSOR_INIT_ATTEMPTS %q: %w", value, err)
		}
		if n < 1 {
			return fmt.Errorf("SENSOR_INIT_ATTEMPTS must be at least 1, got %d", n)
		}
		c.SensorInitAttempts = n
	case "SENSOR_INIT_BACKOFF_MS":
		ms, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid SENSOR_INIT_BACKOFF_MS %q: %w", value, err)
		}
		if ms < 0 {
			return fmt.Errorf("SENSOR_INIT_BACKOFF_MS must not be negative, got %d", ms)
		}
		c.SensorInitBackoffMS = ms

	// Outputs
	case "RELAY_PIN":
		c.RelayPin = value
	case "HEARTBEAT_PIN":
		c.HeartbeatPin = value

	// Control
	case "LIMIT_LOW":
		v, err := parseTemperature(key, value)
		if err != nil {
			return err
		}
		c.LimitLow = v
	case "LIMIT_HIGH":
		v, err := parseTemperature(key, value)
		if err != nil {
			return err
		}
		c.LimitHigh = v
	case "REFRESH_INTERVAL_MS":
		ms, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid REFRESH_INTERVAL_MS %q: %w", value, err)
		}
		if ms <= 0 {
			return fmt.Errorf("REFRESH_INTERVAL_MS must be positive, got %d", ms)
		}
		c.RefreshIntervalMS = ms
	case "LOOP_POLL_MS":
		ms, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid LOOP_POLL_MS %q: %w", value, err)
		}
		if ms <= 0 {
			return fmt.Errorf("LOOP_POLL_MS must be positive, got %d", ms)
		}
		c.LoopPollMS = ms

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID":
		c.MQTTClientID = value
	case "MQTT_CLIENT_ID_MONITOR":
		c.MQTTClientIDMonitor = value
	case "TOPIC_READING":
		c.TopicReading = value
	case "TOPIC_STATE":
		c.TopicState = value

	// Web Server
	case "WEB_SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, err)
		}
		if port < 0 || port > 65535 {
			return fmt.Errorf("WEB_SERVER_PORT must be 0-65535, got %d", port)
		}
		c.WebServerPort = port

	// Display
	case "DISPLAY_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 7)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_I2C_ADDR %q: %w", value, err)
		}
		c.DisplayI2CAddr = uint16(addr)
	case "DISPLAY_UPDATE_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_UPDATE_INTERVAL %q: %w", value, err)
		}
		c.DisplayUpdateInterval = interval

	// Console
	case "CONSOLE_SERIAL_PORT":
		c.ConsoleSerialPort = value
	case "CONSOLE_BAUD_RATE":
		rate, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid CONSOLE_BAUD_RATE %q: %w", value, err)
		}
		c.ConsoleBaudRate = rate

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

func parseTemperature(key, value string) (float64, error) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%s must be a finite temperature, got %q", key, value)
	}
	return v, nil
}

// validate checks the cross-field constraints.
func (c *Config) validate() error {
	if c.SensorDriver != "mock" && c.SensorI2CAddr == 0 {
		return fmt.Errorf("SENSOR_I2C_ADDR is required")
	}
	if c.RelayPin == "" {
		return fmt.Errorf("RELAY_PIN is required")
	}
	if c.LimitHigh <= c.LimitLow {
		return fmt.Errorf("LIMIT_HIGH (%.1f) must be above LIMIT_LOW (%.1f)", c.LimitHigh, c.LimitLow)
	}
	if c.MQTTBroker != "" && (c.TopicReading == "" || c.TopicState == "") {
		return fmt.Errorf("TOPIC_READING and TOPIC_STATE are required when MQTT_BROKER is set")
	}
	if c.DisplayI2CAddr != 0 && c.DisplayUpdateInterval <= 0 {
		return fmt.Errorf("DISPLAY_UPDATE_INTERVAL must be positive when DISPLAY_I2C_ADDR is set")
	}
	if c.ConsoleSerialPort != "" && c.ConsoleBaudRate <= 0 {
		return fmt.Errorf("CONSOLE_BAUD_RATE is required when CONSOLE_SERIAL_PORT is set")
	}
	return nil
}

// RefreshInterval returns the control period as a duration.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalMS) * time.Millisecond
}

// LoopPoll returns the deadline polling granularity as a duration.
func (c *Config) LoopPoll() time.Duration {
	return time.Duration(c.LoopPollMS) * time.Millisecond
}

// SensorInitBackoff returns the delay between bring-up attempts.
func (c *Config) SensorInitBackoff() time.Duration {
	return time.Duration(c.SensorInitBackoffMS) * time.Millisecond
}

// InitGlobal initializes the global configuration from file.
// Only the first call loads the file; later calls return its result.
func InitGlobal(configPath string) error {
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, initErr = Load(configPath)
	})
	return initErr
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
