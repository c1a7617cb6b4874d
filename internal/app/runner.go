// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/thermostat/internal/actuator"
	"github.com/relabs-tech/thermostat/internal/config"
	"github.com/relabs-tech/thermostat/internal/console"
	"github.com/relabs-tech/thermostat/internal/env"
	"github.com/relabs-tech/thermostat/internal/sensors"
	"github.com/relabs-tech/thermostat/internal/thermostat"
)

// simRelayPin selects an in-memory relay for bench runs without hardware.
const simRelayPin = "sim"

// alarmDuration is how long the error pattern blinks before a fatal exit.
const alarmDuration = 5 * time.Second

// runtime ties one sensor, one relay and one controller together.
type runtime struct {
	sensor sensors.Sensor
	relay  *actuator.Relay
	pub    *Publisher // nil when MQTT is disabled
	ctl    *thermostat.Controller
	report io.Writer
}

func newRuntime(cfg *config.Config, s sensors.Sensor, relay *actuator.Relay, pub *Publisher, report io.Writer) (*runtime, error) {
	rt := &runtime{sensor: s, relay: relay, pub: pub, report: report}

	ctl, err := thermostat.New(s, thermostat.Handlers{
		ProcessData: rt.processData,
		OnLowTemp:   rt.heatingOn,
		OnHighTemp:  rt.heatingOff,
	},
		thermostat.WithLimits(cfg.LimitLow, cfg.LimitHigh),
		thermostat.WithRefreshInterval(cfg.RefreshInterval()),
	)
	if err != nil {
		return nil, err
	}
	rt.ctl = ctl

	if m, ok := s.(*sensors.Mock); ok {
		m.Drift(relay.IsOn, 0.2)
	}
	return rt, nil
}

// processData samples the sensor, prints the reading and settings reports
// and publishes.
// A failed sample leaves the store invalid; the controller then skips
// the reaction for this period.
func (rt *runtime) processData() {
	if err := rt.sensor.Sample(context.Background()); err != nil {
		log.WithError(err).Warn("sensor: sample failed")
	}
	r := rt.sensor.Reading()
	fmt.Fprint(rt.report, env.FormatReport(r))
	fmt.Fprint(rt.report, thermostat.FormatSettings(rt.state()))

	if rt.pub != nil {
		if err := rt.pub.PublishReading(r); err != nil {
			log.Printf("mqtt: %v", err)
		}
		rt.publishState()
	}
}

func (rt *runtime) heatingOn() {
	if err := rt.relay.On(); err != nil {
		log.Printf("thermostat: %v", err)
	}
	rt.publishState()
}

func (rt *runtime) heatingOff() {
	if err := rt.relay.Off(); err != nil {
		log.Printf("thermostat: %v", err)
	}
	rt.publishState()
}

// state reports the controller settings with the measured relay level.
// Handlers run before the controller records the new command.
func (rt *runtime) state() thermostat.State {
	s := rt.ctl.State()
	s.ActuatorOn = rt.relay.IsOn()
	return s
}

func (rt *runtime) publishState() {
	if rt.pub == nil {
		return
	}
	if err := rt.pub.PublishState(rt.state()); err != nil {
		log.Printf("mqtt: %v", err)
	}
}

func (rt *runtime) status() Status {
	return Status{Reading: rt.sensor.Reading, State: rt.state}
}

// sensorReport samples on demand for the console "v" command.
func (rt *runtime) sensorReport() string {
	if err := rt.sensor.Sample(context.Background()); err != nil {
		log.WithError(err).Warn("sensor: sample failed")
	}
	return env.FormatReport(rt.sensor.Reading())
}

// RunThermostat brings up the hardware from the global config and runs
// the control loop with all configured surfaces until ctx is done. The
// heating is switched off on the way out.
func RunThermostat(ctx context.Context) error {
	cfg := config.Get()
	if cfg == nil {
		return errors.New("config not initialized")
	}

	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	var bus i2c.BusCloser
	if cfg.SensorDriver != "mock" || cfg.DisplayI2CAddr != 0 {
		b, err := i2creg.Open(cfg.I2CBus)
		if err != nil {
			return fmt.Errorf("failed to open I2C bus %q: %w", cfg.I2CBus, err)
		}
		defer b.Close()
		bus = b
	}

	var hb *actuator.Heartbeat
	if cfg.HeartbeatPin != "" {
		var err error
		if hb, err = actuator.OpenHeartbeat(cfg.HeartbeatPin); err != nil {
			return err
		}
	}

	sensor, err := sensors.Open(cfg, bus, env.NewStore())
	if err != nil {
		return err
	}
	defer sensor.Close()

	relay, err := bringUp(ctx, cfg, sensor, openRelay, hb)
	if err != nil {
		return err
	}
	defer func() {
		if err := relay.Off(); err != nil {
			log.Printf("thermostat: switching heating off on exit: %v", err)
		}
	}()

	var pub *Publisher
	if cfg.MQTTBroker != "" {
		client, err := ConnectMQTT(cfg.MQTTBroker, cfg.MQTTClientID)
		if err != nil {
			return err
		}
		defer client.Disconnect(250)
		pub = NewPublisher(client, cfg.TopicReading, cfg.TopicState)
	}

	rt, err := newRuntime(cfg, sensor, relay, pub, os.Stdout)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	if hb != nil {
		g.Go(func() error {
			if err := hb.Run(gctx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	if cfg.WebServerPort != 0 {
		g.Go(optional("web", func() error { return RunWeb(gctx, cfg.WebServerPort, rt.status()) }))
	}
	if cfg.DisplayI2CAddr != 0 {
		g.Go(optional("display", func() error {
			return RunDisplay(gctx, bus, cfg.DisplayI2CAddr, time.Duration(cfg.DisplayUpdateInterval)*time.Millisecond, rt.status())
		}))
	}

	// The console blocks on reads it cannot cancel, so it stays outside
	// the group and simply ends with the process.
	go runConsole(cfg, rt)

	rt.ctl.Enable()
	g.Go(func() error {
		if err := rt.ctl.Run(gctx, cfg.LoopPoll()); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	log.Printf("thermostat: running, limits %.1f..%.1f °C every %v", cfg.LimitLow, cfg.LimitHigh, cfg.RefreshInterval())
	err = g.Wait()
	log.Println("thermostat: shutting down")
	return err
}

// bringUp drives the heating off before anything else, then brings up the
// sensor. When the sensor cannot be confirmed the relay stays off, the
// heartbeat shows the error pattern and no relay is returned.
func bringUp(ctx context.Context, cfg *config.Config, s sensors.Sensor,
	open func(pin string) (*actuator.Relay, error), hb *actuator.Heartbeat) (*actuator.Relay, error) {
	relay, err := open(cfg.RelayPin)
	if err != nil {
		return nil, err
	}

	if err := sensors.Initialize(ctx, s, sensors.Policy(cfg)); err != nil {
		log.WithError(err).Error("thermostat: sensor bring-up failed, stopping")
		if offErr := relay.Off(); offErr != nil {
			log.Printf("thermostat: switching heating off: %v", offErr)
		}
		if hb != nil {
			hb.Alarm(ctx, alarmDuration)
		}
		return nil, err
	}
	return relay, nil
}

// optional wraps a surface that must not end the run when it fails.
func optional(name string, run func() error) func() error {
	return func() error {
		if err := run(); err != nil {
			log.WithError(err).Errorf("%s: stopped, control loop keeps running", name)
		}
		return nil
	}
}

func openRelay(pin string) (*actuator.Relay, error) {
	if pin == simRelayPin {
		log.Println("relay: using simulated pin")
		return actuator.NewRelay(&gpiotest.Pin{N: simRelayPin})
	}
	return actuator.OpenRelay(pin)
}

func runConsole(cfg *config.Config, rt *runtime) {
	var (
		in  io.Reader = os.Stdin
		out io.Writer = os.Stdout
	)
	if cfg.ConsoleSerialPort != "" {
		port, err := console.OpenSerial(cfg.ConsoleSerialPort, cfg.ConsoleBaudRate)
		if err != nil {
			log.Printf("console: %v, menu disabled", err)
			return
		}
		defer port.Close()
		in, out = port, port
	}

	menu := console.New(rt.ctl, rt.sensorReport, out)
	if err := menu.Run(in); err != nil {
		log.Printf("console: %v", err)
	}
}
