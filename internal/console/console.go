// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package console is the operator menu used to change the thermostat
// settings at runtime. It reads one command per line from stdin or a
// serial port.
package console

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jacobsa/go-serial/serial"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/thermostat/internal/thermostat"
)

// Thermostat is the part of the controller the menu drives.
type Thermostat interface {
	SetLimitLow(v float64) error
	SetLimitHigh(v float64) error
	SetTempDelta(v float64) error
	SetRefreshInterval(d time.Duration) error
	Enable()
	Disable()
	IsEnabled() bool
	State() thermostat.State
}

type menuItem struct {
	key  string
	text string
	run  func(arg string) error
}

// Menu executes operator commands against a thermostat.
type Menu struct {
	ctl    Thermostat
	values func() string // sensor report, sampled on demand
	out    io.Writer
	items  []menuItem
}

// New returns a menu writing to out. values renders the sensor report
// for the "v" command and may be nil.
func New(ctl Thermostat, values func() string, out io.Writer) *Menu {
	m := &Menu{ctl: ctl, values: values, out: out}
	m.items = []menuItem{
		{"l", "[l] Set lower limit      [°C]", m.setLowerLimit},
		{"u", "[u] Set upper limit      [°C]", m.setUpperLimit},
		{"d", "[d] Set temp delta       [°C]", m.setTempDelta},
		{"i", "[i] Set refresh interval [ms]", m.setInterval},
		{"t", "[t] Toggle thermostat enable/disable", m.toggle},
		{"v", "[v] Show values", m.showValues},
		{"S", "[S] Show menu", m.showMenu},
	}
	return m
}

// ShowMenu prints the banner and the list of commands.
func (m *Menu) ShowMenu() {
	fmt.Fprint(m.out, "\n-----------------------------\n    Thermostat with SHT31\n-----------------------------\n")
	for _, item := range m.items {
		fmt.Fprintln(m.out, item.text)
	}
}

// Handle executes one command line such as "l 19.5". Rejected values are
// reported to the operator and returned; the menu stays usable.
func (m *Menu) Handle(line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	key, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	for _, item := range m.items {
		if item.key != key {
			continue
		}
		err := item.run(arg)
		if err != nil {
			fmt.Fprintf(m.out, "error: %v\n", err)
		}
		return err
	}
	fmt.Fprintf(m.out, "unknown command %q, press S for the menu\n", key)
	return fmt.Errorf("unknown command %q", key)
}

// Run reads commands from r until EOF.
func (m *Menu) Run(r io.Reader) error {
	m.ShowMenu()
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			_ = m.Handle(line)
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("console: read: %w", err)
		}
	}
}

func (m *Menu) setLowerLimit(arg string) error {
	v, err := parseFloat(arg)
	if err != nil {
		return err
	}
	if err := m.ctl.SetLimitLow(v); err != nil {
		return err
	}
	s := m.ctl.State()
	fmt.Fprintf(m.out, "Limits %.1f .. %.1f °C\n", s.LimitLow, s.LimitHigh)
	return nil
}

func (m *Menu) setUpperLimit(arg string) error {
	v, err := parseFloat(arg)
	if err != nil {
		return err
	}
	if err := m.ctl.SetLimitHigh(v); err != nil {
		return err
	}
	s := m.ctl.State()
	fmt.Fprintf(m.out, "Limits %.1f .. %.1f °C\n", s.LimitLow, s.LimitHigh)
	return nil
}

func (m *Menu) setTempDelta(arg string) error {
	v, err := parseFloat(arg)
	if err != nil {
		return err
	}
	if err := m.ctl.SetTempDelta(v); err != nil {
		return err
	}
	s := m.ctl.State()
	fmt.Fprintf(m.out, "Delta %.1f °C, limits %.1f .. %.1f °C\n", s.Delta, s.LimitLow, s.LimitHigh)
	return nil
}

func (m *Menu) setInterval(arg string) error {
	ms, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return fmt.Errorf("expected milliseconds, got %q", arg)
	}
	if err := m.ctl.SetRefreshInterval(time.Duration(ms) * time.Millisecond); err != nil {
		return err
	}
	fmt.Fprintf(m.out, "Refresh interval %d ms\n", ms)
	return nil
}

func (m *Menu) toggle(string) error {
	if m.ctl.IsEnabled() {
		m.ctl.Disable()
	} else {
		m.ctl.Enable()
	}
	state := "disabled"
	if m.ctl.IsEnabled() {
		state = "enabled"
	}
	fmt.Fprintf(m.out, "Thermostat is %s\n", state)
	return nil
}

func (m *Menu) showValues(string) error {
	if m.values != nil {
		fmt.Fprint(m.out, m.values())
	}
	fmt.Fprint(m.out, thermostat.FormatSettings(m.ctl.State()))
	return nil
}

func (m *Menu) showMenu(string) error {
	m.ShowMenu()
	return nil
}

func parseFloat(arg string) (float64, error) {
	v, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		return 0, fmt.Errorf("expected a temperature in °C, got %q", arg)
	}
	return v, nil
}

// OpenSerial opens the console serial port, 8N1.
func OpenSerial(portName string, baud int) (io.ReadWriteCloser, error) {
	port, err := serial.Open(serial.OpenOptions{
		PortName:        portName,
		BaudRate:        uint(baud),
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
		ParityMode:      serial.PARITY_NONE,
	})
	if err != nil {
		return nil, fmt.Errorf("console: open %s: %w", portName, err)
	}
	log.Printf("console: serial port opened on %s at %d baud", portName, baud)
	return port, nil
}
