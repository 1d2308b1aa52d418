// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/Thermoquad/ibuscope/pkg/ibus"
)

// sensorFile is the on-disk sensor roster:
//
//	[[sensor]]
//	address = 1
//	type = "temp"
//	celsius = 21.5
//
//	[[sensor]]
//	address = 2
//	type = "pressure"
//	width = "long"
//	value = 101325
type sensorFile struct {
	Sensors []sensorEntry `toml:"sensor"`
}

type sensorEntry struct {
	Address int      `toml:"address"`
	Type    string   `toml:"type"`
	Width   string   `toml:"width"`
	Value   *uint32  `toml:"value"`
	Celsius *float64 `toml:"celsius"`
	Volts   *float64 `toml:"volts"`
}

var sensorTypeNames = map[string]ibus.SensorType{
	"intv":     ibus.SensorInternalVoltage,
	"temp":     ibus.SensorTemperature,
	"rpm":      ibus.SensorRPM,
	"extv":     ibus.SensorExternalVoltage,
	"pressure": ibus.SensorPressure,
	"servo":    ibus.SensorServo,
}

// loadSensorConfig reads a sensor roster from path
func loadSensorConfig(path string) (*ibus.SensorSet, error) {
	var raw sensorFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return nil, fmt.Errorf("load sensor config: %w", err)
	}
	return buildSensorSet(raw, meta)
}

// decodeSensorConfig reads a sensor roster from r
func decodeSensorConfig(r io.Reader) (*ibus.SensorSet, error) {
	var raw sensorFile
	meta, err := toml.NewDecoder(r).Decode(&raw)
	if err != nil {
		return nil, fmt.Errorf("load sensor config: %w", err)
	}
	return buildSensorSet(raw, meta)
}

func buildSensorSet(raw sensorFile, meta toml.MetaData) (*ibus.SensorSet, error) {
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown config key %q", undecoded[0].String())
	}
	if len(raw.Sensors) == 0 {
		return nil, fmt.Errorf("sensor config defines no [[sensor]] entries")
	}

	set := ibus.NewSensorSet()
	for i, entry := range raw.Sensors {
		sensor, err := entry.sensor()
		if err != nil {
			return nil, fmt.Errorf("sensor %d: %w", i+1, err)
		}
		if err := set.Add(sensor); err != nil {
			return nil, fmt.Errorf("sensor %d: %w", i+1, err)
		}
	}
	return set, nil
}

func (e sensorEntry) sensor() (ibus.Sensor, error) {
	if e.Address < 1 || e.Address > ibus.MaxAddress {
		return ibus.Sensor{}, fmt.Errorf("%w: %d (valid 1-%d)", ibus.ErrInvalidAddress, e.Address, ibus.MaxAddress)
	}

	kind, ok := sensorTypeNames[strings.ToLower(strings.TrimSpace(e.Type))]
	if !ok {
		return ibus.Sensor{}, fmt.Errorf("unknown sensor type %q (use intv, temp, rpm, extv, pressure or servo)", e.Type)
	}

	sensor := ibus.Sensor{
		Address: uint8(e.Address),
		Type:    kind,
	}

	switch strings.ToLower(strings.TrimSpace(e.Width)) {
	case "":
		sensor.Width = ibus.DefaultWidth(kind)
	case "short":
		sensor.Width = ibus.WidthShort
	case "long":
		sensor.Width = ibus.WidthLong
	default:
		return ibus.Sensor{}, fmt.Errorf("unknown width %q (use short or long)", e.Width)
	}

	set := 0
	if e.Value != nil {
		sensor.Value = *e.Value
		set++
	}
	if e.Celsius != nil {
		v, err := ibus.TemperatureValue(*e.Celsius)
		if err != nil {
			return ibus.Sensor{}, err
		}
		sensor.Value = uint32(v)
		set++
	}
	if e.Volts != nil {
		v, err := ibus.VoltageValue(*e.Volts)
		if err != nil {
			return ibus.Sensor{}, err
		}
		sensor.Value = uint32(v)
		set++
	}
	if set > 1 {
		return ibus.Sensor{}, fmt.Errorf("only one of value, celsius or volts may be set")
	}

	if sensor.Width == ibus.WidthShort && sensor.Value > 0xFFFF {
		return ibus.Sensor{}, fmt.Errorf("value %d does not fit a short sensor", sensor.Value)
	}
	return sensor, nil
}

// parseSensorValue parses a value typed by the user for a sensor. Temperature
// and voltage sensors take natural units; everything else takes the raw value.
func parseSensorValue(sensor ibus.Sensor, text string) (uint32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, fmt.Errorf("empty value")
	}

	var value uint32
	switch sensor.Type {
	case ibus.SensorTemperature:
		celsius, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid temperature %q", text)
		}
		v, err := ibus.TemperatureValue(celsius)
		if err != nil {
			return 0, err
		}
		value = uint32(v)

	case ibus.SensorInternalVoltage, ibus.SensorExternalVoltage:
		volts, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid voltage %q", text)
		}
		v, err := ibus.VoltageValue(volts)
		if err != nil {
			return 0, err
		}
		value = uint32(v)

	default:
		raw, err := strconv.ParseUint(text, 0, 32)
		if err != nil {
			return 0, fmt.Errorf("invalid value %q", text)
		}
		value = uint32(raw)
	}

	if sensor.Width == ibus.WidthShort && value > 0xFFFF {
		return 0, fmt.Errorf("value %d does not fit a short sensor", value)
	}
	return value, nil
}
