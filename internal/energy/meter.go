// Package energy reads RAPL energy counters through the Linux powercap
// sysfs interface.
package energy

import (
	"fmt"
	"time"

	"codeberg.org/mutker/powerctl/internal/errors"
	"codeberg.org/mutker/powerctl/internal/logger"
	"github.com/prometheus/procfs/sysfs"
)

const counterUnit = "uJ"

// Counter is one energy counter: a display name, a unit and the energy
// consumed between the last Start and Stop
type Counter struct {
	Name  string
	Unit  string
	Value uint64
}

// Measurement holds the result of one measurement window. The meter owns a
// single Measurement and rewrites it on every Stop; the returned pointer
// stays valid until the next Start.
type Measurement struct {
	Elapsed  time.Duration
	Counters []Counter
}

var zeroMeasurement = &Measurement{}

type raplCounter struct {
	name string
	zone sysfs.RaplZone
	base uint64
}

// Meter reads package and DRAM energy counters. Not safe for concurrent
// use.
type Meter struct {
	counters []raplCounter
	running  bool
	started  time.Time
	result   *Measurement
	logger   logger.Logger
}

// NewMeter enumerates RAPL zones and probes the package energy counters,
// then the DRAM counters, package number by package number. Each family
// stops at its first missing package. A machine without powercap support
// is unsupported; powercap without any package zone is unavailable.
func NewMeter(sysfsRoot string, log logger.Logger) (*Meter, error) {
	errFactory := errors.New()

	fs, err := sysfs.NewFS(sysfsRoot)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrArchUnsupported, err)
	}

	zones, err := sysfs.GetRaplZones(fs)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrArchUnsupported, err)
	}

	counters := probeFamily(zones, "package", "PACKAGE_ENERGY:PACKAGE%d")
	counters = append(counters, probeFamily(zones, "dram", "DRAM_ENERGY:PACKAGE%d")...)
	if len(counters) == 0 {
		return nil, errFactory.WithMessage(errors.ErrUnavailable, "no RAPL package domains found")
	}

	m := &Meter{
		counters: counters,
		result:   &Measurement{Counters: make([]Counter, len(counters))},
		logger:   log,
	}
	for i, counter := range counters {
		m.result.Counters[i].Name = counter.name
		m.result.Counters[i].Unit = counterUnit
	}

	log.Debug().Int("counters", len(counters)).Msg("RAPL energy counters probed")

	return m, nil
}

// probeFamily collects the zones of one RAPL family in package order
func probeFamily(zones []sysfs.RaplZone, zoneName, nameFormat string) []raplCounter {
	var counters []raplCounter
	for index := 0; ; index++ {
		zone, ok := findZone(zones, zoneName, index)
		if !ok {
			break
		}
		counters = append(counters, raplCounter{
			name: fmt.Sprintf(nameFormat, index),
			zone: zone,
		})
	}

	return counters
}

// findZone matches both multi-socket suffixed names ("package-0",
// "package-1") and repeated plain names ("dram" on every socket, told
// apart by zone index)
func findZone(zones []sysfs.RaplZone, name string, index int) (sysfs.RaplZone, bool) {
	suffixed := fmt.Sprintf("%s-%d", name, index)
	for _, zone := range zones {
		if zone.Name == suffixed || (zone.Name == name && zone.Index == index) {
			return zone, true
		}
	}

	return sysfs.RaplZone{}, false
}

// Start begins a measurement window. A window already in progress is
// discarded and the window restarts from now.
func (m *Meter) Start() error {
	errFactory := errors.New()

	for i := range m.counters {
		value, err := m.counters[i].zone.GetEnergyMicrojoules()
		if err != nil {
			return errFactory.Wrap(errors.ErrGeneral, err)
		}
		m.counters[i].base = value
	}

	m.started = time.Now()
	m.running = true

	return nil
}

// Stop ends the measurement window and returns the meter's reused result.
// Without a running window the returned measurement is an empty sentinel,
// never nil.
func (m *Meter) Stop() (*Measurement, error) {
	errFactory := errors.New()

	if !m.running {
		return zeroMeasurement, errFactory.New(errors.ErrUnavailable)
	}

	elapsed := time.Since(m.started)
	for i := range m.counters {
		value, err := m.counters[i].zone.GetEnergyMicrojoules()
		if err != nil {
			return zeroMeasurement, errFactory.Wrap(errors.ErrGeneral, err)
		}
		m.result.Counters[i].Value = counterDelta(m.counters[i].base, value, m.counters[i].zone.MaxMicrojoules)
	}

	m.result.Elapsed = elapsed
	m.running = false

	return m.result, nil
}

// counterDelta accounts for the counter wrapping its maximum range
func counterDelta(base, current, max uint64) uint64 {
	if current >= base {
		return current - base
	}

	return current + (max - base)
}

// Running reports whether a measurement window is in progress
func (m *Meter) Running() bool {
	return m.running
}

// Counters returns the discovered counter descriptors. Values are those of
// the last completed window.
func (m *Meter) Counters() []Counter {
	counters := make([]Counter, len(m.result.Counters))
	copy(counters, m.result.Counters)

	return counters
}
