package powerctl

import "codeberg.org/mutker/powerctl/internal/energy"

// Measurement is one completed measurement window: elapsed wall time plus
// the accumulated value of every discovered counter
type Measurement = energy.Measurement

// Counter is one named, unit-tagged energy counter value
type Counter = energy.Counter

// zeroMeasurement is handed out when no measurement result exists, so
// callers never see a nil measurement
var zeroMeasurement = &Measurement{}

// StartEnergyCount begins a measurement window. A window already in
// progress is discarded and the window restarts from now.
func (c *Context) StartEnergyCount() error {
	if err := c.require(ModuleEnergy); err != nil {
		return err
	}

	if err := c.meter.Start(); err != nil {
		return c.fail(err)
	}

	c.succeed()

	return nil
}

// StopEnergyCount ends the measurement window and returns its result. The
// measurement is never nil: without a running window (or a usable energy
// module) it is an empty sentinel alongside the error. The result object is
// reused, so it stays valid only until the next StartEnergyCount.
func (c *Context) StopEnergyCount() (*Measurement, error) {
	if err := c.require(ModuleEnergy); err != nil {
		return zeroMeasurement, err
	}

	m, err := c.meter.Stop()
	if err != nil {
		return m, c.fail(err)
	}

	c.succeed()

	return m, nil
}

// EnergyCounters lists the discovered energy counters. Values are those of
// the last completed window.
func (c *Context) EnergyCounters() ([]Counter, error) {
	if err := c.require(ModuleEnergy); err != nil {
		return nil, err
	}

	c.succeed()

	return c.meter.Counters(), nil
}
