package powerctl

import (
	"time"

	"codeberg.org/mutker/powerctl/internal/errors"
)

// NumSpeedLevels returns the number of speed levels of an island
func (c *Context) NumSpeedLevels(island int) (int, error) {
	if err := c.require(ModuleDVFS); err != nil {
		return 0, err
	}

	n, err := c.controller.NumSpeedLevels(island)
	if err != nil {
		return 0, c.fail(err)
	}

	c.succeed()

	return n, nil
}

// CurrentSpeedLevel returns an island's current operating level
func (c *Context) CurrentSpeedLevel(island int) (int, error) {
	if err := c.require(ModuleDVFS); err != nil {
		return 0, err
	}

	level, err := c.controller.CurrentSpeedLevel(island)
	if err != nil {
		return 0, c.fail(err)
	}

	c.succeed()

	return level, nil
}

// SpeedLevelFrequency returns the frequency in kHz behind a speed level
func (c *Context) SpeedLevelFrequency(island, level int) (int, error) {
	if err := c.require(ModuleDVFS); err != nil {
		return 0, err
	}

	freq, err := c.controller.Frequency(island, level)
	if err != nil {
		return 0, c.fail(err)
	}

	c.succeed()

	return freq, nil
}

// RequestSpeedLevel drives an island to the given speed level. Requesting
// the current level at either end of the table reports the distinct
// already-at-bound status without touching the hardware.
func (c *Context) RequestSpeedLevel(island, level int) error {
	if err := c.require(ModuleDVFS); err != nil {
		return err
	}

	if err := c.controller.RequestSpeedLevel(island, level); err != nil {
		return c.fail(err)
	}

	c.succeed()

	return nil
}

// ModifySpeedLevel moves an island's speed level by a signed delta
func (c *Context) ModifySpeedLevel(island, delta int) error {
	if err := c.require(ModuleDVFS); err != nil {
		return err
	}

	if err := c.controller.ModifySpeedLevel(island, delta); err != nil {
		return c.fail(err)
	}

	c.succeed()

	return nil
}

// Agility returns the worst-case time to move an island between two speed
// levels. Both levels must be in range; the stored latency does not depend
// on the pair.
func (c *Context) Agility(island, from, to int) (time.Duration, error) {
	if err := c.require(ModuleDVFS); err != nil {
		return 0, err
	}

	agility, err := c.controller.Agility(island, from, to)
	if err != nil {
		return 0, c.fail(err)
	}

	c.succeed()

	return agility, nil
}

// ModifyVoltage raises or lowers an island's voltage. Voltage control is
// not implemented; the island and delta are not examined.
func (c *Context) ModifyVoltage(island, delta int) error {
	errFactory := errors.New()

	if c == nil {
		return errFactory.New(errors.ErrUninitialized)
	}

	return c.fail(errFactory.New(errors.ErrNotImplemented))
}
