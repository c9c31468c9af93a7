package powerctl

import "codeberg.org/mutker/powerctl/internal/errors"

// Efficiency reports an island's energy efficiency in joules per flop.
// Not implemented.
func (c *Context) Efficiency(island int) (float64, error) {
	errFactory := errors.New()

	if c == nil {
		return 0, errFactory.New(errors.ErrUninitialized)
	}

	return 0, c.fail(errFactory.New(errors.ErrNotImplemented))
}

// SetPowerPriority sets the importance of power efficiency for a task,
// between 0 and 100. Not implemented.
func (c *Context) SetPowerPriority(task any, priority int) error {
	errFactory := errors.New()

	if c == nil {
		return errFactory.New(errors.ErrUninitialized)
	}

	return c.fail(errFactory.New(errors.ErrNotImplemented))
}

// SetSpeedPriority sets the importance of performance for a task, between 0
// and 100. Not implemented.
func (c *Context) SetSpeedPriority(task any, priority int) error {
	errFactory := errors.New()

	if c == nil {
		return errFactory.New(errors.ErrUninitialized)
	}

	return c.fail(errFactory.New(errors.ErrNotImplemented))
}
