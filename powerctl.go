// Package powerctl exposes CPU frequency-scaling (DVFS) control and RAPL
// energy readout on Linux through a per-session Context. Functionality is
// grouped into modules that initialize independently: hardware structure
// discovery, DVFS speed control, energy measurement and the reserved
// high-level interface. Operations validate their module's state and report
// typed errors.
//
// The library is not safe for concurrent use of one Context.
package powerctl

import (
	"codeberg.org/mutker/powerctl/internal/cpufreq"
	"codeberg.org/mutker/powerctl/internal/energy"
	"codeberg.org/mutker/powerctl/internal/errors"
	"codeberg.org/mutker/powerctl/internal/logger"
)

const defaultSysfsRoot = "/sys"

// Module identifies one independently initialized capability group
type Module int

const (
	ModuleStructure Module = iota
	ModuleDVFS
	ModuleEnergy
	ModuleHighLevel

	moduleCount
)

func (m Module) String() string {
	switch m {
	case ModuleStructure:
		return "structure"
	case ModuleDVFS:
		return "dvfs"
	case ModuleEnergy:
		return "energy"
	case ModuleHighLevel:
		return "high-level"
	default:
		return "unknown"
	}
}

type moduleState int

const (
	stateNotInit moduleState = iota
	stateReady
	stateFinalized
)

// HardwareBehavior models the valid voltage and speed-level combinations of
// an architecture. Reserved for future use.
type HardwareBehavior struct{}

// SpeedPolicy selects how islands pick their speed levels. Reserved for
// future use.
type SpeedPolicy struct{}

// SchedulingPolicy maps tasks onto processing elements. Reserved for future
// use.
type SchedulingPolicy struct{}

// Logger is the sink for the library's diagnostics
type Logger = logger.Logger

type options struct {
	sysfsRoot string
	logger    logger.Logger
}

// Option adjusts how Initialize opens the session
type Option func(*options)

// WithSysfsRoot overrides the sysfs mount point, mainly for tests
func WithSysfsRoot(path string) Option {
	return func(o *options) {
		o.sysfsRoot = path
	}
}

// WithLogger replaces the default diagnostics sink
func WithLogger(l Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// Context is one open session with the hardware. Create it with Initialize,
// release it with Finalize. Not safe for concurrent use.
type Context struct {
	states  [moduleCount]moduleState
	lastErr errors.ErrorCode
	logger  logger.Logger

	sysfsRoot  string
	topo       *cpufreq.Topology
	controller *cpufreq.Controller
	meter      *energy.Meter
}

// Initialize opens a session with the hardware. The three policy parameters
// are reserved; nil is the expected value for all of them. Structure
// discovery must succeed or no context is returned. The DVFS and energy
// modules are then attempted in order and may individually stay
// uninitialized, leaving a warning in the log; machines without the
// userspace governor or without RAPL are common, so callers check
// IsInitialized before relying on a module.
func Initialize(hw *HardwareBehavior, speed *SpeedPolicy, sched *SchedulingPolicy, opts ...Option) (*Context, error) {
	o := options{
		sysfsRoot: defaultSysfsRoot,
		logger:    logger.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Context{
		lastErr:   errors.Success,
		logger:    o.logger,
		sysfsRoot: o.sysfsRoot,
	}

	topo, err := cpufreq.Discover(c.sysfsRoot)
	if err != nil {
		return nil, err
	}
	c.topo = topo
	c.states[ModuleStructure] = stateReady

	if err := c.initDVFS(); err != nil {
		c.record(err)
		c.logger.Warn().Err(err).Msg("Speed control unavailable")
	} else {
		c.succeed()
	}

	if err := c.initEnergy(); err != nil {
		c.record(err)
		c.logger.Warn().Err(err).Msg("Energy measurement unavailable")
	} else {
		c.succeed()
	}

	return c, nil
}

func (c *Context) initDVFS() error {
	errFactory := errors.New()

	if c.states[ModuleDVFS] != stateNotInit {
		return errFactory.New(errors.ErrAlreadyInitialized)
	}
	if c.states[ModuleStructure] != stateReady {
		return errFactory.New(errors.ErrUninitialized)
	}

	controller, err := cpufreq.NewController(c.sysfsRoot, c.topo, c.logger)
	if err != nil {
		return err
	}

	c.controller = controller
	c.states[ModuleDVFS] = stateReady

	return nil
}

func (c *Context) initEnergy() error {
	errFactory := errors.New()

	if c.states[ModuleEnergy] != stateNotInit {
		return errFactory.New(errors.ErrAlreadyInitialized)
	}
	if c.states[ModuleStructure] != stateReady {
		return errFactory.New(errors.ErrUninitialized)
	}

	meter, err := energy.NewMeter(c.sysfsRoot, c.logger)
	if err != nil {
		return err
	}

	c.meter = meter
	c.states[ModuleEnergy] = stateReady

	return nil
}

// Finalize releases everything the context owns. A running measurement is
// discarded, control files are closed and every module becomes finalized.
// The context is unusable afterwards; a second Finalize reports a
// finalization error.
func (c *Context) Finalize() error {
	errFactory := errors.New()

	if c == nil {
		return errFactory.New(errors.ErrUninitialized)
	}
	if c.states[ModuleStructure] != stateReady {
		return c.fail(errFactory.New(errors.ErrFinalizeFailed))
	}

	if c.meter != nil && c.meter.Running() {
		c.meter.Stop()
	}
	c.meter = nil

	var closeErr error
	if c.controller != nil {
		closeErr = c.controller.Close()
		c.controller = nil
	}

	c.topo = nil
	for m := range c.states {
		c.states[m] = stateFinalized
	}

	if closeErr != nil {
		return c.fail(closeErr)
	}

	c.succeed()

	return nil
}

// IsInitialized reports whether a module is ready for use. Safe on a nil
// context and an unknown module id.
func (c *Context) IsInitialized(m Module) bool {
	if c == nil || m < 0 || m >= moduleCount {
		return false
	}

	return c.states[m] == stateReady
}

// LastError returns the code recorded by the most recent operation, Success
// when it completed cleanly
func (c *Context) LastError() ErrorCode {
	if c == nil {
		return errors.ErrUninitialized
	}

	return c.lastErr
}

// ErrorMessage returns the fixed human-readable description of the last
// error
func (c *Context) ErrorMessage() string {
	if c == nil {
		return "Invalid context"
	}

	return errors.GetErrorMessage(c.lastErr)
}

// require checks that a module is ready before an operation touches it
func (c *Context) require(m Module) error {
	errFactory := errors.New()

	if c == nil {
		return errFactory.New(errors.ErrUninitialized)
	}
	if c.states[m] != stateReady {
		return c.fail(errFactory.New(errors.ErrUninitialized))
	}

	return nil
}

// fail records err as the last error and hands it back
func (c *Context) fail(err error) error {
	c.record(err)
	c.logger.Debug().Err(err).Msg("Operation failed")

	return err
}

func (c *Context) record(err error) {
	c.lastErr = errors.CodeOf(err)
}

// succeed resets the last error to Success
func (c *Context) succeed() {
	c.lastErr = errors.Success
}
