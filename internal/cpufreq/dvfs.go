package cpufreq

import (
	"io"
	"os"
	"slices"
	"sort"
	"strconv"
	"time"

	"codeberg.org/mutker/powerctl/internal/errors"
	"codeberg.org/mutker/powerctl/internal/logger"
)

// expectedGovernor is the only cpufreq governor that accepts frequency
// writes from userspace
const expectedGovernor = "userspace"

type dvfsIsland struct {
	cpus        []int
	frequencies []int // ascending kHz, index = speed level
	agility     time.Duration
	current     int
	control     *os.File // scaling_setspeed of cpus[0], held open
}

func (d *dvfsIsland) maxLevel() int {
	return len(d.frequencies) - 1
}

// write drives the island to the frequency at the given level through the
// held control handle
func (d *dvfsIsland) write(level int) error {
	if _, err := d.control.Seek(0, io.SeekStart); err != nil {
		return err
	}

	_, err := d.control.WriteString(strconv.Itoa(d.frequencies[level]) + "\n")

	return err
}

// Controller owns the speed-level tables and control files of all islands.
// Not safe for concurrent use.
type Controller struct {
	sysfs   string
	islands []*dvfsIsland
	logger  logger.Logger
}

// NewController builds the per-island speed-level tables and takes control
// of every island's frequency. All CPUs must be under the userspace
// governor. Once control files are open, every non-controlling CPU is
// parked at its island's minimum frequency and the controlling CPU is
// driven to the maximum, the initial operating point.
func NewController(sysfsRoot string, topo *Topology, log logger.Logger) (*Controller, error) {
	errFactory := errors.New()

	c := &Controller{sysfs: sysfsRoot, logger: log}

	for _, isl := range topo.Islands {
		for _, cpu := range isl.CPUs {
			governor, err := readString(cpufreqPath(sysfsRoot, cpu, "scaling_governor"))
			if err != nil {
				return nil, errFactory.Wrap(errors.ErrArchUnsupported, err)
			}
			if governor != expectedGovernor {
				return nil, errFactory.WithData(errors.ErrUnavailable, struct {
					CPU      int
					Governor string
				}{cpu, governor})
			}
		}
	}

	for i, isl := range topo.Islands {
		d, err := buildIsland(sysfsRoot, isl)
		if err != nil {
			return nil, err
		}

		c.islands = append(c.islands, d)

		log.Debug().
			Int("island", i).
			Ints("cpus", d.cpus).
			Int("levels", len(d.frequencies)).
			Int("current_level", d.current).
			Msg("Speed-level table built")
	}

	if err := c.setupControls(); err != nil {
		c.Close()
		return nil, err
	}

	return c, nil
}

// buildIsland loads the frequency table and recovers the operating level
func buildIsland(sysfsRoot string, isl Island) (*dvfsIsland, error) {
	errFactory := errors.New()

	frequencies, err := readInts(cpufreqPath(sysfsRoot, isl.CPUs[0], "scaling_available_frequencies"))
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrInitFailed, err)
	}

	sort.Ints(frequencies)
	frequencies = slices.Compact(frequencies)
	if len(frequencies) == 0 {
		return nil, errFactory.WithMessage(errors.ErrInitFailed, "empty frequency table")
	}

	d := &dvfsIsland{
		cpus:        isl.CPUs,
		frequencies: frequencies,
		agility:     isl.Agility,
	}

	// The highest frequency seen across members wins: members of one island
	// share a clock, transient disagreement resolves upward.
	maxFreq := 0
	for _, cpu := range d.cpus {
		freq, err := readInt(cpufreqPath(sysfsRoot, cpu, "scaling_cur_freq"))
		if err != nil {
			return nil, errFactory.Wrap(errors.ErrInitFailed, err)
		}
		if freq > maxFreq {
			maxFreq = freq
		}
	}

	level := slices.Index(frequencies, maxFreq)
	if level < 0 {
		return nil, errFactory.WithData(errors.ErrInitFailed, struct {
			Phase string
			Freq  int
		}{"recover_level", maxFreq})
	}
	d.current = level

	return d, nil
}

// setupControls opens each island's control file and establishes the
// initial operating point
func (c *Controller) setupControls() error {
	errFactory := errors.New()

	for _, isl := range c.islands {
		control, err := os.OpenFile(cpufreqPath(c.sysfs, isl.cpus[0], "scaling_setspeed"), os.O_WRONLY, 0)
		if err != nil {
			return errFactory.WithData(errors.ErrInitFailed, struct {
				Phase string
				CPU   int
				Error string
			}{"open_control", isl.cpus[0], err.Error()})
		}
		isl.control = control

		// Non-controlling members cannot be driven independently once
		// userspace control is active, park them at the island minimum.
		minFreq := strconv.Itoa(isl.frequencies[0]) + "\n"
		for _, cpu := range isl.cpus[1:] {
			if err := writeOneShot(cpufreqPath(c.sysfs, cpu, "scaling_setspeed"), minFreq); err != nil {
				return errFactory.WithData(errors.ErrInitFailed, struct {
					Phase string
					CPU   int
					Error string
				}{"park_member", cpu, err.Error()})
			}
		}

		if err := isl.write(isl.maxLevel()); err != nil {
			return errFactory.WithData(errors.ErrInitFailed, struct {
				Phase string
				CPU   int
				Error string
			}{"set_initial", isl.cpus[0], err.Error()})
		}
		isl.current = isl.maxLevel()
	}

	return nil
}

func (c *Controller) island(i int) (*dvfsIsland, error) {
	if i < 0 || i >= len(c.islands) {
		return nil, errors.New().WithData(errors.ErrInvalidIsland, i)
	}

	return c.islands[i], nil
}

// NumSpeedLevels returns the number of speed levels of an island
func (c *Controller) NumSpeedLevels(island int) (int, error) {
	isl, err := c.island(island)
	if err != nil {
		return 0, err
	}

	return len(isl.frequencies), nil
}

// CurrentSpeedLevel returns the island's current operating level
func (c *Controller) CurrentSpeedLevel(island int) (int, error) {
	isl, err := c.island(island)
	if err != nil {
		return 0, err
	}

	return isl.current, nil
}

// Frequency returns the frequency in kHz behind a speed level
func (c *Controller) Frequency(island, level int) (int, error) {
	isl, err := c.island(island)
	if err != nil {
		return 0, err
	}
	if level < 0 || level > isl.maxLevel() {
		return 0, errors.New().WithData(errors.ErrUnsupportedSpeedLevel, level)
	}

	return isl.frequencies[level], nil
}

// RequestSpeedLevel drives an island to the given speed level. Requesting
// the current level at either end of the table is the distinct
// already-at-bound status, and nothing is written. A failed write leaves
// the recorded level unchanged so it keeps matching the hardware.
func (c *Controller) RequestSpeedLevel(island, level int) error {
	errFactory := errors.New()

	isl, err := c.island(island)
	if err != nil {
		return err
	}

	if level < 0 || level > isl.maxLevel() {
		return errFactory.WithData(errors.ErrUnsupportedSpeedLevel, level)
	}

	if (level == 0 || level == isl.maxLevel()) && level == isl.current {
		return errFactory.New(errors.ErrAlreadyMinMax)
	}

	if err := isl.write(level); err != nil {
		return errFactory.Wrap(errors.ErrDVFS, err)
	}

	isl.current = level

	c.logger.Debug().
		Int("island", island).
		Int("level", level).
		Int("khz", isl.frequencies[level]).
		Msg("Speed level set")

	return nil
}

// ModifySpeedLevel moves an island's speed level by a signed delta
func (c *Controller) ModifySpeedLevel(island, delta int) error {
	isl, err := c.island(island)
	if err != nil {
		return err
	}

	return c.RequestSpeedLevel(island, isl.current+delta)
}

// Agility returns the island's transition latency. Both levels must be in
// range; the latency itself does not depend on the pair.
func (c *Controller) Agility(island, from, to int) (time.Duration, error) {
	isl, err := c.island(island)
	if err != nil {
		return 0, err
	}

	if from < 0 || from > isl.maxLevel() || to < 0 || to > isl.maxLevel() {
		return 0, errors.New().WithData(errors.ErrUnsupportedSpeedLevel, struct {
			From int
			To   int
		}{from, to})
	}

	return isl.agility, nil
}

// Close releases all control files. Safe to call more than once.
func (c *Controller) Close() error {
	var firstErr error
	for _, isl := range c.islands {
		if isl.control == nil {
			continue
		}
		if err := isl.control.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		isl.control = nil
	}

	if firstErr != nil {
		return errors.New().Wrap(errors.ErrFinalizeFailed, firstErr)
	}

	return nil
}
