package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"codeberg.org/mutker/powerctl"
	"codeberg.org/mutker/powerctl/internal/cpufreq"
	"codeberg.org/mutker/powerctl/internal/errors"
	"codeberg.org/mutker/powerctl/internal/gpu"
	"codeberg.org/mutker/powerctl/internal/logger"
	"codeberg.org/mutker/powerctl/internal/telemetry"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sys/unix"
)

const gpuSampleInterval = 100 * time.Millisecond

type measureOptions struct {
	pin     string
	journal bool
	gpu     bool
}

func (o *measureOptions) addFlags(f *pflag.FlagSet) {
	f.StringVar(&o.pin, "pin", "", "pin the command to a CPU list, e.g. 0-3,6")
	f.BoolVar(&o.journal, "journal", false, "record the measurement in the journal database")
	f.BoolVar(&o.gpu, "gpu", false, "sample GPU board power while the command runs")
}

func newMeasureCmd() *cobra.Command {
	opts := &measureOptions{}

	cmd := &cobra.Command{
		Use:   "measure [flags] -- command [args...]",
		Short: "Run a command and report the energy consumed while it ran",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMeasure(opts, args)
		},
	}
	opts.addFlags(cmd.Flags())

	return cmd
}

func runMeasure(opts *measureOptions, args []string) error {
	errFactory := errors.New()

	pctx, err := powerctl.Initialize(nil, nil, nil, powerctl.WithSysfsRoot(cfg.SysfsPath))
	if err != nil {
		return err
	}
	defer pctx.Finalize()

	if !pctx.IsInitialized(powerctl.ModuleEnergy) {
		return errFactory.WithMessage(errors.ErrUninitialized, "Failed to initialize the energy module")
	}

	if opts.pin != "" {
		if err := pinToCPUs(opts.pin); err != nil {
			return err
		}
	}

	var sampler *gpuSampler
	if opts.gpu {
		s, err := startGPUSampler()
		if err != nil {
			logger.Warn().Err(err).Msg("GPU sampling unavailable")
		} else {
			sampler = s
		}
	}

	start := time.Now()
	if err := pctx.StartEnergyCount(); err != nil {
		return err
	}

	runCommand(args)

	m, err := pctx.StopEnergyCount()
	if err != nil {
		return err
	}

	fmt.Printf("time: %.3f s.\n", m.Elapsed.Seconds())
	for _, c := range m.Counters {
		fmt.Printf("%s: %d %s\n", c.Name, c.Value, c.Unit)
	}

	var gpuCounters []telemetry.CounterValue
	if sampler != nil {
		avgMilliwatts, microjoules := sampler.finish(m.Elapsed)
		fmt.Printf("GPU_POWER:GPU0: %d mW\n", avgMilliwatts)
		fmt.Printf("GPU_ENERGY:GPU0: %d uJ\n", microjoules)
		gpuCounters = append(gpuCounters, telemetry.CounterValue{
			Name:  "GPU_ENERGY:GPU0",
			Unit:  "uJ",
			Value: microjoules,
		})
	}

	return journalMeasurement(opts, start, strings.Join(args, " "), m, gpuCounters)
}

// runCommand runs the child with inherited stdio. A command that cannot be
// started or exits nonzero still gets its measurement window reported.
func runCommand(args []string) {
	child := exec.Command(args[0], args[1:]...)
	child.Stdin = os.Stdin
	child.Stdout = os.Stdout
	child.Stderr = os.Stderr

	if err := child.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			logger.Warn().Int("exit_code", exitErr.ExitCode()).Msg("Command exited nonzero")
		} else {
			fmt.Fprintf(os.Stderr, "Failed to run the command: %v\n", err)
		}
	}
}

// pinToCPUs restricts this process to the given kernel cpulist. The child
// inherits the mask, so the whole run is pinned before it starts.
func pinToCPUs(list string) error {
	errFactory := errors.New()

	cpus, err := cpufreq.ParseCPUList(list)
	if err != nil || len(cpus) == 0 {
		return errFactory.WithData(errors.ErrInvalidArgument, list)
	}

	var set unix.CPUSet
	for _, cpu := range cpus {
		set.Set(cpu)
	}

	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return errFactory.Wrap(errors.ErrGeneral, err)
	}

	return nil
}

func journalMeasurement(opts *measureOptions, start time.Time, command string, m *powerctl.Measurement, extra []telemetry.CounterValue) error {
	journalCfg := telemetry.DefaultConfig()
	journalCfg.DBPath = cfg.TelemetryDB
	journalCfg.Enabled = opts.journal || cfg.Telemetry

	recorder, err := telemetry.NewService(journalCfg, logger.Default())
	if err != nil {
		return err
	}
	defer recorder.Close()

	entry := &telemetry.Entry{
		Timestamp: start,
		Command:   command,
		Elapsed:   m.Elapsed,
		Counters:  make([]telemetry.CounterValue, 0, len(m.Counters)+len(extra)),
	}
	for _, c := range m.Counters {
		entry.Counters = append(entry.Counters, telemetry.CounterValue{
			Name:  c.Name,
			Unit:  c.Unit,
			Value: c.Value,
		})
	}
	entry.Counters = append(entry.Counters, extra...)

	return recorder.Record(context.Background(), entry)
}

// gpuSampler integrates board power samples across the measurement window
type gpuSampler struct {
	dev   *gpu.PowerSampler
	stop  chan struct{}
	done  chan struct{}
	sum   uint64
	count uint64
}

func startGPUSampler() (*gpuSampler, error) {
	dev, err := gpu.NewPowerSampler(logger.Default())
	if err != nil {
		return nil, err
	}
	logger.Info().Str("gpu", dev.Name()).Msg("Sampling GPU power")

	s := &gpuSampler{
		dev:  dev,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go s.run()

	return s, nil
}

func (s *gpuSampler) run() {
	defer close(s.done)

	ticker := time.NewTicker(gpuSampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			power, err := s.dev.PowerDraw()
			if err != nil {
				logger.Debug().Err(err).Msg("GPU power sample dropped")
				continue
			}
			s.sum += uint64(power)
			s.count++
		}
	}
}

// finish stops sampling and converts the mean power draw into an energy
// estimate across the window
func (s *gpuSampler) finish(elapsed time.Duration) (avgMilliwatts, microjoules uint64) {
	close(s.stop)
	<-s.done
	s.dev.Close()

	if s.count == 0 {
		return 0, 0
	}

	avgMilliwatts = s.sum / s.count
	microjoules = avgMilliwatts * uint64(elapsed.Microseconds()) / 1000

	return avgMilliwatts, microjoules
}
