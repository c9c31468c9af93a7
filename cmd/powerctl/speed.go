package main

import (
	"fmt"

	"codeberg.org/mutker/powerctl"
	"codeberg.org/mutker/powerctl/internal/errors"
	"codeberg.org/mutker/powerctl/internal/pid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type speedOptions struct {
	island int
	level  int
	delta  int
}

func (o *speedOptions) addFlags(f *pflag.FlagSet) {
	f.IntVar(&o.island, "island", 0, "island to act on")
	f.IntVar(&o.level, "level", 0, "speed level to request")
	f.IntVar(&o.delta, "delta", 0, "signed number of levels to move by")
}

func newSpeedCmd() *cobra.Command {
	opts := &speedOptions{}

	cmd := &cobra.Command{
		Use:   "speed",
		Short: "Query or set an island's speed level",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSpeed(opts, cmd.Flags().Changed("level"), cmd.Flags().Changed("delta"))
		},
	}
	opts.addFlags(cmd.Flags())

	return cmd
}

func runSpeed(opts *speedOptions, setLevel, setDelta bool) error {
	errFactory := errors.New()

	if setLevel && setDelta {
		return errFactory.WithMessage(errors.ErrInvalidArgument, "--level and --delta are mutually exclusive")
	}

	// Two concurrent instances would fight over the control files.
	if setLevel || setDelta {
		if err := pid.Write(); err != nil {
			return err
		}
		defer pid.Remove()
	}

	pctx, err := powerctl.Initialize(nil, nil, nil, powerctl.WithSysfsRoot(cfg.SysfsPath))
	if err != nil {
		return err
	}
	defer pctx.Finalize()

	if !pctx.IsInitialized(powerctl.ModuleDVFS) {
		return errFactory.WithMessage(errors.ErrUnavailable, "speed control is unavailable, the userspace governor is required")
	}

	switch {
	case setLevel:
		err = pctx.RequestSpeedLevel(opts.island, opts.level)
	case setDelta:
		err = pctx.ModifySpeedLevel(opts.island, opts.delta)
	}
	if err != nil {
		if !errors.IsCode(err, errors.ErrAlreadyMinMax) {
			return err
		}
		fmt.Println("already at that bound")
	}

	return printIsland(pctx, opts.island)
}

func printIsland(pctx *powerctl.Context, island int) error {
	levels, err := pctx.NumSpeedLevels(island)
	if err != nil {
		return err
	}
	current, err := pctx.CurrentSpeedLevel(island)
	if err != nil {
		return err
	}
	freq, err := pctx.SpeedLevelFrequency(island, current)
	if err != nil {
		return err
	}

	fmt.Printf("island %d: level %d/%d (%d kHz)\n", island, current, levels-1, freq)

	return nil
}
