package main

import (
	"fmt"
	"strconv"
	"strings"

	"codeberg.org/mutker/powerctl"
	"github.com/spf13/cobra"
)

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the machine's islands, speed levels and energy counters",
		Args:  cobra.NoArgs,
		RunE:  runInfo,
	}
}

func runInfo(cmd *cobra.Command, args []string) error {
	ctx, err := powerctl.Initialize(nil, nil, nil, powerctl.WithSysfsRoot(cfg.SysfsPath))
	if err != nil {
		return err
	}
	defer ctx.Finalize()

	numCPUs, err := ctx.NumCPUs()
	if err != nil {
		return err
	}
	numIslands, err := ctx.NumIslands()
	if err != nil {
		return err
	}

	fmt.Printf("cpus: %d\n", numCPUs)
	fmt.Printf("islands: %d\n", numIslands)

	dvfsReady := ctx.IsInitialized(powerctl.ModuleDVFS)
	for island := 0; island < numIslands; island++ {
		cpus, err := ctx.IslandCPUs(island)
		if err != nil {
			return err
		}
		fmt.Printf("island %d: cpus %v\n", island, cpus)

		if !dvfsReady {
			continue
		}

		levels, err := ctx.NumSpeedLevels(island)
		if err != nil {
			return err
		}
		current, err := ctx.CurrentSpeedLevel(island)
		if err != nil {
			return err
		}
		agility, err := ctx.Agility(island, 0, levels-1)
		if err != nil {
			return err
		}

		freqs := make([]string, 0, levels)
		for level := 0; level < levels; level++ {
			freq, err := ctx.SpeedLevelFrequency(island, level)
			if err != nil {
				return err
			}
			freqs = append(freqs, strconv.Itoa(freq))
		}

		fmt.Printf("  levels: %s kHz\n", strings.Join(freqs, " "))
		fmt.Printf("  current: level %d (%s kHz)\n", current, freqs[current])
		fmt.Printf("  agility: %s\n", agility)
	}
	if !dvfsReady {
		fmt.Println("speed control: unavailable")
	}

	if !ctx.IsInitialized(powerctl.ModuleEnergy) {
		fmt.Println("energy counters: unavailable")
		return nil
	}

	counters, err := ctx.EnergyCounters()
	if err != nil {
		return err
	}
	fmt.Println("energy counters:")
	for _, c := range counters {
		fmt.Printf("  %s (%s)\n", c.Name, c.Unit)
	}

	return nil
}
