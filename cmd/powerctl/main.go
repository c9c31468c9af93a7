// Powerctl drives CPU speed levels and measures energy consumption through
// the Linux cpufreq and powercap sysfs interfaces.
//
// Usage:
//
//	powerctl info
//	powerctl measure -- ./benchmark --size 4096
//	powerctl speed --island 0 --level 2
package main

import (
	"fmt"
	"os"

	"codeberg.org/mutker/powerctl/internal/config"
	"codeberg.org/mutker/powerctl/internal/logger"
	"github.com/spf13/cobra"
)

var cfg *config.Config

func main() {
	var configFile string

	root := &cobra.Command{
		Use:           "powerctl",
		Short:         "CPU speed and energy control through sysfs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(config.WithConfigFile(configFile))
			if err != nil {
				return err
			}

			logger.Init(cfg.LogLevel, logger.IsService())
			logger.Debug().Msg("Config loaded")

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configFile, "config", "",
		"config file (default /etc/powerctl/powerctl.toml)")

	root.AddCommand(newInfoCmd(), newMeasureCmd(), newSpeedCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
