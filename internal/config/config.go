package config

import (
	"os"

	"codeberg.org/mutker/powerctl/internal/errors"
	"github.com/spf13/viper"
)

const (
	DefaultLogLevel = "info"

	defaultSysfsPath   = "/sys"
	defaultTelemetryDB = "/var/lib/powerctl/measurements.db"
	defaultEnvPrefix   = "POWERCTL"
)

type Config struct {
	SysfsPath   string `mapstructure:"sysfs_path"`
	LogLevel    string `mapstructure:"log_level"`
	Telemetry   bool   `mapstructure:"telemetry"`
	TelemetryDB string `mapstructure:"database"`
}

// Load reads configuration from file and environment. An explicit file may
// be given via WithConfigFile or the POWERCTL_CONFIG environment variable;
// otherwise the usual search paths are tried. A missing config file is not
// an error, defaults apply.
func Load(opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := &options{envPrefix: defaultEnvPrefix}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}

	v := viper.New()
	v.SetDefault("sysfs_path", defaultSysfsPath)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("telemetry", false)
	v.SetDefault("database", defaultTelemetryDB)

	v.SetEnvPrefix(o.envPrefix)
	v.AutomaticEnv()

	switch {
	case o.configPath != "":
		v.SetConfigFile(o.configPath)
	case os.Getenv(o.envPrefix+"_CONFIG") != "":
		v.SetConfigFile(os.Getenv(o.envPrefix + "_CONFIG"))
	default:
		v.SetConfigName("powerctl")
		v.SetConfigType("toml")
		v.AddConfigPath("/etc/powerctl")
		v.AddConfigPath("$HOME/.config/powerctl")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if !LogLevel(config.LogLevel).IsValid() {
		return nil, errFactory.WithData(errors.ErrInvalidLogLevel, config.LogLevel)
	}

	return config, nil
}
