package telemetry

import "codeberg.org/mutker/powerctl/internal/errors"

const (
	defaultDirPerm = 0o755
	defaultDBPath  = "/var/lib/powerctl/measurements.db"
)

type Config struct {
	DBPath          string
	Enabled         bool
	BackupOnMigrate bool
}

func DefaultConfig() Config {
	return Config{
		DBPath:          defaultDBPath,
		Enabled:         false,
		BackupOnMigrate: true,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()
	if !c.Enabled {
		return nil
	}
	if c.DBPath == "" {
		return errFactory.New(ErrInvalidDBPath)
	}
	return nil
}
