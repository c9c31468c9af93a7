package telemetry

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"codeberg.org/mutker/powerctl/internal/errors"
	"codeberg.org/mutker/powerctl/internal/logger"
)

const backupTimeFormat = "20060102_150405"

// ValidateAndUpdateSchema checks the recorded schema version and rebuilds
// the journal when it is out of date. An existing journal is backed up
// next to the database file before its tables are dropped.
func ValidateAndUpdateSchema(db *sql.DB, cfg Config, log logger.Logger) error {
	errFactory := errors.New()

	version, err := GetSchemaVersion(db)
	if err != nil {
		return err
	}

	if version == SchemaVersion {
		return nil
	}

	if version > 0 {
		log.Info().
			Int("current", version).
			Int("required", SchemaVersion).
			Msg("journal schema out of date, migrating")

		if cfg.BackupOnMigrate {
			if err := backupDatabase(db, cfg.DBPath, version, log); err != nil {
				return errFactory.Wrap(ErrSchemaMigrationFailed, err)
			}
		}
	}

	if err := dropTables(db, log); err != nil {
		return errFactory.Wrap(ErrSchemaMigrationFailed, err)
	}

	return InitSchema(db, log)
}

func backupDatabase(db *sql.DB, dbPath string, version int, log logger.Logger) error {
	errFactory := errors.New()

	backupDir := filepath.Join(filepath.Dir(dbPath), "backups")
	if err := os.MkdirAll(backupDir, defaultDirPerm); err != nil {
		return errFactory.Wrap(ErrBackupFailed, err)
	}

	backupPath := filepath.Join(backupDir,
		fmt.Sprintf("measurements_v%d_%s.db", version, time.Now().Format(backupTimeFormat)))

	if _, err := db.Exec("VACUUM INTO ?", backupPath); err != nil {
		return errFactory.Wrap(ErrBackupFailed, err)
	}

	log.Info().Str("path", backupPath).Msg("journal backed up before migration")

	return nil
}

func dropTables(db *sql.DB, log logger.Logger) error {
	errFactory := errors.New()

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrSchemaMigrationFailed, err)
	}

	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Debug().Err(rbErr).Msg("rollback failed during migration")
			}
		}
	}()

	for _, stmt := range []string{
		"DROP TABLE IF EXISTS counter_values",
		"DROP TABLE IF EXISTS measurements",
		"DROP TABLE IF EXISTS schema_versions",
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return errFactory.Wrap(ErrSchemaMigrationFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrSchemaMigrationFailed, err)
	}
	committed = true

	return nil
}
