package telemetry

import (
	"database/sql"

	"codeberg.org/mutker/powerctl/internal/errors"
	"codeberg.org/mutker/powerctl/internal/logger"
)

// SchemaVersion is the current version of the journal schema
const SchemaVersion = 1

const createTablesSQL = `
CREATE TABLE IF NOT EXISTS schema_versions (
	version INTEGER PRIMARY KEY,
	applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS measurements (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp INTEGER NOT NULL,
	command TEXT NOT NULL,
	elapsed_us INTEGER NOT NULL CHECK (elapsed_us >= 0)
);

CREATE TABLE IF NOT EXISTS counter_values (
	measurement_id INTEGER NOT NULL REFERENCES measurements(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	unit TEXT NOT NULL,
	value INTEGER NOT NULL CHECK (value >= 0),
	PRIMARY KEY (measurement_id, name)
);`

const insertMeasurementSQL = `
INSERT INTO measurements (timestamp, command, elapsed_us)
VALUES (?, ?, ?)`

const insertCounterSQL = `
INSERT INTO counter_values (measurement_id, name, unit, value)
VALUES (?, ?, ?, ?)`

// InitSchema creates the journal tables and records the schema version. The
// whole operation runs in one transaction so a failed init leaves no partial
// schema behind.
func InitSchema(db *sql.DB, log logger.Logger) error {
	errFactory := errors.New()

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Debug().Err(rbErr).Msg("rollback failed during schema init")
			}
		}
	}()

	if _, err := tx.Exec(createTablesSQL); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	if _, err := tx.Exec(
		"INSERT OR IGNORE INTO schema_versions (version) VALUES (?)", SchemaVersion,
	); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}
	committed = true

	return nil
}

// GetSchemaVersion returns the highest schema version recorded in the
// database. A database without the version table (fresh or pre-versioning)
// reports version 0.
func GetSchemaVersion(db *sql.DB) (int, error) {
	errFactory := errors.New()

	exists, err := TableExists(db, "schema_versions")
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}

	var version int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	if err != nil {
		return 0, errFactory.Wrap(ErrSchemaValidationFailed, err)
	}

	return version, nil
}

// TableExists reports whether a table with the given name exists
func TableExists(db *sql.DB, name string) (bool, error) {
	errFactory := errors.New()

	var found string
	err := db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='table' AND name=?", name,
	).Scan(&found)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, errFactory.Wrap(ErrSchemaValidationFailed, err)
	}

	return true, nil
}
