package telemetry

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"

	"codeberg.org/mutker/powerctl/internal/errors"
	"codeberg.org/mutker/powerctl/internal/logger"

	_ "github.com/mattn/go-sqlite3"
)

const dsnParams = "?_journal=WAL&_auto_vacuum=2&_foreign_keys=1"

type sqliteRepository struct {
	db     *sql.DB
	logger logger.Logger
	mu     sync.Mutex
}

// NewRepository opens the journal database, creating it and its schema when
// missing and migrating it when the recorded schema version is out of date
func NewRepository(cfg Config, log logger.Logger) (Repository, error) {
	errFactory := errors.New()

	if cfg.DBPath == "" {
		return nil, errFactory.New(ErrInvalidDBPath)
	}

	log.Debug().Str("path", cfg.DBPath).Msg("opening measurement journal")

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+dsnParams)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	if err := ValidateAndUpdateSchema(db, cfg, log); err != nil {
		db.Close()
		return nil, err
	}

	return &sqliteRepository{
		db:     db,
		logger: log,
	}, nil
}

// Store writes one entry and its counter values in a single transaction
func (r *sqliteRepository) Store(entry *Entry) error {
	errFactory := errors.New()

	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrStorageAccess, err)
	}

	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil {
				r.logger.Debug().Err(rbErr).Msg("rollback failed while storing entry")
			}
		}
	}()

	res, err := tx.Exec(insertMeasurementSQL,
		entry.Timestamp.Unix(),
		entry.Command,
		entry.Elapsed.Microseconds(),
	)
	if err != nil {
		return errFactory.Wrap(ErrStorageAccess, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return errFactory.Wrap(ErrStorageAccess, err)
	}

	for _, c := range entry.Counters {
		if _, err := tx.Exec(insertCounterSQL, id, c.Name, c.Unit, int64(c.Value)); err != nil {
			return errFactory.Wrap(ErrStorageAccess, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrStorageAccess, err)
	}
	committed = true

	return nil
}

func (r *sqliteRepository) Close() error {
	errFactory := errors.New()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.db == nil {
		return nil
	}

	if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		r.logger.Debug().Err(err).Msg("wal checkpoint failed on close")
	}

	if err := r.db.Close(); err != nil {
		return errFactory.Wrap(ErrStorageClose, err)
	}
	r.db = nil

	return nil
}
