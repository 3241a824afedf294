package datastore

import (
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/examwatch/examwatch/internal/conf"
	"github.com/examwatch/examwatch/internal/logger"
)

// memoryPath opens a private in-memory database.
const memoryPath = ":memory:"

// SQLiteStore implements DataStore for SQLite
type SQLiteStore struct {
	DataStore
	Settings *conf.Settings
}

func validateSQLiteConfig(settings *conf.Settings) error {
	if strings.TrimSpace(settings.Output.SQLite.Path) == "" {
		return validationError("sqlite path must be set", "output.sqlite.path", settings.Output.SQLite.Path)
	}
	return nil
}

// sqliteDSN appends the pragmas every connection needs.
func sqliteDSN(path string) string {
	if path == memoryPath {
		return "file::memory:?_busy_timeout=5000&_foreign_keys=ON"
	}
	return path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON"
}

// Open sets up the SQLite database connection and migrates the schema.
func (store *SQLiteStore) Open() error {
	if err := validateSQLiteConfig(store.Settings); err != nil {
		return err
	}

	path := store.Settings.Output.SQLite.Path
	if path != memoryPath {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return dbError(err, "create_db_directory", "path", dir)
			}
		}
	}

	db, err := gorm.Open(sqlite.Open(sqliteDSN(path)), gormConfig(store.log()))
	if err != nil {
		return dbError(err, "open", "db_type", "sqlite", "path", path)
	}

	// Each :memory: connection is its own database.
	sqlDB, err := db.DB()
	if err != nil {
		return dbError(err, "open", "db_type", "sqlite")
	}
	sqlDB.SetMaxOpenConns(1)

	store.DB = db
	store.log().Info("sqlite database opened", logger.String("path", path))
	return performAutoMigration(db, store.log(), "sqlite")
}

// Close releases the SQLite connection.
func (store *SQLiteStore) Close() error {
	return store.closeDB("SQLite")
}
