package datastore

import (
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/examwatch/examwatch/internal/conf"
	"github.com/examwatch/examwatch/internal/logger"
)

// MySQLStore implements DataStore for MySQL
type MySQLStore struct {
	DataStore
	Settings *conf.Settings
}

func validateMySQLConfig(settings *conf.Settings) error {
	m := settings.Output.MySQL
	if m.Host == "" {
		return validationError("mysql host must be set", "output.mysql.host", m.Host)
	}
	if m.Database == "" {
		return validationError("mysql database must be set", "output.mysql.database", m.Database)
	}
	return nil
}

// Open sets up the MySQL database connection and migrates the schema.
func (store *MySQLStore) Open() error {
	if err := validateMySQLConfig(store.Settings); err != nil {
		return err
	}

	mysqlSettings := store.Settings.Output.MySQL
	db, err := gorm.Open(mysql.Open(mysqlSettings.DSN()), gormConfig(store.log()))
	if err != nil {
		store.log().Error("failed to open MySQL database",
			logger.String("host", mysqlSettings.Host),
			logger.String("port", mysqlSettings.Port),
			logger.String("database", mysqlSettings.Database),
			logger.Error(err))
		return dbError(err, "open", "db_type", "mysql", "host", mysqlSettings.Host)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return dbError(err, "open", "db_type", "mysql")
	}
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	store.DB = db
	store.log().Info("mysql database opened",
		logger.String("host", mysqlSettings.Host),
		logger.String("database", mysqlSettings.Database))
	return performAutoMigration(db, store.log(), "mysql")
}

// Close releases the MySQL connection pool.
func (store *MySQLStore) Close() error {
	return store.closeDB("MySQL")
}
