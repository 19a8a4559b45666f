package utils

import (
	"fmt"
	"net/url"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const sqliteScheme = "sqlite://"

func PostgresDsn(uri string) (string, error) {
	parts, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("error parsing db uri: %w", err)
	}
	pwd, _ := parts.User.Password()
	dbname := strings.TrimPrefix(parts.Path, "/")
	return fmt.Sprintf("host=%v user=%v password=%v dbname=%v port=%v", parts.Hostname(), parts.User.Username(), pwd, dbname, parts.Port()), nil
}

// OpenDb connects to postgres, or to a sqlite file for sqlite:// uris.
func OpenDb(uri string, config *gorm.Config) (*gorm.DB, error) {
	if uri == "" {
		return nil, fmt.Errorf("missing database uri")
	}

	var dialector gorm.Dialector
	if strings.HasPrefix(uri, sqliteScheme) {
		dialector = sqlite.Open(strings.TrimPrefix(uri, sqliteScheme))
	} else {
		dsn, err := PostgresDsn(uri)
		if err != nil {
			return nil, err
		}
		dialector = postgres.Open(dsn)
	}

	db, err := gorm.Open(dialector, config)
	if err != nil {
		return nil, fmt.Errorf("error opening database connection: %w", err)
	}

	if strings.HasPrefix(uri, sqliteScheme) {
		// Sqlite allows a single writer, and DDL inside a transaction needs the
		// same connection for every statement.
		sqlDb, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("error configuring sqlite connection: %w", err)
		}
		sqlDb.SetMaxOpenConns(1)
	}

	return db, nil
}
