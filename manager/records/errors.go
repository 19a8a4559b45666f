package records

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

var (
	ErrItemNotFound = errors.New("item not found")
	ErrItemExists   = errors.New("item already exists")
	ErrNotCurrent   = errors.New("only the current revision of an item can be revised")
	ErrStaleVersion = errors.New("revision version must be greater than every existing version")
)

const (
	pgUniqueViolation = "23505"
	// SQLSTATE classes for integrity constraint violations and data exceptions.
	pgConstraintClass = "23"
	pgDataClass       = "22"
)

// IsDuplicateKey reports whether err is a unique or primary key violation
// raised by the storage engine.
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}

	return strings.Contains(err.Error(), "already exists")
}

// IsConstraintViolation reports whether the engine rejected a write because
// of the data it carried: any constraint failure or a value the column type
// cannot hold.
func IsConstraintViolation(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, pgConstraintClass) || strings.HasPrefix(pgErr.Code, pgDataClass)
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint || sqliteErr.Code == sqlite3.ErrMismatch
	}

	return IsDuplicateKey(err)
}
