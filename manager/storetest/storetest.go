// Package storetest opens throwaway sqlite databases for tests.
package storetest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDb returns an empty in-memory database private to t. It is closed when
// the test ends.
func NewDb(t *testing.T) *gorm.DB {
	t.Helper()

	uri := fmt.Sprintf("file:%v?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(uri), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDb, err := db.DB()
	require.NoError(t, err)
	sqlDb.SetMaxOpenConns(1)

	t.Cleanup(func() {
		sqlDb.Close()
	})

	return db
}
