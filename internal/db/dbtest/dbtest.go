// Package dbtest opens throwaway in-memory SQLite databases for tests.
package dbtest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Skotchmaster/storefront/internal/config"
	"github.com/Skotchmaster/storefront/internal/db"
)

func Open(t testing.TB) *gorm.DB {
	t.Helper()

	gdb, err := db.Open(context.Background(), config.DriverSQLite, ":memory:")
	require.NoError(t, err, "failed to open in-memory db")

	t.Cleanup(func() {
		_ = db.Close(gdb)
	})
	return gdb
}
