package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/storefront/internal/config"
	"github.com/Skotchmaster/storefront/internal/models"
)

func TestOpen_SQLiteMigratesSchema(t *testing.T) {
	gdb, err := Open(context.Background(), config.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(gdb) })

	for _, m := range models.All() {
		assert.True(t, gdb.Migrator().HasTable(m))
	}
	assert.True(t, gdb.Migrator().HasIndex(&models.CartItem{}, "idx_account_product"))
}

func TestOpen_UniqueIndexRejectsDuplicateLine(t *testing.T) {
	gdb, err := Open(context.Background(), config.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(gdb) })

	item := models.CartItem{AccountID: 1, ProductID: 7, Title: "x", Price: 1, Quantity: 1}
	require.NoError(t, gdb.Create(&item).Error)

	dup := models.CartItem{AccountID: 1, ProductID: 7, Title: "x", Price: 1, Quantity: 1}
	err = gdb.Create(&dup).Error
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
}

func TestOpen_RejectsEmptyDSNAndUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.DriverPostgres, "")
	require.Error(t, err)

	_, err = Open(context.Background(), "mysql", "dsn")
	require.Error(t, err)
}
