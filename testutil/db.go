package testutil

import (
	"testing"

	"github.com/google/uuid"
	"github.com/mmdatafocus/threepl_backend/config"
	"github.com/mmdatafocus/threepl_backend/models"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// NewTestDB opens an isolated in-memory SQLite database with the schema migrated and the
// reference data seeded. A single connection keeps the shared-cache database alive and
// serializes writers the way row locks do in production.
func NewTestDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared&_foreign_keys=1"
	db, err := config.OpenDatabase(config.DriverSQLite, dsn)
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, models.MigrateTable(db))
	require.NoError(t, models.SeedReferenceData(db))
	return db
}
