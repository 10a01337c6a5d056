package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/yeremiapane/kitchen-display/models"
)

func TestMigrate(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:migrate_test?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, Migrate(db))
	require.NoError(t, Migrate(db), "migration is repeatable")

	for _, table := range []interface{}{&models.Order{}, &models.OrderItem{}, &models.DBChange{}} {
		assert.True(t, db.Migrator().HasTable(table))
	}
}
