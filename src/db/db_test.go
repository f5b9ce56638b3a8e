package db

import (
	"log"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func NewMockDB() (*gorm.DB, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		log.Fatalf("An error '%s' was not expected when opening a stub database connection", err)
	}

	gormDB, err := Open(postgres.New(postgres.Config{Conn: sqlDB}))
	if err != nil {
		log.Fatalf("An error '%s' was not expected when opening gorm database", err)
	}

	return gormDB, mock
}

func GetMockDB() (*gorm.DB, sqlmock.Sqlmock) {
	gormDB, mock := NewMockDB()
	NewDB(gormDB)
	return gormDB, mock
}

func TestDB(t *testing.T) {
	gormDB, _ := GetMockDB()
	t.Cleanup(func() { db = nil })

	assert.Same(t, gormDB, GetDb())
	assert.Equal(t, "postgres", GetDb().Name())
}

func TestRawQueryGoesThroughPool(t *testing.T) {
	gormDB, mock := NewMockDB()
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	var n int
	require.NoError(t, gormDB.Raw("SELECT 1").Scan(&n).Error)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
