package db

import (
	"homejobs/src/config"
	"log"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var db *gorm.DB

func GetDb() *gorm.DB {
	if db != nil {
		return db
	}
	_db, err := Open(postgres.Open(config.GetDSN()))
	if err != nil {
		log.Printf("[db] Error connecting to database: %s\n", err.Error())
		panic(err)
	}
	db = _db
	return _db
}

// Open connects through dialector and applies the pool settings every
// environment shares.
func Open(dialector gorm.Dialector) (*gorm.DB, error) {
	_db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := _db.DB()
	if err != nil {
		log.Printf("[db] Error establishing connection to database: %s\n", err.Error())
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	return _db, nil
}

func NewDB(newdb *gorm.DB) {
	db = newdb
}
