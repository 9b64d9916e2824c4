package database

import (
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// OpenInMemory returns a migrated, private in-memory SQLite database. Each
// call gets its own named database so tests never share state.
func OpenInMemory() (*gorm.DB, error) {
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared&_pragma=busy_timeout(5000)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// MustOpenInMemory is OpenInMemory for tests.
func MustOpenInMemory() *gorm.DB {
	db, err := OpenInMemory()
	if err != nil {
		panic("failed to open test database: " + err.Error())
	}
	return db
}

// SeedForTest loads the default catalog into db.
func SeedForTest(db *gorm.DB) {
	if err := seedCatalog(db); err != nil {
		panic("failed to seed test database: " + err.Error())
	}
}
