package database

import (
	"context"
	"database/sql"

	"license-server/internal/apperror"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store persists licenses, the catalog, accounts and audit rows.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the handle for health checks.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) isPostgres() bool {
	return s.db.Dialector.Name() == DriverPostgres
}

// tx runs fn in a transaction. Postgres uses SERIALIZABLE when serializable
// is set; SQLite transactions are already serialized by its single writer.
func (s *Store) tx(ctx context.Context, serializable bool, fn func(tx *gorm.DB) error) error {
	var opts []*sql.TxOptions
	if serializable && s.isPostgres() {
		opts = append(opts, &sql.TxOptions{Isolation: sql.LevelSerializable})
	}
	return s.db.WithContext(ctx).Transaction(fn, opts...)
}

// forUpdate locks selected rows on Postgres.
func (s *Store) forUpdate(tx *gorm.DB) *gorm.DB {
	if s.isPostgres() {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// translate maps gorm errors onto the store sentinels.
func translate(err error, msg string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return errors.Wrap(apperror.ErrNoRecord, msg)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return errors.Wrap(apperror.ErrDuplicate, msg)
	default:
		return errors.Wrap(err, msg)
	}
}

func paginate(page, size int) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Offset((page - 1) * size).Limit(size)
	}
}
