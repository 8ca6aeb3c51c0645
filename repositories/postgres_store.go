package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// postgresStore implements Store on PostgreSQL. Per-key serialisation comes
// from SELECT ... FOR UPDATE on the event or team row inside the unit's
// transaction.
type postgresStore struct {
	pgQueries
	db *sql.DB
}

// NewPostgresStore wraps an open connection pool.
func NewPostgresStore(db *sql.DB) Store {
	return &postgresStore{pgQueries: pgQueries{q: db}, db: db}
}

func (s *postgresStore) Close() error {
	return s.db.Close()
}

func (s *postgresStore) InTx(ctx context.Context, fn TxFunc) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
			}
		}
	}()

	if err = fn(ctx, &postgresTx{pgQueries: pgQueries{q: tx}}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return mapPQError(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// pgQueries holds the statements shared by the store and its transactions.
type pgQueries struct {
	q querier
}

type postgresTx struct {
	pgQueries
}
