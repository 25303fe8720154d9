package storage

import (
	"context"
	"database/sql"

	"github.com/jackc/pgx/v5"
)

// txContextKey is the context key for storing pgx.Tx
type txContextKey struct{}

// sqlTxContextKey is the context key for storing *sql.Tx
type sqlTxContextKey struct{}

// WithTx returns a new context with the given transaction.
// PostgresStore operations using the returned context join the transaction.
func WithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txContextKey{}, tx)
}

// TxFromContext retrieves the transaction from context, or nil if not present
func TxFromContext(ctx context.Context) pgx.Tx {
	if tx, ok := ctx.Value(txContextKey{}).(pgx.Tx); ok {
		return tx
	}
	return nil
}

// WithSQLTx returns a new context with the given database/sql transaction.
// SQLStore operations using the returned context join the transaction.
func WithSQLTx(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, sqlTxContextKey{}, tx)
}

// SQLTxFromContext retrieves the database/sql transaction from context, or nil
func SQLTxFromContext(ctx context.Context) *sql.Tx {
	if tx, ok := ctx.Value(sqlTxContextKey{}).(*sql.Tx); ok {
		return tx
	}
	return nil
}

// Transactor is implemented by stores that can run several operations in one
// transaction. Store calls made with the context passed to fn join it.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}
