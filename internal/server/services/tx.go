package services

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/petkeeper/internal/dbx"
)

const txAttempts = 3

// inTx runs fn in a serializable transaction, retrying serialization
// failures. Without a database (memory storage) fn runs directly.
func inTx(ctx context.Context, db *sql.DB, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	if db == nil {
		return fn(ctx, nil)
	}
	return dbx.WithTxRetry(ctx, db, &sql.TxOptions{Isolation: sql.LevelSerializable}, txAttempts, fn)
}

// handle returns the DBTX repositories should use outside a transaction.
func handle(db *sql.DB) dbx.DBTX {
	if db == nil {
		return nil
	}
	return db
}
