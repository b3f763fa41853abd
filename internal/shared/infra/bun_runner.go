package infra

import (
	"context"

	"github.com/uptrace/bun"
)

const defaultTxAttempts = 3

type txKey struct{}

func InjectTx(ctx context.Context, db bun.IDB) context.Context {
	return context.WithValue(ctx, txKey{}, db)
}

// ExtractTx returns the transaction bound to ctx, or fallback when there is none.
func ExtractTx(ctx context.Context, fallback bun.IDB) bun.IDB {
	if db, ok := ctx.Value(txKey{}).(bun.IDB); ok {
		return db
	}
	return fallback
}

type BunTransactionRunner struct {
	db       *bun.DB
	attempts int
}

func NewBunTransactionRunner(db *bun.DB) *BunTransactionRunner {
	return &BunTransactionRunner{db: db, attempts: defaultTxAttempts}
}

// Exec runs fn inside a transaction. Nested calls join the outer one and are
// never retried on their own; a top-level transaction that fails with a
// serialization or busy error is rerun from the start.
func (r *BunTransactionRunner) Exec(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(bun.IDB); ok {
		return fn(ctx)
	}

	var err error
	for attempt := 1; ; attempt++ {
		err = r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			return fn(InjectTx(ctx, tx))
		})
		if err == nil || attempt >= r.attempts || ctx.Err() != nil || !IsRetryable(err) {
			return err
		}
	}
}
