package domain

import "context"

// TransactionRunner runs fn with a transaction bound to ctx. Repositories
// called with that ctx join it; a nested Exec joins the outer transaction.
type TransactionRunner interface {
	Exec(ctx context.Context, fn func(ctx context.Context) error) error
}
