package memory

import (
	"context"

	"github.com/taskflow/ai-backend/repositories"
)

// TransactionManager satisfies repositories.TransactionManager for stores
// without transactional semantics. Writes applied before a failure are kept.
type TransactionManager struct{}

func NewTransactionManager() repositories.TransactionManager {
	return TransactionManager{}
}

func (TransactionManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	return noopTx{ctx: ctx}, nil
}

func (tm TransactionManager) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	tx, _ := tm.Begin(ctx)
	return fn(ctx, tx)
}

type noopTx struct {
	ctx context.Context
}

func (noopTx) Commit() error { return nil }
func (noopTx) Rollback() error { return nil }
func (t noopTx) Context() context.Context { return t.ctx }
