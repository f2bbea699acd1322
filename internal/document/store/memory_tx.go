package store

import (
	"context"
	"time"

	dErrors "notary/pkg/domain-errors"
)

const defaultTxTimeout = 5 * time.Second

// Participant is another in-memory resource written inside a document transaction,
// such as the audit log. Savepoint returns a function that undoes later writes.
type Participant interface {
	Savepoint() (rollback func())
}

// InMemoryTx serializes transactions on an InMemory store and rolls back every write,
// participants included, when the callback fails.
type InMemoryTx struct {
	store        *InMemory
	participants []Participant
	timeout      time.Duration
}

func NewInMemoryTx(store *InMemory, participants ...Participant) *InMemoryTx {
	return &InMemoryTx{store: store, participants: participants}
}

func (t *InMemoryTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := t.store.txFrom(ctx); ok {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	// Check again after acquiring lock
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	rollbacks := make([]func(), 0, len(t.participants))
	for _, p := range t.participants {
		rollbacks = append(rollbacks, p.Savepoint())
	}

	st := &txState{store: t.store}
	if err := fn(context.WithValue(ctx, txStateKey{}, st)); err != nil {
		for i := len(st.undo) - 1; i >= 0; i-- {
			st.undo[i]()
		}
		for _, rollback := range rollbacks {
			rollback()
		}
		return err
	}
	return nil
}
