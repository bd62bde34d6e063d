package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// InTx runs fn inside one transaction. Any error from fn rolls everything back; a failed
// commit is returned wrapped with op. Errors from fn are returned unchanged.
func InTx(ctx context.Context, q TxQuerier, op string, fn func(tx pgx.Tx) error) error {
	tx, err := q.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}

	if err := fn(tx); err != nil {
		// The caller's context may already be done; rollback must still reach the server.
		rbCtx := context.WithoutCancel(ctx)
		if rbErr := tx.Rollback(rbCtx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return errors.Join(err, fmt.Errorf("%s: rollback: %w", op, rbErr))
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}
	return nil
}
