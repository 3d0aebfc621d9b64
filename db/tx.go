package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Dosada05/tournament-engine/repositories"
)

// TxManager runs a unit of work inside a single database transaction.
type TxManager struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewTxManager(db *sql.DB, logger *slog.Logger) *TxManager {
	return &TxManager{db: db, logger: logger}
}

// WithinTx commits when fn returns nil and rolls back otherwise. A panic in fn
// rolls back before it is re-raised.
func (m *TxManager) WithinTx(ctx context.Context, fn func(exec repositories.SQLExecutor) error) (err error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				m.logger.Error("failed to rollback transaction", slog.Any("error", rbErr), slog.Any("cause", err))
			}
			return
		}
		if commitErr := tx.Commit(); commitErr != nil {
			err = fmt.Errorf("failed to commit transaction: %w", commitErr)
		}
	}()

	return fn(tx)
}
