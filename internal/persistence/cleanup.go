package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var errNilDB = errors.New("database is not initialized")

// ClearDatabase drops every journaled frame and session and restarts frame
// ids from 1.
func ClearDatabase(ctx context.Context, db *sql.DB) error {
	//goland:noinspection SqlWithoutWhere
	return inTx(ctx, db, "clear journal",
		`DELETE FROM frames;`,
		`DELETE FROM sessions;`,
		`DELETE FROM sqlite_sequence WHERE name = 'frames';`,
	)
}

// DeleteSession removes one session; its frames go with it via ON DELETE CASCADE.
func (r *FrameRepo) DeleteSession(ctx context.Context, sessionID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?;`, sessionID)
	if err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("delete session %s: %w", sessionID, sql.ErrNoRows)
	}

	return nil
}

func inTx(ctx context.Context, db *sql.DB, what string, stmts ...string) error {
	if db == nil {
		return errNilDB
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin tx: %w", what, err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", what, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", what, err)
	}

	return nil
}
