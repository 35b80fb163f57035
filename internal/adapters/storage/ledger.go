package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/alejandrodnm/wagerbot/internal/domain"
)

// Balance devuelve los puntos del participante (0 si no tiene entrada).
func (s *SQLiteStorage) Balance(ctx context.Context, participantID string) (int, error) {
	var points int
	err := s.db.QueryRowContext(ctx,
		`SELECT points FROM ledger WHERE participant_id = ?`, participantID,
	).Scan(&points)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("storage.Balance %s: %w", participantID, err)
	}
	return points, nil
}

// ApplyDeltas aplica todos los deltas en una sola transacción.
func (s *SQLiteStorage) ApplyDeltas(ctx context.Context, deltas map[string]int) (map[string]int, error) {
	if len(deltas) == 0 {
		return map[string]int{}, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("storage.ApplyDeltas: begin tx: %w", err)
	}
	defer tx.Rollback()

	balances, err := applyDeltasTx(ctx, tx, deltas, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("storage.ApplyDeltas: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("storage.ApplyDeltas: commit: %w", err)
	}
	return balances, nil
}

// Top devuelve las n entradas con más puntos (empates por id).
func (s *SQLiteStorage) Top(ctx context.Context, n int) ([]domain.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT participant_id, points FROM ledger
		ORDER BY points DESC, participant_id ASC
		LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("storage.Top: query: %w", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(&e.ParticipantID, &e.Points); err != nil {
			return nil, fmt.Errorf("storage.Top: scan row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// applyDeltasTx lee cada saldo, aplica el clamp y hace upsert dentro de tx.
// Orden determinista por participante.
func applyDeltasTx(ctx context.Context, tx *sql.Tx, deltas map[string]int, now time.Time) (map[string]int, error) {
	ids := make([]string, 0, len(deltas))
	for id := range deltas {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO ledger (participant_id, points, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(participant_id) DO UPDATE SET
			points     = excluded.points,
			updated_at = excluded.updated_at`)
	if err != nil {
		return nil, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	balances := make(map[string]int, len(ids))
	for _, id := range ids {
		var cur int
		err := tx.QueryRowContext(ctx, `SELECT points FROM ledger WHERE participant_id = ?`, id).Scan(&cur)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("read %s: %w", id, err)
		}

		next := domain.ApplyDelta(cur, deltas[id])
		if _, err := stmt.ExecContext(ctx, id, next, now); err != nil {
			return nil, fmt.Errorf("upsert %s: %w", id, err)
		}
		balances[id] = next
	}
	return balances, nil
}
