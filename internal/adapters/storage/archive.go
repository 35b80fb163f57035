package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/alejandrodnm/wagerbot/internal/domain"
)

// GetSettled devuelve la apuesta archivada o domain.ErrNotFound.
func (s *SQLiteStorage) GetSettled(ctx context.Context, wagerID string) (domain.SettledWager, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM archive WHERE wager_id = ?`, wagerID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SettledWager{}, fmt.Errorf("storage.GetSettled %s: %w", wagerID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.SettledWager{}, fmt.Errorf("storage.GetSettled %s: %w", wagerID, err)
	}

	var rec domain.SettledWager
	if err := decode(doc, &rec); err != nil {
		return domain.SettledWager{}, fmt.Errorf("storage.GetSettled %s: decode: %w", wagerID, err)
	}
	return rec, nil
}

// CommitSettlement es el batch único de la liquidación:
//  1. borra la apuesta LOCKED del registro activo (si no está → ErrAlreadySettled)
//  2. borra su snapshot
//  3. aplica los deltas al ledger con clamp
//  4. archiva el registro con los saldos resultantes
//
// Todo o nada: un fallo en cualquier paso deja el ledger intacto.
func (s *SQLiteStorage) CommitSettlement(ctx context.Context, rec domain.SettledWager, deltas map[string]int) (map[string]int, error) {
	id := rec.Wager.ID
	now := s.now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("storage.CommitSettlement: begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM wagers WHERE id = ? AND state = ?`, id, string(domain.StateLocked))
	if err != nil {
		return nil, fmt.Errorf("storage.CommitSettlement %s: delete wager: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM wagers WHERE id = ?`, id).Scan(&exists); err != nil {
			return nil, fmt.Errorf("storage.CommitSettlement %s: check: %w", id, err)
		}
		if exists == 0 {
			return nil, fmt.Errorf("storage.CommitSettlement %s: %w", id, domain.ErrAlreadySettled)
		}
		return nil, fmt.Errorf("storage.CommitSettlement %s: %w", id, domain.ErrStaleState)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshots WHERE wager_id = ?`, id); err != nil {
		return nil, fmt.Errorf("storage.CommitSettlement %s: delete snapshot: %w", id, err)
	}

	balances, err := applyDeltasTx(ctx, tx, deltas, now)
	if err != nil {
		return nil, fmt.Errorf("storage.CommitSettlement %s: ledger: %w", id, err)
	}

	outcomes := make([]domain.Outcome, len(rec.Outcomes))
	for i, o := range rec.Outcomes {
		o.Balance = balances[o.ParticipantID]
		outcomes[i] = o
	}
	rec.Outcomes = outcomes

	doc, err := encode(rec)
	if err != nil {
		return nil, fmt.Errorf("storage.CommitSettlement %s: encode: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO archive (wager_id, settlement_id, settled_at, doc) VALUES (?, ?, ?, ?)`,
		id, rec.SettlementID, rec.SettledAt.UTC(), doc,
	); err != nil {
		return nil, fmt.Errorf("storage.CommitSettlement %s: archive: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("storage.CommitSettlement %s: commit: %w", id, err)
	}
	return balances, nil
}
