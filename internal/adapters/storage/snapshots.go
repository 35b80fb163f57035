package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/alejandrodnm/wagerbot/internal/domain"
)

// GetSnapshot devuelve el Locked Snapshot o domain.ErrNotFound.
func (s *SQLiteStorage) GetSnapshot(ctx context.Context, wagerID string) (domain.Snapshot, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM snapshots WHERE wager_id = ?`, wagerID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Snapshot{}, fmt.Errorf("storage.GetSnapshot %s: %w", wagerID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("storage.GetSnapshot %s: %w", wagerID, err)
	}

	var snap domain.Snapshot
	if err := decode(doc, &snap); err != nil {
		return domain.Snapshot{}, fmt.Errorf("storage.GetSnapshot %s: decode: %w", wagerID, err)
	}
	return snap, nil
}

// PutSnapshotIfAbsent inserta el snapshot solo si no existe. Nunca sobreescribe:
// si otro tick ya lo capturó, devuelve el existente con created=false.
func (s *SQLiteStorage) PutSnapshotIfAbsent(ctx context.Context, snap domain.Snapshot) (domain.Snapshot, bool, error) {
	doc, err := encode(snap)
	if err != nil {
		return domain.Snapshot{}, false, fmt.Errorf("storage.PutSnapshotIfAbsent: encode: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots (wager_id, doc, captured_at) VALUES (?, ?, ?)
		ON CONFLICT(wager_id) DO NOTHING`,
		snap.WagerID, doc, snap.CapturedAt.UTC(),
	)
	if err != nil {
		return domain.Snapshot{}, false, fmt.Errorf("storage.PutSnapshotIfAbsent %s: %w", snap.WagerID, err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return snap, true, nil
	}

	existing, err := s.GetSnapshot(ctx, snap.WagerID)
	if err != nil {
		return domain.Snapshot{}, false, err
	}
	return existing, false, nil
}
