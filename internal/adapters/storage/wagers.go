package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/alejandrodnm/wagerbot/internal/domain"
)

// GetWager devuelve la apuesta activa o domain.ErrNotFound.
func (s *SQLiteStorage) GetWager(ctx context.Context, id string) (domain.Wager, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM wagers WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Wager{}, fmt.Errorf("storage.GetWager %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Wager{}, fmt.Errorf("storage.GetWager %s: %w", id, err)
	}

	var w domain.Wager
	if err := decode(doc, &w); err != nil {
		return domain.Wager{}, fmt.Errorf("storage.GetWager %s: decode: %w", id, err)
	}
	return w, nil
}

// ListWagers devuelve las apuestas activas ordenadas por deadline.
func (s *SQLiteStorage) ListWagers(ctx context.Context, openOnly bool) ([]domain.Wager, error) {
	query := `SELECT doc FROM wagers ORDER BY deadline_unix, id`
	args := []any{}
	if openOnly {
		query = `SELECT doc FROM wagers WHERE state = ? ORDER BY deadline_unix, id`
		args = append(args, string(domain.StateOpen))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage.ListWagers: query: %w", err)
	}
	defer rows.Close()

	var wagers []domain.Wager
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("storage.ListWagers: scan row: %w", err)
		}
		var w domain.Wager
		if err := decode(doc, &w); err != nil {
			return nil, fmt.Errorf("storage.ListWagers: decode: %w", err)
		}
		wagers = append(wagers, w)
	}
	return wagers, rows.Err()
}

// InsertWager crea la apuesta. domain.ErrConflict si el id ya existe.
func (s *SQLiteStorage) InsertWager(ctx context.Context, w domain.Wager) error {
	doc, err := encode(w)
	if err != nil {
		return fmt.Errorf("storage.InsertWager: encode: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO wagers (id, state, deadline_unix, version, doc, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		w.ID, string(w.State), w.Deadline.Unix(), w.Version, doc, s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage.InsertWager %s: %w", w.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("storage.InsertWager %s: %w", w.ID, domain.ErrConflict)
	}
	return nil
}

// SwapWager reemplaza la apuesta si (state, version) persistidos coinciden con expected.
func (s *SQLiteStorage) SwapWager(ctx context.Context, expected, next domain.Wager) error {
	if expected.ID != next.ID {
		return fmt.Errorf("storage.SwapWager: id mismatch %s != %s", expected.ID, next.ID)
	}
	next.Version = expected.Version + 1

	doc, err := encode(next)
	if err != nil {
		return fmt.Errorf("storage.SwapWager: encode: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE wagers
		SET state = ?, deadline_unix = ?, version = ?, doc = ?, updated_at = ?
		WHERE id = ? AND state = ? AND version = ?`,
		string(next.State), next.Deadline.Unix(), next.Version, doc, s.now().UTC(),
		expected.ID, string(expected.State), expected.Version,
	)
	if err != nil {
		return fmt.Errorf("storage.SwapWager %s: %w", expected.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM wagers WHERE id = ?`, expected.ID).Scan(&exists); err != nil {
		return fmt.Errorf("storage.SwapWager %s: check: %w", expected.ID, err)
	}
	if exists == 0 {
		return fmt.Errorf("storage.SwapWager %s: %w", expected.ID, domain.ErrNotFound)
	}
	return fmt.Errorf("storage.SwapWager %s: %w", expected.ID, domain.ErrStaleState)
}
