package storage

// sqlite.go: persistencia durable del bot en un solo archivo SQLite.
//
// Un namespace por tabla:
//   - `wagers`: registro activo (OPEN/LOCKED). Documento JSON completo + columnas
//     de estado/versión para el compare-and-swap.
//   - `snapshots`: Locked Snapshots, insert-only.
//   - `ledger`: saldos por participante, CHECK points >= 0.
//   - `archive`: apuestas liquidadas (documento JSON).
//   - `auth_roles`: roles habilitados con !assign.
//
// Cada escritura se confirma antes de devolver; no hay nada autoritativo en memoria.

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS wagers (
    id            TEXT PRIMARY KEY,
    state         TEXT    NOT NULL,
    deadline_unix INTEGER NOT NULL,
    version       INTEGER NOT NULL DEFAULT 0,
    doc           TEXT    NOT NULL,
    updated_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshots (
    wager_id    TEXT PRIMARY KEY,
    doc         TEXT     NOT NULL,
    captured_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS ledger (
    participant_id TEXT PRIMARY KEY,
    points         INTEGER  NOT NULL DEFAULT 0 CHECK (points >= 0),
    updated_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS archive (
    wager_id      TEXT PRIMARY KEY,
    settlement_id TEXT     NOT NULL,
    settled_at    DATETIME NOT NULL,
    doc           TEXT     NOT NULL
);

CREATE TABLE IF NOT EXISTS auth_roles (
    role_id    TEXT PRIMARY KEY,
    granted_by TEXT     NOT NULL,
    granted_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_wagers_state   ON wagers(state, deadline_unix);
CREATE INDEX IF NOT EXISTS idx_ledger_points  ON ledger(points DESC);
CREATE INDEX IF NOT EXISTS idx_archive_settled ON archive(settled_at DESC);
`

// SQLiteStorage implementa ports.Storage usando SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada y aplica el schema.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(`PRAGMA synchronous = FULL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	return &SQLiteStorage{db: db, now: time.Now}, nil
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// --- helpers internos ---

func encode(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decode(doc string, v any) error {
	return json.Unmarshal([]byte(doc), v)
}
