package ports

import (
	"context"

	"github.com/alejandrodnm/wagerbot/internal/domain"
)

// WagerStore persiste el registro de apuestas activas (OPEN y LOCKED).
type WagerStore interface {
	// GetWager devuelve domain.ErrNotFound si el id no está en el registro activo.
	GetWager(ctx context.Context, id string) (domain.Wager, error)

	// ListWagers devuelve las apuestas activas; con openOnly solo las OPEN.
	ListWagers(ctx context.Context, openOnly bool) ([]domain.Wager, error)

	// InsertWager crea la apuesta. domain.ErrConflict si el id ya existe.
	InsertWager(ctx context.Context, w domain.Wager) error

	// SwapWager reemplaza la apuesta solo si el estado y la versión persistidos
	// coinciden con expected. Si no, devuelve domain.ErrStaleState.
	// La versión guardada es expected.Version+1.
	SwapWager(ctx context.Context, expected domain.Wager, next domain.Wager) error
}

// SnapshotStore persiste los Locked Snapshots.
type SnapshotStore interface {
	// GetSnapshot devuelve domain.ErrNotFound si no hay snapshot.
	GetSnapshot(ctx context.Context, wagerID string) (domain.Snapshot, error)

	// PutSnapshotIfAbsent guarda el snapshot solo si no existe uno.
	// Devuelve el snapshot vigente y si fue creado por esta llamada.
	PutSnapshotIfAbsent(ctx context.Context, s domain.Snapshot) (domain.Snapshot, bool, error)
}

// LedgerStore expone los saldos de los participantes.
type LedgerStore interface {
	// Balance devuelve 0 si el participante no tiene entrada.
	Balance(ctx context.Context, participantID string) (int, error)

	// ApplyDeltas aplica todos los deltas en un solo batch durable, con clamp a 0.
	ApplyDeltas(ctx context.Context, deltas map[string]int) (map[string]int, error)

	// Top devuelve las n entradas con más puntos.
	Top(ctx context.Context, n int) ([]domain.LedgerEntry, error)
}

// ArchiveStore consulta las apuestas liquidadas.
type ArchiveStore interface {
	// GetSettled devuelve domain.ErrNotFound si la apuesta no está archivada.
	GetSettled(ctx context.Context, wagerID string) (domain.SettledWager, error)
}

// SettlementStore confirma una liquidación como una unidad.
type SettlementStore interface {
	// CommitSettlement aplica los deltas al ledger, archiva la apuesta y la
	// borra del registro activo junto con su snapshot, en una sola transacción.
	// Si la apuesta ya no está activa devuelve domain.ErrAlreadySettled y no
	// toca el ledger. Devuelve los saldos resultantes.
	CommitSettlement(ctx context.Context, rec domain.SettledWager, deltas map[string]int) (map[string]int, error)
}

// Storage agrupa todos los namespaces persistentes.
type Storage interface {
	WagerStore
	SnapshotStore
	LedgerStore
	ArchiveStore
	SettlementStore

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}
