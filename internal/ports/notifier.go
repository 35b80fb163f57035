package ports

import (
	"context"

	"github.com/alejandrodnm/wagerbot/internal/domain"
)

// Notifier entrega avisos a participantes. Best-effort: el core solo loguea
// los errores.
type Notifier interface {
	Notify(ctx context.Context, participantID string, n domain.Notice) error
}

// ResultPublisher difunde el resumen de una liquidación (canal, consola).
type ResultPublisher interface {
	PublishSettlement(ctx context.Context, res domain.SettlementResult) error
}
