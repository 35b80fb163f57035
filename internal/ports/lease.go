package ports

import (
	"context"
	"time"
)

// Lease evita que dos schedulers procesen el mismo tick.
type Lease interface {
	// Acquire devuelve domain.ErrLockHeld si otro proceso tiene el lease.
	// release es seguro de llamar más de una vez.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}
