package lease

import (
	"context"
	"sync"
	"time"

	"github.com/alejandrodnm/wagerbot/internal/domain"
	"github.com/alejandrodnm/wagerbot/internal/ports"
)

// Local es un lease en memoria para un solo proceso. Respeta el TTL igual
// que Redis: un holder que no libera pierde el lease al expirar.
type Local struct {
	mu     sync.Mutex
	held   map[string]localHold
	now    func() time.Time
	tokens uint64
}

type localHold struct {
	token   uint64
	expires time.Time
}

// NewLocal crea el lease local; now puede ser nil (time.Now).
func NewLocal(now func() time.Time) *Local {
	if now == nil {
		now = time.Now
	}
	return &Local{held: make(map[string]localHold), now: now}
}

// Acquire toma el lease key por ttl. domain.ErrLockHeld si está tomado.
func (l *Local) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if h, ok := l.held[key]; ok && now.Before(h.expires) {
		return nil, domain.ErrLockHeld
	}
	l.tokens++
	token := l.tokens
	l.held[key] = localHold{token: token, expires: now.Add(ttl)}

	var once sync.Once
	release := func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if h, ok := l.held[key]; ok && h.token == token {
				delete(l.held, key)
			}
		})
	}
	return release, nil
}

var _ ports.Lease = (*Local)(nil)
