// Package lease implementa ports.Lease: un lease distribuido en Redis para
// varios procesos y uno local para un solo proceso.
package lease

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/wagerbot/internal/domain"
	"github.com/alejandrodnm/wagerbot/internal/ports"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// unlockLua borra la key solo si el valor es el token del holder, para no
// liberar un lease que ya expiró y tomó otro proceso.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// RedisConfig son los parámetros de conexión.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TLS      bool
}

// Redis es un lease con SETNX + TTL y unlock condicional vía Lua.
type Redis struct {
	rdb      *redis.Client
	unlockSc *redis.Script
}

// NewRedis conecta y hace ping; falla si Redis no responde.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("lease.NewRedis: ping %s: %w", cfg.Addr, err)
	}
	return &Redis{rdb: rdb, unlockSc: redis.NewScript(unlockLua)}, nil
}

// Acquire toma el lease key por ttl. domain.ErrLockHeld si otro lo tiene.
func (r *Redis) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	lk := "lease:" + key

	ok, err := r.rdb.SetNX(ctx, lk, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("lease.Redis.Acquire %s: %w", key, err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			// contexto propio: el del caller puede estar cancelado
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := r.unlockSc.Run(ctx, r.rdb, []string{lk}, token).Err(); err != nil {
				// el lease expira solo al vencer el TTL
				slog.Warn("lease release failed", "key", key, "err", err)
			}
		})
	}
	return release, nil
}

// Close cierra la conexión.
func (r *Redis) Close() error {
	return r.rdb.Close()
}

var _ ports.Lease = (*Redis)(nil)
