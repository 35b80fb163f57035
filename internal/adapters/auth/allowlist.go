// Package auth implementa ports.Authorizer con una allowlist de usuarios y roles.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/alejandrodnm/wagerbot/internal/domain"
	"github.com/alejandrodnm/wagerbot/internal/ports"
)

// Allowlist autoriza a un actor si su id o alguno de sus roles está en la lista.
// Una allowlist vacía no autoriza a nadie.
//
// Los usuarios vienen solo de la configuración y son los administradores: los
// únicos que pueden habilitar roles nuevos con Grant. Los roles habilitados se
// persisten en el RoleGrantStore si hay uno.
type Allowlist struct {
	users map[string]bool
	store ports.RoleGrantStore

	mu    sync.RWMutex
	roles map[string]bool
}

// NewAllowlist crea la allowlist. Los ids vacíos se ignoran.
func NewAllowlist(userIDs, roleIDs []string) *Allowlist {
	return &Allowlist{users: toSet(userIDs), roles: toSet(roleIDs)}
}

// WithStore carga los roles ya habilitados y persiste los próximos grants en store.
func (a *Allowlist) WithStore(ctx context.Context, store ports.RoleGrantStore) error {
	granted, err := store.GrantedRoles(ctx)
	if err != nil {
		return fmt.Errorf("auth.WithStore: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.store = store
	for id := range toSet(granted) {
		a.roles[id] = true
	}
	slog.Debug("granted roles loaded", "roles", len(granted))
	return nil
}

// IsAuthorized implementa ports.Authorizer.
func (a *Allowlist) IsAuthorized(actor domain.Actor) bool {
	if a.IsAdmin(actor) {
		return true
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, r := range actor.Roles {
		if a.roles[r] {
			return true
		}
	}
	return false
}

// IsAdmin devuelve true si el actor está en la lista de usuarios.
func (a *Allowlist) IsAdmin(actor domain.Actor) bool {
	return actor.ID != "" && a.users[actor.ID]
}

// Grant habilita roleID. Solo un administrador puede hacerlo.
func (a *Allowlist) Grant(ctx context.Context, actor domain.Actor, roleID string) error {
	if !a.IsAdmin(actor) {
		return domain.ErrUnauthorized
	}
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return domain.Invalid("role", "role is required")
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.store != nil {
		if err := a.store.GrantRole(ctx, roleID, actor.ID); err != nil {
			return fmt.Errorf("auth.Grant: %w", err)
		}
	}
	a.roles[roleID] = true
	slog.Info("role granted", "role", roleID, "by", actor.ID)
	return nil
}

// Empty devuelve true si nadie puede operar (configuración incompleta).
func (a *Allowlist) Empty() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.users) == 0 && len(a.roles) == 0
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			set[id] = true
		}
	}
	return set
}

var _ ports.Authorizer = (*Allowlist)(nil)
