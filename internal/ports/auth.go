package ports

import (
	"context"

	"github.com/alejandrodnm/wagerbot/internal/domain"
)

// Authorizer decide si un actor puede crear, forzar el lock o liquidar.
type Authorizer interface {
	IsAuthorized(actor domain.Actor) bool
}

// RoleGrantStore persiste los roles habilitados en caliente (!assign).
type RoleGrantStore interface {
	// GrantRole es idempotente: volver a habilitar un rol no es error.
	GrantRole(ctx context.Context, roleID, grantedBy string) error

	// GrantedRoles devuelve todos los roles habilitados.
	GrantedRoles(ctx context.Context) ([]string, error)
}
