package storage

import (
	"context"
	"fmt"

	"github.com/alejandrodnm/wagerbot/internal/ports"
)

// GrantRole habilita un rol para los comandos de operador. Idempotente: el
// primer grant se conserva.
func (s *SQLiteStorage) GrantRole(ctx context.Context, roleID, grantedBy string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO auth_roles (role_id, granted_by, granted_at) VALUES (?, ?, ?)
		ON CONFLICT(role_id) DO NOTHING`,
		roleID, grantedBy, s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage.GrantRole %s: %w", roleID, err)
	}
	return nil
}

// GrantedRoles devuelve los roles habilitados, del más antiguo al más nuevo.
func (s *SQLiteStorage) GrantedRoles(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT role_id FROM auth_roles ORDER BY granted_at, role_id`)
	if err != nil {
		return nil, fmt.Errorf("storage.GrantedRoles: query: %w", err)
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("storage.GrantedRoles: scan: %w", err)
		}
		roles = append(roles, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage.GrantedRoles: %w", err)
	}
	return roles, nil
}

var _ ports.RoleGrantStore = (*SQLiteStorage)(nil)
