package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/craftyard/craftyard/internal/model"
	"github.com/craftyard/craftyard/internal/platform"
)

const pgForeignKeyViolation = "23503"

// PermissionService evaluates and manages per-server capability grants.
type PermissionService struct {
	db DB
}

func NewPermissionService(db DB) *PermissionService {
	return &PermissionService{db: db}
}

// HasPermission reports whether user may exercise capability on the given
// server. Admins hold everything, moderators can always view; everyone else
// needs a grant carrying the capability itself or manage.
func (s *PermissionService) HasPermission(ctx context.Context, user *model.User, serverID, capability string) (bool, error) {
	if user.Role == model.RoleAdmin {
		return true, nil
	}
	if user.Role == model.RoleModerator && capability == model.CapabilityView {
		return true, nil
	}

	var capabilities []string
	err := s.db.QueryRow(ctx,
		`SELECT capabilities FROM server_permissions WHERE user_id = $1 AND server_id = $2`,
		user.ID, serverID,
	).Scan(&capabilities)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("get grant for user %s on server %s: %w", user.ID, serverID, err)
	}

	for _, c := range capabilities {
		if c == capability || c == model.CapabilityManage {
			return true, nil
		}
	}
	return false, nil
}

// Require is HasPermission with a denial turned into ErrPermissionDenied.
func (s *PermissionService) Require(ctx context.Context, user *model.User, serverID, capability string) error {
	ok, err := s.HasPermission(ctx, user, serverID, capability)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s on server %s", ErrPermissionDenied, capability, serverID)
	}
	return nil
}

// Grant replaces the user's capability set on a server. A user has one grant
// per server; granting again overwrites the whole set.
func (s *PermissionService) Grant(ctx context.Context, userID, serverID string, capabilities []string) (*model.Grant, error) {
	if len(capabilities) == 0 {
		return nil, fmt.Errorf("%w: capabilities must not be empty", ErrValidation)
	}
	for _, c := range capabilities {
		if !model.ValidCapability(c) {
			return nil, fmt.Errorf("%w: unknown capability %q", ErrValidation, c)
		}
	}

	var g model.Grant
	err := s.db.QueryRow(ctx,
		`INSERT INTO server_permissions (id, user_id, server_id, capabilities, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, now(), now())
		 ON CONFLICT (user_id, server_id)
		 DO UPDATE SET capabilities = EXCLUDED.capabilities, updated_at = now()
		 RETURNING id, user_id, server_id, capabilities, created_at, updated_at`,
		platform.NewID(), userID, serverID, capabilities,
	).Scan(&g.ID, &g.UserID, &g.ServerID, &g.Capabilities, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return nil, fmt.Errorf("%w: user or server", ErrNotFound)
		}
		return nil, fmt.Errorf("grant capabilities: %w", err)
	}
	return &g, nil
}

// Revoke removes the user's grant on a server. Revoking a grant that does
// not exist is a no-op.
func (s *PermissionService) Revoke(ctx context.Context, userID, serverID string) error {
	_, err := s.db.Exec(ctx,
		`DELETE FROM server_permissions WHERE user_id = $1 AND server_id = $2`,
		userID, serverID,
	)
	if err != nil {
		return fmt.Errorf("revoke grant: %w", err)
	}
	return nil
}

// PermissionsFor lists the grants on one server, user names joined in.
func (s *PermissionService) PermissionsFor(ctx context.Context, serverID string) ([]model.Grant, error) {
	rows, err := s.db.Query(ctx,
		`SELECT sp.id, sp.user_id, sp.server_id, sp.capabilities, sp.created_at, sp.updated_at, u.name
		 FROM server_permissions sp
		 JOIN users u ON u.id = sp.user_id
		 WHERE sp.server_id = $1
		 ORDER BY u.name`, serverID,
	)
	if err != nil {
		return nil, fmt.Errorf("list grants for server %s: %w", serverID, err)
	}
	defer rows.Close()

	var grants []model.Grant
	for rows.Next() {
		var g model.Grant
		if err := rows.Scan(&g.ID, &g.UserID, &g.ServerID, &g.Capabilities, &g.CreatedAt, &g.UpdatedAt, &g.UserName); err != nil {
			return nil, fmt.Errorf("scan grant: %w", err)
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate grants: %w", err)
	}
	return grants, nil
}

// AccessibleServers returns the ids of servers the user holds the capability
// on. The second return is true when the role grants blanket access and the
// id list is meaningless. Moderators get blanket access for view only; any
// stronger capability falls back to their explicit grants, same as viewers.
func (s *PermissionService) AccessibleServers(ctx context.Context, user *model.User, capability string) ([]string, bool, error) {
	if user.Role == model.RoleAdmin {
		return nil, true, nil
	}
	if user.Role == model.RoleModerator && capability == model.CapabilityView {
		return nil, true, nil
	}

	rows, err := s.db.Query(ctx,
		`SELECT server_id FROM server_permissions WHERE user_id = $1 AND capabilities && $2`,
		user.ID, []string{capability, model.CapabilityManage},
	)
	if err != nil {
		return nil, false, fmt.Errorf("list accessible servers for user %s: %w", user.ID, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, false, fmt.Errorf("scan server id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate server ids: %w", err)
	}
	return ids, false, nil
}
