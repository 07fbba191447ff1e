package pg

import (
	"context"
	"database/sql"
	"errors"

	"gatekey.org/internal/auth"
)

// UpsertPermission inserts a catalog entry if its name is new. Existing rows
// are never touched; the catalog sync is strictly additive.
func (s *Store) UpsertPermission(ctx context.Context, p *auth.Permission) error {
	_, err := s.db.ExecContext(ctx, `
		insert into permissions (id, name, description, category)
		values ($1, lower($2), $3, $4)
		on conflict (name) do nothing
	`, p.ID, p.Name, nullIfEmpty(p.Description), nullIfEmpty(p.Category))
	return err
}

func (s *Store) GetPermissionByName(ctx context.Context, name string) (*auth.Permission, error) {
	var (
		p           auth.Permission
		description sql.NullString
		category    sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select id, name, description, category, created_at
		from permissions
		where name = lower($1)
	`, name).Scan(&p.ID, &p.Name, &description, &category, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrPermissionNotFound
	}
	if err != nil {
		return nil, err
	}
	if description.Valid {
		p.Description = description.String
	}
	if category.Valid {
		p.Category = category.String
	}
	return &p, nil
}

func (s *Store) ListPermissions(ctx context.Context) ([]auth.Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, name, description, category, created_at
		from permissions
		order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPermissions(rows)
}

func (s *Store) GrantPermission(ctx context.Context, roleID, permissionID string) error {
	_, err := s.db.ExecContext(ctx, `
		insert into role_permissions (role_id, permission_id)
		values ($1, $2)
	`, roleID, permissionID)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return auth.ErrDuplicateAssignment
			case pgErrForeignKeyViolation:
				return auth.ErrPermissionNotFound
			}
		}
		return err
	}
	return nil
}

// RevokePermission deletes the grant; revoking a grant that never existed is
// a no-op.
func (s *Store) RevokePermission(ctx context.Context, roleID, permissionID string) error {
	_, err := s.db.ExecContext(ctx, `
		delete from role_permissions
		where role_id = $1 and permission_id = $2
	`, roleID, permissionID)
	return err
}

func (s *Store) PermissionsForRole(ctx context.Context, roleID string) ([]auth.Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		select p.id, p.name, p.description, p.category, p.created_at
		from role_permissions rp
		join permissions p on p.id = rp.permission_id
		where rp.role_id = $1
		order by p.name
	`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPermissions(rows)
}

func (s *Store) PermissionsForUser(ctx context.Context, userID string) ([]auth.Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		select distinct p.id, p.name, p.description, p.category, p.created_at
		from user_roles ur
		join role_permissions rp on rp.role_id = ur.role_id
		join permissions p on p.id = rp.permission_id
		where ur.user_id = $1
		order by p.name
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPermissions(rows)
}

func collectPermissions(rows *sql.Rows) ([]auth.Permission, error) {
	var perms []auth.Permission
	for rows.Next() {
		var (
			p           auth.Permission
			description sql.NullString
			category    sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.Name, &description, &category, &p.CreatedAt); err != nil {
			return nil, err
		}
		if description.Valid {
			p.Description = description.String
		}
		if category.Valid {
			p.Category = category.String
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}
