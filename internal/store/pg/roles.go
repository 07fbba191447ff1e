package pg

import (
	"context"
	"database/sql"
	"errors"

	"gatekey.org/internal/auth"
)

func (s *Store) CreateRole(ctx context.Context, r *auth.Role) error {
	row := s.db.QueryRowContext(ctx, `
		insert into roles (id, name, description, is_system_administrator)
		values ($1, $2, $3, $4)
		returning created_at
	`, r.ID, r.Name, nullIfEmpty(r.Description), r.IsSystemAdministrator)
	if err := row.Scan(&r.CreatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrRoleExists
		}
		return err
	}
	return nil
}

func (s *Store) GetRole(ctx context.Context, id string) (*auth.Role, error) {
	return s.scanRole(s.db.QueryRowContext(ctx, `
		select id, name, description, is_system_administrator, created_at
		from roles
		where id = $1
	`, id))
}

func (s *Store) GetRoleByName(ctx context.Context, name string) (*auth.Role, error) {
	return s.scanRole(s.db.QueryRowContext(ctx, `
		select id, name, description, is_system_administrator, created_at
		from roles
		where lower(name) = lower($1)
	`, name))
}

func (s *Store) ListRoles(ctx context.Context) ([]auth.Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, name, description, is_system_administrator, created_at
		from roles
		order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []auth.Role
	for rows.Next() {
		var (
			r    auth.Role
			desc sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Name, &desc, &r.IsSystemAdministrator, &r.CreatedAt); err != nil {
			return nil, err
		}
		if desc.Valid {
			r.Description = desc.String
		}
		roles = append(roles, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

func (s *Store) AssignRole(ctx context.Context, userID, roleID string) error {
	_, err := s.db.ExecContext(ctx, `
		insert into user_roles (user_id, role_id)
		values ($1, $2)
	`, userID, roleID)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return auth.ErrDuplicateAssignment
			case pgErrForeignKeyViolation:
				return auth.ErrRoleNotFound
			}
		}
		return err
	}
	return nil
}

// RemoveRole deletes the assignment; removing one that never existed is fine.
func (s *Store) RemoveRole(ctx context.Context, userID, roleID string) error {
	_, err := s.db.ExecContext(ctx, `
		delete from user_roles
		where user_id = $1 and role_id = $2
	`, userID, roleID)
	return err
}

func (s *Store) RolesForUser(ctx context.Context, userID string) ([]auth.Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select r.id, r.name, r.description, r.is_system_administrator, r.created_at
		from user_roles ur
		join roles r on r.id = ur.role_id
		where ur.user_id = $1
		order by ur.created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []auth.Role
	for rows.Next() {
		var (
			r    auth.Role
			desc sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Name, &desc, &r.IsSystemAdministrator, &r.CreatedAt); err != nil {
			return nil, err
		}
		if desc.Valid {
			r.Description = desc.String
		}
		roles = append(roles, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

func (s *Store) scanRole(row *sql.Row) (*auth.Role, error) {
	var (
		r    auth.Role
		desc sql.NullString
	)
	err := row.Scan(&r.ID, &r.Name, &desc, &r.IsSystemAdministrator, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrRoleNotFound
	}
	if err != nil {
		return nil, err
	}
	if desc.Valid {
		r.Description = desc.String
	}
	return &r, nil
}
