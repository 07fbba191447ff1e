package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"gatekey.org/internal/auth"
)

const userColumns = `id, email, username, password_hash, status, is_deleted, created_at, updated_at, last_login_at`

func (s *Store) CreateUser(ctx context.Context, u *auth.User) error {
	row := s.db.QueryRowContext(ctx, `
		insert into users (id, email, username, password_hash, status)
		values ($1, lower($2), $3, $4, $5)
		returning created_at, updated_at
	`, u.ID, u.Email, u.Username, u.PasswordHash, u.Status)
	if err := row.Scan(&u.CreatedAt, &u.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrEmailTaken
		}
		return err
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string, includeDeleted bool) (*auth.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		select `+userColumns+`
		from users
		where id = $1 and (is_deleted = false or $2)
	`, id, includeDeleted))
}

func (s *Store) GetUserByEmail(ctx context.Context, email string, includeDeleted bool) (*auth.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		select `+userColumns+`
		from users
		where email = lower($1) and (is_deleted = false or $2)
	`, email, includeDeleted))
}

func (s *Store) UpdateUserStatus(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx, `
		update users set status = $2, updated_at = now()
		where id = $1 and is_deleted = false
	`, id, status)
	if err != nil {
		return err
	}
	return mustAffect(res, auth.ErrUserNotFound)
}

func (s *Store) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update users set last_login_at = $2, updated_at = now()
		where id = $1 and is_deleted = false
	`, id, at)
	if err != nil {
		return err
	}
	return mustAffect(res, auth.ErrUserNotFound)
}

// SoftDeleteUser flags the row deleted; the record itself survives for audit.
func (s *Store) SoftDeleteUser(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		update users set is_deleted = true, status = $2, updated_at = now()
		where id = $1 and is_deleted = false
	`, id, auth.UserStatusDeleted)
	if err != nil {
		return err
	}
	return mustAffect(res, auth.ErrUserNotFound)
}

func (s *Store) scanUser(row *sql.Row) (*auth.User, error) {
	var (
		u         auth.User
		lastLogin sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.Status, &u.IsDeleted, &u.CreatedAt, &u.UpdatedAt, &lastLogin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	return &u, nil
}

func mustAffect(res sql.Result, notFound error) error {
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return notFound
	}
	return nil
}
