package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"gatekey.org/internal/auth"
)

const tokenColumns = `id, user_id, token_value, expires_at, is_revoked, created_at, revoked_at, replaced_by, issued_ip, revoked_ip`

func (s *Store) SaveToken(ctx context.Context, t *auth.RefreshToken) error {
	_, err := s.db.ExecContext(ctx, `
		insert into refresh_tokens (id, user_id, token_value, expires_at, issued_ip)
		values ($1, $2, $3, $4, $5)
	`, t.ID, t.UserID, t.TokenValue, t.ExpiresAt, nullIfEmpty(t.IssuedIP))
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return auth.ErrDuplicateTokenValue
			case pgErrForeignKeyViolation:
				return auth.ErrUserNotFound
			}
		}
		return err
	}
	return nil
}

func (s *Store) FindByValue(ctx context.Context, value string) (*auth.RefreshToken, error) {
	return scanToken(s.db.QueryRowContext(ctx, `
		select `+tokenColumns+`
		from refresh_tokens
		where token_value = $1
	`, value))
}

// Rotate revokes the active row holding value and inserts next in the same
// transaction. The conditional update doubles as the concurrency control: of
// two racing rotations only one matches the is_revoked = false row.
func (s *Store) Rotate(ctx context.Context, value string, revokedIP string, now time.Time, next *auth.RefreshToken) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		update refresh_tokens
		set is_revoked = true, revoked_at = $2, revoked_ip = $3, replaced_by = $4
		where token_value = $1 and is_revoked = false and expires_at > $2
	`, value, now, nullIfEmpty(revokedIP), next.TokenValue)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		var one int
		err := tx.QueryRowContext(ctx, `select 1 from refresh_tokens where token_value = $1`, value).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return auth.ErrRefreshTokenNotFound
		}
		if err != nil {
			return err
		}
		return auth.ErrRefreshTokenInactive
	}

	if _, err := tx.ExecContext(ctx, `
		insert into refresh_tokens (id, user_id, token_value, expires_at, issued_ip)
		values ($1, $2, $3, $4, $5)
	`, next.ID, next.UserID, next.TokenValue, next.ExpiresAt, nullIfEmpty(next.IssuedIP)); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrDuplicateTokenValue
		}
		return err
	}
	return tx.Commit()
}

// Revoke marks a single token revoked and reports whether the row changed.
// Revoking an already-revoked token is a no-op returning false; only an
// unknown value is an error.
func (s *Store) Revoke(ctx context.Context, value string, revokedIP string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		update refresh_tokens
		set is_revoked = true, revoked_at = $2, revoked_ip = $3
		where token_value = $1 and is_revoked = false
	`, value, now, nullIfEmpty(revokedIP))
	if err != nil {
		return false, err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if aff == 0 {
		var one int
		err := s.db.QueryRowContext(ctx, `select 1 from refresh_tokens where token_value = $1`, value).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return false, auth.ErrRefreshTokenNotFound
		}
		return false, err
	}
	return true, nil
}

// RevokeAll revokes every active token of the user. Nothing to revoke is a
// success with count 0, which keeps logout idempotent.
func (s *Store) RevokeAll(ctx context.Context, userID string, revokedIP string, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		update refresh_tokens
		set is_revoked = true, revoked_at = $2, revoked_ip = $3
		where user_id = $1 and is_revoked = false and expires_at > $2
	`, userID, now, nullIfEmpty(revokedIP))
	if err != nil {
		return 0, err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(aff), nil
}

func (s *Store) ActiveTokens(ctx context.Context, userID string, now time.Time) ([]auth.RefreshToken, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+tokenColumns+`
		from refresh_tokens
		where user_id = $1 and is_revoked = false and expires_at > $2
		order by created_at
	`, userID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []auth.RefreshToken
	for rows.Next() {
		var (
			t          auth.RefreshToken
			revokedAt  sql.NullTime
			replacedBy sql.NullString
			issuedIP   sql.NullString
			revokedIP  sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.UserID, &t.TokenValue, &t.ExpiresAt, &t.IsRevoked, &t.CreatedAt, &revokedAt, &replacedBy, &issuedIP, &revokedIP); err != nil {
			return nil, err
		}
		applyTokenNulls(&t, revokedAt, replacedBy, issuedIP, revokedIP)
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tokens, nil
}

func scanToken(row *sql.Row) (*auth.RefreshToken, error) {
	var (
		t          auth.RefreshToken
		revokedAt  sql.NullTime
		replacedBy sql.NullString
		issuedIP   sql.NullString
		revokedIP  sql.NullString
	)
	err := row.Scan(&t.ID, &t.UserID, &t.TokenValue, &t.ExpiresAt, &t.IsRevoked, &t.CreatedAt, &revokedAt, &replacedBy, &issuedIP, &revokedIP)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrRefreshTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	applyTokenNulls(&t, revokedAt, replacedBy, issuedIP, revokedIP)
	return &t, nil
}

func applyTokenNulls(t *auth.RefreshToken, revokedAt sql.NullTime, replacedBy, issuedIP, revokedIP sql.NullString) {
	if revokedAt.Valid {
		at := revokedAt.Time
		t.RevokedAt = &at
	}
	if replacedBy.Valid {
		t.ReplacedBy = replacedBy.String
	}
	if issuedIP.Valid {
		t.IssuedIP = issuedIP.String
	}
	if revokedIP.Valid {
		t.RevokedIP = revokedIP.String
	}
}
