package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/mbd888/tenantdesk/internal/partition"
)

const userColumns = `id, email, username, first_name, last_name, phone_number, kind, role,
	is_active, date_joined, password_hash, created_at, updated_at`

// PostgresStore persists users in the users table of the partition bound to
// each call's context.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed user store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, u *User) error {
	table, err := partition.Table(ctx, "users")
	if err != nil {
		return err
	}
	if u.DateJoined.IsZero() {
		u.DateJoined = time.Now()
	}
	err = p.db.QueryRowContext(ctx, `
		INSERT INTO `+table+` (email, username, first_name, last_name, phone_number, kind, role,
			is_active, date_joined, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
		RETURNING id, created_at, updated_at`,
		u.Email, u.Username, u.FirstName, u.LastName, nullString(u.PhoneNumber), string(u.Kind),
		nullRole(u.Role), u.IsActive, u.DateJoined, u.PasswordHash,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrEmailTaken
		}
		return fmt.Errorf("user: create: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id int64) (*User, error) {
	table, err := partition.Table(ctx, "users")
	if err != nil {
		return nil, err
	}
	return scanUser(p.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM `+table+` WHERE id = $1`, id))
}

func (p *PostgresStore) GetByEmail(ctx context.Context, email string) (*User, error) {
	table, err := partition.Table(ctx, "users")
	if err != nil {
		return nil, err
	}
	return scanUser(p.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM `+table+` WHERE email = $1`, email))
}

func (p *PostgresStore) List(ctx context.Context) ([]*User, error) {
	table, err := partition.Table(ctx, "users")
	if err != nil {
		return nil, err
	}
	rows, err := p.db.QueryContext(ctx, `SELECT `+userColumns+` FROM `+table+` ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("user: list: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (p *PostgresStore) SetActive(ctx context.Context, id int64, active bool) (time.Time, error) {
	table, err := partition.Table(ctx, "users")
	if err != nil {
		return time.Time{}, err
	}
	var updated time.Time
	err = p.db.QueryRowContext(ctx, `
		UPDATE `+table+` SET is_active = $1, updated_at = NOW()
		WHERE id = $2 RETURNING updated_at`, active, id).Scan(&updated)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrUserNotFound
	}
	return updated, err
}

func (p *PostgresStore) SetKind(ctx context.Context, id int64, kind Kind, role *Role) (time.Time, error) {
	table, err := partition.Table(ctx, "users")
	if err != nil {
		return time.Time{}, err
	}
	var updated time.Time
	err = p.db.QueryRowContext(ctx, `
		UPDATE `+table+` SET kind = $1, role = $2, updated_at = NOW()
		WHERE id = $3 RETURNING updated_at`, string(kind), nullRole(role), id).Scan(&updated)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrUserNotFound
	}
	return updated, err
}

// Delete removes the user; tasks follow through ON DELETE CASCADE.
func (p *PostgresStore) Delete(ctx context.Context, id int64) error {
	table, err := partition.Table(ctx, "users")
	if err != nil {
		return err
	}
	result, err := p.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("user: delete: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*User, error) {
	u := &User{}
	var (
		kind        string
		phone, role sql.NullString
	)
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.FirstName, &u.LastName, &phone, &kind, &role,
		&u.IsActive, &u.DateJoined, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	u.Kind = Kind(kind)
	if phone.Valid {
		ph := phone.String
		u.PhoneNumber = &ph
	}
	if role.Valid {
		r := Role(role.String)
		u.Role = &r
	}
	return u, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullRole(r *Role) sql.NullString {
	if r == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*r), Valid: true}
}

var _ Store = (*PostgresStore)(nil)
