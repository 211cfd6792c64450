package task

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/mbd888/tenantdesk/internal/partition"
)

const taskColumns = `id, user_id, title, description, completed, published_at, created_at, updated_at`

// PostgresStore persists tasks in the tasks table of the partition bound to
// each call's context.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed task store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, t *Task) error {
	table, err := partition.Table(ctx, "tasks")
	if err != nil {
		return err
	}
	err = p.db.QueryRowContext(ctx, `
		INSERT INTO `+table+` (user_id, title, description, completed, published_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING id, created_at, updated_at`,
		t.UserID, t.Title, t.Description, t.Completed, t.PublishedAt,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return mapWriteError("create", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id int64) (*Task, error) {
	table, err := partition.Table(ctx, "tasks")
	if err != nil {
		return nil, err
	}
	return scanTask(p.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM `+table+` WHERE id = $1`, id))
}

func (p *PostgresStore) List(ctx context.Context, opts ListOptions) ([]*Task, error) {
	table, err := partition.Table(ctx, "tasks")
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + taskColumns + ` FROM ` + table
	var args []any
	if opts.After != nil {
		query += ` WHERE (created_at, id) < ($1, $2)`
		args = append(args, opts.After.CreatedAt, opts.After.ID)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if opts.Limit > 0 {
		args = append(args, opts.Limit+1)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("task: list: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *PostgresStore) Update(ctx context.Context, t *Task) error {
	table, err := partition.Table(ctx, "tasks")
	if err != nil {
		return err
	}
	err = p.db.QueryRowContext(ctx, `
		UPDATE `+table+` SET title = $1, description = $2, completed = $3, published_at = $4, updated_at = NOW()
		WHERE id = $5
		RETURNING created_at, updated_at`,
		t.Title, t.Description, t.Completed, t.PublishedAt, t.ID,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrTaskNotFound
	}
	if err != nil {
		return mapWriteError("update", err)
	}
	return nil
}

func (p *PostgresStore) Exists(ctx context.Context) (bool, error) {
	table, err := partition.Table(ctx, "tasks")
	if err != nil {
		return false, err
	}
	var exists bool
	err = p.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM `+table+`)`).Scan(&exists)
	return exists, err
}

func (p *PostgresStore) DeleteByUser(ctx context.Context, userID int64) (int, error) {
	table, err := partition.Table(ctx, "tasks")
	if err != nil {
		return 0, err
	}
	result, err := p.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("task: delete by user: %w", err)
	}
	n, err := result.RowsAffected()
	return int(n), err
}

func mapWriteError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return ErrDescriptionTaken
		case "23503":
			return ErrOwnerNotFound
		}
	}
	return fmt.Errorf("task: %s: %w", op, err)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*Task, error) {
	t := &Task{}
	var published sql.NullTime
	err := row.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &t.Completed, &published,
		&t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}
	if published.Valid {
		ts := published.Time
		t.PublishedAt = &ts
	}
	return t, nil
}

var _ Store = (*PostgresStore)(nil)
