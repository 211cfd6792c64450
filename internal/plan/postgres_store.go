package plan

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/mbd888/tenantdesk/internal/partition"
)

const planColumns = `id, code, price_npr, is_active, max_users, max_lead_forms,
	storage_gb_per_user, bulk_email_limit, bulk_sms, created_at, updated_at`

// PostgresStore persists plans in the public schema.
type PostgresStore struct {
	db    *sql.DB
	table string
}

// NewPostgresStore creates a plan store over the subscription_plans table of
// the given public schema.
func NewPostgresStore(db *sql.DB, publicSchema string) *PostgresStore {
	return &PostgresStore{db: db, table: partition.QualifiedTable(publicSchema, "subscription_plans")}
}

func (p *PostgresStore) Create(ctx context.Context, pl *Plan) error {
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO `+p.table+` (code, price_npr, is_active, max_users, max_lead_forms,
			storage_gb_per_user, bulk_email_limit, bulk_sms, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9, NOW()), NOW())
		RETURNING id, created_at, updated_at`,
		string(pl.Code), pl.PriceNPR, pl.IsActive, pl.MaxUsers, nullInt(pl.MaxLeadForms),
		pl.StorageGBPerUser, nullInt(pl.BulkEmailLimit), pl.BulkSMS, nullTime(pl),
	).Scan(&pl.ID, &pl.CreatedAt, &pl.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrCodeTaken
		}
		return fmt.Errorf("plan: create: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id int64) (*Plan, error) {
	return scanPlan(p.db.QueryRowContext(ctx,
		`SELECT `+planColumns+` FROM `+p.table+` WHERE id = $1`, id))
}

func (p *PostgresStore) GetByCode(ctx context.Context, code Code) (*Plan, error) {
	return scanPlan(p.db.QueryRowContext(ctx,
		`SELECT `+planColumns+` FROM `+p.table+` WHERE code = $1`, string(code)))
}

func (p *PostgresStore) List(ctx context.Context, f ListFilter) ([]*Plan, error) {
	query := `SELECT ` + planColumns + ` FROM ` + p.table + ` WHERE TRUE`
	var args []any
	if f.IsActive != nil {
		args = append(args, *f.IsActive)
		query += fmt.Sprintf(" AND is_active = $%d", len(args))
	}
	if f.BulkSMS != nil {
		args = append(args, *f.BulkSMS)
		query += fmt.Sprintf(" AND bulk_sms = $%d", len(args))
	}
	query += " ORDER BY " + orderClause(f.Ordering)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("plan: list: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var plans []*Plan
	for rows.Next() {
		pl, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, pl)
	}
	return plans, rows.Err()
}

func (p *PostgresStore) Update(ctx context.Context, pl *Plan) error {
	err := p.db.QueryRowContext(ctx, `
		UPDATE `+p.table+` SET code = $1, price_npr = $2, is_active = $3, max_users = $4,
			max_lead_forms = $5, storage_gb_per_user = $6, bulk_email_limit = $7,
			bulk_sms = $8, updated_at = NOW()
		WHERE id = $9
		RETURNING created_at, updated_at`,
		string(pl.Code), pl.PriceNPR, pl.IsActive, pl.MaxUsers, nullInt(pl.MaxLeadForms),
		pl.StorageGBPerUser, nullInt(pl.BulkEmailLimit), pl.BulkSMS, pl.ID,
	).Scan(&pl.CreatedAt, &pl.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrPlanNotFound
	}
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrCodeTaken
		}
		return fmt.Errorf("plan: update: %w", err)
	}
	return nil
}

func orderClause(o string) string {
	switch o {
	case OrderPriceDesc:
		return "price_npr DESC, id"
	case OrderCreatedAsc:
		return "created_at ASC, id"
	case OrderCreatedDesc:
		return "created_at DESC, id"
	default:
		return "price_npr ASC, id"
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPlan(row scanner) (*Plan, error) {
	pl := &Plan{}
	var (
		code                    string
		maxLeadForms, bulkEmail sql.NullInt64
	)
	err := row.Scan(&pl.ID, &code, &pl.PriceNPR, &pl.IsActive, &pl.MaxUsers, &maxLeadForms,
		&pl.StorageGBPerUser, &bulkEmail, &pl.BulkSMS, &pl.CreatedAt, &pl.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, err
	}
	pl.Code = Code(code)
	pl.MaxLeadForms = intPtr(maxLeadForms)
	pl.BulkEmailLimit = intPtr(bulkEmail)
	return pl, nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullTime(pl *Plan) sql.NullTime {
	if pl.CreatedAt.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: pl.CreatedAt, Valid: true}
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

var _ Store = (*PostgresStore)(nil)
