// Package migrations owns the database schema: goose migrations for the
// public schema and the DDL run when a tenant schema is created.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"strings"

	"github.com/lib/pq"
	"github.com/mbd888/tenantdesk/internal/partition"
	"github.com/pressly/goose/v3"
)

//go:embed sql/*.sql
var FS embed.FS

// Dir is the migration directory inside FS.
const Dir = "sql"

// PublicSchemaEnv is substituted into the public schema migrations.
const PublicSchemaEnv = "PUBLIC_SCHEMA_NAME"

func setup(publicSchema string) error {
	if !partition.ValidSchemaName(publicSchema) {
		return partition.ErrInvalidName
	}
	if os.Getenv(PublicSchemaEnv) != publicSchema {
		if err := os.Setenv(PublicSchemaEnv, publicSchema); err != nil {
			return err
		}
	}
	goose.SetBaseFS(FS)
	return goose.SetDialect("postgres")
}

// ApplyPublic brings the public schema up to the latest version.
func ApplyPublic(ctx context.Context, db *sql.DB, publicSchema string) error {
	return Run(ctx, db, publicSchema, "up")
}

// Run executes a goose command (up, down, status, version, redo, ...)
// against the embedded public schema migrations.
func Run(ctx context.Context, db *sql.DB, publicSchema, command string, args ...string) error {
	if err := setup(publicSchema); err != nil {
		return err
	}
	if err := goose.RunContext(ctx, command, db, Dir, args...); err != nil {
		return fmt.Errorf("migrations: %s: %w", command, err)
	}
	return nil
}

// tenantDDL creates the tables every tenant schema holds. %[1]s is the
// quoted schema name.
const tenantDDL = `
CREATE SCHEMA IF NOT EXISTS %[1]s;

CREATE TABLE IF NOT EXISTS %[1]s.users (
    id            BIGSERIAL PRIMARY KEY,
    email         TEXT NOT NULL CHECK (email <> ''),
    username      TEXT NOT NULL CHECK (char_length(username) >= 3),
    first_name    TEXT NOT NULL DEFAULT '',
    last_name     TEXT NOT NULL DEFAULT '',
    phone_number  TEXT,
    kind          TEXT NOT NULL,
    role          TEXT,
    is_active     BOOLEAN NOT NULL DEFAULT TRUE,
    date_joined   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    password_hash TEXT NOT NULL DEFAULT '',
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT users_email_key UNIQUE (email),
    CONSTRAINT users_kind_check CHECK (kind IN ('superuser', 'tenant_admin', 'role_user')),
    CONSTRAINT users_role_check CHECK ((kind = 'role_user') = (role IS NOT NULL))
);

CREATE INDEX IF NOT EXISTS idx_users_created ON %[1]s.users (created_at DESC);

CREATE TABLE IF NOT EXISTS %[1]s.tasks (
    id           BIGSERIAL PRIMARY KEY,
    user_id      BIGINT NOT NULL REFERENCES %[1]s.users (id) ON DELETE CASCADE,
    title        VARCHAR(200) NOT NULL CHECK (title <> ''),
    description  VARCHAR(500) NOT NULL CHECK (char_length(description) >= 5),
    completed    BOOLEAN NOT NULL DEFAULT FALSE,
    published_at TIMESTAMPTZ,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT tasks_description_key UNIQUE (description)
);

CREATE INDEX IF NOT EXISTS idx_tasks_created ON %[1]s.tasks (created_at DESC, id DESC);
CREATE INDEX IF NOT EXISTS idx_tasks_user ON %[1]s.tasks (user_id);
`

// CreateTenantSchema creates schema and its tables. It is safe to call for a
// schema that already exists.
func CreateTenantSchema(ctx context.Context, db *sql.DB, schema string) error {
	if !partition.ValidSchemaName(schema) {
		return partition.ErrInvalidName
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migrations: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Identifiers can't be parameterized. The name is validated above and
	// quoted here.
	// #nosec G201
	stmt := fmt.Sprintf(tenantDDL, pq.QuoteIdentifier(schema))
	for _, part := range strings.Split(stmt, ";") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, part); err != nil {
			return fmt.Errorf("migrations: create schema %s: %w", schema, err)
		}
	}
	return tx.Commit()
}

// SchemaCreator creates the storage of a new tenant partition.
type SchemaCreator interface {
	CreateSchema(ctx context.Context, schema string) error
}

// Postgres creates tenant schemas in a PostgreSQL database.
type Postgres struct {
	DB *sql.DB
}

func (p Postgres) CreateSchema(ctx context.Context, schema string) error {
	return CreateTenantSchema(ctx, p.DB, schema)
}

// Memory is used with the in-memory stores, which create partitions lazily.
type Memory struct{}

func (Memory) CreateSchema(_ context.Context, schema string) error {
	if !partition.ValidSchemaName(schema) {
		return partition.ErrInvalidName
	}
	return nil
}
