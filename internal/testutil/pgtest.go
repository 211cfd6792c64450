// Package testutil provides shared test infrastructure for integration tests.
package testutil

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/mbd888/tenantdesk/internal/migrations"
)

// PublicSchema is the shared schema used by integration tests.
const PublicSchema = "public"

// PGTest opens a test database connection, applies the public schema
// migrations, and returns the *sql.DB plus a cleanup function.
//
// Tests should call this at the top:
//
//	db, cleanup := testutil.PGTest(t)
//	defer cleanup()
//
// The database comes from POSTGRES_URL. With TESTCONTAINERS=1 and no URL a
// throwaway postgres container is started instead. Otherwise the test is
// skipped. The cleanup function drops tenant schemas and truncates the
// public tables.
func PGTest(t *testing.T) (*sql.DB, func()) {
	t.Helper()

	ctx := context.Background()
	dbURL := os.Getenv("POSTGRES_URL")
	terminate := func() {}

	if dbURL == "" {
		if os.Getenv("TESTCONTAINERS") != "1" {
			t.Skip("POSTGRES_URL not set, skipping integration test")
		}
		ctr, err := postgres.Run(ctx, "postgres:16-alpine",
			postgres.WithDatabase("tenantdesk"),
			postgres.WithUsername("tenantdesk"),
			postgres.WithPassword("tenantdesk"),
			postgres.BasicWaitStrategies(),
		)
		if err != nil {
			t.Fatalf("pgtest: start postgres container: %v", err)
		}
		terminate = func() {
			if err := testcontainers.TerminateContainer(ctr); err != nil {
				t.Logf("pgtest: terminate container: %v", err)
			}
		}
		dbURL, err = ctr.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			terminate()
			t.Fatalf("pgtest: connection string: %v", err)
		}
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		terminate()
		t.Fatalf("pgtest: open database: %v", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		terminate()
		t.Fatalf("pgtest: connect to database: %v", err)
	}

	if err := migrations.ApplyPublic(ctx, db, PublicSchema); err != nil {
		_ = db.Close()
		terminate()
		t.Fatalf("pgtest: run migrations: %v", err)
	}

	cleanup := func() {
		reset(ctx, t, db)
		_ = db.Close()
		terminate()
	}

	return db, cleanup
}

// TenantSchema creates a tenant schema with its tables. It is dropped by the
// PGTest cleanup.
func TenantSchema(t *testing.T, db *sql.DB, schema string) {
	t.Helper()
	if err := migrations.CreateTenantSchema(context.Background(), db, schema); err != nil {
		t.Fatalf("pgtest: create tenant schema %s: %v", schema, err)
	}
}

// reset drops every tenant schema and empties the public tables.
func reset(ctx context.Context, t *testing.T, db *sql.DB) {
	rows, err := db.QueryContext(ctx, `
		SELECT schema_name FROM information_schema.schemata
		WHERE schema_name NOT IN ('public', 'information_schema')
		  AND schema_name NOT LIKE 'pg\_%'`)
	if err != nil {
		t.Logf("pgtest: list schemas: %v", err)
		return
	}
	var schemas []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err == nil {
			schemas = append(schemas, name)
		}
	}
	_ = rows.Close()

	for _, s := range schemas {
		if _, err := db.ExecContext(ctx, "DROP SCHEMA IF EXISTS "+pq.QuoteIdentifier(s)+" CASCADE"); err != nil {
			t.Logf("pgtest: drop schema %s: %v", s, err)
		}
	}

	_, err = db.ExecContext(ctx, `TRUNCATE TABLE public.domains, public.tenants, public.users, public.subscription_plans RESTART IDENTITY CASCADE`)
	if err != nil {
		t.Logf("pgtest: truncate: %v", err)
	}
}
