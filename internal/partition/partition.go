// Package partition binds each request to exactly one storage partition
// (a Postgres schema) and carries that binding through context.Context.
//
// Stores never read a process-wide "current schema": they ask the context
// they were handed, so two concurrent requests for different tenants cannot
// observe each other's binding.
package partition

import (
	"context"
	"errors"
	"net"
	"regexp"
	"strings"

	"github.com/lib/pq"
)

// Errors
var (
	ErrUnbound      = errors.New("partition: no partition bound to context")
	ErrUnknownHost  = errors.New("partition: no tenant for host")
	ErrNoTenant     = errors.New("partition: no such tenant")
	ErrInactive     = errors.New("partition: tenant is inactive")
	ErrInvalidName  = errors.New("partition: invalid schema name")
	ErrPublicTarget = errors.New("partition: operation not allowed in the public partition")
)

// DefaultPublicSchema is the shared schema holding plans, tenants and domains.
const DefaultPublicSchema = "public"

var validSchema = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// Partition identifies the schema a request operates in.
type Partition struct {
	Schema   string `json:"schema"`
	TenantID int64  `json:"tenant_id,omitempty"`
	Public   bool   `json:"public"`
}

// PublicPartition returns the binding for the shared schema.
func PublicPartition(schema string) Partition {
	return Partition{Schema: schema, Public: true}
}

type contextKey struct{}

// With binds p to ctx.
func With(ctx context.Context, p Partition) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// From returns the partition bound to ctx.
func From(ctx context.Context) (Partition, bool) {
	p, ok := ctx.Value(contextKey{}).(Partition)
	return p, ok
}

// Schema returns the schema bound to ctx or ErrUnbound.
func Schema(ctx context.Context) (string, error) {
	p, ok := From(ctx)
	if !ok || p.Schema == "" {
		return "", ErrUnbound
	}
	return p.Schema, nil
}

// Table returns the schema-qualified, quoted name of table in the partition
// bound to ctx.
func Table(ctx context.Context, table string) (string, error) {
	schema, err := Schema(ctx)
	if err != nil {
		return "", err
	}
	return QualifiedTable(schema, table), nil
}

// QualifiedTable quotes schema and table for direct use in SQL text.
func QualifiedTable(schema, table string) string {
	return pq.QuoteIdentifier(schema) + "." + pq.QuoteIdentifier(table)
}

// ValidSchemaName reports whether name is usable as a tenant schema.
func ValidSchemaName(name string) bool {
	if !validSchema.MatchString(name) {
		return false
	}
	return !strings.HasPrefix(name, "pg_") && name != "information_schema"
}

// NormalizeHost lower-cases host and strips any port and trailing dot.
func NormalizeHost(host string) string {
	host = strings.TrimSpace(host)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.TrimSuffix(strings.ToLower(host), ".")
}
