// Command tenantctl provisions tenants, plans and tenant schemas against the
// configured PostgreSQL database.
//
// Usage:
//
//	tenantctl populate --file tenants.json --seed-tasks
//	tenantctl seed-plans
//	tenantctl create-schema acme
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/mbd888/tenantdesk/internal/billing"
	"github.com/mbd888/tenantdesk/internal/config"
	"github.com/mbd888/tenantdesk/internal/logging"
	"github.com/mbd888/tenantdesk/internal/migrations"
	"github.com/mbd888/tenantdesk/internal/plan"
	"github.com/mbd888/tenantdesk/internal/provision"
	"github.com/mbd888/tenantdesk/internal/retry"
	"github.com/mbd888/tenantdesk/internal/task"
	"github.com/mbd888/tenantdesk/internal/tenant"
	"github.com/mbd888/tenantdesk/internal/user"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// env is the connected database plus the configuration it came from.
type env struct {
	cfg    *config.Config
	db     *sql.DB
	logger *slog.Logger
}

func connect(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	err = retry.Do(ctx, retry.DefaultPolicy(), func(ctx context.Context) error {
		return db.PingContext(ctx)
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := migrations.ApplyPublic(ctx, db, cfg.PublicSchemaName); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate public schema: %w", err)
	}
	return &env{cfg: cfg, db: db, logger: logger}, nil
}

func (e *env) tenants() *tenant.Service {
	plans := plan.NewPostgresStore(e.db, e.cfg.PublicSchemaName)
	gate := billing.Gate(billing.AllowAll{})
	if e.cfg.StripeSecretKey != "" {
		gate = billing.NewStripeGate(e.cfg.StripeSecretKey)
	}
	return tenant.NewService(tenant.NewPostgresStore(e.db, e.cfg.PublicSchemaName), plans, gate)
}

func (e *env) provisioner() *provision.Provisioner {
	tenants := e.tenants()
	users := user.NewService(user.NewPostgresStore(e.db), nil)
	tasks := task.NewService(task.NewPostgresStore(e.db), users)
	return provision.New(tenants, users, tasks, migrations.Postgres{DB: e.db}, e.cfg.PublicSchemaName, e.cfg.BaseDomain)
}

// run connects, hands the environment to fn and closes the database.
func run(cmd *cobra.Command, fn func(ctx context.Context, e *env) error) error {
	ctx := cmd.Context()
	e, err := connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = e.db.Close() }()
	ctx = logging.WithLogger(ctx, e.logger)
	return fn(ctx, e)
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "tenantctl",
		Short:        "Manage tenantdesk tenants",
		SilenceUsage: true,
	}
	root.AddCommand(newPopulateCommand(), newSeedPlansCommand(), newCreateSchemaCommand(), newLinkBillingCommand())
	return root
}

func newPopulateCommand() *cobra.Command {
	var (
		file      string
		seedTasks bool
	)
	cmd := &cobra.Command{
		Use:   "populate",
		Short: "Provision the tenants described in a JSON document",
		Long: `Reads a JSON array of tenants and provisions each one: tenant row,
schema, plan, domain and owner account. Every step is get-or-create, so the
same document can be applied repeatedly.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			specs, err := provision.LoadFile(file)
			if err != nil {
				return err
			}
			return run(cmd, func(ctx context.Context, e *env) error {
				if e.cfg.SeedPlans {
					if _, err := plan.SeedDefaults(ctx, plan.NewPostgresStore(e.db, e.cfg.PublicSchemaName)); err != nil {
						return err
					}
				}
				results, err := e.provisioner().Run(ctx, specs, provision.Options{SeedTasks: seedTasks})
				if printErr := printJSON(cmd, results); printErr != nil {
					return printErr
				}
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "tenants.json", "tenants document to apply")
	cmd.Flags().BoolVar(&seedTasks, "seed-tasks", false, "create starter tasks in empty workspaces")
	return cmd
}

func newSeedPlansCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed-plans",
		Short: "Insert the default subscription plans that are missing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(ctx context.Context, e *env) error {
				n, err := plan.SeedDefaults(ctx, plan.NewPostgresStore(e.db, e.cfg.PublicSchemaName))
				if err != nil {
					return err
				}
				e.logger.Info("plans seeded", "created", n)
				return nil
			})
		},
	}
}

func newCreateSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "create-schema <name>",
		Short: "Create a tenant schema and its tables",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, e *env) error {
				if args[0] == e.cfg.PublicSchemaName {
					return fmt.Errorf("%s is the public schema", args[0])
				}
				if err := migrations.CreateTenantSchema(ctx, e.db, args[0]); err != nil {
					return err
				}
				e.logger.Info("schema ready", "schema", args[0])
				return nil
			})
		},
	}
}

func newLinkBillingCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "link-billing <schema> <stripe-customer-id>",
		Short: "Link a tenant to its Stripe customer",
		Long: `Stores the Stripe customer of the tenant owning <schema>. Paid plan
changes through the admin API are authorised against this customer's active
subscriptions. Pass "" to unlink.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, e *env) error {
				svc := e.tenants()
				t, err := svc.GetBySchema(ctx, args[0])
				if err != nil {
					return err
				}
				if t, err = svc.SetBillingCustomer(ctx, t.ID, args[1]); err != nil {
					return err
				}
				return printJSON(cmd, t)
			})
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
