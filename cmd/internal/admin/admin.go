// Package admin implements the centraqu-admin subcommands.
package admin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/blackswanalpha/CentraQu-sub007/cmd/internal/app"
	"github.com/blackswanalpha/CentraQu-sub007/cmd/internal/client"
	"github.com/blackswanalpha/CentraQu-sub007/cmd/internal/intake"
	intakeapi "github.com/blackswanalpha/CentraQu-sub007/cmd/internal/intake/api"
	"github.com/blackswanalpha/CentraQu-sub007/cmd/security/accesscode"

	"github.com/spf13/pflag"
)

const usage = `usage: centraqu-admin <command> [flags]

commands:
  migrate       apply the client and intake schema to CENTRAQU_DATABASE_URL
  create-link   issue an intake link and print its token and access code
  deactivate    deactivate an intake link by id
`

// Env is what a subcommand runs against.
type Env struct {
	// Migrate applies the schema. It is nil when the backend has nothing to migrate.
	Migrate func(ctx context.Context) error
	Service *intake.Service
	Close   func()
}

// Opener builds an Env for one command invocation.
type Opener func(ctx context.Context) (*Env, error)

// Run dispatches args[0] to its subcommand.
func Run(ctx context.Context, args []string, out io.Writer, open Opener) error {
	if len(args) == 0 {
		_, _ = io.WriteString(out, usage)
		return errors.New("missing command")
	}
	if open == nil {
		return errors.New("admin: nil opener")
	}

	switch args[0] {
	case "migrate":
		return runMigrate(ctx, args[1:], out, open)
	case "create-link":
		return runCreateLink(ctx, args[1:], out, open)
	case "deactivate":
		return runDeactivate(ctx, args[1:], out, open)
	case "help", "-h", "--help":
		_, _ = io.WriteString(out, usage)
		return nil
	default:
		_, _ = io.WriteString(out, usage)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func runMigrate(ctx context.Context, args []string, out io.Writer, open Opener) error {
	fs := pflag.NewFlagSet("migrate", pflag.ContinueOnError)
	fs.SetOutput(out)
	if err := fs.Parse(args); err != nil {
		return err
	}

	env, err := open(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	if env.Migrate == nil {
		return errors.New("migrate: no database configured (set CENTRAQU_DATABASE_URL)")
	}
	if err := env.Migrate(ctx); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(out, "schema applied")
	return nil
}

func runCreateLink(ctx context.Context, args []string, out io.Writer, open Opener) error {
	var (
		createdBy      string
		expiresInHours float64
		maxUses        int
		notes          string
		auditID        string
		projectID      string
	)
	fs := pflag.NewFlagSet("create-link", pflag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVar(&createdBy, "created-by", "", "staff identifier recorded on the link (required)")
	fs.Float64Var(&expiresInHours, "expires-in-hours", 0, "link lifetime in hours (default from CENTRAQU_INTAKE_LINK_TTL)")
	fs.IntVar(&maxUses, "max-uses", 0, "number of submissions the link accepts (default from CENTRAQU_INTAKE_LINK_MAX_USES)")
	fs.StringVar(&notes, "notes", "", "free-form staff notes")
	fs.StringVar(&auditID, "audit-id", "", "related audit id")
	fs.StringVar(&projectID, "project-id", "", "related project id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(createdBy) == "" {
		return errors.New("create-link: --created-by is required")
	}
	if expiresInHours < 0 || maxUses < 0 {
		return errors.New("create-link: --expires-in-hours and --max-uses must be positive")
	}

	env, err := open(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	created, err := env.Service.CreateLink(ctx, intake.CreateLinkInput{
		CreatedBy:        &createdBy,
		ExpiresIn:        time.Duration(expiresInHours * float64(time.Hour)),
		MaxUses:          maxUses,
		RelatedAuditID:   optional(auditID),
		RelatedProjectID: optional(projectID),
		Notes:            optional(notes),
	})
	if err != nil {
		return fmt.Errorf("create-link: %w", err)
	}

	_, _ = fmt.Fprintf(out, "id:          %s\n", created.Link.ID)
	_, _ = fmt.Fprintf(out, "token:       %s\n", created.Token)
	_, _ = fmt.Fprintf(out, "access code: %s\n", created.AccessCode)
	_, _ = fmt.Fprintf(out, "max uses:    %d\n", created.Link.MaxUses)
	_, _ = fmt.Fprintf(out, "expires at:  %s\n", created.Link.ExpiresAt.Format(time.RFC3339))
	return nil
}

func runDeactivate(ctx context.Context, args []string, out io.Writer, open Opener) error {
	var id string
	fs := pflag.NewFlagSet("deactivate", pflag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVar(&id, "id", "", "link id (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(id) == "" {
		return errors.New("deactivate: --id is required")
	}

	env, err := open(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	l, err := env.Service.DeactivateLink(ctx, strings.TrimSpace(id))
	if err != nil {
		return fmt.Errorf("deactivate: %w", err)
	}
	_, _ = fmt.Fprintf(out, "link %s deactivated\n", l.ID)
	return nil
}

// OpenPostgres builds an Env against the database named by the app configuration.
func OpenPostgres(ctx context.Context) (*Env, error) {
	cfg := app.LoadConfig()
	if cfg.DatabaseURL == "" {
		return nil, errors.New("CENTRAQU_DATABASE_URL is not set")
	}
	if err := app.ValidateSecurityConfig(cfg); err != nil {
		return nil, err
	}

	pool, err := app.NewDBPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	svc, err := func() (*intake.Service, error) {
		st, err := intake.NewPostgresStore(pool, intake.WithSchema(cfg.DBSchema))
		if err != nil {
			return nil, err
		}
		dir, err := client.NewPostgresDirectory(pool, client.WithSchema(cfg.DBSchema))
		if err != nil {
			return nil, err
		}
		return newService(st, dir)
	}()
	if err != nil {
		pool.Close()
		return nil, err
	}

	return &Env{
		Migrate: func(ctx context.Context) error { return app.ApplySchemas(ctx, pool, cfg.DBSchema) },
		Service: svc,
		Close:   pool.Close,
	}, nil
}

func newService(st intake.Store, dir intake.Promoter) (*intake.Service, error) {
	codes, err := accesscode.FromEnv()
	if err != nil {
		return nil, err
	}
	return intake.NewService(st, dir,
		intake.WithLimits(intakeapi.LoadConfigFromEnv().Limits()),
		intake.WithAccessCodeConfig(codes),
	)
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
