package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/target/jobqueue/internal/bootstrap"
	domainauth "github.com/target/jobqueue/internal/domain/auth"
	"github.com/target/jobqueue/internal/service"
)

type migrateOptions struct {
	Timeout time.Duration
}

func parseMigrateFlags(args []string) (migrateOptions, error) {
	fs := newFlagSet("migrate")
	opts := migrateOptions{}
	fs.DurationVar(&opts.Timeout, "timeout", defaultMigrationTimeout, "Maximum duration to wait for migrations to complete")
	if err := fs.Parse(args); err != nil {
		return migrateOptions{}, err
	}
	if err := requirePositive("timeout", opts.Timeout); err != nil {
		return migrateOptions{}, err
	}
	return opts, nil
}

func runMigrations(cmdCtx *commandContext, args []string) error {
	opts, err := parseMigrateFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := withSignals(cmdCtx.Ctx, opts.Timeout)
	defer cancel()

	infra, err := connectInfra(cmdCtx, infraOptions{WantDB: true})
	if err != nil {
		return err
	}
	defer infra.Close()

	cmdCtx.Logger.Info("running database migrations")
	if migrateErr := bootstrap.RunMigrations(ctx, infra.DB, cmdCtx.Logger); migrateErr != nil {
		return fmt.Errorf("run migrations: %w", migrateErr)
	}
	cmdCtx.Logger.Info("migrations completed successfully")
	return nil
}

type promoteOptions struct {
	Email string
	Role  domainauth.Role
}

func parsePromoteFlags(args []string) (promoteOptions, error) {
	fs := newFlagSet("promote")
	role := fs.String("role", string(domainauth.RoleAdmin), "Role to assign (admin or user)")
	if err := fs.Parse(args); err != nil {
		return promoteOptions{}, err
	}
	if fs.NArg() != 1 || strings.TrimSpace(fs.Arg(0)) == "" {
		return promoteOptions{}, fmt.Errorf("%w: promote [-role admin|user] <email>", errUsage)
	}
	parsed, err := domainauth.ParseRole(*role)
	if err != nil {
		return promoteOptions{}, err
	}
	return promoteOptions{Email: strings.TrimSpace(fs.Arg(0)), Role: parsed}, nil
}

func runPromote(cmdCtx *commandContext, args []string) error {
	opts, err := parsePromoteFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := withSignals(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	infra, err := connectInfra(cmdCtx, infraOptions{WantDB: true})
	if err != nil {
		return err
	}
	defer infra.Close()

	user, err := infra.Users().SetRole(ctx, opts.Email, opts.Role)
	if err != nil {
		return fmt.Errorf("set role for %s: %w", opts.Email, err)
	}
	return writef(cmdCtx.Out, "%s (%s) is now %s\n", user.Email, user.ID, user.Role)
}

type cleanupOptions struct {
	Retention time.Duration
}

func parseCleanupFlags(args []string, defaultWindow time.Duration) (cleanupOptions, error) {
	fs := newFlagSet("cleanup")
	opts := cleanupOptions{}
	fs.DurationVar(&opts.Retention, "retention", defaultWindow, "Soft-delete SUCCESS jobs created before now minus this window")
	if err := fs.Parse(args); err != nil {
		return cleanupOptions{}, err
	}
	if err := requirePositive("retention", opts.Retention); err != nil {
		return cleanupOptions{}, err
	}
	return opts, nil
}

func runCleanup(cmdCtx *commandContext, args []string) error {
	opts, err := parseCleanupFlags(args, cmdCtx.Config.Retention.Window)
	if err != nil {
		return err
	}

	ctx, cancel := withSignals(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	infra, err := connectInfra(cmdCtx, infraOptions{WantDB: true})
	if err != nil {
		return err
	}
	defer infra.Close()

	retention, err := service.NewRetentionService(service.RetentionServiceOptions{
		Repo:          infra.Jobs(),
		DefaultWindow: opts.Retention,
		BatchSize:     cmdCtx.Config.Retention.BatchSize,
		Logger:        cmdCtx.Logger,
	})
	if err != nil {
		return err
	}

	deleted, err := retention.Sweep(ctx, opts.Retention)
	if err != nil {
		return err
	}
	return writef(cmdCtx.Out, "soft-deleted %d SUCCESS jobs older than %s\n", deleted, opts.Retention)
}

func runReconcile(cmdCtx *commandContext, args []string) error {
	if err := newFlagSet("reconcile").Parse(args); err != nil {
		return err
	}

	ctx, cancel := withSignals(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	infra, err := connectInfra(cmdCtx, infraOptions{WantDB: true, WantRedis: true})
	if err != nil {
		return err
	}
	defer infra.Close()

	queue, err := infra.Queue(cmdCtx.Config.Jobs.QueueKey)
	if err != nil {
		return err
	}
	reaper, err := service.NewReaperService(service.ReaperServiceOptions{
		Repo:       infra.Jobs(),
		Dispatcher: queue,
		Config:     cmdCtx.Config.Reaper,
		Logger:     cmdCtx.Logger,
	})
	if err != nil {
		return err
	}

	requeued, err := reaper.Reconcile(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}
	return writef(cmdCtx.Out, "re-dispatched %d stale PENDING jobs\n", requeued)
}

type statsOptions struct {
	Owner string
}

func parseStatsFlags(args []string) (statsOptions, error) {
	fs := newFlagSet("stats")
	opts := statsOptions{}
	fs.StringVar(&opts.Owner, "owner", "", "Also print job counts for this owner id")
	if err := fs.Parse(args); err != nil {
		return statsOptions{}, err
	}
	opts.Owner = strings.TrimSpace(opts.Owner)
	return opts, nil
}

func runStats(cmdCtx *commandContext, args []string) error {
	opts, err := parseStatsFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := withSignals(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	infra, err := connectInfra(cmdCtx, infraOptions{WantDB: opts.Owner != "", WantRedis: true})
	if err != nil {
		return err
	}
	defer infra.Close()

	queue, err := infra.Queue(cmdCtx.Config.Jobs.QueueKey)
	if err != nil {
		return err
	}
	depth, err := queue.Depth(ctx)
	if err != nil {
		return fmt.Errorf("read queue depth: %w", err)
	}

	tw := tabwriter.NewWriter(cmdCtx.Out, 0, 0, 2, ' ', 0)
	rows := [][2]string{
		{"queued", fmt.Sprint(depth.Queued)},
		{"in_flight", fmt.Sprint(depth.InFlight)},
	}
	if opts.Owner != "" {
		counts, countErr := infra.Jobs().CountByStatus(ctx, opts.Owner)
		if countErr != nil {
			return fmt.Errorf("count jobs: %w", countErr)
		}
		rows = append(rows,
			[2]string{"pending", fmt.Sprint(counts.Pending)},
			[2]string{"in_progress", fmt.Sprint(counts.InProgress)},
			[2]string{"success", fmt.Sprint(counts.Success)},
			[2]string{"failed", fmt.Sprint(counts.Failed)},
		)
	}
	for _, row := range rows {
		if _, werr := fmt.Fprintf(tw, "%s\t%s\n", row[0], row[1]); werr != nil {
			return werr
		}
	}
	return tw.Flush()
}
