package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/jdziat/simple-job-worker/internal/config"
	"github.com/jdziat/simple-job-worker/internal/dispatch"
	"github.com/jdziat/simple-job-worker/internal/logging"
	"github.com/jdziat/simple-job-worker/internal/server"
	"github.com/jdziat/simple-job-worker/pkg/core"
	"github.com/jdziat/simple-job-worker/pkg/repository"
	"github.com/jdziat/simple-job-worker/pkg/schedule"
	"github.com/jdziat/simple-job-worker/pkg/storage"
	"github.com/jdziat/simple-job-worker/pkg/worker"
)

// rawRepository stores parameters and results as raw JSON.
type rawRepository = repository.Repository[json.RawMessage, json.RawMessage]

// app carries what PersistentPreRunE loaded for the subcommands.
type app struct {
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
	logCloser  io.Closer
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "jobworker",
		Short: "Database backed job worker",
		// Silence default error printing; main logs it with slog.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.load()
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if a.logCloser != nil {
				return a.logCloser.Close()
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to a YAML config file")

	root.AddCommand(
		workerCmd(a),
		migrateCmd(a),
		addCmd(a),
		countCmd(a),
		pruneCmd(a),
	)
	return root
}

func (a *app) load() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	a.logger, a.logCloser = logging.New(cfg.Log)
	slog.SetDefault(a.logger)
	return nil
}

// openDB opens the configured database. The returned func closes it.
func (a *app) openDB() (*gorm.DB, func(), error) {
	db, err := storage.Open(a.cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	closeDB := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return db, closeDB, nil
}

func (a *app) repository(db *gorm.DB) *rawRepository {
	return repository.New[json.RawMessage, json.RawMessage](
		storage.NewGormStorage(db),
		repository.WithLogger(a.logger),
	)
}

// ── worker ────────────────────────────────────────────────────────────────────

func workerCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run a worker for the configured job type",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()
			return a.runWorker(ctx)
		},
	}
}

func (a *app) runWorker(ctx context.Context) error {
	cfg := a.cfg
	if err := cfg.ValidateWorker(); err != nil {
		return err
	}

	db, closeDB, err := a.openDB()
	if err != nil {
		return err
	}
	defer closeDB()

	processor, err := dispatch.New(cfg.Dispatch, a.logger)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := worker.NewMetrics(reg)
	if err != nil {
		return err
	}

	opts := []worker.WorkerOption{
		worker.WithLogger(a.logger),
		worker.WithMetrics(metrics),
	}
	if cfg.Worker.RunnerName != "" {
		opts = append(opts, worker.WithRunnerName(cfg.Worker.RunnerName))
	}
	if cfg.Worker.NextRunCron != "" {
		s, err := schedule.ParseCron(cfg.Worker.NextRunCron)
		if err != nil {
			return err
		}
		opts = append(opts, worker.WithNextRunSchedule(s))
	}

	w, err := worker.NewWorker[json.RawMessage, json.RawMessage](a.repository(db), processor, cfg.Worker.Settings, opts...)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	serverErr := make(chan error, 1)
	if cfg.Metrics.Enabled {
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("failed to get underlying *sql.DB: %w", err)
		}
		router := server.NewRouter(server.Deps{
			DB:       sqlDB,
			Gatherer: reg,
			Workers:  []server.StatsProvider{w},
		})
		go func() {
			serverErr <- server.Run(ctx, cfg.Metrics.ListenAddr, router, a.logger)
		}()
	} else {
		close(serverErr)
	}

	workerErr := w.Start(ctx)
	cancel()
	if err := <-serverErr; err != nil {
		a.logger.Error("metrics server failed", "error", err)
	}
	return workerErr
}

// ── migrate ───────────────────────────────────────────────────────────────────

func migrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the jobs table and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, closeDB, err := a.openDB()
			if err != nil {
				return err
			}
			defer closeDB()

			if err := storage.NewGormStorage(db).Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			a.logger.Info("migrations applied")
			return nil
		},
	}
}

// ── add ───────────────────────────────────────────────────────────────────────

func addCmd(a *app) *cobra.Command {
	var jobType, due, params string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a requested job",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dueDate, err := parseDue(due, time.Now().UTC())
			if err != nil {
				return err
			}
			var raw *json.RawMessage
			if params != "" {
				if !json.Valid([]byte(params)) {
					return fmt.Errorf("%w: --params must be valid JSON", core.ErrInvalidArgument)
				}
				msg := json.RawMessage(params)
				raw = &msg
			}

			db, closeDB, err := a.openDB()
			if err != nil {
				return err
			}
			defer closeDB()

			job, err := a.repository(db).AddJob(cmd.Context(), jobType, dueDate, raw)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d\n", job.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&jobType, "type", "", "job type")
	cmd.Flags().StringVar(&due, "due", "", "due date as RFC 3339 or a delay such as 15m (default now)")
	cmd.Flags().StringVar(&params, "params", "", "job parameters as JSON")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

// parseDue accepts an RFC 3339 timestamp or a delay relative to now.
func parseDue(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return now, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	d, err := time.ParseDuration(strings.TrimPrefix(s, "+"))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: --due must be RFC 3339 or a duration, got %q", core.ErrInvalidArgument, s)
	}
	return now.Add(d), nil
}

// ── count ─────────────────────────────────────────────────────────────────────

func countCmd(a *app) *cobra.Command {
	var jobType, state string

	cmd := &cobra.Command{
		Use:   "count",
		Short: "Count jobs of a type",
		RunE: func(cmd *cobra.Command, _ []string) error {
			jobState, err := parseOptionalState(state)
			if err != nil {
				return err
			}

			db, closeDB, err := a.openDB()
			if err != nil {
				return err
			}
			defer closeDB()

			count, err := a.repository(db).CountJobs(cmd.Context(), jobType, jobState)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d\n", count)
			return nil
		},
	}
	cmd.Flags().StringVar(&jobType, "type", "", "job type")
	cmd.Flags().StringVar(&state, "state", "", "REQUESTED, STARTED or FINISHED (default all)")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

// ── prune ─────────────────────────────────────────────────────────────────────

func pruneCmd(a *app) *cobra.Command {
	var (
		jobType, state string
		olderThan      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete jobs matching every given filter",
		RunE: func(cmd *cobra.Command, _ []string) error {
			jobState, err := parseOptionalState(state)
			if err != nil {
				return err
			}
			if olderThan < 0 {
				return fmt.Errorf("%w: --older-than must not be negative", core.ErrInvalidArgument)
			}
			var before time.Time
			if olderThan > 0 {
				before = time.Now().UTC().Add(-olderThan)
			}

			db, closeDB, err := a.openDB()
			if err != nil {
				return err
			}
			defer closeDB()

			deleted, err := a.repository(db).DeleteJobs(cmd.Context(), jobType, jobState, before)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d\n", deleted)
			return nil
		},
	}
	cmd.Flags().StringVar(&jobType, "type", "", "job type")
	cmd.Flags().StringVar(&state, "state", "", "REQUESTED, STARTED or FINISHED")
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "only jobs last modified longer ago than this")
	return cmd
}

func parseOptionalState(s string) (core.JobState, error) {
	if s == "" {
		return "", nil
	}
	return core.ParseJobState(strings.ToUpper(s))
}
