// Package config loads the configuration of the jobworker binary from an
// optional YAML file, a .env file and JOBWORKER_ environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/jdziat/simple-job-worker/internal/dispatch"
	"github.com/jdziat/simple-job-worker/internal/logging"
	"github.com/jdziat/simple-job-worker/pkg/core"
	"github.com/jdziat/simple-job-worker/pkg/schedule"
	"github.com/jdziat/simple-job-worker/pkg/storage"
	"github.com/jdziat/simple-job-worker/pkg/worker"
)

// EnvPrefix is prepended to every environment variable, so worker.job_type
// is read from JOBWORKER_WORKER_JOB_TYPE.
const EnvPrefix = "JOBWORKER"

// Config holds all configuration for the binary.
type Config struct {
	Database storage.Config  `mapstructure:"database"`
	Worker   WorkerConfig    `mapstructure:"worker"`
	Log      logging.Config  `mapstructure:"log"`
	Metrics  MetricsConfig   `mapstructure:"metrics"`
	Dispatch dispatch.Config `mapstructure:"dispatch"`
}

// WorkerConfig holds the worker settings and the runner name prefix.
type WorkerConfig struct {
	worker.Settings `mapstructure:",squash"`
	RunnerName      string `mapstructure:"runner_name"`

	// NextRunCron plans successor jobs from a cron expression instead of
	// add_next_job_after.
	NextRunCron string `mapstructure:"next_run_cron"`
}

// MetricsConfig holds the operational HTTP server configuration.
type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
}

// Load reads configuration from configPath, or from jobworker.yaml in
// ./configs or the working directory when configPath is empty. A missing
// default file is not an error.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("jobworker")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	pool := storage.DefaultPoolConfig()
	v.SetDefault("database.driver", storage.DialectSQLite)
	v.SetDefault("database.dsn", "./data/jobs.db")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.pool.max_open_conns", pool.MaxOpenConns)
	v.SetDefault("database.pool.max_idle_conns", pool.MaxIdleConns)
	v.SetDefault("database.pool.conn_max_lifetime", pool.ConnMaxLifetime)
	v.SetDefault("database.pool.conn_max_idle_time", pool.ConnMaxIdleTime)

	settings := worker.DefaultSettings("")
	v.SetDefault("worker.job_type", "")
	v.SetDefault("worker.runner_name", "")
	v.SetDefault("worker.next_run_cron", "")
	v.SetDefault("worker.initial_delay", settings.InitialDelay)
	v.SetDefault("worker.polling_interval", settings.PollingInterval)
	v.SetDefault("worker.add_next_job_after", time.Duration(0))
	v.SetDefault("worker.add_initial_job", false)
	v.SetDefault("worker.delete_jobs_older_than", time.Duration(0))

	log := logging.DefaultConfig()
	v.SetDefault("log.level", log.Level)
	v.SetDefault("log.format", log.Format)
	v.SetDefault("log.file", "")
	v.SetDefault("log.file_only", false)
	v.SetDefault("log.max_size_mb", log.MaxSizeMB)
	v.SetDefault("log.max_backups", log.MaxBackups)
	v.SetDefault("log.max_age_days", log.MaxAgeDays)
	v.SetDefault("log.compress", log.Compress)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.listen_addr", ":9090")

	d := dispatch.DefaultConfig()
	v.SetDefault("dispatch.url", "")
	v.SetDefault("dispatch.timeout", d.Timeout)
	v.SetDefault("dispatch.retry_count", d.RetryCount)
	v.SetDefault("dispatch.retry_wait", d.RetryWait)
	v.SetDefault("dispatch.initial_parameters", "")
}

// Validate checks the sections every command needs.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case storage.DialectSQLite, storage.DialectPostgres:
	default:
		return fmt.Errorf("%w: unsupported database driver %q", core.ErrInvalidArgument, c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("%w: database.dsn is required", core.ErrInvalidArgument)
	}
	return nil
}

// ValidateWorker checks the sections the worker command needs on top of
// Validate.
func (c *Config) ValidateWorker() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := c.Worker.Settings.Validate(); err != nil {
		return err
	}
	if c.Worker.NextRunCron != "" {
		if _, err := schedule.ParseCron(c.Worker.NextRunCron); err != nil {
			return err
		}
	}
	if c.Dispatch.URL == "" {
		return fmt.Errorf("%w: dispatch.url is required", core.ErrInvalidArgument)
	}
	if c.Metrics.Enabled && c.Metrics.ListenAddr == "" {
		return fmt.Errorf("%w: metrics.listen_addr is required when metrics are enabled", core.ErrInvalidArgument)
	}
	return nil
}
