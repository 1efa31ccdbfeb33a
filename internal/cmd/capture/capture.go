// Package capture parses capture command flags and launches the capture
// runtime.
package capture

import (
	"context"
	"flag"
	"time"

	"github.com/openfield/fieldsync/internal/capture/app"
	"github.com/openfield/fieldsync/internal/capture/remote/httpapi"
	"github.com/openfield/fieldsync/internal/capture/syncqueue"
	entrypoint "github.com/openfield/fieldsync/internal/platform/cmd"
)

// Config holds capture command configuration.
type Config struct {
	APIBaseURL    string        `env:"FIELDSYNC_API_BASE_URL" envDefault:"http://localhost:8080/api"`
	APIToken      string        `env:"FIELDSYNC_API_TOKEN"`
	DBPath        string        `env:"FIELDSYNC_DB_PATH" envDefault:"data/capture.db"`
	ProbeAddr     string        `env:"FIELDSYNC_PROBE_ADDR" envDefault:"1.1.1.1:53"`
	ProbeInterval time.Duration `env:"FIELDSYNC_PROBE_INTERVAL" envDefault:"15s"`
	CacheTTL      time.Duration `env:"FIELDSYNC_CACHE_TTL" envDefault:"24h"`
	PollInterval  time.Duration `env:"FIELDSYNC_POLL_INTERVAL" envDefault:"30s"`
	BatchSize     int           `env:"FIELDSYNC_BATCH_SIZE" envDefault:"25"`
	MaxAttempts   int           `env:"FIELDSYNC_MAX_ATTEMPTS" envDefault:"8"`
	RetryBackoff  time.Duration `env:"FIELDSYNC_RETRY_BACKOFF" envDefault:"5s"`
	RetryMaxDelay time.Duration `env:"FIELDSYNC_RETRY_MAX_DELAY" envDefault:"10m"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.APIBaseURL, "api-base-url", cfg.APIBaseURL, "The survey API base URL")
	fs.StringVar(&cfg.APIToken, "api-token", cfg.APIToken, "The survey API bearer token")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The capture SQLite database path")
	fs.StringVar(&cfg.ProbeAddr, "probe-addr", cfg.ProbeAddr, "Connectivity probe dial address")
	fs.DurationVar(&cfg.ProbeInterval, "probe-interval", cfg.ProbeInterval, "Connectivity probe interval")
	fs.DurationVar(&cfg.CacheTTL, "cache-ttl", cfg.CacheTTL, "Offline mirror freshness window")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Sync queue poll interval")
	fs.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "Sync queue entries drained per pass")
	fs.IntVar(&cfg.MaxAttempts, "max-attempts", cfg.MaxAttempts, "Maximum replay attempts before dead-letter")
	fs.DurationVar(&cfg.RetryBackoff, "retry-backoff", cfg.RetryBackoff, "Base retry backoff delay")
	fs.DurationVar(&cfg.RetryMaxDelay, "retry-max-delay", cfg.RetryMaxDelay, "Maximum retry delay")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the capture runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceCapture, func(context.Context) error {
		backend := httpapi.New(cfg.APIBaseURL, cfg.APIToken)
		runtime, err := app.New(app.RuntimeConfig{
			DBPath:        cfg.DBPath,
			ProbeAddr:     cfg.ProbeAddr,
			ProbeInterval: cfg.ProbeInterval,
			CacheTTL:      cfg.CacheTTL,
			Drain: syncqueue.DrainConfig{
				PollInterval:  cfg.PollInterval,
				BatchSize:     cfg.BatchSize,
				MaxAttempts:   cfg.MaxAttempts,
				RetryBackoff:  cfg.RetryBackoff,
				RetryMaxDelay: cfg.RetryMaxDelay,
			},
		}, backend)
		if err != nil {
			return err
		}
		return runtime.Run(ctx)
	})
}
