package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	appconfig "github.com/wolfman30/outreach-ai-platform/internal/config"
	"github.com/wolfman30/outreach-ai-platform/internal/leads"
	"github.com/wolfman30/outreach-ai-platform/internal/locks"
	"github.com/wolfman30/outreach-ai-platform/internal/outreach"
	"github.com/wolfman30/outreach-ai-platform/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}

	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildLeadStore opens the configured lead store. The returned func releases
// its connections.
func BuildLeadStore(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (leads.Store, func(), error) {
	noop := func() {}
	switch cfg.LeadStore {
	case "sheets":
		if cfg.SheetsSpreadsheetID == "" {
			return nil, noop, fmt.Errorf("bootstrap: SHEETS_SPREADSHEET_ID is required for the sheets lead store")
		}
		var opts []option.ClientOption
		if cfg.GoogleCredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.GoogleCredentialsFile))
		}
		svc, err := sheets.NewService(ctx, opts...)
		if err != nil {
			return nil, noop, fmt.Errorf("bootstrap: sheets client: %w", err)
		}
		logger.Info("lead store: google sheets", "worksheet", cfg.SheetsWorksheet)
		repo := leads.NewSheetsRepository(leads.NewSheetsValues(svc), cfg.SheetsSpreadsheetID, cfg.SheetsWorksheet).
			WithLogger(logger)
		return repo, noop, nil
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, noop, fmt.Errorf("bootstrap: DATABASE_URL is required for the postgres lead store")
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, noop, fmt.Errorf("bootstrap: connect postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, noop, fmt.Errorf("bootstrap: ping postgres: %w", err)
		}
		logger.Info("lead store: postgres")
		return leads.NewPostgresRepository(pool), pool.Close, nil
	case "memory":
		logger.Warn("lead store: in-memory; leads are lost on restart")
		return leads.NewInMemoryRepository(), noop, nil
	default:
		return nil, noop, fmt.Errorf("bootstrap: unknown LEAD_STORE %q", cfg.LeadStore)
	}
}

// BuildLockers picks the cycle and lead lockers. "auto" prefers Redis and
// falls back to file locks for the cycle and process locks for leads.
func BuildLockers(cfg *appconfig.Config, redisClient *redis.Client, logger *logging.Logger) (cycle locks.Locker, lead locks.Locker, err error) {
	backend := cfg.CycleLockBackend
	if backend == "" || backend == "auto" {
		backend = "file"
		if redisClient != nil {
			backend = "redis"
		}
	}

	switch backend {
	case "redis":
		if redisClient == nil {
			return nil, nil, fmt.Errorf("bootstrap: redis lock backend requires REDIS_ADDR")
		}
		rl := locks.NewRedisLocker(redisClient)
		cycle, lead = rl, rl
	case "file":
		cycle, lead = locks.NewFileLocker(cfg.CycleLockDir), locks.NewLocalLocker()
	case "local":
		local := locks.NewLocalLocker()
		cycle, lead = local, local
	default:
		return nil, nil, fmt.Errorf("bootstrap: unknown OUTREACH_CYCLE_LOCK %q", cfg.CycleLockBackend)
	}
	logger.Info("lock backend selected", "backend", backend)
	return cycle, lead, nil
}

// BuildJournal keeps send journals in Redis when available so reconciliation
// survives restarts.
func BuildJournal(redisClient *redis.Client) outreach.SendJournal {
	if redisClient == nil {
		return outreach.NewMemoryJournal()
	}
	return outreach.NewRedisJournal(redisClient)
}
